// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// セッションとパスワードリセットトークンのうち有効期限を過ぎたものを
// 定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの既定の実行間隔。
const DefaultInterval = time.Hour

// Purger は期限切れデータを削除し、削除件数を返す。
// repository.SessionRepository と repository.PasswordResetRepository が満たす。
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Target は削除対象の名前とPurgerの組。
type Target struct {
	Name   string
	Purger Purger
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	targets []Target
	logger  *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(logger *slog.Logger, targets ...Target) *CleanupJob {
	return &CleanupJob{
		targets: targets,
		logger:  logger,
	}
}

// Run は全ての対象について期限切れデータを1回削除する。
// 一部の対象で失敗しても残りの対象は処理し、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var firstErr error
	var total int64
	for _, t := range j.targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		deleted, err := t.Purger.DeleteExpired(ctx)
		if err != nil {
			j.logger.Error("期限切れデータの削除に失敗しました",
				slog.String("target", t.Name),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("%sのクリーンアップに失敗: %w", t.Name, err)
			}
			continue
		}
		total += deleted
		j.logger.Info("期限切れデータを削除しました",
			slog.String("target", t.Name),
			slog.Int64("deleted_count", deleted),
		)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return firstErr
}

// Start はinterval毎にRunを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
