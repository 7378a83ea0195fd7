package handler

import (
	"time"

	"github.com/hitoshi/amiot/internal/auth"
	"github.com/hitoshi/amiot/internal/docstore"
	"github.com/hitoshi/amiot/internal/metrics"
)

// nopMetrics はメトリクスを記録しない実装。コレクター未設定時に使用する。
type nopMetrics struct{}

func (nopMetrics) RecordAuthAttempt(string, string)   {}
func (nopMetrics) RecordNewsWrite(string)             {}
func (nopMetrics) WatcherConnected()                  {}
func (nopMetrics) WatcherDisconnected()               {}
func (nopMetrics) RecordHTTPStatus(int)               {}
func (nopMetrics) RecordRequestLatency(time.Duration) {}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*auth.Service)(nil)
var _ NewsServiceInterface = (*docstore.Service)(nil)
var _ Watcher = (*docstore.Hub)(nil)
var _ metrics.MetricsCollector = nopMetrics{}
