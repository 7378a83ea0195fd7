// Package auth はメールアドレスとパスワードによる認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/amiot/internal/model"
	"github.com/hitoshi/amiot/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredential はメールアドレスまたはパスワードが一致しない場合のエラー。
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrSessionNotFound はセッションが存在しないか期限切れの場合のエラー。
	ErrSessionNotFound = errors.New("session not found or expired")
)

// Mailer はパスワードリセットのトークンをユーザーへ届けるインターフェース。
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer はメールを送信せず、トークンをログに出力するMailer。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset はトークンをログに出力する。
func (m *LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.logger.Info("password reset requested",
		slog.String("email", email),
		slog.String("reset_token", token),
	)
	return nil
}

// defaultSessionMaxAge はSessionMaxAge未設定時のセッション有効期間（7日）。
const defaultSessionMaxAge = 7 * 24 * 60 * 60

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge     int           // セッション有効期間（秒）
	ResetTokenTTL     time.Duration // パスワードリセットトークンの有効期間
	MinPasswordLength int
	BcryptCost        int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	resetRepo   repository.PasswordResetRepository
	mailer      Mailer
	config      ServiceConfig
}

// NewService はServiceを生成する。未設定の値には既定値を使う。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	resetRepo repository.PasswordResetRepository,
	mailer Mailer,
	config ServiceConfig,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = defaultSessionMaxAge
	}
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = time.Hour
	}
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = 6
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		resetRepo:   resetRepo,
		mailer:      mailer,
		config:      config,
	}
}

// SignUp はユーザーを登録し、そのままセッションを発行する。
// 入力エラーとメールアドレス重複は*model.APIErrorで返す。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, model.NewEmailAlreadyInUseError()
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return user, session, nil
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
// 一致しない場合はErrInvalidCredentialを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredential
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))
	return user, session, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out")
	return nil
}

// Refresh は有効なセッションを新しいセッションに置き換える。
// 古いセッションは同時に破棄され、同じトークンでの2回目の更新はErrSessionNotFoundになる。
func (s *Service) Refresh(ctx context.Context, sessionID string) (*model.User, *model.Session, error) {
	user, err := s.GetCurrentUser(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	next, err := s.newSession(user.ID)
	if err != nil {
		return nil, nil, err
	}
	rotated, err := s.sessionRepo.Rotate(ctx, sessionID, next)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	if !rotated {
		return nil, nil, ErrSessionNotFound
	}

	return user, next, nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効な場合はErrSessionNotFoundを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}

	return user, nil
}

// SendPasswordReset はリセット用トークンを発行してMailerに渡す。
// 登録の有無は呼び出し元に開示しない。
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	now := time.Now()
	reset := &model.PasswordReset{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		return fmt.Errorf("failed to send reset mail: %w", err)
	}
	return nil
}

// ConfirmPasswordReset はトークンを消費してパスワードを更新し、
// 対象ユーザーの既存セッションをすべて破棄する。
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.resetRepo.Consume(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if reset == nil {
		return model.NewResetTokenInvalidError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, reset.UserID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, reset.UserID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.Info("password reset completed", slog.String("user_id", reset.UserID))
	return nil
}

func (s *Service) validatePassword(password string) error {
	if utf8.RuneCountInString(password) < s.config.MinPasswordLength {
		return model.NewWeakPasswordError(s.config.MinPasswordLength)
	}
	return nil
}

// normalizeEmail はメールアドレスの形式を検証し、小文字に正規化する。
// 表示名付きの形式（"Name <a@b>"）は受け付けない。
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewInvalidEmailError()
	}
	return email, nil
}

// newSession は永続化前のセッションを生成する。
func (s *Service) newSession(userID string) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	now := time.Now()
	return &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	session, err := s.newSession(userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateToken は暗号的に安全なトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
