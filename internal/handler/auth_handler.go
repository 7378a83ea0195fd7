package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/amiot/internal/auth"
	"github.com/hitoshi/amiot/internal/metrics"
	"github.com/hitoshi/amiot/internal/middleware"
	"github.com/hitoshi/amiot/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) (*model.User, *model.Session, error)
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// AuthRecorder は認証操作の結果の記録先。
type AuthRecorder interface {
	RecordAuthAttempt(operation, result string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメールアドレス認証のHTTPハンドラー。
// トークンは応答ボディで返し、ブラウザ向けに同じ値をHTTP Only Cookieにも設定する。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder AuthRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderがnilの場合は記録しない。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder AuthRecorder) *AuthHandler {
	if recorder == nil {
		recorder = nopMetrics{}
	}
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type confirmPasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// authResponse はセッションを発行したエンドポイントの応答。
type authResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Register はユーザーを登録してサインインさせる。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, session, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recorder.RecordAuthAttempt("register", metrics.ResultFailure)
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordAuthAttempt("register", metrics.ResultSuccess)
	h.writeSession(w, http.StatusCreated, user, session)
}

// Login はメールアドレスとパスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recorder.RecordAuthAttempt("login", metrics.ResultFailure)
		if errors.Is(err, auth.ErrInvalidCredential) {
			middleware.WriteAPIError(w, model.NewInvalidCredentialError())
			return
		}
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordAuthAttempt("login", metrics.ResultSuccess)
	h.writeSession(w, http.StatusOK, user, session)
}

// Logout はセッションを破棄する。セッションがなくても成功とする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.service.SignOut(r.Context(), token); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh は現在のセッションを新しいトークンに置き換える。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user, session, err := h.service.Refresh(r.Context(), middleware.TokenFromRequest(r))
	if err != nil {
		h.recorder.RecordAuthAttempt("refresh", metrics.ResultFailure)
		h.writeSessionError(w, err)
		return
	}

	h.recorder.RecordAuthAttempt("refresh", metrics.ResultSuccess)
	h.writeSession(w, http.StatusOK, user, session)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetCurrentUser(r.Context(), middleware.TokenFromRequest(r))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{UserID: user.ID, Email: user.Email})
}

// PasswordReset はパスワードリセットのメールを送信する。
// 登録の有無にかかわらず同じ応答を返す。
// POST /auth/password-reset
func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SendPasswordReset(r.Context(), req.Email); err != nil {
		h.recorder.RecordAuthAttempt("password_reset", metrics.ResultFailure)
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordAuthAttempt("password_reset", metrics.ResultSuccess)
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmPasswordReset はリセット用トークンで新しいパスワードを設定する。
// POST /auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmPasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.recorder.RecordAuthAttempt("password_reset_confirm", metrics.ResultFailure)
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordAuthAttempt("password_reset_confirm", metrics.ResultSuccess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, user *model.User, session *model.Session) {
	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)
	writeJSON(w, status, authResponse{
		Token:     session.ID,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AuthHandler) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrSessionNotFound) {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	handleServiceError(w, err)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
