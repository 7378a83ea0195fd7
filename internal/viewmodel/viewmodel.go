// Package viewmodel は画面向けの状態を保持し、入力検証とストア呼び出しを仲介する。
//
// 各フローはIdle → Pending → Success | Failedの状態をとり、結果は
// UiStateとして発行される。フロー同士の排他制御は行わない。
// メソッドは呼び出し元のgoroutineで完了までブロックする。
package viewmodel

import (
	"errors"

	"github.com/hitoshi/amiot/internal/model"
)

// 入力検証のメッセージ
const (
	MsgCredentialsRequired = "Email y contraseña son requeridos"
	MsgPasswordTooShort    = "La contraseña debe tener al menos 6 caracteres"
	MsgInvalidCredentials  = "Email o contraseña incorrectos"
	MsgEmailRequired       = "Email es requerido"
	MsgEmailNotFound       = "Email no encontrado"
	MsgFieldsRequired      = "Todos los campos son requeridos"
	MsgAuthRequired        = "Debes estar autenticado para agregar noticias"
)

// プロバイダーのエラーにメッセージがない場合の表示
const (
	MsgRegisterFailed = "Error al registrar"
	MsgLoginFailed    = "Error al iniciar sesión"
	MsgResetFailed    = "Error al recuperar contraseña"
	MsgAddFailed      = "Error al agregar noticia"
	MsgDeleteFailed   = "Error al eliminar noticia"
)

// MinPasswordLength は登録時のパスワードの最小文字数。
const MinPasswordLength = 6

// errorMessage はエラーから表示用メッセージを取り出す。
// プロバイダーのメッセージはそのまま使い、空の場合はfallbackを返す。
func errorMessage(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

func done(onSuccess func()) {
	if onSuccess != nil {
		onSuccess()
	}
}
