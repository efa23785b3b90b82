// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// FieldError は入力検証エラーのフィールド単位の詳細を表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError は統一エラーフォーマットを表す。
// 検出地点でエラー種別・メッセージ・HTTPステータスを確定し、
// そのまま境界まで伝搬させる。
type APIError struct {
	Code    string       // エラーコード
	Message string       // エラーメッセージ
	Status  int          // HTTPステータスコード
	Fields  []FieldError // 検証エラーのフィールド詳細（検証エラー以外ではnil）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeUserExists              = "USER_EXISTS"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeAlreadyVerified         = "ALREADY_VERIFIED"
	ErrCodeInvalidOTP              = "INVALID_OTP"
	ErrCodeEmailSendFailed         = "EMAIL_SEND_FAILED"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeGoogleLoginRequired     = "GOOGLE_LOGIN_REQUIRED"
	ErrCodeEmailNotVerified        = "EMAIL_NOT_VERIFIED"
	ErrCodeInvalidGoogleToken      = "INVALID_GOOGLE_TOKEN"
	ErrCodeIncompleteGoogleProfile = "INCOMPLETE_GOOGLE_PROFILE"
	ErrCodeMissingToken            = "MISSING_TOKEN"
	ErrCodeInvalidToken            = "INVALID_TOKEN"
	ErrCodeTokenExpired            = "TOKEN_EXPIRED"
	ErrCodeNoteNotFound            = "NOTE_NOT_FOUND"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields []FieldError) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: "入力内容に誤りがあります。",
		Status:  http.StatusBadRequest,
		Fields:  fields,
	}
}

// NewUserExistsError はメールアドレス重複エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:    ErrCodeUserExists,
		Message: "このメールアドレスは既に登録されています。",
		Status:  http.StatusBadRequest,
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeUserNotFound,
		Message: "ユーザーが見つかりません。",
		Status:  http.StatusNotFound,
	}
}

// NewAlreadyVerifiedError は検証済みアカウントへの再検証エラーを生成する。
func NewAlreadyVerifiedError() *APIError {
	return &APIError{
		Code:    ErrCodeAlreadyVerified,
		Message: "このアカウントは既に確認済みです。そのままログインしてください。",
		Status:  http.StatusBadRequest,
	}
}

// NewInvalidOTPError は確認コード不一致・期限切れエラーを生成する。
// コードが存在しない場合・不一致の場合・期限切れの場合を区別せず同一のエラーとする。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidOTP,
		Message: "確認コードが正しくないか、有効期限が切れています。",
		Status:  http.StatusBadRequest,
	}
}

// NewEmailSendFailedError は確認コードの送信失敗エラーを生成する。
func NewEmailSendFailedError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailSendFailed,
		Message: "確認コードの送信に失敗しました。しばらく待ってから再度お試しください。",
		Status:  http.StatusInternalServerError,
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー不在とパスワード不一致を意図的に区別しない
// （アカウントの存在を外部から推測できないようにするため）。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Message: "メールアドレスまたはパスワードが正しくありません。",
		Status:  http.StatusUnauthorized,
	}
}

// NewGoogleLoginRequiredError はGoogle専用アカウントへのパスワードログイン試行エラーを生成する。
func NewGoogleLoginRequiredError() *APIError {
	return &APIError{
		Code:    ErrCodeGoogleLoginRequired,
		Message: "このアカウントはGoogleログインで登録されています。Googleでログインしてください。",
		Status:  http.StatusBadRequest,
	}
}

// NewEmailNotVerifiedError は未確認アカウントへのログイン試行エラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailNotVerified,
		Message: "メールアドレスが未確認です。確認コードを入力してください。",
		Status:  http.StatusBadRequest,
	}
}

// NewInvalidGoogleTokenError はGoogle IDトークンの検証失敗エラーを生成する。
func NewInvalidGoogleTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidGoogleToken,
		Message: "Google認証トークンの検証に失敗しました。",
		Status:  http.StatusBadRequest,
	}
}

// NewIncompleteGoogleProfileError はGoogleプロフィールの必須クレーム欠落エラーを生成する。
func NewIncompleteGoogleProfileError() *APIError {
	return &APIError{
		Code:    ErrCodeIncompleteGoogleProfile,
		Message: "Googleアカウントから必要な情報を取得できませんでした。",
		Status:  http.StatusBadRequest,
	}
}

// NewMissingTokenError は認証トークン欠落エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeMissingToken,
		Message: "認証トークンがありません。",
		Status:  http.StatusUnauthorized,
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
// クライアントが再認証すべきことを区別可能なコードで伝える。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:    ErrCodeTokenExpired,
		Message: "認証トークンの有効期限が切れています。再度ログインしてください。",
		Status:  http.StatusForbidden,
	}
}

// NewInvalidTokenError はトークン不正エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidToken,
		Message: "認証トークンが不正です。",
		Status:  http.StatusForbidden,
	}
}

// NewNoteNotFoundError はノート未検出エラーを生成する。
// 他ユーザー所有のノートへのアクセスも存在しないものとして扱う。
func NewNoteNotFoundError(noteID string) *APIError {
	return &APIError{
		Code:    ErrCodeNoteNotFound,
		Message: fmt.Sprintf("指定されたノートが見つかりません: %s", noteID),
		Status:  http.StatusNotFound,
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "内部エラーが発生しました。",
		Status:  http.StatusInternalServerError,
	}
}
