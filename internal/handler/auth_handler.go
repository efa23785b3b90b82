// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/auth"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/middleware"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register は新規アカウントを登録し、確認コードを送信する。
	Register(ctx context.Context, email, password, name string) (*auth.RegisterResult, error)
	// VerifyOTP は確認コードを検証し、成功時にベアラートークンを発行する。
	VerifyOTP(ctx context.Context, email, code string) (*auth.AuthResult, error)
	// ResendOTP は新しい確認コードを生成して再送する。
	ResendOTP(ctx context.Context, email string) error
	// Login はメールアドレスとパスワードで認証する。
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	// GoogleLogin はGoogle IDトークンで認証する。
	GoogleLogin(ctx context.Context, idToken string) (*auth.AuthResult, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// verifyOTPRequest は確認コード検証リクエストのボディ。
type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// resendOTPRequest は確認コード再送リクエストのボディ。
type resendOTPRequest struct {
	Email string `json:"email"`
}

// loginRequest はパスワードログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// googleLoginRequest はGoogleログインリクエストのボディ。
type googleLoginRequest struct {
	TokenID string `json:"tokenId"`
}

// registerResponse はアカウント登録のレスポンス。
type registerResponse struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// authResponse は認証成功のレスポンス。
type authResponse struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// messageResponse は処理結果メッセージのみのレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// Register はアカウント登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	result, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	// 送信失敗時も登録自体は成功。再送を促すメッセージに切り替える。
	message := "確認コードを送信しました。メールをご確認ください。"
	if !result.EmailDelivered {
		message = "登録は完了しましたが、確認コードの送信に失敗しました。コードの再送をお試しください。"
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:  result.UserID,
		Email:   result.Email,
		Message: message,
	})
}

// VerifyOTP は確認コードの検証を処理する。
// POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	result, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// ResendOTP は確認コードの再送を処理する。
// POST /auth/resend-otp
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "確認コードを再送しました。メールをご確認ください。",
	})
}

// Login はパスワードログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// GoogleLogin はGoogle IDトークンによるログインを処理する。
// POST /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	result, err := h.service.GoogleLogin(r.Context(), req.TokenID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// writeInvalidBodyError はJSONボディの解析失敗を検証エラーとして返す。
func writeInvalidBodyError(w http.ResponseWriter) {
	middleware.WriteAPIError(w, model.NewValidationError([]model.FieldError{
		{Field: "body", Message: "リクエストボディの解析に失敗しました。"},
	}))
}

// decodeJSON はリクエストボディをJSONとして解析する。
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
