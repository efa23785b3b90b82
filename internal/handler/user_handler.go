package handler

import (
	"context"
	"net/http"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/middleware"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Get はユーザー情報を取得する。
	Get(ctx context.Context, userID string) (*model.User, error)
	// UpdateProfile はプロフィールを更新する。nameとemailはnilの場合変更しない。
	UpdateProfile(ctx context.Context, userID string, name, email *string) (*user.UpdateResult, error)
	// Withdraw はアカウントと所有するノートを削除し、削除されたノート数を返す。
	Withdraw(ctx context.Context, userID string) (int64, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// updateProfileResponse はプロフィール更新のレスポンス。
type updateProfileResponse struct {
	User         model.PublicUser `json:"user"`
	EmailChanged bool             `json:"emailChanged"`
	Message      string           `json:"message,omitempty"`
}

// withdrawResponse はアカウント削除のレスポンス。
type withdrawResponse struct {
	Message      string `json:"message"`
	DeletedNotes int64  `json:"deletedNotes"`
}

// Me は自分のアカウント情報の取得を処理する。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u.Public())
}

// UpdateProfile はプロフィール更新を処理する。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	result, err := h.service.UpdateProfile(r.Context(), userID, req.Name, req.Email)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := updateProfileResponse{
		User:         result.User,
		EmailChanged: result.EmailChanged,
	}
	// メールアドレス変更時は再確認が必要になる
	if result.EmailChanged {
		resp.Message = "確認コードを新しいメールアドレスに送信しました。メールをご確認ください。"
		if !result.EmailDelivered {
			resp.Message = "メールアドレスを変更しましたが、確認コードの送信に失敗しました。コードの再送をお試しください。"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Withdraw はアカウント削除を処理する。
// アカウントと同時に所有するすべてのノートを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	deletedNotes, err := h.service.Withdraw(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		Message:      "アカウントを削除しました。",
		DeletedNotes: deletedNotes,
	})
}
