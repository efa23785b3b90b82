package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 検証エラーの場合のみerrorsにフィールド単位の詳細を含む。
type ErrorResponseBody struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Errors  []model.FieldError `json:"errors,omitempty"`
}

// WriteAPIError は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスコードはAPIError自身が保持する値を使用する。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Errors:  apiErr.Fields,
	})
}

// WriteError はエラーを統一フォーマットでレスポンスに変換する。
// APIError以外のエラーは詳細をログのみに記録し、500を返す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteAPIError(w, apiErr)
		return
	}

	slog.Error("unexpected error",
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}
