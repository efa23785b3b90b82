package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

func TestWriteAPIError_UsesErrorStatus(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewUserNotFoundError())

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Code != "USER_NOT_FOUND" {
		t.Errorf("code = %q", body.Code)
	}
	if body.Errors != nil {
		t.Errorf("errors should be omitted for non-validation errors, got %v", body.Errors)
	}
}

func TestWriteAPIError_ValidationIncludesFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewValidationError([]model.FieldError{
		{Field: "email", Message: "メールアドレスの形式が正しくありません。"},
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Errors) != 1 || body.Errors[0].Field != "email" {
		t.Errorf("errors = %v", body.Errors)
	}
}

func TestWriteError_APIErrorPassedThrough(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, model.NewInvalidCredentialsError())

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_CREDENTIALS") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestWriteError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()

	// サービス層でラップされたAPIErrorも展開される
	wrapped := errors.Join(errors.New("outer"), model.NewNoteNotFoundError("note-1"))
	WriteError(w, wrapped)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWriteError_UnknownError_Returns500(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, errors.New("database connection lost"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q", body.Code)
	}
	// 内部エラーの詳細はレスポンスに漏らさない
	if strings.Contains(w.Body.String(), "database connection lost") {
		t.Error("internal error details must not leak into the response")
	}
}
