package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/middleware"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	Create(ctx context.Context, userID, title, content string) (*model.Note, error)
	Get(ctx context.Context, userID, noteID string) (*model.Note, error)
	List(ctx context.Context, userID, search string, limit, offset int) ([]*model.Note, int, error)
	Update(ctx context.Context, userID, noteID, title, content string) (*model.Note, error)
	Delete(ctx context.Context, userID, noteID string) error
}

// NoteHandler はノート管理のHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// noteRequest はノート作成・更新リクエストのボディ。
type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// noteResponse はノート情報のAPIレスポンス。
type noteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// noteListResponse はノート一覧のAPIレスポンス。
type noteListResponse struct {
	Notes  []noteResponse `json:"notes"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func toNoteResponse(note *model.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

// CreateNote はノート作成を処理する。
// POST /api/notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	note, err := h.service.Create(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNoteResponse(note))
}

// GetNote はノート詳細の取得を処理する。
// GET /api/notes/{noteID}
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	noteID := chi.URLParam(r, "noteID")

	note, err := h.service.Get(r.Context(), userID, noteID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNoteResponse(note))
}

// ListNotes はノート一覧の取得を処理する。
// GET /api/notes?search=xxx&limit=20&offset=0
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	query := r.URL.Query()
	search := query.Get("search")
	limit := parseIntParam(query.Get("limit"), 0)
	offset := parseIntParam(query.Get("offset"), 0)

	notes, total, err := h.service.List(r.Context(), userID, search, limit, offset)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	items := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		items = append(items, toNoteResponse(note))
	}

	writeJSON(w, http.StatusOK, noteListResponse{
		Notes:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// UpdateNote はノート更新を処理する。
// PUT /api/notes/{noteID}
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	noteID := chi.URLParam(r, "noteID")

	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	note, err := h.service.Update(r.Context(), userID, noteID, req.Title, req.Content)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNoteResponse(note))
}

// DeleteNote はノート削除を処理する。
// DELETE /api/notes/{noteID}
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewMissingTokenError())
		return
	}

	noteID := chi.URLParam(r, "noteID")

	if err := h.service.Delete(r.Context(), userID, noteID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "ノートを削除しました。"})
}

// parseIntParam はクエリパラメータを整数として解析する。
// 空文字列・不正な値の場合はデフォルト値を返す。
func parseIntParam(v string, defaultVal int) int {
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
