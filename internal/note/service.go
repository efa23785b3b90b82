// Package note はノート管理のドメインロジックを提供する。
package note

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/repository"
)

// タイトルの最大長。
const titleMaxLen = 200

// 一覧取得のページサイズ境界。
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Sanitizer はノート本文のHTMLサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Service はノート管理のサービス層。
// 全操作が認証済みユーザーのIDでスコープされる。
// 所有者IDはリクエストコンテキストから注入されたものだけを使い、
// クライアント入力からは決して受け取らない。
type Service struct {
	noteRepo  repository.NoteRepository
	sanitizer Sanitizer
}

// NewService はServiceを生成する。
func NewService(noteRepo repository.NoteRepository, sanitizer Sanitizer) *Service {
	return &Service{noteRepo: noteRepo, sanitizer: sanitizer}
}

// validateNote はタイトルと本文を検証する。
func validateNote(title, content string) []model.FieldError {
	var fields []model.FieldError
	if title == "" {
		fields = append(fields, model.FieldError{Field: "title", Message: "タイトルは必須です。"})
	} else if len([]rune(title)) > titleMaxLen {
		fields = append(fields, model.FieldError{Field: "title", Message: "タイトルは200文字以下で入力してください。"})
	}
	if content == "" {
		fields = append(fields, model.FieldError{Field: "content", Message: "本文は必須です。"})
	}
	return fields
}

// Create はノートを作成する。本文は保存前にサニタイズされる。
func (s *Service) Create(ctx context.Context, userID, title, content string) (*model.Note, error) {
	if fields := validateNote(title, content); fields != nil {
		return nil, model.NewValidationError(fields)
	}

	now := time.Now()
	note := &model.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   s.sanitizer.Sanitize(content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.noteRepo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	return note, nil
}

// Get は所有者確認付きでノートを取得する。
// 他ユーザー所有のノートも未検出として扱う。
func (s *Service) Get(ctx context.Context, userID, noteID string) (*model.Note, error) {
	note, err := s.noteRepo.FindByIDAndUser(ctx, noteID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	return note, nil
}

// List は所有者のノート一覧を返す。searchが空でない場合は部分一致検索する。
// 戻り値の2番目は絞り込み後の総件数。
func (s *Service) List(ctx context.Context, userID, search string, limit, offset int) ([]*model.Note, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	notes, total, err := s.noteRepo.ListByUser(ctx, userID, search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, total, nil
}

// Update は所有者確認付きでノートを上書き更新する。
func (s *Service) Update(ctx context.Context, userID, noteID, title, content string) (*model.Note, error) {
	if fields := validateNote(title, content); fields != nil {
		return nil, model.NewValidationError(fields)
	}

	note := &model.Note{
		ID:        noteID,
		UserID:    userID,
		Title:     title,
		Content:   s.sanitizer.Sanitize(content),
		UpdatedAt: time.Now(),
	}

	updated, err := s.noteRepo.Update(ctx, note)
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	if !updated {
		return nil, model.NewNoteNotFoundError(noteID)
	}

	// 更新後の完全なレコードを返す
	saved, err := s.noteRepo.FindByIDAndUser(ctx, noteID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read note: %w", err)
	}
	if saved == nil {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	return saved, nil
}

// Delete は所有者確認付きでノートを削除する。
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	deleted, err := s.noteRepo.DeleteByIDAndUser(ctx, noteID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if !deleted {
		return model.NewNoteNotFoundError(noteID)
	}
	return nil
}
