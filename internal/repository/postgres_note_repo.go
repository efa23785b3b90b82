package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
// 全クエリがuser_idで絞り込まれ、他ユーザーのノートは存在しないものとして扱われる。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// Create はノートを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		note.ID, note.UserID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// FindByIDAndUser は指定IDかつ指定所有者のノートを取得する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Note, error) {
	note := &model.Note{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM notes
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	return note, nil
}

// ListByUser は所有者のノート一覧を更新日時降順で返す。
// searchが空でない場合はタイトルと本文のILIKE部分一致で絞り込む。
func (r *PostgresNoteRepo) ListByUser(ctx context.Context, userID, search string, limit, offset int) ([]*model.Note, int, error) {
	pattern := "%" + search + "%"

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notes
		 WHERE user_id = $1 AND ($2 = '' OR title ILIKE $3 OR content ILIKE $3)`,
		userID, search, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM notes
		 WHERE user_id = $1 AND ($2 = '' OR title ILIKE $3 OR content ILIKE $3)
		 ORDER BY updated_at DESC
		 LIMIT $4 OFFSET $5`,
		userID, search, pattern, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		note := &model.Note{}
		if err := rows.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, total, nil
}

// Update は所有者確認付きでノートを上書き更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresNoteRepo) Update(ctx context.Context, note *model.Note) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notes
		 SET title = $3, content = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2`,
		note.ID, note.UserID, note.Title, note.Content, note.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update note: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByIDAndUser は所有者確認付きでノートを削除する。削除された場合はtrueを返す。
func (r *PostgresNoteRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByUserID は所有者の全ノートを削除し、削除件数を返す。
func (r *PostgresNoteRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user notes: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
