package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, password_hash, google_id, is_verified, otp_code, otp_expires_at, created_at, updated_at`

// scanUser は1行をmodel.Userに変換する。NULL許容カラムは空値に写像する。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var passwordHash, googleID, otpCode sql.NullString
	var otpExpiresAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &user.Name,
		&passwordHash, &googleID,
		&user.IsVerified,
		&otpCode, &otpExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.PasswordHash = passwordHash.String
	user.GoogleID = googleID.String
	user.OTPCode = otpCode.String
	if otpExpiresAt.Valid {
		user.OTPExpiresAt = otpExpiresAt.Time
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByGoogleID はGoogleのsubject IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`,
		googleID,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// メール重複時はErrEmailTaken、認証手段が無い場合はErrNoAuthMethodを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if !user.HasAuthMethod() {
		return ErrNoAuthMethod
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, google_id, is_verified, otp_code, otp_expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.Name,
		nullString(user.PasswordHash), nullString(user.GoogleID),
		user.IsVerified,
		nullString(user.OTPCode), nullTime(user.OTPExpiresAt),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はユーザーの可変フィールドを再永続化する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	if !user.HasAuthMethod() {
		return ErrNoAuthMethod
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email = $2, name = $3, password_hash = $4, google_id = $5,
		     is_verified = $6, otp_code = $7, otp_expires_at = $8, updated_at = $9
		 WHERE id = $1`,
		user.ID, user.Email, user.Name,
		nullString(user.PasswordHash), nullString(user.GoogleID),
		user.IsVerified,
		nullString(user.OTPCode), nullTime(user.OTPExpiresAt),
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// SetOTP は未検証ユーザーに限り、確認コードと期限を単一文で差し替える。
// is_verified = FALSE を条件に含めることで、読み取り後に検証を完了した
// アカウントの検証フラグを巻き戻さない。
func (r *PostgresUserRepo) SetOTP(ctx context.Context, userID, code string, expiresAt, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET otp_code = $2, otp_expires_at = $3, updated_at = $4
		 WHERE id = $1 AND is_verified = FALSE`,
		userID, code, expiresAt, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set OTP: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// RedeemOTP は未検証かつコード一致かつ期限内の場合に限り、
// 検証フラグの更新とOTP両フィールドのクリアを単一文で実行する。
// 同時に同じコードで呼ばれた場合、この条件付きUPDATEの行ロックが
// シリアライズポイントになり、片方のみがtrueを得る。
func (r *PostgresUserRepo) RedeemOTP(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL, updated_at = $3
		 WHERE id = $1 AND is_verified = FALSE AND otp_code = $2 AND otp_expires_at > $3`,
		userID, code, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to redeem OTP: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// isUniqueViolation はlib/pqのエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// nullString は空文字列をNULLに写像する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime はゼロ値をNULLに写像する。
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
