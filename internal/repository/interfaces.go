// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// ErrEmailTaken はメールアドレスの一意制約違反を表す。
// ストレージ層の一意インデックス違反をこのエラーに変換して呼び出し側へ返す。
var ErrEmailTaken = errors.New("email is already taken")

// ErrNoAuthMethod は認証手段を1つも持たないユーザーの永続化試行を表す。
// パスワードハッシュとGoogle IDの両方が空のレコードは保存してはならない。
var ErrNoAuthMethod = errors.New("user has no authentication method")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。呼び出し側でmodel.NormalizeEmailを適用すること。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleID はGoogleのsubject IDでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。
	// メール重複時はErrEmailTaken、認証手段が無い場合はErrNoAuthMethodを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーの可変フィールドを再永続化する。冪等。
	// メール重複時はErrEmailTaken、認証手段が無い場合はErrNoAuthMethodを返す。
	Update(ctx context.Context, user *model.User) error

	// SetOTP は未検証ユーザーに限り、確認コードと期限を単一文で差し替える。
	// 差し替えられた場合はtrueを返す。対象が検証済みの場合はfalseを返し、
	// 検証フラグを含む他のカラムには一切触れない。
	SetOTP(ctx context.Context, userID, code string, expiresAt, now time.Time) (bool, error)

	// RedeemOTP は未検証かつコード一致かつ期限内の場合に限り、
	// 検証フラグの更新とOTP両フィールドのクリアを単一文で実行する。
	// 条件を満たし更新された場合はtrueを返す。
	// 同一コードでの同時呼び出しに対するシリアライズポイント。
	RedeemOTP(ctx context.Context, userID, code string, now time.Time) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// NoteRepository はノートデータの永続化インターフェース。
// 全操作が所有者IDでフィルタされる。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error

	// FindByIDAndUser は指定IDかつ指定所有者のノートを取得する。
	// 見つからない場合（他ユーザー所有を含む）はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Note, error)

	// ListByUser は所有者のノート一覧を更新日時降順で返す。
	// searchが空でない場合はタイトルと本文の部分一致で絞り込む。
	// 戻り値の2番目は絞り込み後の総件数。
	ListByUser(ctx context.Context, userID, search string, limit, offset int) ([]*model.Note, int, error)

	// Update は所有者確認付きでノートを上書き更新する。
	// 対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, note *model.Note) (bool, error)

	// DeleteByIDAndUser は所有者確認付きでノートを削除する。
	// 削除された場合はtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)

	// DeleteByUserID は所有者の全ノートを削除し、削除件数を返す。
	// 退会処理でユーザーレコード削除の前に呼び出される。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}
