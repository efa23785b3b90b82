// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// パスワード登録ユーザーとGoogleログインユーザーの両方を1レコードで表現する。
// PasswordHashとGoogleIDの少なくとも一方は必ず存在する（両方空のUserは永続化不可）。
type User struct {
	ID           string
	Email        string // 小文字正規化済み。全ユーザーで一意。
	Name         string
	PasswordHash string // パスワード登録ユーザーのみ。Googleのみのユーザーは空。
	GoogleID     string // Google連携済みユーザーのみ。未連携は空。
	IsVerified   bool
	OTPCode      string    // 確認コード。検証完了後は必ず空。
	OTPExpiresAt time.Time // OTPCodeが空のときはゼロ値。
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワード認証が可能かを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasGoogleID はGoogle連携済みかを返す。
func (u *User) HasGoogleID() bool {
	return u.GoogleID != ""
}

// HasAuthMethod は少なくとも1つの認証手段を持つかを返す。
// falseのUserは不正な状態であり、永続化してはならない。
func (u *User) HasAuthMethod() bool {
	return u.HasPassword() || u.HasGoogleID()
}

// ClearOTP はOTPの両フィールドを同時にクリアする。
// 片方だけが残る状態を作らないため、個別代入ではなく必ずこのメソッドを使う。
func (u *User) ClearOTP() {
	u.OTPCode = ""
	u.OTPExpiresAt = time.Time{}
}

// PublicUser はAPIレスポンスに含めてよいユーザー情報の投影。
// パスワードハッシュとOTP関連フィールドは構造上含められない。
// シリアライズフックに頼らず、境界でこの型を明示的に構築することで
// 秘匿フィールドの漏出を型レベルで防ぐ。
type PublicUser struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public はユーザーの公開投影を返す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

// NormalizeEmail はメールアドレスを小文字に正規化する。
// 一意性判定・検索の前に必ず適用する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
