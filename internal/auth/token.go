package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired は署名は正しいが有効期限を過ぎたトークンを表す。
// クライアントに再認証を促すため、ErrTokenInvalidと区別する。
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid は署名不一致・構造不正・必須クレーム欠落のトークンを表す。
var ErrTokenInvalid = errors.New("token invalid")

// TokenIdentity は検証済みトークンから復元したアカウント識別情報。
type TokenIdentity struct {
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims はベアラートークンのJWTクレーム。
type tokenClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec はベアラートークンの発行と検証を提供する。
// HMAC-SHA256署名付きJWT。サーバー側に状態を持たず、
// 有効期限のみがトークンの寿命を決める。
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec はTokenCodecを生成する。
func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: secret, ttl: ttl}
}

// Issue はアカウント識別情報を埋め込んだ署名付きベアラートークンを発行する。
func (c *TokenCodec) Issue(userID, email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify はトークンを検証し、埋め込まれた識別情報を復元する。
// 期限切れはErrTokenExpired、それ以外の検証失敗はすべてErrTokenInvalidを返す。
// 署名比較はjwtライブラリ内部で定数時間比較される。
func (c *TokenCodec) Verify(tokenString string) (*TokenIdentity, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	// 必須クレームの欠落は不正トークンとして扱う
	if claims.UserID == "" || claims.Email == "" ||
		claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}

	return &TokenIdentity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
