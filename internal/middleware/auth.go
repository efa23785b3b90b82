// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/auth"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// bearerPrefix はAuthorizationヘッダーのスキーム接頭辞。大文字小文字は区別しない。
const bearerPrefix = "bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// emailContextKey はリクエストコンテキストにメールアドレスを格納するためのキー。
var emailContextKey = contextKey("email")

// TokenAuthenticator はベアラートークンの検証と再発行に必要なインターフェース。
// auth.TokenCodecの部分集合として定義する。
type TokenAuthenticator interface {
	Verify(tokenString string) (*auth.TokenIdentity, error)
	Issue(userID, email string) (string, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証するミドルウェアを返す。
// 検証に成功したリクエストのコンテキストにユーザーIDとメールアドレスを注入する。
// トークン欠落は401、期限切れ・不正トークンは403を返す。
//
// refreshWindowが正の場合、有効期限まで残りrefreshWindow未満のトークンに対して
// 新しいトークンを発行し、X-Refreshed-Tokenレスポンスヘッダーで返す。
// クライアントは受け取り次第、保持するトークンを差し替えることで
// 継続利用中の再ログインを回避できる。
func NewAuthMiddleware(tokens TokenAuthenticator, refreshWindow time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからベアラートークンを取得
			tokenString, ok := extractBearerToken(r)
			if !ok {
				WriteAPIError(w, model.NewMissingTokenError())
				return
			}

			// 2. トークンを検証
			identity, err := tokens.Verify(tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					WriteAPIError(w, model.NewTokenExpiredError())
					return
				}
				WriteAPIError(w, model.NewInvalidTokenError())
				return
			}

			// 3. 有効期限が近いトークンは新しいトークンに差し替える
			if refreshWindow > 0 && time.Until(identity.ExpiresAt) < refreshWindow {
				refreshed, err := tokens.Issue(identity.UserID, identity.Email)
				if err != nil {
					// 再発行失敗は致命的ではない。元のトークンはまだ有効。
					slog.Error("failed to refresh token",
						slog.String("error", err.Error()),
						slog.String("user_id", identity.UserID),
					)
				} else {
					w.Header().Set("X-Refreshed-Token", refreshed)
				}
			}

			// 4. 認証済みアカウント情報をコンテキストに注入
			ctx := context.WithValue(r.Context(), userIDContextKey, identity.UserID)
			ctx = context.WithValue(ctx, emailContextKey, identity.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// ヘッダーが無い場合、スキームがBearerでない場合、トークンが空の場合はfalseを返す。
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// EmailFromContext はリクエストコンテキストからメールアドレスを取得する。
func EmailFromContext(ctx context.Context) (string, error) {
	email, ok := ctx.Value(emailContextKey).(string)
	if !ok || email == "" {
		return "", fmt.Errorf("email not found in context")
	}
	return email, nil
}

// ContextWithIdentity はコンテキストにユーザーIDとメールアドレスを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, emailContextKey, email)
}
