package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/metrics"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/middleware"
)

// Pinger はヘルスチェックで使用するデータベース到達性確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Tokens             middleware.TokenAuthenticator
	TokenRefreshWindow time.Duration
	CORSAllowedOrigin  string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger

	// メトリクス
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	// サービス
	AuthService AuthServiceInterface
	NoteService NoteServiceInterface
	UserService UserServiceInterface

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → Metrics
//
// 認証ルート（/auth/*）はベアラートークン検証の外に配置し、
// 登録と確認コード再送にはIPアドレス単位のレート制限を適用する。
// 保護ルート（/api/*）はトークン検証とユーザー単位のレート制限を通過する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Metrics != nil {
		r.Use(deps.Metrics.HTTPMiddleware())
	}

	authHandler := NewAuthHandler(deps.AuthService)
	noteHandler := NewNoteHandler(deps.NoteService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.DB))

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		// 登録とコード再送はメール送信を伴うため、IP単位で厳しめに制限
		r.With(deps.RateLimiter.AuthEndpointMiddleware()).Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.AuthEndpointMiddleware()).Post("/resend-otp", authHandler.ResendOTP)

		r.Post("/verify-otp", authHandler.VerifyOTP)
		r.Post("/login", authHandler.Login)
		r.Post("/google", authHandler.GoogleLogin)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Tokens, deps.TokenRefreshWindow))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ノート管理
		r.Route("/api/notes", func(r chi.Router) {
			r.Get("/", noteHandler.ListNotes)
			r.Post("/", noteHandler.CreateNote)

			r.Route("/{noteID}", func(r chi.Router) {
				r.Get("/", noteHandler.GetNote)
				r.Put("/", noteHandler.UpdateNote)
				r.Delete("/", noteHandler.DeleteNote)
			})
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.UpdateProfile)
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// healthHandler はデータベース到達性を確認するヘルスチェックハンドラーを返す。
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
