package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/auth"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/config"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/database"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/handler"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/logger"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/mailer"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/metrics"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/middleware"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/note"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/repository"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/security"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. メール送信の初期化（SMTP未設定時はログ出力にフォールバック）
	var mail mailer.EmailSender
	if cfg.SMTPEnabled() {
		mail = mailer.NewSMTPSender(mailer.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		slog.Info("smtp sender configured", slog.String("addr", cfg.SMTPAddr))
	} else {
		mail = mailer.NewLogSender()
		slog.Warn("smtp not configured, falling back to log sender")
	}

	// 5. ドメインサービスの初期化
	tokens := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	googleVerifier := auth.NewGoogleIDTokenVerifier(auth.GoogleIDTokenVerifierConfig{
		ClientID: cfg.GoogleClientID,
	})
	authService := auth.NewService(userRepo, tokens, googleVerifier, mail, collector, auth.ServiceConfig{
		OTPTTL:       cfg.OTPTTL,
		BcryptCost:   cfg.BcryptCost,
		EmailTimeout: cfg.EmailTimeout,
	})

	sanitizer := security.NewContentSanitizer()
	noteService := note.NewService(noteRepo, sanitizer)

	userService := user.NewService(userRepo, noteRepo, mail, user.ServiceConfig{
		OTPTTL:       cfg.OTPTTL,
		EmailTimeout: cfg.EmailTimeout,
	})

	// 6. ルーターの構築
	rateLimiterCfg := middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth)
	limiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer limiter.Stop()

	deps := &handler.RouterDeps{
		Tokens:             tokens,
		TokenRefreshWindow: cfg.TokenRefreshWindow,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        limiter,
		Logger:             slog.Default(),

		Metrics:  collector,
		Gatherer: registry,

		AuthService: authService,
		NoteService: noteService,
		UserService: userService,

		DB: db,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version after migration: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d, manual repair required", version)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
