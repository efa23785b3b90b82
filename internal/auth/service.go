// Package auth は登録・確認コード検証・ログイン・トークン発行の
// 認証フローを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/mailer"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/repository"
)

// MetricsRecorder は認証イベントのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordRegistration()
	RecordLogin(method string)
	RecordOTPVerification(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	OTPTTL       time.Duration // 確認コードの有効期間
	BcryptCost   int           // パスワードハッシュのコストファクタ
	EmailTimeout time.Duration // メール送信1回あたりのタイムアウト
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenCodec
	google   GoogleTokenVerifier
	mail     mailer.EmailSender
	metrics  MetricsRecorder
	config   ServiceConfig
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(
	userRepo repository.UserRepository,
	tokens *TokenCodec,
	google GoogleTokenVerifier,
	mail mailer.EmailSender,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = 12
	}
	if config.OTPTTL == 0 {
		config.OTPTTL = 10 * time.Minute
	}
	if config.EmailTimeout == 0 {
		config.EmailTimeout = 10 * time.Second
	}
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		google:   google,
		mail:     mail,
		metrics:  metrics,
		config:   config,
	}
}

// RegisterResult は登録処理の結果。
// EmailDeliveredがfalseの場合、アカウントは作成済みだが
// 確認コードの配送に失敗している（resendで再送可能）。
type RegisterResult struct {
	UserID         string
	Email          string
	EmailDelivered bool
}

// AuthResult は認証成功時の結果。ベアラートークンと公開投影を含む。
type AuthResult struct {
	Token string
	User  model.PublicUser
}

// Register はパスワード登録を処理する。
// 未検証アカウントを作成し確認コードを発行・永続化したうえで、
// コードのメール配送を試みる。配送失敗は登録自体を失敗させず、
// 結果のEmailDeliveredで呼び出し側へ伝える
// （アカウントの永続性を配送保証より優先する方針）。
func (s *Service) Register(ctx context.Context, email, password, name string) (*RegisterResult, error) {
	email = model.NormalizeEmail(email)

	if fields := validateRegistration(email, password, name); fields != nil {
		return nil, model.NewValidationError(fields)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserExistsError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		IsVerified:   false,
		OTPCode:      code,
		OTPExpiresAt: now.Add(s.config.OTPTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrEmailTaken {
			// FindByEmailとCreateの間に同一メールで登録された場合
			return nil, model.NewUserExistsError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)
	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}

	delivered := s.deliverVerificationCode(ctx, email, code)

	return &RegisterResult{
		UserID:         user.ID,
		Email:          user.Email,
		EmailDelivered: delivered,
	}, nil
}

// VerifyOTP は確認コードを検証し、成功時にアカウントを検証済みへ遷移させ
// ベアラートークンを発行する。
// 検証フラグの更新とOTPのクリアは単一の条件付きUPDATEで実行され、
// 同一コードでの同時呼び出しでも二重遷移しない。
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	email = model.NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.IsVerified {
		return nil, model.NewAlreadyVerifiedError()
	}

	now := time.Now()
	if user.OTPCode == "" || user.OTPCode != code || !user.OTPExpiresAt.After(now) {
		// 失敗時はOTPフィールドに触れない（期限内であれば再試行可能）
		if s.metrics != nil {
			s.metrics.RecordOTPVerification("invalid")
		}
		return nil, model.NewInvalidOTPError()
	}

	redeemed, err := s.userRepo.RedeemOTP(ctx, user.ID, code, now)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem OTP: %w", err)
	}
	if !redeemed {
		// 同時リクエストとの競合に敗れた場合。最新状態で分類し直す。
		current, err := s.userRepo.FindByID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read user after redeem race: %w", err)
		}
		if current != nil && current.IsVerified {
			return nil, model.NewAlreadyVerifiedError()
		}
		if s.metrics != nil {
			s.metrics.RecordOTPVerification("invalid")
		}
		return nil, model.NewInvalidOTPError()
	}

	user.IsVerified = true
	user.ClearOTP()

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("email verified",
		slog.String("user_id", user.ID),
	)
	if s.metrics != nil {
		s.metrics.RecordOTPVerification("success")
	}

	// ウェルカム通知はベストエフォート。失敗しても検証処理は成功のまま。
	s.deliverWelcome(ctx, user.Email, user.Name)

	return &AuthResult{Token: token, User: user.Public()}, nil
}

// ResendOTP は確認コードを再生成して送信する。
// 既存のコードは新しいコードで上書きされ無効になる。
// 再送は配送そのものが目的のため、配送失敗は呼び出しの失敗として返す。
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.IsVerified {
		return model.NewAlreadyVerifiedError()
	}

	code, err := GenerateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	// 条件付きUPDATEで未検証の場合に限りコードを差し替える。
	// 読み取り後に検証が完了していた場合、検証フラグを巻き戻さない。
	now := time.Now()
	updated, err := s.userRepo.SetOTP(ctx, user.ID, code, now.Add(s.config.OTPTTL), now)
	if err != nil {
		return fmt.Errorf("failed to save new verification code: %w", err)
	}
	if !updated {
		// 同時リクエストとの競合に敗れた場合。最新状態で分類し直す。
		current, err := s.userRepo.FindByID(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to re-read user after resend race: %w", err)
		}
		if current == nil {
			return model.NewUserNotFoundError()
		}
		return model.NewAlreadyVerifiedError()
	}

	if !s.deliverVerificationCode(ctx, email, code) {
		return model.NewEmailSendFailedError()
	}

	slog.Info("verification code resent",
		slog.String("user_id", user.ID),
	)
	return nil
}

// Login はパスワードによるログインを処理する。
// ユーザー不在とパスワード不一致は同一のエラーを返し、
// アカウントの存在を外部から推測できないようにする。
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = model.NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if !user.HasPassword() {
		// Google専用アカウント。パスワード値に関わらず同じ応答を返す。
		return nil, model.NewGoogleLoginRequiredError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if !user.IsVerified {
		return nil, model.NewEmailNotVerifiedError()
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)
	if s.metrics != nil {
		s.metrics.RecordLogin("password")
	}

	return &AuthResult{Token: token, User: user.Public()}, nil
}

// GoogleLogin はGoogle IDトークンによるログインを処理する。
// 既存アカウントがあればGoogleのsubject IDを連携し検証済みへ昇格させる
// （Googleによるメール所有証明がローカルのOTP要件に優先する。昇格は一方向）。
// 存在しなければ検証済み・パスワードなしの新規アカウントを作成する。
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	profile, err := s.google.Verify(ctx, idToken)
	if err != nil {
		slog.Warn("google ID token verification failed",
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidGoogleTokenError()
	}
	if profile.Sub == "" || profile.Email == "" || profile.Name == "" {
		return nil, model.NewIncompleteGoogleProfileError()
	}

	email := model.NormalizeEmail(profile.Email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user != nil {
		changed := false
		if !user.HasGoogleID() {
			user.GoogleID = profile.Sub
			changed = true
		}
		if !user.IsVerified {
			user.IsVerified = true
			user.ClearOTP()
			changed = true
		}
		if changed {
			user.UpdatedAt = time.Now()
			if err := s.userRepo.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to link google account: %w", err)
			}
			slog.Info("google account linked",
				slog.String("user_id", user.ID),
			)
		}
	} else {
		now := time.Now()
		user = &model.User{
			ID:         uuid.New().String(),
			Email:      email,
			Name:       profile.Name,
			GoogleID:   profile.Sub,
			IsVerified: true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create google user: %w", err)
		}
		slog.Info("new user created via google",
			slog.String("user_id", user.ID),
		)
		if s.metrics != nil {
			s.metrics.RecordRegistration()
		}
		s.deliverWelcome(ctx, user.Email, user.Name)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLogin("google")
	}

	return &AuthResult{Token: token, User: user.Public()}, nil
}

// deliverVerificationCode は確認コードの配送を試み、成否を返す。
// 失敗はログに記録するのみで、エラーの扱いは呼び出し側が決める。
func (s *Service) deliverVerificationCode(ctx context.Context, email, code string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, s.config.EmailTimeout)
	defer cancel()

	if err := s.mail.SendVerificationCode(sendCtx, email, code); err != nil {
		slog.Error("failed to deliver verification code",
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// deliverWelcome はウェルカム通知の配送を試みる。失敗はログのみ。
func (s *Service) deliverWelcome(ctx context.Context, email, name string) {
	sendCtx, cancel := context.WithTimeout(ctx, s.config.EmailTimeout)
	defer cancel()

	if err := s.mail.SendWelcome(sendCtx, email, name); err != nil {
		slog.Warn("failed to deliver welcome email",
			slog.String("error", err.Error()),
		)
	}
}
