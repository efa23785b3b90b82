// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/auth"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/mailer"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/repository"
)

// NoteDeleter はノートの一括削除インターフェース。
type NoteDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// ServiceConfig はユーザーサービスの設定。
type ServiceConfig struct {
	OTPTTL       time.Duration // メール変更時に再発行する確認コードの有効期間
	EmailTimeout time.Duration
}

// Service はユーザー管理のサービス層。
// プロフィール更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	noteDeleter NoteDeleter
	mail        mailer.EmailSender
	config      ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	noteDeleter NoteDeleter,
	mail mailer.EmailSender,
	config ServiceConfig,
) *Service {
	if config.OTPTTL == 0 {
		config.OTPTTL = 10 * time.Minute
	}
	if config.EmailTimeout == 0 {
		config.EmailTimeout = 10 * time.Second
	}
	return &Service{
		userRepo:    userRepo,
		noteDeleter: noteDeleter,
		mail:        mail,
		config:      config,
	}
}

// Get は指定IDのユーザーを取得する。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateResult はプロフィール更新の結果。
type UpdateResult struct {
	User model.PublicUser
	// EmailChanged はメールアドレスが変更され、再確認が必要になったことを示す。
	EmailChanged bool
	// EmailDelivered は再確認コードの配送に成功したかを示す。
	// EmailChangedがfalseのときは常にfalse。
	EmailDelivered bool
}

// UpdateProfile は表示名・メールアドレスを更新する。
// メールアドレスを変更した場合、新しいアドレスは未確認のため検証フラグを
// 意図的に偽へ戻し、新しい確認コードを即時発行して配送を試みる。
// 配送失敗は更新自体を失敗させない（登録時と同じソフト失敗方針）。
func (s *Service) UpdateProfile(ctx context.Context, userID string, name, email *string) (*UpdateResult, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	result := &UpdateResult{}

	if name != nil && *name != user.Name {
		if n := len([]rune(*name)); n < 2 || n > 50 {
			return nil, model.NewValidationError([]model.FieldError{
				{Field: "name", Message: "名前は2文字以上50文字以下で入力してください。"},
			})
		}
		user.Name = *name
	}

	var newCode string
	if email != nil {
		normalized := model.NormalizeEmail(*email)
		if normalized != user.Email {
			// 登録時と同じ形式検証を適用する。
			// 不正な形式のアドレスを識別キーかつOTP送信先として保存しない。
			if fe := auth.ValidateEmail(normalized); fe != nil {
				return nil, model.NewValidationError([]model.FieldError{*fe})
			}

			existing, err := s.userRepo.FindByEmail(ctx, normalized)
			if err != nil {
				return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
			}
			if existing != nil {
				return nil, model.NewUserExistsError()
			}

			code, err := auth.GenerateOTP()
			if err != nil {
				return nil, fmt.Errorf("failed to generate verification code: %w", err)
			}

			user.Email = normalized
			user.IsVerified = false
			user.OTPCode = code
			user.OTPExpiresAt = time.Now().Add(s.config.OTPTTL)
			newCode = code
			result.EmailChanged = true
		}
	}

	user.UpdatedAt = time.Now()
	// TODO: Updateは全カラム上書きのため、読み取り後に別リクエストがGoogle連携を
	// 完了していた場合にgoogle_idを失う。変更フィールドのみの条件付きUPDATEに置き換える。
	if err := s.userRepo.Update(ctx, user); err != nil {
		if err == repository.ErrEmailTaken {
			return nil, model.NewUserExistsError()
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if result.EmailChanged {
		sendCtx, cancel := context.WithTimeout(ctx, s.config.EmailTimeout)
		defer cancel()
		if err := s.mail.SendVerificationCode(sendCtx, user.Email, newCode); err != nil {
			slog.Error("failed to deliver verification code after email change",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		} else {
			result.EmailDelivered = true
		}

		slog.Info("email changed, re-verification required",
			slog.String("user_id", user.ID),
		)
	}

	result.User = user.Public()
	return result, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: notes → user。所有ノートの削除件数を返す。
func (s *Service) Withdraw(ctx context.Context, userID string) (int64, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return 0, model.NewUserNotFoundError()
	}

	slog.Info("withdrawal started",
		slog.String("user_id", userID),
	)

	// 1. 所有ノートを削除
	deletedNotes, err := s.noteDeleter.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user notes: %w", err)
	}

	// 2. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("withdrawal completed",
		slog.String("user_id", userID),
		slog.Int64("deleted_notes", deletedNotes),
	)

	return deletedNotes, nil
}
