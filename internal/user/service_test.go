package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
	"github.com/GEARdHAX/NotebookAppOAuth/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	findByGoogleIDFn func(ctx context.Context, googleID string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
	updateFn         func(ctx context.Context, user *model.User) error
	setOTPFn         func(ctx context.Context, userID, code string, expiresAt, now time.Time) (bool, error)
	redeemOTPFn      func(ctx context.Context, userID, code string, now time.Time) (bool, error)
	deleteByIDFn     func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if m.findByGoogleIDFn != nil {
		return m.findByGoogleIDFn(ctx, googleID)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *model.User) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) SetOTP(ctx context.Context, userID, code string, expiresAt, now time.Time) (bool, error) {
	if m.setOTPFn != nil {
		return m.setOTPFn(ctx, userID, code, expiresAt, now)
	}
	return true, nil
}

func (m *mockUserRepo) RedeemOTP(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	if m.redeemOTPFn != nil {
		return m.redeemOTPFn(ctx, userID, code, now)
	}
	return false, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockNoteDeleter struct {
	deleteByUserIDFn func(ctx context.Context, userID string) (int64, error)
}

func (m *mockNoteDeleter) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return 0, nil
}

type mockMailer struct {
	sendVerificationFn func(ctx context.Context, recipient, code string) error
	sendWelcomeFn      func(ctx context.Context, recipient, name string) error
}

func (m *mockMailer) SendVerificationCode(ctx context.Context, recipient, code string) error {
	if m.sendVerificationFn != nil {
		return m.sendVerificationFn(ctx, recipient, code)
	}
	return nil
}

func (m *mockMailer) SendWelcome(ctx context.Context, recipient, name string) error {
	if m.sendWelcomeFn != nil {
		return m.sendWelcomeFn(ctx, recipient, name)
	}
	return nil
}

func assertAPICode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

func strPtr(s string) *string { return &s }

func verifiedUser() *model.User {
	return &model.User{
		ID:           "user-1",
		Email:        "taro@example.com",
		Name:         "太郎",
		PasswordHash: "hash",
		IsVerified:   true,
	}
}

// --- テスト ---

func TestService_Get_NotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	_, err := svc.Get(context.Background(), "missing")
	assertAPICode(t, err, model.ErrCodeUserNotFound)
}

func TestService_UpdateProfile_NameOnly(t *testing.T) {
	var updated *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	result, err := svc.UpdateProfile(context.Background(), "user-1", strPtr("次郎"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Name != "次郎" {
		t.Errorf("Name = %q", updated.Name)
	}
	if result.EmailChanged {
		t.Error("EmailChanged should be false")
	}
	// 名前変更では検証状態は変わらない
	if !updated.IsVerified {
		t.Error("name change must not reset verification")
	}
}

func TestService_UpdateProfile_InvalidName(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	_, err := svc.UpdateProfile(context.Background(), "user-1", strPtr("x"), nil)
	assertAPICode(t, err, model.ErrCodeValidation)
}

func TestService_UpdateProfile_EmailChange_ResetsVerification(t *testing.T) {
	var updated *model.User
	var sentTo, sentCode string

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	mail := &mockMailer{
		sendVerificationFn: func(ctx context.Context, recipient, code string) error {
			sentTo = recipient
			sentCode = code
			return nil
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, mail, ServiceConfig{OTPTTL: 10 * time.Minute})

	result, err := svc.UpdateProfile(context.Background(), "user-1", nil, strPtr("Jiro@Example.COM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Email != "jiro@example.com" {
		t.Errorf("Email = %q, want normalized", updated.Email)
	}
	// メール変更は検証済みフラグを一方向例外として偽へ戻す
	if updated.IsVerified {
		t.Error("email change must reset verification")
	}
	if updated.OTPCode == "" || updated.OTPExpiresAt.IsZero() {
		t.Error("expected fresh OTP pair for the new address")
	}
	if !result.EmailChanged || !result.EmailDelivered {
		t.Errorf("result = %+v", result)
	}
	if sentTo != "jiro@example.com" || sentCode != updated.OTPCode {
		t.Errorf("verification sent to %q with code %q", sentTo, sentCode)
	}
}

func TestService_UpdateProfile_InvalidEmailShape(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			t.Errorf("malformed email must not be persisted: %q", user.Email)
			return nil
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	for _, email := range []string{"", "not-an-email", "a@b", "no spaces@example.com"} {
		_, err := svc.UpdateProfile(context.Background(), "user-1", nil, strPtr(email))
		assertAPICode(t, err, model.ErrCodeValidation)
	}
}

func TestService_UpdateProfile_SameEmail_NoChange(t *testing.T) {
	var updated *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	// 大文字小文字の違いは正規化後に同一となり、変更扱いにならない
	result, err := svc.UpdateProfile(context.Background(), "user-1", nil, strPtr("TARO@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EmailChanged {
		t.Error("same normalized email must not count as a change")
	}
	if !updated.IsVerified {
		t.Error("verification must be preserved")
	}
}

func TestService_UpdateProfile_EmailTakenByOtherUser(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "other", Email: email}, nil
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	_, err := svc.UpdateProfile(context.Background(), "user-1", nil, strPtr("jiro@example.com"))
	assertAPICode(t, err, model.ErrCodeUserExists)
}

func TestService_UpdateProfile_EmailTakenRace(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrEmailTaken
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	_, err := svc.UpdateProfile(context.Background(), "user-1", nil, strPtr("jiro@example.com"))
	assertAPICode(t, err, model.ErrCodeUserExists)
}

func TestService_UpdateProfile_DeliveryFailure_StillSucceeds(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
	}
	mail := &mockMailer{
		sendVerificationFn: func(ctx context.Context, recipient, code string) error {
			return errors.New("smtp unreachable")
		},
	}
	svc := NewService(repo, &mockNoteDeleter{}, mail, ServiceConfig{})

	result, err := svc.UpdateProfile(context.Background(), "user-1", nil, strPtr("jiro@example.com"))
	if err != nil {
		t.Fatalf("update should succeed despite delivery failure: %v", err)
	}
	if !result.EmailChanged || result.EmailDelivered {
		t.Errorf("result = %+v", result)
	}
}

func TestService_Withdraw_DeletesNotesThenUser(t *testing.T) {
	var order []string
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			order = append(order, "user")
			return nil
		},
	}
	deleter := &mockNoteDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) (int64, error) {
			order = append(order, "notes")
			return 7, nil
		},
	}
	svc := NewService(repo, deleter, &mockMailer{}, ServiceConfig{})

	deleted, err := svc.Withdraw(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deleted != 7 {
		t.Errorf("deleted notes = %d, want 7", deleted)
	}
	if len(order) != 2 || order[0] != "notes" || order[1] != "user" {
		t.Errorf("deletion order = %v, want [notes user]", order)
	}
}

func TestService_Withdraw_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockNoteDeleter{}, &mockMailer{}, ServiceConfig{})

	_, err := svc.Withdraw(context.Background(), "missing")
	assertAPICode(t, err, model.ErrCodeUserNotFound)
}

func TestService_Withdraw_NoteDeletionFailure_AbortsUserDeletion(t *testing.T) {
	userDeleted := false
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return verifiedUser(), nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			userDeleted = true
			return nil
		},
	}
	deleter := &mockNoteDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	svc := NewService(repo, deleter, &mockMailer{}, ServiceConfig{})

	if _, err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	if userDeleted {
		t.Error("user must not be deleted when note deletion fails")
	}
}
