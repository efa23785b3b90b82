package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUser_Public_ExcludesSecrets(t *testing.T) {
	u := &User{
		ID:           "user-1",
		Email:        "taro@example.com",
		Name:         "太郎",
		PasswordHash: "bcrypt-hash",
		GoogleID:     "google-sub-123",
		IsVerified:   true,
		OTPCode:      "123456",
		OTPExpiresAt: time.Now(),
		CreatedAt:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(u.Public())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)

	for _, secret := range []string{"bcrypt-hash", "google-sub-123", "123456"} {
		if strings.Contains(s, secret) {
			t.Errorf("public projection leaked %q: %s", secret, s)
		}
	}
	for _, field := range []string{`"id":"user-1"`, `"email":"taro@example.com"`, `"name":"太郎"`, `"isVerified":true`} {
		if !strings.Contains(s, field) {
			t.Errorf("missing %s in %s", field, s)
		}
	}
}

func TestUser_HasAuthMethod(t *testing.T) {
	tests := []struct {
		name     string
		user     User
		password bool
		google   bool
		any      bool
	}{
		{"password only", User{PasswordHash: "h"}, true, false, true},
		{"google only", User{GoogleID: "g"}, false, true, true},
		{"both", User{PasswordHash: "h", GoogleID: "g"}, true, true, true},
		{"neither", User{}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.HasPassword(); got != tt.password {
				t.Errorf("HasPassword() = %v", got)
			}
			if got := tt.user.HasGoogleID(); got != tt.google {
				t.Errorf("HasGoogleID() = %v", got)
			}
			if got := tt.user.HasAuthMethod(); got != tt.any {
				t.Errorf("HasAuthMethod() = %v", got)
			}
		})
	}
}

func TestUser_ClearOTP(t *testing.T) {
	u := &User{OTPCode: "123456", OTPExpiresAt: time.Now().Add(10 * time.Minute)}
	u.ClearOTP()

	if u.OTPCode != "" {
		t.Errorf("OTPCode = %q", u.OTPCode)
	}
	if !u.OTPExpiresAt.IsZero() {
		t.Errorf("OTPExpiresAt = %v, want zero", u.OTPExpiresAt)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Taro@Example.COM", "taro@example.com"},
		{"  taro@example.com  ", "taro@example.com"},
		{"taro@example.com", "taro@example.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewUserNotFoundError()
	if got := err.Error(); got != "[USER_NOT_FOUND] "+err.Message {
		t.Errorf("Error() = %q", got)
	}
}

func TestAPIError_StatusMapping(t *testing.T) {
	tests := []struct {
		err    *APIError
		code   string
		status int
	}{
		{NewValidationError(nil), ErrCodeValidation, 400},
		{NewUserExistsError(), ErrCodeUserExists, 400},
		{NewUserNotFoundError(), ErrCodeUserNotFound, 404},
		{NewAlreadyVerifiedError(), ErrCodeAlreadyVerified, 400},
		{NewInvalidOTPError(), ErrCodeInvalidOTP, 400},
		{NewEmailSendFailedError(), ErrCodeEmailSendFailed, 500},
		{NewInvalidCredentialsError(), ErrCodeInvalidCredentials, 401},
		{NewGoogleLoginRequiredError(), ErrCodeGoogleLoginRequired, 400},
		{NewEmailNotVerifiedError(), ErrCodeEmailNotVerified, 400},
		{NewInvalidGoogleTokenError(), ErrCodeInvalidGoogleToken, 400},
		{NewIncompleteGoogleProfileError(), ErrCodeIncompleteGoogleProfile, 400},
		{NewMissingTokenError(), ErrCodeMissingToken, 401},
		{NewInvalidTokenError(), ErrCodeInvalidToken, 403},
		{NewTokenExpiredError(), ErrCodeTokenExpired, 403},
		{NewNoteNotFoundError("note-1"), ErrCodeNoteNotFound, 404},
		{NewInternalError(), ErrCodeInternal, 500},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
		}
		if tt.err.Status != tt.status {
			t.Errorf("%s: Status = %d, want %d", tt.code, tt.err.Status, tt.status)
		}
	}
}
