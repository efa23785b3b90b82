package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/notebook?sslmode=disable")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id.apps.googleusercontent.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.TokenTTL != 168*time.Hour {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.TokenRefreshWindow != 24*time.Hour {
		t.Errorf("TokenRefreshWindow = %v", cfg.TokenRefreshWindow)
	}
	if cfg.OTPTTL != 10*time.Minute {
		t.Errorf("OTPTTL = %v", cfg.OTPTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d", cfg.BcryptCost)
	}
	if cfg.RateLimitGeneral != 120 || cfg.RateLimitAuth != 10 {
		t.Errorf("rate limits = (%d, %d)", cfg.RateLimitGeneral, cfg.RateLimitAuth)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.CORSAllowedOrigin != "http://localhost:3000" {
		t.Errorf("CORSAllowedOrigin = %q", cfg.CORSAllowedOrigin)
	}
}

func TestLoad_MissingRequiredVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	// 欠けている変数がすべて列挙されること
	for _, name := range []string{"DATABASE_URL", "JWT_SECRET", "GOOGLE_CLIENT_ID"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %s: %v", name, err)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d", cfg.BcryptCost)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_TTL", "not-a-duration")
	t.Setenv("BCRYPT_COST", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TokenTTL != 168*time.Hour {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d", cfg.BcryptCost)
	}
}

func TestConfig_SMTPEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"addr and from", Config{SMTPAddr: "smtp.example.com:587", SMTPFrom: "noreply@example.com"}, true},
		{"addr only", Config{SMTPAddr: "smtp.example.com:587"}, false},
		{"from only", Config{SMTPFrom: "noreply@example.com"}, false},
		{"neither", Config{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.SMTPEnabled(); got != tt.want {
				t.Errorf("SMTPEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
