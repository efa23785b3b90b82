// Package mailer はメール送信機能を提供する。
//
// 送信はEmailSenderインターフェースとして抽象化され、
// プロセス起動時に1度構築してワークフロー層に注入する。
// グローバル状態として参照しないため、偽の送信器でのテストが可能。
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
)

// EmailSender はメール送信のインターフェース。
// 送信失敗はアカウント状態とは独立に発生しうるため、
// 呼び出し側がエラーの扱い（致命/非致命）を決める。
type EmailSender interface {
	// SendVerificationCode は確認コードを宛先に送信する。
	SendVerificationCode(ctx context.Context, recipient, code string) error
	// SendWelcome は登録完了の通知を宛先に送信する。
	SendWelcome(ctx context.Context, recipient, name string) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Addr     string // "host:port"形式
	Username string
	Password string
	From     string
}

// SMTPSender はSMTP経由でメールを送信するEmailSender実装。
type SMTPSender struct {
	config SMTPConfig
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config}
}

// SendVerificationCode は確認コードをメールで送信する。
func (s *SMTPSender) SendVerificationCode(ctx context.Context, recipient, code string) error {
	subject := "【Notebook】メールアドレス確認コード"
	body := fmt.Sprintf(
		"確認コード: %s\n\nこのコードの有効期限は10分間です。\n心当たりのない場合はこのメールを破棄してください。\n",
		code,
	)
	return s.send(ctx, recipient, subject, body)
}

// SendWelcome は登録完了の通知をメールで送信する。
func (s *SMTPSender) SendWelcome(ctx context.Context, recipient, name string) error {
	subject := "【Notebook】登録が完了しました"
	body := fmt.Sprintf("%s さん\n\nNotebookへの登録が完了しました。\n", name)
	return s.send(ctx, recipient, subject, body)
}

// send はSMTPでメールを送信する。
// ctxの期限を接続の締め切りとして引き継ぐ。応答しない中継サーバーに対して
// ハンドシェイクの途中で固まらないよう、全コマンドに同じ締め切りが効く。
func (s *SMTPSender) send(ctx context.Context, recipient, subject, body string) error {
	host, _, err := net.SplitHostPort(s.config.Addr)
	if err != nil {
		return fmt.Errorf("invalid SMTP address (expected host:port): %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set SMTP connection deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}

	msg := []byte("To: " + recipient + "\r\n" +
		"From: " + s.config.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
		body + "\r\n")

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}

	return client.Quit()
}

// LogSender はメールを送信せずログに記録するEmailSender実装。
// SMTPが未設定の開発環境で使用する。確認コードがログに出るため本番では使用しないこと。
type LogSender struct{}

// NewLogSender はLogSenderを生成する。
func NewLogSender() *LogSender {
	return &LogSender{}
}

// SendVerificationCode は確認コードをログに記録する。
func (s *LogSender) SendVerificationCode(ctx context.Context, recipient, code string) error {
	slog.Info("verification code (log sender)",
		slog.String("recipient", recipient),
		slog.String("code", code),
	)
	return nil
}

// SendWelcome は登録完了通知をログに記録する。
func (s *LogSender) SendWelcome(ctx context.Context, recipient, name string) error {
	slog.Info("welcome email (log sender)",
		slog.String("recipient", recipient),
	)
	return nil
}

// compile-time interface checks
var _ EmailSender = (*SMTPSender)(nil)
var _ EmailSender = (*LogSender)(nil)
