// Package mailer sends verification passcodes over SMTP and decouples
// delivery from the request path with a single-consumer queue.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"

	"github.com/serkayon/biolic/internal/config"
)

// Sender delivers a verification code to an email address
type Sender interface {
	Send(ctx context.Context, email, code string) error
}

var codeTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your verification code</h2>
  <p>Use the code below to verify your email address. It expires in {{.TTLMinutes}} minutes.</p>
  <p style="font-size: 32px; letter-spacing: 8px; font-weight: bold;">{{.Code}}</p>
  <p>If you did not request this code, you can ignore this message.</p>
</body>
</html>`))

// SMTPSender delivers codes through an authenticated STARTTLS session
type SMTPSender struct {
	cfg        config.MailConfig
	ttlMinutes int
}

// NewSMTPSender creates a sender from mail and passcode configuration
func NewSMTPSender(cfg config.MailConfig, ttlMinutes int) *SMTPSender {
	return &SMTPSender{cfg: cfg, ttlMinutes: ttlMinutes}
}

// Send connects, upgrades to TLS, authenticates, and submits one message.
// The context bounds the dial; SMTP protocol exchange is bounded by the
// connection deadline derived from SendTimeout.
func (s *SMTPSender) Send(ctx context.Context, email, code string) error {
	body, err := s.render(email, code)
	if err != nil {
		return fmt.Errorf("render mail: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))

	dialer := &net.Dialer{Timeout: s.cfg.SendTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}

	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(s.cfg.FromEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(email); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) render(email, code string) ([]byte, error) {
	var html bytes.Buffer
	err := codeTemplate.Execute(&html, struct {
		Code       string
		TTLMinutes int
	}{Code: code, TTLMinutes: s.ttlMinutes})
	if err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", s.cfg.FromName, s.cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	msg.WriteString("Subject: Your verification code\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(html.Bytes())
	return msg.Bytes(), nil
}

// NopSender drops messages. Used when SMTP is not configured so local
// environments can exercise the flow without a mail account.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, email, code string) error { return nil }
