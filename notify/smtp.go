package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the outbound mail settings for SMTPMailer.
type SMTPConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	FromAddress string
	// CodeTTL is quoted in the message body. It should match OTP.TTL.
	CodeTTL time.Duration
	// Timeout bounds one delivery, dial to QUIT. Zero means 10s.
	Timeout time.Duration
}

// SMTPMailer delivers codes by email over an SMTP session that must
// negotiate STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	return &SMTPMailer{cfg: cfg}
}

// Send emails code to identifier.
func (m *SMTPMailer) Send(ctx context.Context, identifier, code string, purpose Purpose) error {
	msg, err := composeMessage(m.cfg.FromAddress, identifier, code, purpose, m.cfg.CodeTTL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.sendMail(ctx, identifier, msg); err != nil {
		return fmt.Errorf("sending %s code: %w", purpose, err)
	}
	return nil
}

func (m *SMTPMailer) sendMail(ctx context.Context, to, msg string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(m.cfg.Host, m.cfg.Port))
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server does not advertise STARTTLS: refusing plaintext session")
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}

	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.FromAddress); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return c.Quit()
}

// composeMessage builds the RFC 5322 message for one code. Header injection
// through the recipient is rejected.
func composeMessage(from, to, code string, purpose Purpose, ttl time.Duration) (string, error) {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(from, "\r\n") {
		return "", fmt.Errorf("invalid address")
	}

	var subject, intro string
	switch purpose {
	case PurposePasswordReset:
		subject = "Your password reset code"
		intro = "You requested a password reset."
	case PurposeStepUp:
		subject = "Your verification code"
		intro = "A verification code was requested for your account."
	default:
		return "", fmt.Errorf("unknown code purpose %q", purpose)
	}

	body := intro + "\r\n\r\n" +
		"Your code is: " + code + "\r\n\r\n" +
		"It expires in " + formatDuration(ttl) + ". If you did not request it, ignore this email."

	return "From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body, nil
}

// formatDuration renders an expiry as "1 minute" or "N minutes".
func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	if mins <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
