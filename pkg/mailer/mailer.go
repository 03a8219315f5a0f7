package mailer

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/pkg/config"
)

// Message is a single outbound HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers mail through an authenticated SMTP relay.
type SMTPSender struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send sendFunc
}

// NewSMTPSender builds an SMTP sender from config.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		host: cfg.Host,
		from: cfg.From,
		auth: auth,
		send: smtp.SendMail,
	}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mail has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	envelopeFrom := s.from
	if addr, err := mail.ParseAddress(s.from); err == nil {
		envelopeFrom = addr.Address
	}
	raw := buildMIME(s.from, msg, time.Now())
	if err := s.send(s.addr, s.auth, envelopeFrom, msg.To, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", strings.Join(msg.To, ","), err)
	}
	return nil
}

func buildMIME(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + headerValue(strings.Join(msg.To, ", ")) + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)) + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks so a value cannot start a new header.
func headerValue(v string) string {
	return strings.TrimSpace(headerBreaks.Replace(v))
}

// LogSender only logs messages; used when mail delivery is disabled.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("mail delivery disabled, message logged",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// New picks the SMTP sender when mail is enabled, the log sender otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) Sender {
	if !cfg.Enabled {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}
