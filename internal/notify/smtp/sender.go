// Package smtp delivers notification emails over SMTP.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/notify"
)

// Config holds the relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// Sender implements notify.Sender with a go-mail client.
type Sender struct {
	cfg    Config
	send   sendFunc
	now    func() time.Time
	logger *zap.Logger
}

// New builds a Sender for cfg. Credentials switch on PLAIN auth; TLS is used
// when the relay offers it.
func New(cfg Config, logger *zap.Logger) (*Sender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mail.NewClient(cfg.Host, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Sender{
		cfg: cfg,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
		now:    time.Now,
		logger: logger,
	}, nil
}

func clientOptions(cfg Config) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return opts
}

// Send composes msg and delivers it, aborting the SMTP session when ctx ends.
func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	m, err := notify.Compose(msg, s.cfg.From, s.now())
	if err != nil {
		return err
	}
	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	s.logger.Debug("notification sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
