package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier mails an HTML receipt with the archive QR code inline.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, logger: slog.Default().With("component", "notify")}, nil
}

// Message builds the mail for n without sending it.
func (s *SMTPNotifier) Message(n Notice) (*mail.Msg, error) {
	body, err := RenderReceipt(n)
	if err != nil {
		return nil, err
	}
	qr, err := QRPNG(n.ArchiveURL)
	if err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp: from: %w", err)
	}
	if err := m.To(n.Email); err != nil {
		return nil, fmt.Errorf("smtp: to: %w", err)
	}
	m.Subject(receiptSubject)
	m.SetBodyString(mail.TypeTextHTML, body)
	if err := m.EmbedReader(qrContentID, bytes.NewReader(qr)); err != nil {
		return nil, fmt.Errorf("smtp: embed qr: %w", err)
	}
	return m, nil
}

func (s *SMTPNotifier) Send(ctx context.Context, n Notice) error {
	m, err := s.Message(n)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send to %s: %w", n.Email, err)
	}

	s.logger.InfoContext(ctx, "receipt sent", "email", n.Email, "tx_hash", n.TxHash)
	return nil
}
