package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/gpuwatch/gpuwatch-agent/internal/config"
)

// Sender delivers one rendered alert message. Abstracted for testability.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// smtpSender implements Sender on top of go-mail.
type smtpSender struct {
	client *mail.Client
	from   string
	to     []string
}

// newSMTPSender builds a go-mail client from the SMTP settings.
// TLS mode: implicit SSL when SMTPSSL is set, mandatory STARTTLS when
// SMTPSTARTTLS is set, otherwise opportunistic STARTTLS.
func newSMTPSender(cfg *config.Config) (Sender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(cfg.MailTimeout),
	}

	switch {
	case cfg.SMTPSSL:
		opts = append(opts, mail.WithSSL())
	case cfg.SMTPSTARTTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if cfg.SMTPUser != "" && cfg.SMTPPass != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPass),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: creating SMTP client: %w", err)
	}

	return &smtpSender{
		client: client,
		from:   cfg.SMTPSender,
		to:     cfg.Recipients,
	}, nil
}

func (s *smtpSender) Send(ctx context.Context, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("notify: invalid sender %q: %w", s.from, err)
	}
	if err := msg.To(s.to...); err != nil {
		return fmt.Errorf("notify: invalid recipients %v: %w", s.to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: SMTP delivery failed: %w", err)
	}
	return nil
}
