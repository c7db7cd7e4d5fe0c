package app

import (
	"log/slog"

	"github.com/codeboard/earlyaccess/internal/notify"
)

// NewMailer returns the transport that finally delivers mail: the log sink in
// log mode, the SMTP relay otherwise.
func NewMailer(cfg *Config, logger *slog.Logger) (notify.Mailer, error) {
	if cfg.MailDelivery == MailDeliveryLog {
		return notify.LogMailer{Logger: logger}, nil
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
	})
}
