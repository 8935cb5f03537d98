package utils

import (
	"fmt"

	"github.com/meinhoongagan/clinic-booking/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends HTML email through the configured SMTP server.
type Mailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		from:   cfg.EmailUser,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass),
	}
}

func (m *Mailer) Send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient for %q", subject)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	return m.dialer.DialAndSend(msg)
}
