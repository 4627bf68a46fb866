// Package notify owns outbound reminders: an SMTP mailer and a one-shot job
// scheduler with an explicit start/stop lifecycle.
package notify

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/gomail.v2"
)

// ErrMissingCredentials means EMAIL_SENDER or EMAIL_PASSWORD is absent from
// the environment. Checked before any network I/O.
var ErrMissingCredentials = errors.New("email credentials not configured")

type Mailer struct {
	Host     string
	Port     int
	Sender   string
	Password string
}

// NewMailer reads sender credentials from the process environment. A mailer
// with missing credentials is still usable for construction; Send fails fast.
func NewMailer(host string, port int) *Mailer {
	return &Mailer{
		Host:     host,
		Port:     port,
		Sender:   os.Getenv("EMAIL_SENDER"),
		Password: os.Getenv("EMAIL_PASSWORD"),
	}
}

// Send delivers a plaintext mail over an authenticated STARTTLS submission.
// The connection is opened and closed per send; no pooling.
func (m *Mailer) Send(recipient, subject, body string) error {
	if m.Sender == "" || m.Password == "" {
		return ErrMissingCredentials
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.Sender)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.Host, m.Port, m.Sender, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
