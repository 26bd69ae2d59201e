// README: Email notification sender over SMTP.
package notify

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Sender delivers a notification to a recipient address. Implementations
// report failure without retrying; callers decide whether it matters.
type Sender interface {
	Send(to, subject, body string) error
}

// Mailer sends HTML email over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(host string, port int, user, pass, from string) *Mailer {
	return &Mailer{dialer: gomail.NewDialer(host, port, user, pass), from: from}
}

func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

var _ Sender = (*Mailer)(nil)
