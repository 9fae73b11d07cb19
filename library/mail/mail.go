// Package mail sends notification e-mails over SMTP.
package mail

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Message is one outgoing e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Config holds SMTP settings.
type Config struct {
	Host string
	Port int
	User string
	Pwd  string
	From string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers messages through one SMTP relay.
type SMTPSender struct {
	from   string
	domain string
	dialer dialer
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	if !strings.Contains(from, "@") {
		return nil, errors.Errorf("invalid sender address %q", from)
	}

	return newSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pwd), from), nil
}

func newSender(d dialer, from string) *SMTPSender {
	domain := from[strings.LastIndex(from, "@")+1:]
	return &SMTPSender{from: from, domain: domain, dialer: d}
}

// Send delivers msg. The SMTP client has no context support, so ctx is
// only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send mail")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", "<"+uuid.NewString()+"@"+s.domain+">")
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return errors.Wrapf(err, "send mail to %s", msg.To)
	}

	return nil
}
