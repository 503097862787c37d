package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends HTML reminder mails over SMTP.
type Email struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

// NewEmail creates an email channel. Without a host and sender address the
// channel is never enabled.
func NewEmail(cfg SMTPConfig) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &Email{cfg: cfg, sendMail: smtp.SendMail}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Enabled(r Recipient) bool {
	return e.cfg.Host != "" && e.cfg.From != "" && r.Email != ""
}

// Send renders the message and hands it to the SMTP server. net/smtp has no
// context support, so cancellation is only checked before dialing.
func (e *Email) Send(ctx context.Context, r Recipient, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := e.compose(r, m)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if e.cfg.User != "" {
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	if err := e.sendMail(addr, auth, e.cfg.From, []string{r.Email}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", r.Email, err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #3B82F6;">🔔 {{.Title}}</h2>
  <p style="font-size: 16px; line-height: 1.6;">{{if .Name}}{{.Name}},{{end}}</p>
  <div style="background-color: #F3F4F6; padding: 15px; border-radius: 8px; margin: 20px 0;">
    <p style="font-size: 16px; margin: 0;">{{.Body}}</p>
  </div>
</div>
`))

func (e *Email) compose(r Recipient, m Message) ([]byte, error) {
	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, struct {
		Name, Title, Body string
	}{r.Name, m.Title, m.Body}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", r.Email)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", m.Title))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(html.Bytes())
	return buf.Bytes(), nil
}
