package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/report"
)

// email mails the HTML rendering of the report. With no byte ceiling the
// whole digest goes out as one message, which is what a mailbox wants.
type email struct {
	host     string
	port     int
	from     string
	password string
	to       []string
	maxBytes int
}

func newEmail(cfg config.EmailChannelConfig) *email {
	port := cfg.Port
	if port == 0 {
		port = 465
	}
	return &email{
		host:     cfg.Host,
		port:     port,
		from:     cfg.From,
		password: cfg.Password,
		to:       cfg.To,
		maxBytes: cfg.MaxBytes,
	}
}

func (e *email) Name() string          { return "email" }
func (e *email) Flavor() report.Flavor { return report.FlavorHTML }
func (e *email) MaxBytes() int         { return e.maxBytes }

func (e *email) Send(ctx context.Context, text string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	if e.port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: e.host})
	}

	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: %w", err)
	}
	defer c.Close()

	if e.port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
				return fmt.Errorf("email: starttls: %w", err)
			}
		}
	}
	if e.password != "" {
		auth := smtp.PlainAuth("", e.from, e.password, e.host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}

	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("email: from: %w", err)
	}
	for _, rcpt := range e.to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if _, err := w.Write(emailMessage(e.from, e.to, text)); err != nil {
		return fmt.Errorf("email: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return c.Quit()
}

// emailMessage assembles an RFC 5322 HTML message.
func emailMessage(from string, to []string, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: TrendRadar\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
