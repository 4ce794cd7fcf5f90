package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// defaultSendTimeout bounds a send whose context carries no deadline.
const defaultSendTimeout = 30 * time.Second

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendFunc has the signature of smtp.SendMail plus a context that bounds
// the whole exchange.
type SendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPTransport sends plain-text mail through an SMTP relay.
type SMTPTransport struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send SendFunc
	now  func() time.Time
}

// NewSMTPTransport constructs a transport that talks SMTP directly over TCP.
// PLAIN auth is used only when a username is configured.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return NewSMTPTransportWithSender(cfg, sendMail)
}

// NewSMTPTransportWithSender constructs a transport with a custom send function (for tests).
func NewSMTPTransportWithSender(cfg SMTPConfig, send SendFunc) *SMTPTransport {
	t := &SMTPTransport{cfg: cfg, send: send, now: time.Now}
	if cfg.Username != "" {
		t.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return t
}

// Send delivers one message to a single recipient.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	msg := t.buildMessage(to, subject, body)

	if err := t.send(ctx, addr, t.auth, t.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s via %s: %w", to, addr, err)
	}
	return nil
}

// sendMail is smtp.SendMail with the connection bound to ctx. When ctx is
// done any pending read or write fails; a ctx without a deadline is capped
// at defaultSendTimeout.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) (err error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parsing address %s: %w", addr, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		if err := conn.SetDeadline(time.Now().Add(defaultSendTimeout)); err != nil {
			_ = conn.Close()
			return fmt.Errorf("setting deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	defer func() {
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
	}()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("reading greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starting tls: %w", err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}

	return c.Quit()
}

// buildMessage renders the headers in a fixed order followed by the body.
func (t *SMTPTransport) buildMessage(to, subject, body string) string {
	headers := [][2]string{
		{"From", t.cfg.From},
		{"To", to},
		{"Subject", subject},
		{"Date", t.now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}

	var sb strings.Builder
	for _, h := range headers {
		fmt.Fprintf(&sb, "%s: %s\r\n", h[0], h[1])
	}
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return sb.String()
}
