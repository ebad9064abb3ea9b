// Package mailer sends plain-text mail through an SMTP relay that supports
// STARTTLS and PLAIN authentication.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConfigured is returned when the sender address, password or
	// server is missing.
	ErrNotConfigured = errors.New("mailer: email configuration is incomplete")

	// ErrInvalidMessage is returned for a message that cannot be sent as given.
	ErrInvalidMessage = errors.New("mailer: invalid message")
)

// DefaultPort is the submission port used when Config.Port is zero.
const DefaultPort = 587

// Config identifies the relay and the account mail is sent from.
type Config struct {
	Address  string // sender address, also the login
	Password string
	Server   string
	Port     int
}

// Complete reports whether every required setting is present.
func (c Config) Complete() bool {
	return c.Address != "" && c.Password != "" && c.Server != ""
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Server, strconv.Itoa(port))
}

// Message is a single plain-text mail.
type Message struct {
	To      string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers messages with a fresh SMTP session per Send.
type Mailer struct {
	cfg     Config
	dialer  net.Dialer
	tlsConf *tls.Config
	now     func() time.Time
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithTLSConfig overrides the STARTTLS configuration. ServerName is filled
// in from Config.Server when empty.
func WithTLSConfig(c *tls.Config) Option {
	return func(m *Mailer) {
		m.tlsConf = c
	}
}

// WithDialTimeout bounds connection setup.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Mailer) {
		m.dialer.Timeout = d
	}
}

// New returns a Mailer for cfg. An incomplete cfg is accepted; Send then
// fails with ErrNotConfigured.
func New(cfg Config, opts ...Option) *Mailer {
	m := &Mailer{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send delivers msg.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Complete() {
		return ErrNotConfigured
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidMessage, err)
	}
	data, err := m.build(to, msg)
	if err != nil {
		return err
	}

	conn, err := m.dialer.DialContext(ctx, "tcp", m.cfg.addr())
	if err != nil {
		return fmt.Errorf("mailer: dial %s: %w", m.cfg.addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mailer: %w", err)
	}
	defer c.Close()

	tlsConf := &tls.Config{ServerName: m.cfg.Server}
	if m.tlsConf != nil {
		tlsConf = m.tlsConf.Clone()
		if tlsConf.ServerName == "" {
			tlsConf.ServerName = m.cfg.Server
		}
	}
	if err := c.StartTLS(tlsConf); err != nil {
		return fmt.Errorf("mailer: starttls: %w", err)
	}
	if err := c.Auth(smtp.PlainAuth("", m.cfg.Address, m.cfg.Password, m.cfg.Server)); err != nil {
		return fmt.Errorf("mailer: auth: %w", err)
	}
	if err := c.Mail(m.cfg.Address); err != nil {
		return fmt.Errorf("mailer: mail from: %w", err)
	}
	if err := c.Rcpt(to.Address); err != nil {
		return fmt.Errorf("mailer: rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("mailer: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: data: %w", err)
	}
	return c.Quit()
}

// build renders msg with its headers.
func (m *Mailer) build(to *mail.Address, msg Message) ([]byte, error) {
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, fmt.Errorf("%w: subject contains a line break", ErrInvalidMessage)
	}

	from := m.cfg.Address
	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 {
		domain = from[i+1:]
	}

	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("From", from)
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domain+">")
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes(), nil
}
