package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Driver         string
	From           string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	SendgridAPIKey string
}

// New picks the driver named in cfg. An empty driver logs mails instead of
// sending them.
func New(cfg Config, log *zerolog.Logger) (Mailer, error) {
	switch cfg.Driver {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("mail: smtp host is empty")
		}
		return NewSMTPMailer(cfg, log), nil
	case "sendgrid":
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("mail: sendgrid api key is empty")
		}
		return NewSendgridMailer(cfg, log), nil
	case "", "log":
		return NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}

// defaultSMTPTimeout bounds a send whose context carries no deadline.
const defaultSMTPTimeout = 30 * time.Second

type smtpMailer struct {
	addr    string
	host    string
	auth    smtp.Auth
	from    string
	timeout time.Duration
	log     *zerolog.Logger
}

func NewSMTPMailer(cfg Config, log *zerolog.Logger) Mailer {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &smtpMailer{
		addr:    net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(port)),
		host:    cfg.SMTPHost,
		auth:    auth,
		from:    cfg.From,
		timeout: defaultSMTPTimeout,
		log:     log,
	}
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.from, msg.To, msg.Subject, msg.Body,
	)
	if err := m.send(ctx, msg.To, []byte(raw)); err != nil {
		m.log.Warn().Err(err).Str("email", msg.To).Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info().Str("email", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// send runs the SMTP dialogue of smtp.SendMail on a connection bounded by ctx.
func (m *smtpMailer) send(ctx context.Context, to string, raw []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

type logMailer struct {
	log *zerolog.Logger
}

func NewLogMailer(log *zerolog.Logger) Mailer {
	return &logMailer{log: log}
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	m.log.Info().Str("email", msg.To).Str("subject", msg.Subject).Msg(msg.Body)
	return nil
}
