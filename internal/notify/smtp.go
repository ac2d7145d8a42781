package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/wneessen/go-mail"
)

// SMTPConfig describes the relay and the account mail is sent from.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// mailClient is the part of *mail.Client the sender uses.
type mailClient interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// SMTPSender delivers HTML mail with PLAIN auth over mandatory STARTTLS.
type SMTPSender struct {
	cfg    SMTPConfig
	client mailClient
	now    func() time.Time
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender builds the client once. No connection is made until the
// first Send.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: creating smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, client: client, now: time.Now}, nil
}

// Send opens one SMTP session per message. Dial and delivery both stop
// when ctx is done.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := s.build(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("notify: smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// build assembles the message. Message-ID uses xid so ids are unique and
// sortable by send time.
func (s *SMTPSender) build(msg Message) (*mail.Msg, error) {
	domain := s.cfg.Host
	if at := strings.LastIndex(s.cfg.Username, "@"); at >= 0 {
		domain = s.cfg.Username[at+1:]
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.Username); err != nil {
		return nil, fmt.Errorf("notify: sender address %q: %w", s.cfg.Username, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("notify: recipient address %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(s.now().UTC())
	m.SetMessageIDWithValue(xid.New().String() + "@" + domain)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}

// LogSender writes messages to the log instead of sending them. It is
// used when no mail password is configured.
type LogSender struct {
	Logger *slog.Logger
}

var _ Sender = LogSender{}

func (l LogSender) Send(_ context.Context, msg Message) error {
	l.Logger.Info("notification (not sent, mail disabled)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("bytes", len(msg.HTML)),
	)
	return nil
}
