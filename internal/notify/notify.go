// Package notify renders notification emails and hands them to a Sender.
//
// Delivery is best-effort: a failed recipient is logged and skipped, and
// nothing here ever fails the request that triggered it.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Template identifiers accepted by Dispatch.
const (
	TemplateQuestion = "question"
	TemplateResponse = "response"
)

//go:embed templates/*.html
var templateFS embed.FS

// QuestionMail fills templates/question.html.
type QuestionMail struct {
	Recipient  string
	Channel    string
	Title      string
	Body       string
	QuestionID string
}

// ResponseMail fills templates/response.html.
type ResponseMail struct {
	Questioner string
	Channel    string
	Question   string
	Response   string
	ResponseID string
}

// Envelope pairs one recipient address with its template data.
type Envelope struct {
	To   string
	Data any
}

// Message is a rendered email ready for a Sender.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher renders and sends notifications sequentially.
type Dispatcher struct {
	sender    Sender
	templates *template.Template
	logger    *slog.Logger
	sent      *prometheus.CounterVec // labels: template, outcome; may be nil
}

// NewDispatcher parses the embedded templates. counter may be nil.
func NewDispatcher(sender Sender, logger *slog.Logger, counter *prometheus.CounterVec) (*Dispatcher, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parsing templates: %w", err)
	}
	return &Dispatcher{
		sender:    sender,
		templates: tmpl,
		logger:    logger,
		sent:      counter,
	}, nil
}

// Dispatch renders name for every envelope and sends it with subject.
// It returns the number of messages delivered. Errors are logged per
// recipient and never stop the loop.
func (d *Dispatcher) Dispatch(ctx context.Context, subject, name string, envelopes []Envelope) int {
	delivered := 0
	for _, env := range envelopes {
		if env.To == "" {
			continue
		}

		html, err := d.render(name, env.Data)
		if err != nil {
			d.logger.Error("rendering notification failed",
				slog.String("template", name),
				slog.String("error", err.Error()),
			)
			d.count(name, "render_error")
			continue
		}

		err = d.sender.Send(ctx, Message{To: env.To, Subject: subject, HTML: html})
		if err != nil {
			d.logger.Warn("sending notification failed",
				slog.String("template", name),
				slog.String("to", env.To),
				slog.String("error", err.Error()),
			)
			d.count(name, "send_error")
			continue
		}

		d.count(name, "sent")
		delivered++
	}

	d.logger.Debug("notifications dispatched",
		slog.String("template", name),
		slog.Int("requested", len(envelopes)),
		slog.Int("delivered", delivered),
	)
	return delivered
}

func (d *Dispatcher) render(name string, data any) (string, error) {
	t := d.templates.Lookup(name + ".html")
	if t == nil {
		return "", fmt.Errorf("notify: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: executing %s: %w", name, err)
	}
	return buf.String(), nil
}

func (d *Dispatcher) count(name, outcome string) {
	if d.sent != nil {
		d.sent.WithLabelValues(name, outcome).Inc()
	}
}
