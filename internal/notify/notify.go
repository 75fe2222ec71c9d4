// Package notify fans processed-plate events out to the lab's
// notification channels. Delivery failures are logged, never fatal:
// a dead mail server must not stall plate processing.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliahub/qpcrhub/internal/config"
)

// Event describes one processed plate run.
type Event struct {
	RunID          string         `json:"run_id"`
	SampleBarcode  string         `json:"sample_barcode"`
	QPCRBarcode    string         `json:"qpcr_barcode"`
	Protocol       string         `json:"protocol"`
	ControlsPassed bool           `json:"controls_passed"`
	Experimental   bool           `json:"experimental"`
	Contaminated   bool           `json:"contaminated"`
	CallCounts     map[string]int `json:"call_counts"`
	Artifacts      []string       `json:"artifacts"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// Handler delivers an event over one channel.
type Handler interface {
	Send(ctx context.Context, event Event) error
	Type() string
}

// Manager fans events out to all registered handlers.
type Manager struct {
	log      zerolog.Logger
	handlers []Handler
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:      log,
		handlers: make([]Handler, 0),
	}
}

func (m *Manager) AddHandler(handler Handler) {
	m.handlers = append(m.handlers, handler)
}

// Publish delivers the event through every handler, logging failures.
func (m *Manager) Publish(ctx context.Context, event Event) {
	for _, handler := range m.handlers {
		if err := handler.Send(ctx, event); err != nil {
			m.log.Error().
				Err(err).
				Str("handler", handler.Type()).
				Str("plate", event.QPCRBarcode).
				Msg("notification failed")
		}
	}
}

// BuildManager wires the handlers enabled in the lab settings. The log
// handler is always on.
func BuildManager(log zerolog.Logger, settings *config.Settings) *Manager {
	m := NewManager(log)
	m.AddHandler(&LogHandler{log: log})

	if settings.Notify.Email.Enabled {
		m.AddHandler(NewEmailHandler(settings.Notify.Email, settings.LabName))
	}
	if settings.Notify.Webhook.Enabled {
		m.AddHandler(NewWebhookHandler(settings.Notify.Webhook.URL))
	}

	return m
}

// LogHandler writes events to the structured log.
type LogHandler struct {
	log zerolog.Logger
}

func (h *LogHandler) Send(ctx context.Context, event Event) error {
	h.log.Info().
		Str("run_id", event.RunID).
		Str("plate", event.SampleBarcode+"-"+event.QPCRBarcode).
		Str("protocol", event.Protocol).
		Bool("controls_passed", event.ControlsPassed).
		Bool("contaminated", event.Contaminated).
		Msg("plate processed")
	return nil
}

func (h *LogHandler) Type() string {
	return "log"
}
