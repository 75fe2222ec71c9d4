package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cliahub/qpcrhub/internal/config"
)

// EmailHandler mails a plain-text result summary to the lab list.
type EmailHandler struct {
	settings config.EmailSettings
	lab      string
}

func NewEmailHandler(settings config.EmailSettings, lab string) *EmailHandler {
	return &EmailHandler{settings: settings, lab: lab}
}

func (h *EmailHandler) Send(ctx context.Context, event Event) error {
	addr := fmt.Sprintf("%s:%d", h.settings.Host, h.settings.Port)

	var auth smtp.Auth
	if h.settings.Password != "" {
		auth = smtp.PlainAuth("", h.settings.From, h.settings.Password, h.settings.Host)
	}

	if err := smtp.SendMail(addr, auth, h.settings.From, h.settings.To, h.message(event)); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}
	return nil
}

func (h *EmailHandler) Type() string {
	return "email"
}

func (h *EmailHandler) subject(event Event) string {
	return fmt.Sprintf("[%s Report] Sample plate %s-%s results", h.lab, event.SampleBarcode, event.QPCRBarcode)
}

func (h *EmailHandler) message(event Event) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", h.settings.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(h.settings.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", h.subject(event))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")

	if event.Experimental {
		b.WriteString("EXPERIMENTAL! DO NOT REPORT!\r\n\r\n")
	}

	fmt.Fprintf(&b, "Protocol: %s\r\n", event.Protocol)
	if event.ControlsPassed {
		b.WriteString("Controls: Passed\r\n")
	} else {
		b.WriteString("Controls: Failed\r\n")
	}
	if event.Contaminated {
		b.WriteString("Contamination review needed: some wells were flagged.\r\n")
	}

	calls := make([]string, 0, len(event.CallCounts))
	for call := range event.CallCounts {
		calls = append(calls, call)
	}
	sort.Strings(calls)
	for _, call := range calls {
		fmt.Fprintf(&b, "%s: %d\r\n", call, event.CallCounts[call])
	}

	if len(event.Artifacts) > 0 {
		b.WriteString("\r\nGenerated files:\r\n")
		for _, artifact := range event.Artifacts {
			fmt.Fprintf(&b, "  %s\r\n", filepath.Base(artifact))
		}
	}

	return []byte(b.String())
}
