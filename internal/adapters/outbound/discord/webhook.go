package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

// --- Convenience methods for common alert types ---

const (
	ColorGreen  = 0x2ECC71
	ColorRed    = 0xE74C3C
	ColorYellow = 0xF1C40F
	ColorBlue   = 0x3498DB
)

// Alert posts an operator alert. Fatal alerts are red.
func (n *Notifier) Alert(ctx context.Context, sessionID, symbol string, a events.AlertEvent) error {
	color := ColorYellow
	if a.Level == events.AlertFatal {
		color = ColorRed
	}
	fields := []Field{
		{Name: "Session", Value: sessionID, Inline: true},
		{Name: "Symbol", Value: symbol, Inline: true},
	}
	if a.OrderID != "" {
		fields = append(fields, Field{Name: "Order ID", Value: a.OrderID, Inline: true})
	}
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Level)), a.Title),
		Description: a.Message,
		Color:       color,
		Fields:      fields,
	})
}

// SessionSummary posts the final summary of a session.
func (n *Notifier) SessionSummary(ctx context.Context, sessionID, symbol string, s events.SessionEvent) error {
	color := ColorBlue
	switch s.Outcome {
	case "FILLED":
		color = ColorGreen
	case "ABORTED":
		color = ColorRed
	}
	fields := []Field{
		{Name: "Route", Value: fmt.Sprintf("%s -> %s", s.PrimaryVenue, s.HedgeVenue), Inline: true},
		{Name: "Filled", Value: fmt.Sprintf("%s / %s", s.TotalFilled, s.TotalSize), Inline: true},
		{Name: "Hedged", Value: s.TotalHedged.String(), Inline: true},
		{Name: "Final Price", Value: s.FinalPrice.String(), Inline: true},
		{Name: "Renewals", Value: fmt.Sprintf("%d", s.RenewalsCount), Inline: true},
		{Name: "Order ID", Value: s.PrimaryOrderID, Inline: false},
	}
	if s.ManualAction != "" {
		fields = append(fields, Field{Name: "Manual Action", Value: s.ManualAction})
	}
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("Session %s: %s %s", s.Outcome, symbol, shortID(sessionID)),
		Description: s.Reason,
		Color:       color,
		Fields:      fields,
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
