// Package notify delivers operational notifications to Slack via an incoming
// webhook. Construct with an empty URL to disable delivery entirely; every
// send then becomes a logged no-op, so callers never branch on configuration.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

const sendTimeout = 10 * time.Second

// Notifier posts block-formatted messages to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// New creates a Notifier. An empty webhookURL disables sending.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: sendTimeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
}

type text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type message struct {
	Blocks []block `json:"blocks"`
}

func urgencyEmoji(u ticket.Urgency) string {
	switch u {
	case ticket.UrgencyHigh:
		return "🔴"
	case ticket.UrgencyMedium:
		return "🟡"
	case ticket.UrgencyLow:
		return "🟢"
	}
	return "⚪"
}

// NotifyUrgentTicket announces a newly created high-urgency ticket.
func (n *Notifier) NotifyUrgentTicket(ctx context.Context, tk *ticket.Ticket) error {
	urgency := ticket.UrgencyMedium
	if tk.Urgency != nil {
		urgency = *tk.Urgency
	}
	emoji := urgencyEmoji(urgency)

	summary := tk.RawVOC
	if tk.Summary != nil {
		summary = *tk.Summary
	}

	msg := message{Blocks: []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: emoji + " Urgent VOC ticket created", Emoji: true}},
		{Type: "section", Fields: []text{
			{Type: "mrkdwn", Text: fmt.Sprintf("*Ticket:*\n`%s`", tk.Reference)},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Urgency:*\n%s %s", emoji, urgency)},
		}},
		{Type: "section", Text: &text{Type: "mrkdwn", Text: "*Summary:*\n" + summary}},
		{Type: "section", Fields: []text{
			{Type: "mrkdwn", Text: "*Customer:*\n" + tk.CustomerName},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Channel:*\n%s", tk.Channel)},
		}},
	}}
	return n.send(ctx, msg)
}

// NotifyAnalysisComplete announces a finished analysis and where it was
// routed.
func (n *Notifier) NotifyAnalysisComplete(ctx context.Context, tk *ticket.Ticket, problemType string, overall float64) error {
	routing := "awaiting confirmation"
	if tk.Status == ticket.StatusManualRequired {
		routing = "manual review required"
	}

	msg := message{Blocks: []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: "📋 VOC analysis complete", Emoji: true}},
		{Type: "section", Fields: []text{
			{Type: "mrkdwn", Text: fmt.Sprintf("*Ticket:*\n`%s`", tk.Reference)},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Type:*\n%s", problemType)},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Confidence:*\n%.0f%%", overall*100)},
			{Type: "mrkdwn", Text: "*Routing:*\n" + routing},
		}},
	}}
	return n.send(ctx, msg)
}

func (n *Notifier) send(ctx context.Context, msg message) error {
	if !n.Enabled() {
		log.Printf("notify: Slack webhook not configured, skipping notification")
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
