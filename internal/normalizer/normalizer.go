// Package normalizer converts raw complaint text into the structured intake
// fields the analysis pipeline starts from.
package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/geonhos/poc-voc-auto-processing/internal/llm"
	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

const (
	// MaxInputLength is the longest complaint the normalizer accepts,
	// counted in characters. Complaints are frequently Korean, so byte
	// counts would undercount the limit threefold.
	MaxInputLength = 5000

	// minInputLength rejects junk like single characters before any LLM call.
	minInputLength = 5

	// maxSummaryLength caps the normalized summary, in characters.
	maxSummaryLength = 200

	defaultTimeout = 60 * time.Second

	normalizeTemperature = 0.1
)

// Error codes surfaced on normalization failure.
const (
	CodeInputTooLong = "INPUT_TOO_LONG"
	CodeFailed       = "NORMALIZATION_FAILED"
	CodeTimeout      = "TIMEOUT"
)

// Error is a typed normalization failure. Failures route the ticket to
// manual handling; they are not pipeline errors.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Input is the raw intake to normalize.
type Input struct {
	RawVOC       string
	CustomerName string
	Channel      ticket.Channel
	ReceivedAt   time.Time
}

// Result holds the structured fields extracted from a complaint.
type Result struct {
	Summary            string
	SuspectedPrimary   string
	SuspectedSecondary string
	AffectedSystem     string
	Urgency            ticket.Urgency
}

// Normalizer extracts structured fields from raw complaints via the
// reasoning capability.
type Normalizer struct {
	gen     llm.Generator
	timeout time.Duration
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *Normalizer) { n.timeout = d }
}

// New creates a Normalizer.
func New(gen llm.Generator, opts ...Option) *Normalizer {
	n := &Normalizer{gen: gen, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

const systemPrompt = `You are an expert at converting VOC (Voice of Customer) complaints into structured data.

## Role
- Convert free-text complaints into the fixed output format.
- Capture the core problem in a short summary.
- Estimate the problem type.

## Problem Types
1. integration_error: failures involving external systems (payment gateways, card networks, partner APIs)
2. code_error: internal bugs, crashes, system errors
3. business_improvement: policy changes, UX issues, feature requests

## Urgency
- high: monetary loss or service outage
- medium: broken functionality or significant inconvenience
- low: questions and improvement requests

## Output Format
Respond with JSON only. Do not include any other text.`

func buildPrompt(in Input) string {
	return fmt.Sprintf(`Convert the following VOC into structured data.

## VOC Details
- Customer: %s
- Channel: %s
- Received At: %s

## VOC Content
%s

## Output Format
{
  "summary": "problem summary (1-2 sentences)",
  "suspected_type": {
    "primary_type": "problem type",
    "secondary_type": "secondary problem type or null"
  },
  "affected_system": "affected system",
  "urgency": "urgency level"
}

## Notes
- Keep the summary under 200 characters.
- Set affected_system to the system named in the complaint, or "unknown" when none is named.
- Respond with the JSON object only, no explanation.`,
		in.CustomerName, in.Channel, in.ReceivedAt.Format(time.RFC3339), in.RawVOC)
}

type rawResult struct {
	Summary       string `json:"summary"`
	SuspectedType struct {
		PrimaryType   string `json:"primary_type"`
		SecondaryType string `json:"secondary_type"`
	} `json:"suspected_type"`
	AffectedSystem string `json:"affected_system"`
	Urgency        string `json:"urgency"`
}

var validProblemTypes = map[string]bool{
	"integration_error":    true,
	"code_error":           true,
	"business_improvement": true,
}

// Normalize extracts structured fields from the complaint. All failures
// return a typed *Error; callers route those tickets to manual handling.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*Result, error) {
	trimmed := strings.TrimSpace(in.RawVOC)
	if utf8.RuneCountInString(in.RawVOC) > MaxInputLength {
		return nil, &Error{Code: CodeInputTooLong,
			Message: fmt.Sprintf("complaint exceeds the %d character limit", MaxInputLength)}
	}
	if utf8.RuneCountInString(trimmed) < minInputLength {
		return nil, &Error{Code: CodeFailed,
			Message: "complaint is too short to analyze; manual classification required"}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	raw, err := n.gen.Generate(ctx, systemPrompt, buildPrompt(in), normalizeTemperature)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Code: CodeTimeout, Message: "normalization timed out"}
		}
		return nil, &Error{Code: CodeFailed, Message: fmt.Sprintf("normalization failed: %v", err)}
	}

	result, err := parse(raw)
	if err != nil {
		return nil, &Error{Code: CodeFailed,
			Message: fmt.Sprintf("could not interpret the complaint: %v", err)}
	}
	return result, nil
}

func parse(raw string) (*Result, error) {
	cleaned := strings.TrimSpace(raw)
	if start := strings.IndexByte(cleaned, '{'); start >= 0 {
		if end := strings.LastIndexByte(cleaned, '}'); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var decoded rawResult
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if decoded.Summary == "" {
		return nil, fmt.Errorf("missing summary")
	}
	if !validProblemTypes[decoded.SuspectedType.PrimaryType] {
		return nil, fmt.Errorf("unknown problem type %q", decoded.SuspectedType.PrimaryType)
	}
	urgency := ticket.Urgency(decoded.Urgency)
	switch urgency {
	case ticket.UrgencyLow, ticket.UrgencyMedium, ticket.UrgencyHigh:
	default:
		return nil, fmt.Errorf("unknown urgency %q", decoded.Urgency)
	}

	summary := decoded.Summary
	if runes := []rune(summary); len(runes) > maxSummaryLength {
		summary = string(runes[:maxSummaryLength-3]) + "..."
	}

	result := &Result{
		Summary:          summary,
		SuspectedPrimary: decoded.SuspectedType.PrimaryType,
		AffectedSystem:   decoded.AffectedSystem,
		Urgency:          urgency,
	}
	if validProblemTypes[decoded.SuspectedType.SecondaryType] {
		result.SuspectedSecondary = decoded.SuspectedType.SecondaryType
	}
	return result, nil
}
