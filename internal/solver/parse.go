package solver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

// ParseError means the model output could not be decoded as JSON at all.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model output: %s", e.Reason)
}

// ValidationError means the decoded output violates the output contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model output: %s: %s", e.Field, e.Reason)
}

// flexString decodes a JSON value that should be a string but is sometimes
// returned as a list of strings. List elements are joined with spaces, which
// preserves all content.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list, got %s", string(data))
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprint(item)
	}
	*f = flexString(strings.Join(parts, " "))
	return nil
}

// rawOutput is the loose decoding target for model responses. Narrative
// fields use flexString because models occasionally return them as lists.
type rawOutput struct {
	ProblemTypePrimary   string          `json:"problem_type_primary"`
	ProblemTypeSecondary string          `json:"problem_type_secondary"`
	AffectedSystem       string          `json:"affected_system"`
	RootCauseAnalysis    flexString      `json:"root_cause_analysis"`
	EvidenceSummary      flexString      `json:"evidence_summary"`
	Confidence           ConfidenceScore `json:"confidence"`
	State                string          `json:"state"`
	ActionProposal       ActionProposal  `json:"action_proposal"`
	SimilarCasesUsed     []string        `json:"similar_cases_used"`
	LogSummary           string          `json:"log_summary"`
}

// stripFences removes a leading/trailing markdown code fence, with or
// without a language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{}") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the span from the first '{' to the last '}',
// discarding prose the model wrapped around the JSON. Returns the input
// unchanged when no such span exists.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// parseResponse repairs and validates raw model output into an Output.
// Repair steps run in a fixed order, each targeting one observed failure
// shape: fence wrapping, surrounding prose, and list-valued narrative
// fields. The ticket id and analysis timestamp are always injected locally,
// never trusted from the model.
func parseResponse(ticketRef string, raw string, now time.Time) (*Output, error) {
	cleaned := extractJSONObject(stripFences(raw))

	var decoded rawOutput
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	out := &Output{
		TicketID:             ticketRef,
		ProblemTypePrimary:   decoded.ProblemTypePrimary,
		ProblemTypeSecondary: decoded.ProblemTypeSecondary,
		AffectedSystem:       decoded.AffectedSystem,
		RootCauseAnalysis:    string(decoded.RootCauseAnalysis),
		EvidenceSummary:      string(decoded.EvidenceSummary),
		Confidence:           decoded.Confidence,
		State:                ticket.Status(decoded.State),
		ActionProposal:       decoded.ActionProposal,
		SimilarCasesUsed:     decoded.SimilarCasesUsed,
		LogSummary:           decoded.LogSummary,
		AnalyzedAt:           now,
	}

	if err := validateOutput(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateOutput enforces the output contract: taxonomy membership,
// confidence ranges, the problem-to-action mapping, and agreement between
// the declared state and the state derived from the overall score.
func validateOutput(out *Output) error {
	requiredAction, ok := actionForProblem[out.ProblemTypePrimary]
	if !ok {
		return &ValidationError{Field: "problem_type_primary",
			Reason: fmt.Sprintf("unknown problem type %q", out.ProblemTypePrimary)}
	}
	if out.ActionProposal.ActionType != requiredAction {
		return &ValidationError{Field: "action_proposal.action_type",
			Reason: fmt.Sprintf("%q does not match problem type %q (want %q)",
				out.ActionProposal.ActionType, out.ProblemTypePrimary, requiredAction)}
	}

	for field, v := range map[string]float64{
		"confidence.error_pattern_clarity":    out.Confidence.ErrorPatternClarity,
		"confidence.log_voc_correlation":      out.Confidence.LogVOCCorrelation,
		"confidence.similar_case_match":       out.Confidence.SimilarCaseMatch,
		"confidence.system_info_availability": out.Confidence.SystemInfoAvailability,
		"confidence.overall":                  out.Confidence.Overall,
	} {
		if v < 0 || v > 1 {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("%v outside [0, 1]", v)}
		}
	}

	if out.RootCauseAnalysis == "" {
		return &ValidationError{Field: "root_cause_analysis", Reason: "empty"}
	}
	if out.EvidenceSummary == "" {
		return &ValidationError{Field: "evidence_summary", Reason: "empty"}
	}
	if out.ActionProposal.Title == "" {
		return &ValidationError{Field: "action_proposal.title", Reason: "empty"}
	}
	if out.ActionProposal.Description == "" {
		return &ValidationError{Field: "action_proposal.description", Reason: "empty"}
	}

	derived := RouteState(out.Confidence.Overall)
	if out.State != derived {
		return &ValidationError{Field: "state",
			Reason: fmt.Sprintf("declared %q but overall %.2f requires %q",
				out.State, out.Confidence.Overall, derived)}
	}

	return nil
}
