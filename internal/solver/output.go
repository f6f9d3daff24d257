// Package solver implements the VOC analysis pipeline: evidence gathering,
// prompt assembly, response validation, confidence routing, and bounded retry
// with a safe fallback.
package solver

import (
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

// Problem type taxonomy.
const (
	ProblemIntegrationError    = "integration_error"
	ProblemCodeError           = "code_error"
	ProblemBusinessImprovement = "business_improvement"
)

// Action proposal types.
const (
	ActionIntegrationInquiry = "integration_inquiry"
	ActionCodeFix            = "code_fix"
	ActionBusinessProposal   = "business_proposal"
)

// ConfidenceThreshold is the overall score at or above which an analysis is
// routed to human confirmation instead of full manual handling.
const ConfidenceThreshold = 0.70

// actionForProblem maps each primary problem type to its required action type.
var actionForProblem = map[string]string{
	ProblemIntegrationError:    ActionIntegrationInquiry,
	ProblemCodeError:           ActionCodeFix,
	ProblemBusinessImprovement: ActionBusinessProposal,
}

// RouteState derives the routing state from the overall confidence score.
func RouteState(overall float64) ticket.Status {
	if overall >= ConfidenceThreshold {
		return ticket.StatusWaitingConfirm
	}
	return ticket.StatusManualRequired
}

// ConfidenceScore breaks confidence down by evidence dimension. All values
// are in [0, 1]. Overall comes from the model and is range-checked, not
// recomputed, but the routing state is always re-derived from it.
type ConfidenceScore struct {
	ErrorPatternClarity    float64 `json:"error_pattern_clarity"`
	LogVOCCorrelation      float64 `json:"log_voc_correlation"`
	SimilarCaseMatch       float64 `json:"similar_case_match"`
	SystemInfoAvailability float64 `json:"system_info_availability"`
	Overall                float64 `json:"overall"`
}

// ActionProposal is the proposed remediation. ActionType selects which of the
// optional field groups apply.
type ActionProposal struct {
	ActionType  string `json:"action_type"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// integration_inquiry
	TargetSystem string `json:"target_system,omitempty"`
	ContactInfo  string `json:"contact_info,omitempty"`

	// code_fix
	CodeLocation string `json:"code_location,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	// business_proposal
	BusinessImpact       string `json:"business_impact,omitempty"`
	SuggestedImprovement string `json:"suggested_improvement,omitempty"`
}

// Output is the validated result of one solve. Written once into the ticket;
// never mutated afterwards.
type Output struct {
	TicketID             string          `json:"ticket_id"`
	ProblemTypePrimary   string          `json:"problem_type_primary"`
	ProblemTypeSecondary string          `json:"problem_type_secondary,omitempty"`
	AffectedSystem       string          `json:"affected_system,omitempty"`
	RootCauseAnalysis    string          `json:"root_cause_analysis"`
	EvidenceSummary      string          `json:"evidence_summary"`
	Confidence           ConfidenceScore `json:"confidence"`
	State                ticket.Status   `json:"state"`
	ActionProposal       ActionProposal  `json:"action_proposal"`
	SimilarCasesUsed     []string        `json:"similar_cases_used,omitempty"`
	LogSummary           string          `json:"log_summary,omitempty"`
	AnalyzedAt           time.Time       `json:"analyzed_at"`
}
