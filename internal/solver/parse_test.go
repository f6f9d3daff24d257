package solver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

const validResponse = `{
  "ticket_id": "SHOULD-BE-IGNORED",
  "problem_type_primary": "integration_error",
  "problem_type_secondary": "timeout",
  "affected_system": "PaymentService",
  "root_cause_analysis": "The payment gateway timed out.",
  "evidence_summary": "3 ERROR logs with EXTERNAL_TIMEOUT.",
  "confidence": {
    "error_pattern_clarity": 0.8,
    "log_voc_correlation": 0.7,
    "similar_case_match": 0.6,
    "system_info_availability": 0.9,
    "overall": 0.75
  },
  "state": "WAITING_CONFIRM",
  "action_proposal": {
    "action_type": "integration_inquiry",
    "title": "Contact Payment Gateway Team",
    "description": "Investigate the gateway timeouts.",
    "target_system": "PaymentGateway"
  },
  "similar_cases_used": ["VOC-20250101-0001"],
  "log_summary": "3 errors between 14:28-14:32"
}`

func TestParseResponseValid(t *testing.T) {
	now := time.Date(2026, 1, 15, 15, 0, 0, 0, time.UTC)

	out, err := parseResponse("VOC-20260115-0042", validResponse, now)
	require.NoError(t, err)

	// Identity and timestamp come from us, never the model.
	assert.Equal(t, "VOC-20260115-0042", out.TicketID)
	assert.Equal(t, now, out.AnalyzedAt)

	assert.Equal(t, ProblemIntegrationError, out.ProblemTypePrimary)
	assert.Equal(t, ticket.StatusWaitingConfirm, out.State)
	assert.InDelta(t, 0.75, out.Confidence.Overall, 1e-9)
	assert.Equal(t, ActionIntegrationInquiry, out.ActionProposal.ActionType)
	assert.Equal(t, []string{"VOC-20250101-0001"}, out.SimilarCasesUsed)
}

func TestParseResponseStripsFences(t *testing.T) {
	wrapped := "```json\n" + validResponse + "\n```"

	out, err := parseResponse("VOC-1", wrapped, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ProblemIntegrationError, out.ProblemTypePrimary)
}

func TestParseResponseStripsBareFences(t *testing.T) {
	wrapped := "```\n" + validResponse + "\n```"

	out, err := parseResponse("VOC-1", wrapped, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ProblemIntegrationError, out.ProblemTypePrimary)
}

func TestParseResponseExtractsJSONFromProse(t *testing.T) {
	wrapped := "Here is my analysis:\n\n" + validResponse + "\n\nLet me know if you need more detail."

	out, err := parseResponse("VOC-1", wrapped, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ProblemIntegrationError, out.ProblemTypePrimary)
}

func TestParseResponseCoercesListNarratives(t *testing.T) {
	response := strings.Replace(validResponse,
		`"root_cause_analysis": "The payment gateway timed out.",`,
		`"root_cause_analysis": ["The payment gateway timed out.", "Retries were exhausted."],`, 1)

	out, err := parseResponse("VOC-1", response, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "The payment gateway timed out. Retries were exhausted.", out.RootCauseAnalysis)
}

func TestParseResponseGarbageIsParseError(t *testing.T) {
	_, err := parseResponse("VOC-1", "I am sorry, I cannot analyze this ticket.", time.Now())

	var parseErr *ParseError
	require.Error(t, err)
	assert.True(t, errors.As(err, &parseErr))
}

func TestParseResponseUnknownProblemType(t *testing.T) {
	response := strings.Replace(validResponse, `"integration_error"`, `"unknown_error"`, 1)

	_, err := parseResponse("VOC-1", response, time.Now())

	var valErr *ValidationError
	require.Error(t, err)
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "problem_type_primary", valErr.Field)
}

func TestParseResponseActionTypeMismatch(t *testing.T) {
	response := strings.Replace(validResponse, `"action_type": "integration_inquiry"`, `"action_type": "code_fix"`, 1)

	_, err := parseResponse("VOC-1", response, time.Now())

	var valErr *ValidationError
	require.Error(t, err)
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "action_proposal.action_type", valErr.Field)
}

func TestParseResponseConfidenceOutOfRange(t *testing.T) {
	response := strings.Replace(validResponse, `"overall": 0.75`, `"overall": 1.5`, 1)

	_, err := parseResponse("VOC-1", response, time.Now())

	var valErr *ValidationError
	require.Error(t, err)
	assert.True(t, errors.As(err, &valErr))
}

func TestParseResponseStateMismatchRejected(t *testing.T) {
	// Overall 0.75 requires WAITING_CONFIRM; a declared MANUAL_REQUIRED is a
	// contract violation even though it is a legal enum value.
	response := strings.Replace(validResponse, `"state": "WAITING_CONFIRM"`, `"state": "MANUAL_REQUIRED"`, 1)

	_, err := parseResponse("VOC-1", response, time.Now())

	var valErr *ValidationError
	require.Error(t, err)
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "state", valErr.Field)
}

func TestRouteStateThreshold(t *testing.T) {
	assert.Equal(t, ticket.StatusWaitingConfirm, RouteState(0.70))
	assert.Equal(t, ticket.StatusWaitingConfirm, RouteState(0.71))
	assert.Equal(t, ticket.StatusWaitingConfirm, RouteState(1.0))
	assert.Equal(t, ticket.StatusManualRequired, RouteState(0.69))
	assert.Equal(t, ticket.StatusManualRequired, RouteState(0.0))
}
