package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geonhos/poc-voc-auto-processing/internal/logstore"
	"github.com/geonhos/poc-voc-auto-processing/internal/rag"
	"github.com/geonhos/poc-voc-auto-processing/internal/registry"
	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

type fakeGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, userPrompt string, _ float64) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type fakeSearcher struct {
	cases []rag.SimilarCase
	err   error
}

func (f *fakeSearcher) SearchSimilar(_ context.Context, _ string, _ int, _ float64) ([]rag.SimilarCase, error) {
	return f.cases, f.err
}

func goodResponse(overall float64) string {
	state := "WAITING_CONFIRM"
	if overall < 0.7 {
		state = "MANUAL_REQUIRED"
	}
	return fmt.Sprintf(`{
	  "problem_type_primary": "integration_error",
	  "problem_type_secondary": "timeout",
	  "affected_system": "PaymentService",
	  "root_cause_analysis": "The payment gateway timed out.",
	  "evidence_summary": "EXTERNAL_TIMEOUT errors correlate with the complaint.",
	  "confidence": {
	    "error_pattern_clarity": %[1]f,
	    "log_voc_correlation": %[1]f,
	    "similar_case_match": %[1]f,
	    "system_info_availability": %[1]f,
	    "overall": %[1]f
	  },
	  "state": %[2]q,
	  "action_proposal": {
	    "action_type": "integration_inquiry",
	    "title": "Contact Payment Gateway Team",
	    "description": "Investigate the timeout spike with the gateway provider.",
	    "target_system": "PaymentGateway"
	  }
	}`, overall, state)
}

func newTestSolver(gen *fakeGenerator, logs *logstore.Store, searcher SimilarSearcher) *Solver {
	if logs == nil {
		logs = logstore.NewStore()
	}
	if searcher == nil {
		searcher = &fakeSearcher{}
	}
	return New(gen, logs, searcher, registry.Default())
}

func TestSolvePaymentTimeoutScenario(t *testing.T) {
	receivedAt := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)

	logs := logstore.NewStore()
	logs.Add("PaymentService",
		logstore.Entry{
			Timestamp: receivedAt.Add(-2 * time.Minute), Level: "ERROR",
			Service: "PaymentService", Message: "external gateway timeout on charge",
			ErrorCode: "EXTERNAL_TIMEOUT", Metadata: map[string]string{"gateway": "PaymentGateway"},
		},
		logstore.Entry{
			Timestamp: receivedAt.Add(-1 * time.Minute), Level: "ERROR",
			Service: "PaymentService", Message: "external gateway timeout on capture",
			ErrorCode: "EXTERNAL_TIMEOUT", Metadata: map[string]string{"gateway": "PaymentGateway"},
		},
	)

	searcher := &fakeSearcher{cases: []rag.SimilarCase{{
		TicketRef:   "VOC-20251201-0007",
		Similarity:  0.91,
		PrimaryType: "integration_error",
		Resolution:  "Gateway provider fixed a capacity issue.",
	}}}

	gen := &fakeGenerator{responses: []string{goodResponse(0.85)}}
	s := newTestSolver(gen, logs, searcher)

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-20260115-0042",
		RawVOC:     "Payment keeps failing with a timeout at checkout.",
		ReceivedAt: receivedAt,
	}, 2)

	assert.Equal(t, ProblemIntegrationError, out.ProblemTypePrimary)
	assert.Equal(t, ActionIntegrationInquiry, out.ActionProposal.ActionType)
	assert.Equal(t, ticket.StatusWaitingConfirm, out.State)
	assert.Equal(t, 1, gen.calls)

	// The prompt carries the assembled evidence.
	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "PaymentService")
	assert.Contains(t, prompt, "EXTERNAL_TIMEOUT")
	assert.Contains(t, prompt, "VOC-20251201-0007")
	assert.Contains(t, prompt, "PaymentGateway")
	assert.Contains(t, prompt, "partner-support@paymentgateway.example.com")
}

func TestSolveVagueComplaintScenario(t *testing.T) {
	gen := &fakeGenerator{responses: []string{goodResponseVague()}}
	s := newTestSolver(gen, nil, nil)

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-20260115-0099",
		RawVOC:     "Something feels off lately.",
		ReceivedAt: time.Now(),
	}, 2)

	assert.Equal(t, ticket.StatusManualRequired, out.State)
	assert.Less(t, out.Confidence.Overall, ConfidenceThreshold)

	// With no logs the prompt must say so rather than render an empty analysis.
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "No errors found in logs")
	assert.Contains(t, gen.prompts[0], "None found")
}

func goodResponseVague() string {
	return `{
	  "problem_type_primary": "business_improvement",
	  "root_cause_analysis": "No corroborating evidence was found.",
	  "evidence_summary": "No logs or similar cases matched the complaint.",
	  "confidence": {
	    "error_pattern_clarity": 0.1,
	    "log_voc_correlation": 0.1,
	    "similar_case_match": 0.0,
	    "system_info_availability": 0.0,
	    "overall": 0.2
	  },
	  "state": "MANUAL_REQUIRED",
	  "action_proposal": {
	    "action_type": "business_proposal",
	    "title": "Review vague complaint",
	    "description": "Ask the customer for more detail before acting."
	  }
	}`
}

func TestSolveRetryCountOnPersistentFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream unavailable")}
	s := newTestSolver(gen, nil, nil)

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-FAIL",
		RawVOC:     "payment broken",
		ReceivedAt: time.Now(),
	}, 2)

	// Initial attempt plus exactly maxRetries retries.
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, ticket.StatusManualRequired, out.State)
}

func TestSolveRecoversOnSecondAttempt(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"not json at all, sorry",
		goodResponse(0.8),
	}}
	s := newTestSolver(gen, nil, nil)

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-RETRY",
		RawVOC:     "payment timeout",
		ReceivedAt: time.Now(),
	}, 2)

	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, ticket.StatusWaitingConfirm, out.State)
}

func TestSolveFallbackIsSchemaValid(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}
	s := newTestSolver(gen, nil, nil)

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-FALLBACK",
		RawVOC:     "anything",
		ReceivedAt: time.Now(),
	}, 0)

	assert.Equal(t, "VOC-FALLBACK", out.TicketID)
	assert.Equal(t, ProblemBusinessImprovement, out.ProblemTypePrimary)
	assert.Equal(t, ticket.StatusManualRequired, out.State)
	assert.Zero(t, out.Confidence.Overall)
	assert.Zero(t, out.Confidence.ErrorPatternClarity)
	assert.Equal(t, ActionBusinessProposal, out.ActionProposal.ActionType)
	assert.Contains(t, out.RootCauseAnalysis, "timeout")
	assert.False(t, out.AnalyzedAt.IsZero())

	// The fallback must itself survive the output contract.
	require.NoError(t, validateOutput(out))
}

func TestSolveDeclaredStateMismatchTriggersRetry(t *testing.T) {
	// High confidence with a declared MANUAL_REQUIRED state is rejected by
	// validation, consuming an attempt.
	bad := strings.Replace(goodResponse(0.9), `"WAITING_CONFIRM"`, `"MANUAL_REQUIRED"`, 1)
	gen := &fakeGenerator{responses: []string{bad, goodResponse(0.9)}}
	s := newTestSolver(gen, nil, nil)

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-MISMATCH",
		RawVOC:     "payment",
		ReceivedAt: time.Now(),
	}, 2)

	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, ticket.StatusWaitingConfirm, out.State)
}

func TestSolveAttemptTimeout(t *testing.T) {
	slow := &slowGenerator{delay: 200 * time.Millisecond}
	s := New(slow, logstore.NewStore(), &fakeSearcher{}, registry.Default(),
		WithAttemptTimeout(20*time.Millisecond))

	out := s.Solve(context.Background(), Input{
		TicketRef:  "VOC-SLOW",
		RawVOC:     "payment",
		ReceivedAt: time.Now(),
	}, 1)

	assert.Equal(t, 2, slow.calls)
	assert.Equal(t, ticket.StatusManualRequired, out.State)
}

type slowGenerator struct {
	delay time.Duration
	calls int
}

func (g *slowGenerator) Generate(ctx context.Context, _, _ string, _ float64) (string, error) {
	g.calls++
	select {
	case <-time.After(g.delay):
		return "", errors.New("should have timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
