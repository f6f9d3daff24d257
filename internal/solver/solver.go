package solver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/llm"
)

const (
	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 2

	// defaultAttemptTimeout bounds one full attempt, including evidence
	// gathering and the reasoning call.
	defaultAttemptTimeout = 120 * time.Second

	// analysisTemperature keeps the reasoning output near-deterministic.
	analysisTemperature = 0.1
)

// Input identifies the complaint being solved.
type Input struct {
	TicketRef  string
	RawVOC     string
	ReceivedAt time.Time
}

// Solver runs the analysis pipeline. All collaborators are passed in at
// construction; the solver holds no global state and instances are safe for
// concurrent use across tickets.
type Solver struct {
	gen     llm.Generator
	logs    LogSource
	similar SimilarSearcher
	systems SystemLookup

	attemptTimeout time.Duration
	now            func() time.Time
}

// Option configures a Solver.
type Option func(*Solver)

// WithAttemptTimeout overrides the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Solver) { s.attemptTimeout = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Solver) { s.now = now }
}

// New creates a Solver.
func New(gen llm.Generator, logs LogSource, similar SimilarSearcher, systems SystemLookup, opts ...Option) *Solver {
	s := &Solver{
		gen:            gen,
		logs:           logs,
		similar:        similar,
		systems:        systems,
		attemptTimeout: defaultAttemptTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve analyzes one complaint. It makes maxRetries+1 attempts, each under
// the per-attempt timeout, absorbing evidence, reasoning, and validation
// errors between attempts. When every attempt fails it returns the fallback
// output, so the result is always schema-valid and the caller never sees a
// raw pipeline error. Pass maxRetries < 0 for the default.
func (s *Solver) Solve(ctx context.Context, in Input, maxRetries int) *Output {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	attempts := maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := s.attempt(ctx, in)
		if err == nil {
			log.Printf("solver: %s analyzed as %s (overall %.2f) on attempt %d",
				in.TicketRef, out.ProblemTypePrimary, out.Confidence.Overall, attempt)
			return out
		}
		lastErr = err
		log.Printf("solver: attempt %d/%d failed for %s: %v", attempt, attempts, in.TicketRef, err)
	}

	log.Printf("solver: all %d attempts failed for %s, using fallback", attempts, in.TicketRef)
	return s.fallback(in.TicketRef, lastErr)
}

// attempt runs one full pipeline pass under the attempt timeout.
func (s *Solver) attempt(ctx context.Context, in Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	ev, err := s.gatherEvidence(ctx, in.RawVOC, in.ReceivedAt)
	if err != nil {
		return nil, fmt.Errorf("evidence gathering failed: %w", err)
	}

	prompt := buildAnalysisPrompt(in.TicketRef, in.ReceivedAt, in.RawVOC, ev)

	raw, err := s.gen.Generate(ctx, systemPrompt, prompt, analysisTemperature)
	if err != nil {
		return nil, fmt.Errorf("reasoning call failed: %w", err)
	}

	return parseResponse(in.TicketRef, raw, s.now())
}

// fallback builds the schema-valid output used when analysis cannot
// complete. The conservative classification keeps an unclassifiable case
// from masquerading as a confident diagnosis, and MANUAL_REQUIRED routes it
// to a human.
func (s *Solver) fallback(ticketRef string, cause error) *Output {
	reason := "Automatic analysis failed."
	if cause != nil {
		reason = fmt.Sprintf("Automatic analysis failed: %v", cause)
	}

	return &Output{
		TicketID:           ticketRef,
		ProblemTypePrimary: ProblemBusinessImprovement,
		RootCauseAnalysis:  reason,
		EvidenceSummary:    "Insufficient evidence could be collected.",
		Confidence:         ConfidenceScore{},
		State:              RouteState(0),
		ActionProposal: ActionProposal{
			ActionType:  ActionBusinessProposal,
			Title:       "Manual analysis required",
			Description: "Automatic analysis failed. A staff member needs to review this ticket manually.",
		},
		AnalyzedAt: s.now(),
	}
}
