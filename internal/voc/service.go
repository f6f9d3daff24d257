// Package voc coordinates the ticket lifecycle: intake, normalization, the
// analysis pipeline, human actions, and the knowledge-corpus feedback loop.
package voc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/geonhos/poc-voc-auto-processing/internal/database"
	"github.com/geonhos/poc-voc-auto-processing/internal/normalizer"
	"github.com/geonhos/poc-voc-auto-processing/internal/rag"
	"github.com/geonhos/poc-voc-auto-processing/internal/solver"
	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

// ErrNotFound is returned when a ticket reference does not exist.
var ErrNotFound = errors.New("ticket not found")

// TicketStore is the persistence surface the service needs.
type TicketStore interface {
	CreateTicket(ctx context.Context, params database.CreateTicketParams) (*ticket.Ticket, error)
	GetTicketByID(ctx context.Context, id uuid.UUID) (*ticket.Ticket, error)
	GetTicketByReference(ctx context.Context, reference string) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, params database.ListTicketsParams) ([]ticket.Ticket, int, error)
	UpdateTicketStatus(ctx context.Context, id uuid.UUID, from, to ticket.Status) (bool, error)
	UpdateNormalization(ctx context.Context, id uuid.UUID, params database.UpdateNormalizationParams) error
	UpdateSolverResult(ctx context.Context, id uuid.UUID, params database.UpdateSolverResultParams) error
	UpdateAdminAction(ctx context.Context, id uuid.UUID, params database.UpdateAdminActionParams) error
}

// Normalizer extracts structured intake fields from raw complaints.
type Normalizer interface {
	Normalize(ctx context.Context, in normalizer.Input) (*normalizer.Result, error)
}

// SolverRunner runs the analysis pipeline for one ticket.
type SolverRunner interface {
	Solve(ctx context.Context, in solver.Input, maxRetries int) *solver.Output
}

// CaseStore accepts resolved cases into the knowledge corpus.
type CaseStore interface {
	StoreResolvedCase(ctx context.Context, c rag.ResolvedCase) (bool, error)
}

// Notifier delivers ticket notifications.
type Notifier interface {
	NotifyUrgentTicket(ctx context.Context, tk *ticket.Ticket) error
	NotifyAnalysisComplete(ctx context.Context, tk *ticket.Ticket, problemType string, overall float64) error
}

// Service is the ticket-processing facade used by the API, worker, and CLI.
type Service struct {
	store      TicketStore
	normalizer Normalizer
	solver     SolverRunner
	cases      CaseStore
	notifier   Notifier

	maxRetries int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries overrides how many times a failed solve is retried.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(store TicketStore, norm Normalizer, solve SolverRunner, cases CaseStore, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:      store,
		normalizer: norm,
		solver:     solve,
		cases:      cases,
		notifier:   notifier,
		maxRetries: solver.DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTicketParams is the intake payload for a new VOC.
type CreateTicketParams struct {
	RawVOC       string
	CustomerName string
	Channel      ticket.Channel
	ReceivedAt   time.Time
}

// CreateTicket stores a new OPEN ticket with a generated reference.
func (s *Service) CreateTicket(ctx context.Context, params CreateTicketParams) (*ticket.Ticket, error) {
	if params.ReceivedAt.IsZero() {
		params.ReceivedAt = s.now()
	}

	// Reference collisions within a day are possible; retry with a fresh
	// suffix instead of surfacing the unique violation. Any other store
	// error fails immediately.
	var lastErr error
	for i := 0; i < 5; i++ {
		tk, err := s.store.CreateTicket(ctx, database.CreateTicketParams{
			Reference:    s.newReference(),
			RawVOC:       params.RawVOC,
			CustomerName: params.CustomerName,
			Channel:      params.Channel,
			ReceivedAt:   params.ReceivedAt,
		})
		if err == nil {
			return tk, nil
		}
		if !errors.Is(err, database.ErrDuplicateReference) {
			return nil, fmt.Errorf("failed to create ticket: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to create ticket: %w", lastErr)
}

func (s *Service) newReference() string {
	u := uuid.New()
	suffix := binary.BigEndian.Uint16(u[0:2]) % 10000
	return fmt.Sprintf("VOC-%s-%04d", s.now().Format("20060102"), suffix)
}

// GetTicket loads a ticket by reference.
func (s *Service) GetTicket(ctx context.Context, reference string) (*ticket.Ticket, error) {
	tk, err := s.store.GetTicketByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tk == nil {
		return nil, ErrNotFound
	}
	return tk, nil
}

// ListTickets lists tickets with the given filters.
func (s *Service) ListTickets(ctx context.Context, params database.ListTicketsParams) ([]ticket.Ticket, int, error) {
	return s.store.ListTickets(ctx, params)
}

// ProcessTicket claims a ticket and runs the full normalize-then-solve
// pipeline for it. Exactly one processor wins the claim; a ticket the
// background worker already picked up is skipped without error. Every exit
// path leaves the ticket in a valid routed state; pipeline failures land in
// MANUAL_REQUIRED with a recorded reason, never in an error state.
func (s *Service) ProcessTicket(ctx context.Context, id uuid.UUID) error {
	tk, err := s.store.GetTicketByID(ctx, id)
	if err != nil {
		return err
	}
	if tk == nil {
		return ErrNotFound
	}

	if tk.Status == ticket.StatusAnalyzing {
		log.Printf("voc: %s is already being analyzed, skipping", tk.Reference)
		return nil
	}
	next, err := ticket.StartAnalysis(tk.Status)
	if err != nil {
		return err
	}
	claimed, err := s.store.UpdateTicketStatus(ctx, tk.ID, tk.Status, next)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("voc: lost the claim on %s, skipping", tk.Reference)
		return nil
	}
	tk.Status = next

	return s.runPipeline(ctx, tk)
}

// ProcessClaimed runs the pipeline for a ticket the caller already moved to
// ANALYZING, such as one handed out by the store's atomic claim.
func (s *Service) ProcessClaimed(ctx context.Context, tk *ticket.Ticket) error {
	return s.runPipeline(ctx, tk)
}

func (s *Service) runPipeline(ctx context.Context, tk *ticket.Ticket) error {
	result, err := s.normalizer.Normalize(ctx, normalizer.Input{
		RawVOC:       tk.RawVOC,
		CustomerName: tk.CustomerName,
		Channel:      tk.Channel,
		ReceivedAt:   tk.ReceivedAt,
	})
	if err != nil {
		log.Printf("voc: normalization failed for %s: %v", tk.Reference, err)
		return s.applyNormalizationFailure(ctx, tk, err)
	}

	if err := s.applyNormalization(ctx, tk, result); err != nil {
		return err
	}

	return s.solveAndApply(ctx, tk)
}

func (s *Service) applyNormalization(ctx context.Context, tk *ticket.Ticket, result *normalizer.Result) error {
	params := database.UpdateNormalizationParams{
		Summary:          result.Summary,
		SuspectedPrimary: result.SuspectedPrimary,
		AffectedSystem:   result.AffectedSystem,
		Urgency:          result.Urgency,
	}
	if result.SuspectedSecondary != "" {
		params.SuspectedSecondary = &result.SuspectedSecondary
	}
	if err := s.store.UpdateNormalization(ctx, tk.ID, params); err != nil {
		return err
	}

	tk.Summary = &result.Summary
	tk.Urgency = &result.Urgency

	if result.Urgency == ticket.UrgencyHigh {
		if err := s.notifier.NotifyUrgentTicket(ctx, tk); err != nil {
			log.Printf("voc: urgent notification failed for %s: %v", tk.Reference, err)
		}
	}
	return nil
}

// applyNormalizationFailure routes an unnormalizable ticket to manual
// handling, recording the failure reason in the decision fields so a human
// sees why automation gave up.
func (s *Service) applyNormalizationFailure(ctx context.Context, tk *ticket.Ticket, cause error) error {
	next, err := ticket.CompleteAnalysis(tk.Status, ticket.StatusManualRequired)
	if err != nil {
		return err
	}

	reason, _ := json.Marshal(map[string]any{
		"root_cause_analysis": fmt.Sprintf("Intake normalization failed: %v", cause),
		"evidence_summary":    "The complaint could not be normalized for analysis.",
		"confidence":          solver.ConfidenceScore{},
	})
	proposal, _ := json.Marshal(solver.ActionProposal{
		ActionType:  solver.ActionBusinessProposal,
		Title:       "Manual analysis required",
		Description: "The complaint could not be processed automatically. A staff member needs to classify it manually.",
	})

	return s.store.UpdateSolverResult(ctx, tk.ID, database.UpdateSolverResultParams{
		Status:          next,
		DecisionPrimary: solver.ProblemBusinessImprovement,
		DecisionReason:  reason,
		ActionProposal:  proposal,
		AnalyzedAt:      s.now(),
	})
}

// solveAndApply runs the solver and persists its validated output together
// with the routing transition in one statement. On WAITING_CONFIRM the case
// is offered to the knowledge corpus.
func (s *Service) solveAndApply(ctx context.Context, tk *ticket.Ticket) error {
	out := s.solver.Solve(ctx, solver.Input{
		TicketRef:  tk.Reference,
		RawVOC:     tk.RawVOC,
		ReceivedAt: tk.ReceivedAt,
	}, s.maxRetries)

	next, err := ticket.CompleteAnalysis(tk.Status, out.State)
	if err != nil {
		return err
	}

	reason, err := json.Marshal(map[string]any{
		"root_cause_analysis": out.RootCauseAnalysis,
		"evidence_summary":    out.EvidenceSummary,
		"confidence":          out.Confidence,
		"similar_cases_used":  out.SimilarCasesUsed,
		"log_summary":         out.LogSummary,
	})
	if err != nil {
		return fmt.Errorf("failed to encode decision reason: %w", err)
	}
	proposal, err := json.Marshal(out.ActionProposal)
	if err != nil {
		return fmt.Errorf("failed to encode action proposal: %w", err)
	}

	params := database.UpdateSolverResultParams{
		Status:             next,
		DecisionPrimary:    out.ProblemTypePrimary,
		DecisionConfidence: out.Confidence.Overall,
		DecisionReason:     reason,
		ActionProposal:     proposal,
		AnalyzedAt:         out.AnalyzedAt,
	}
	if out.ProblemTypeSecondary != "" {
		params.DecisionSecondary = &out.ProblemTypeSecondary
	}
	if err := s.store.UpdateSolverResult(ctx, tk.ID, params); err != nil {
		return err
	}
	tk.Status = next

	if next == ticket.StatusWaitingConfirm {
		content := tk.RawVOC
		summary := ""
		if tk.Summary != nil {
			summary = *tk.Summary
			content = content + "\n" + summary
		}
		stored, err := s.cases.StoreResolvedCase(ctx, rag.ResolvedCase{
			TicketRef:      tk.Reference,
			Content:        content,
			Summary:        summary,
			PrimaryType:    out.ProblemTypePrimary,
			SecondaryType:  out.ProblemTypeSecondary,
			AffectedSystem: out.AffectedSystem,
			Resolution:     out.ActionProposal.Description,
			Overall:        out.Confidence.Overall,
			ResolvedAt:     out.AnalyzedAt,
		})
		if err != nil {
			log.Printf("voc: corpus store failed for %s: %v", tk.Reference, err)
		} else if stored {
			log.Printf("voc: stored %s in knowledge corpus", tk.Reference)
		}
	}

	if tk.Urgency != nil && *tk.Urgency == ticket.UrgencyHigh {
		if err := s.notifier.NotifyAnalysisComplete(ctx, tk, out.ProblemTypePrimary, out.Confidence.Overall); err != nil {
			log.Printf("voc: analysis notification failed for %s: %v", tk.Reference, err)
		}
	}
	return nil
}

// Confirm accepts a proposed analysis.
func (s *Service) Confirm(ctx context.Context, reference, assignee string) (*ticket.Ticket, error) {
	return s.applyAction(ctx, reference, func(tk *ticket.Ticket) (ticket.Status, *database.UpdateAdminActionParams, error) {
		next, err := ticket.Confirm(tk.Status)
		if err != nil {
			return "", nil, err
		}
		now := s.now()
		params := &database.UpdateAdminActionParams{Status: next, ConfirmedAt: &now}
		if assignee != "" {
			params.Assignee = &assignee
		}
		return next, params, nil
	})
}

// Reject declines a proposed analysis.
func (s *Service) Reject(ctx context.Context, reference, reason string) (*ticket.Ticket, error) {
	return s.applyAction(ctx, reference, func(tk *ticket.Ticket) (ticket.Status, *database.UpdateAdminActionParams, error) {
		next, err := ticket.Reject(tk.Status)
		if err != nil {
			return "", nil, err
		}
		params := &database.UpdateAdminActionParams{Status: next}
		if reason != "" {
			params.RejectReason = &reason
		}
		return next, params, nil
	})
}

// Retry re-runs the analysis pipeline for a ticket awaiting confirmation.
func (s *Service) Retry(ctx context.Context, reference string) (*ticket.Ticket, error) {
	tk, err := s.GetTicket(ctx, reference)
	if err != nil {
		return nil, err
	}

	next, err := ticket.Retry(tk.Status)
	if err != nil {
		return nil, err
	}
	applied, err := s.store.UpdateTicketStatus(ctx, tk.ID, tk.Status, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("ticket %s changed concurrently: %w", reference, ticket.ErrIllegalTransition)
	}
	tk.Status = next

	if err := s.solveAndApply(ctx, tk); err != nil {
		return nil, err
	}
	return s.GetTicket(ctx, reference)
}

// CompleteManual records a manual resolution for a ticket that required it.
func (s *Service) CompleteManual(ctx context.Context, reference, resolution string) (*ticket.Ticket, error) {
	return s.applyAction(ctx, reference, func(tk *ticket.Ticket) (ticket.Status, *database.UpdateAdminActionParams, error) {
		next, err := ticket.CompleteManual(tk.Status)
		if err != nil {
			return "", nil, err
		}
		params := &database.UpdateAdminActionParams{Status: next}
		if resolution != "" {
			params.ManualResolution = &resolution
		}
		return next, params, nil
	})
}

func (s *Service) applyAction(ctx context.Context, reference string,
	decide func(*ticket.Ticket) (ticket.Status, *database.UpdateAdminActionParams, error)) (*ticket.Ticket, error) {

	tk, err := s.GetTicket(ctx, reference)
	if err != nil {
		return nil, err
	}

	next, params, err := decide(tk)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateAdminAction(ctx, tk.ID, *params); err != nil {
		return nil, err
	}
	tk.Status = next
	return tk, nil
}
