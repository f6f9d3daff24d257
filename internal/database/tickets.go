package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

// ErrDuplicateReference is returned when a ticket insert collides with an
// existing reference. Callers retry with a fresh reference.
var ErrDuplicateReference = errors.New("duplicate ticket reference")

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// ticketColumns is the standard column list for ticket queries.
const ticketColumns = `id, reference, status, created_at, updated_at, assignee,
	raw_voc, customer_name, channel, received_at,
	summary, suspected_primary, suspected_secondary, affected_system, urgency,
	decision_primary, decision_secondary, decision_confidence, decision_reason, action_proposal, analyzed_at,
	confirmed_at, reject_reason, manual_resolution`

// scanTicket scans a row into a Ticket. Returns (nil, nil) when no row matched.
func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	var t ticket.Ticket
	var urgency *string
	err := row.Scan(
		&t.ID, &t.Reference, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.Assignee,
		&t.RawVOC, &t.CustomerName, &t.Channel, &t.ReceivedAt,
		&t.Summary, &t.SuspectedPrimary, &t.SuspectedSecondary, &t.AffectedSystem, &urgency,
		&t.DecisionPrimary, &t.DecisionSecondary, &t.DecisionConfidence, &t.DecisionReason, &t.ActionProposal, &t.AnalyzedAt,
		&t.ConfirmedAt, &t.RejectReason, &t.ManualResolution,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if urgency != nil {
		u := ticket.Urgency(*urgency)
		t.Urgency = &u
	}
	return &t, nil
}

// CreateTicketParams contains intake fields for a new ticket.
type CreateTicketParams struct {
	Reference    string
	RawVOC       string
	CustomerName string
	Channel      ticket.Channel
	ReceivedAt   time.Time
}

// CreateTicket stores a new ticket in OPEN status.
func (db *DB) CreateTicket(ctx context.Context, params CreateTicketParams) (*ticket.Ticket, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO tickets (reference, status, raw_voc, customer_name, channel, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+ticketColumns,
		params.Reference, ticket.StatusOpen, params.RawVOC, params.CustomerName, params.Channel, params.ReceivedAt,
	)
	tk, err := scanTicket(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}
	return tk, nil
}

// GetTicketByID retrieves a ticket by UUID.
func (db *DB) GetTicketByID(ctx context.Context, id uuid.UUID) (*ticket.Ticket, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	return scanTicket(row)
}

// GetTicketByReference retrieves a ticket by its human-readable reference.
func (db *DB) GetTicketByReference(ctx context.Context, reference string) (*ticket.Ticket, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE reference = $1`, reference)
	return scanTicket(row)
}

// ListTicketsParams contains filters for listing tickets.
type ListTicketsParams struct {
	Statuses []ticket.Status
	Urgency  *ticket.Urgency
	Limit    int
	Offset   int
}

// ListTickets returns tickets ordered by creation date descending, plus the
// total count matching the filters.
func (db *DB) ListTickets(ctx context.Context, params ListTicketsParams) ([]ticket.Ticket, int, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}

	where := "TRUE"
	args := []any{}
	if len(params.Statuses) > 0 {
		args = append(args, params.Statuses)
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if params.Urgency != nil {
		args = append(args, *params.Urgency)
		where += fmt.Sprintf(" AND urgency = $%d", len(args))
	}

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, params.Limit, params.Offset)
	rows, err := db.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tickets []ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, total, rows.Err()
}

// UpdateTicketStatus applies a status transition only when the ticket is
// still in the expected source status. Returns false when a concurrent
// processor moved the ticket first.
func (db *DB) UpdateTicketStatus(ctx context.Context, id uuid.UUID, from, to ticket.Status) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tickets SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateNormalizationParams holds normalization output.
type UpdateNormalizationParams struct {
	Summary            string
	SuspectedPrimary   string
	SuspectedSecondary *string
	AffectedSystem     string
	Urgency            ticket.Urgency
}

// UpdateNormalization stores normalization fields.
func (db *DB) UpdateNormalization(ctx context.Context, id uuid.UUID, params UpdateNormalizationParams) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE tickets SET summary = $2, suspected_primary = $3, suspected_secondary = $4,
		 affected_system = $5, urgency = $6, updated_at = now()
		 WHERE id = $1`,
		id, params.Summary, params.SuspectedPrimary, params.SuspectedSecondary,
		params.AffectedSystem, params.Urgency)
	return err
}

// UpdateSolverResultParams holds the solver decision written into a ticket.
type UpdateSolverResultParams struct {
	Status             ticket.Status
	DecisionPrimary    string
	DecisionSecondary  *string
	DecisionConfidence float64
	DecisionReason     []byte
	ActionProposal     []byte
	AnalyzedAt         time.Time
}

// UpdateSolverResult applies a validated solver output and the resulting
// status transition in a single statement, so a ticket never carries a
// decision without the matching routing state.
func (db *DB) UpdateSolverResult(ctx context.Context, id uuid.UUID, params UpdateSolverResultParams) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE tickets SET status = $2, decision_primary = $3, decision_secondary = $4,
		 decision_confidence = $5, decision_reason = $6, action_proposal = $7,
		 analyzed_at = $8, updated_at = now()
		 WHERE id = $1`,
		id, params.Status, params.DecisionPrimary, params.DecisionSecondary,
		params.DecisionConfidence, params.DecisionReason, params.ActionProposal, params.AnalyzedAt)
	return err
}

// UpdateAdminActionParams holds fields written by human actions.
type UpdateAdminActionParams struct {
	Status           ticket.Status
	Assignee         *string
	RejectReason     *string
	ManualResolution *string
	ConfirmedAt      *time.Time
}

// UpdateAdminAction applies a human transition and its bookkeeping fields.
func (db *DB) UpdateAdminAction(ctx context.Context, id uuid.UUID, params UpdateAdminActionParams) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE tickets SET status = $2,
		 assignee = COALESCE($3, assignee),
		 reject_reason = COALESCE($4, reject_reason),
		 manual_resolution = COALESCE($5, manual_resolution),
		 confirmed_at = COALESCE($6, confirmed_at),
		 updated_at = now()
		 WHERE id = $1`,
		id, params.Status, params.Assignee, params.RejectReason, params.ManualResolution, params.ConfirmedAt)
	return err
}

// ClaimNextOpenTicket atomically moves the oldest OPEN ticket to ANALYZING and
// returns it. Returns (nil, nil) when no OPEN ticket exists. FOR UPDATE
// SKIP LOCKED keeps concurrent workers from claiming the same ticket.
func (db *DB) ClaimNextOpenTicket(ctx context.Context) (*ticket.Ticket, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE tickets SET status = $1, updated_at = now()
		 WHERE id = (
		   SELECT id FROM tickets WHERE status = $2
		   ORDER BY created_at LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+ticketColumns,
		ticket.StatusAnalyzing, ticket.StatusOpen,
	)
	return scanTicket(row)
}
