// Package ticket defines the VOC ticket model and its status lifecycle.
package ticket

import (
	"time"

	"github.com/google/uuid"
)

// Status is the ticket lifecycle state.
type Status string

const (
	StatusOpen           Status = "OPEN"
	StatusAnalyzing      Status = "ANALYZING"
	StatusWaitingConfirm Status = "WAITING_CONFIRM"
	StatusManualRequired Status = "MANUAL_REQUIRED"
	StatusDone           Status = "DONE"
	StatusRejected       Status = "REJECTED"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAnalyzing, StatusWaitingConfirm, StatusManualRequired, StatusDone, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusRejected
}

// Channel is the intake channel a VOC arrived through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// Urgency is the normalized urgency level.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Ticket is the persistent record tracking one VOC through its lifecycle.
// The solver pipeline mutates only the decision fields and Status; everything
// else is owned by intake and admin actions.
type Ticket struct {
	ID        uuid.UUID
	Reference string // human-readable id, e.g. VOC-20260115-0042
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Assignee  *string

	// Intake
	RawVOC       string
	CustomerName string
	Channel      Channel
	ReceivedAt   time.Time

	// Normalization
	Summary            *string
	SuspectedPrimary   *string
	SuspectedSecondary *string
	AffectedSystem     *string
	Urgency            *Urgency

	// Solver decision
	DecisionPrimary    *string
	DecisionSecondary  *string
	DecisionConfidence *float64
	DecisionReason     []byte // JSON: confidence breakdown, narratives, similar cases
	ActionProposal     []byte // JSON: typed action proposal
	AnalyzedAt         *time.Time

	// Admin actions
	ConfirmedAt      *time.Time
	RejectReason     *string
	ManualResolution *string
}
