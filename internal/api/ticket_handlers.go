package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/geonhos/poc-voc-auto-processing/internal/database"
	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
	"github.com/geonhos/poc-voc-auto-processing/internal/voc"
)

// TicketService is the service surface the API exposes.
type TicketService interface {
	CreateTicket(ctx context.Context, params voc.CreateTicketParams) (*ticket.Ticket, error)
	GetTicket(ctx context.Context, reference string) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, params database.ListTicketsParams) ([]ticket.Ticket, int, error)
	ProcessTicket(ctx context.Context, id uuid.UUID) error
	Confirm(ctx context.Context, reference, assignee string) (*ticket.Ticket, error)
	Reject(ctx context.Context, reference, reason string) (*ticket.Ticket, error)
	Retry(ctx context.Context, reference string) (*ticket.Ticket, error)
	CompleteManual(ctx context.Context, reference, resolution string) (*ticket.Ticket, error)
}

// processTimeout bounds the detached background pipeline run for one ticket.
const processTimeout = 10 * time.Minute

type createVOCRequest struct {
	RawVOC       string `json:"raw_voc"`
	CustomerName string `json:"customer_name"`
	Channel      string `json:"channel"`
}

type ticketResponse struct {
	ID           string  `json:"id"`
	Reference    string  `json:"reference"`
	Status       string  `json:"status"`
	RawVOC       string  `json:"raw_voc"`
	CustomerName string  `json:"customer_name"`
	Channel      string  `json:"channel"`
	ReceivedAt   string  `json:"received_at"`
	Summary      *string `json:"summary,omitempty"`
	Urgency      *string `json:"urgency,omitempty"`

	DecisionPrimary    *string         `json:"decision_primary,omitempty"`
	DecisionSecondary  *string         `json:"decision_secondary,omitempty"`
	DecisionConfidence *float64        `json:"decision_confidence,omitempty"`
	DecisionReason     json.RawMessage `json:"decision_reason,omitempty"`
	ActionProposal     json.RawMessage `json:"action_proposal,omitempty"`
	AnalyzedAt         *string         `json:"analyzed_at,omitempty"`

	Assignee         *string `json:"assignee,omitempty"`
	ConfirmedAt      *string `json:"confirmed_at,omitempty"`
	RejectReason     *string `json:"reject_reason,omitempty"`
	ManualResolution *string `json:"manual_resolution,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toTicketResponse(tk *ticket.Ticket) ticketResponse {
	resp := ticketResponse{
		ID:                 tk.ID.String(),
		Reference:          tk.Reference,
		Status:             string(tk.Status),
		RawVOC:             tk.RawVOC,
		CustomerName:       tk.CustomerName,
		Channel:            string(tk.Channel),
		ReceivedAt:         tk.ReceivedAt.Format(time.RFC3339),
		Summary:            tk.Summary,
		DecisionPrimary:    tk.DecisionPrimary,
		DecisionSecondary:  tk.DecisionSecondary,
		DecisionConfidence: tk.DecisionConfidence,
		DecisionReason:     tk.DecisionReason,
		ActionProposal:     tk.ActionProposal,
		Assignee:           tk.Assignee,
		RejectReason:       tk.RejectReason,
		ManualResolution:   tk.ManualResolution,
		CreatedAt:          tk.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          tk.UpdatedAt.Format(time.RFC3339),
	}
	if tk.Urgency != nil {
		u := string(*tk.Urgency)
		resp.Urgency = &u
	}
	if tk.AnalyzedAt != nil {
		s := tk.AnalyzedAt.Format(time.RFC3339)
		resp.AnalyzedAt = &s
	}
	if tk.ConfirmedAt != nil {
		s := tk.ConfirmedAt.Format(time.RFC3339)
		resp.ConfirmedAt = &s
	}
	return resp
}

func (s *Server) handleCreateVOC(w http.ResponseWriter, r *http.Request) {
	var req createVOCRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RawVOC == "" {
		writeError(w, http.StatusBadRequest, "raw_voc is required")
		return
	}

	channel := ticket.Channel(req.Channel)
	switch channel {
	case ticket.ChannelEmail, ticket.ChannelSlack:
	case "":
		channel = ticket.ChannelEmail
	default:
		writeError(w, http.StatusBadRequest, "channel must be email or slack")
		return
	}

	tk, err := s.service.CreateTicket(r.Context(), voc.CreateTicketParams{
		RawVOC:       req.RawVOC,
		CustomerName: req.CustomerName,
		Channel:      channel,
	})
	if err != nil {
		log.Printf("api: failed to create ticket: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create ticket")
		return
	}

	// Processing runs detached from the request so intake stays fast. The
	// pipeline owns its own timeout and always routes to a valid state.
	go func(id uuid.UUID, ref string) {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := s.service.ProcessTicket(ctx, id); err != nil {
			log.Printf("api: background processing failed for %s: %v", ref, err)
		}
	}(tk.ID, tk.Reference)

	writeJSON(w, http.StatusAccepted, toTicketResponse(tk))
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	params := database.ListTicketsParams{Limit: 20}

	if status := r.URL.Query().Get("status"); status != "" {
		st := ticket.Status(status)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		params.Statuses = []ticket.Status{st}
	}
	if urgency := r.URL.Query().Get("urgency"); urgency != "" {
		u := ticket.Urgency(urgency)
		params.Urgency = &u
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 100 {
			params.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			params.Offset = n
		}
	}

	tickets, total, err := s.service.ListTickets(r.Context(), params)
	if err != nil {
		log.Printf("api: failed to list tickets: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}

	items := make([]ticketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, toTicketResponse(&tickets[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": items,
		"total":   total,
	})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	tk, err := s.service.GetTicket(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(tk))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignee string `json:"assignee"`
	}
	_ = readJSON(r, &req)

	tk, err := s.service.Confirm(r.Context(), r.PathValue("ref"), req.Assignee)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(tk))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = readJSON(r, &req)

	tk, err := s.service.Reject(r.Context(), r.PathValue("ref"), req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(tk))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	tk, err := s.service.Retry(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(tk))
}

func (s *Server) handleCompleteManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution string `json:"resolution"`
	}
	_ = readJSON(r, &req)

	tk, err := s.service.CompleteManual(r.Context(), r.PathValue("ref"), req.Resolution)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(tk))
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, voc.ErrNotFound):
		writeError(w, http.StatusNotFound, "ticket not found")
	case errors.Is(err, ticket.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("api: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
