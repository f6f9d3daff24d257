package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geonhos/poc-voc-auto-processing/internal/database"
	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
	"github.com/geonhos/poc-voc-auto-processing/internal/voc"
)

type fakeService struct {
	tickets   map[string]*ticket.Ticket
	processed chan uuid.UUID
}

func newFakeService() *fakeService {
	return &fakeService{
		tickets:   make(map[string]*ticket.Ticket),
		processed: make(chan uuid.UUID, 8),
	}
}

func (f *fakeService) CreateTicket(_ context.Context, params voc.CreateTicketParams) (*ticket.Ticket, error) {
	tk := &ticket.Ticket{
		ID:           uuid.New(),
		Reference:    "VOC-20260115-0001",
		Status:       ticket.StatusOpen,
		RawVOC:       params.RawVOC,
		CustomerName: params.CustomerName,
		Channel:      params.Channel,
		ReceivedAt:   time.Now(),
	}
	f.tickets[tk.Reference] = tk
	return tk, nil
}

func (f *fakeService) GetTicket(_ context.Context, ref string) (*ticket.Ticket, error) {
	tk, ok := f.tickets[ref]
	if !ok {
		return nil, voc.ErrNotFound
	}
	return tk, nil
}

func (f *fakeService) ListTickets(_ context.Context, _ database.ListTicketsParams) ([]ticket.Ticket, int, error) {
	var out []ticket.Ticket
	for _, tk := range f.tickets {
		out = append(out, *tk)
	}
	return out, len(out), nil
}

func (f *fakeService) ProcessTicket(_ context.Context, id uuid.UUID) error {
	f.processed <- id
	return nil
}

func (f *fakeService) action(ref string, transition func(ticket.Status) (ticket.Status, error)) (*ticket.Ticket, error) {
	tk, ok := f.tickets[ref]
	if !ok {
		return nil, voc.ErrNotFound
	}
	next, err := transition(tk.Status)
	if err != nil {
		return nil, err
	}
	tk.Status = next
	return tk, nil
}

func (f *fakeService) Confirm(_ context.Context, ref, _ string) (*ticket.Ticket, error) {
	return f.action(ref, ticket.Confirm)
}

func (f *fakeService) Reject(_ context.Context, ref, _ string) (*ticket.Ticket, error) {
	return f.action(ref, ticket.Reject)
}

func (f *fakeService) Retry(_ context.Context, ref string) (*ticket.Ticket, error) {
	return f.action(ref, ticket.Retry)
}

func (f *fakeService) CompleteManual(_ context.Context, ref, _ string) (*ticket.Ticket, error) {
	return f.action(ref, ticket.CompleteManual)
}

func newTestServer() (*Server, *fakeService) {
	svc := newFakeService()
	return NewServer(Config{Service: svc}), svc
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateVOCKicksOffProcessing(t *testing.T) {
	srv, svc := newTestServer()

	rec := doJSON(t, srv, http.MethodPost, "/api/voc", map[string]string{
		"raw_voc":       "Payment keeps failing with a timeout.",
		"customer_name": "Test Customer",
		"channel":       "email",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VOC-20260115-0001", resp["reference"])
	assert.Equal(t, "OPEN", resp["status"])

	select {
	case <-svc.processed:
	case <-time.After(time.Second):
		t.Fatal("background processing was never started")
	}
}

func TestCreateVOCValidation(t *testing.T) {
	srv, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodPost, "/api/voc", map[string]string{"customer_name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/voc", map[string]string{
		"raw_voc": "something broke", "channel": "carrier_pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTicket(t *testing.T) {
	srv, svc := newTestServer()
	tk, _ := svc.CreateTicket(context.Background(), voc.CreateTicketParams{RawVOC: "x", Channel: ticket.ChannelEmail})

	rec := doJSON(t, srv, http.MethodGet, "/api/tickets/"+tk.Reference, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/tickets/VOC-MISSING", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTicketsRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodGet, "/api/tickets?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/tickets?status=OPEN&limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfirmTransitions(t *testing.T) {
	srv, svc := newTestServer()
	tk, _ := svc.CreateTicket(context.Background(), voc.CreateTicketParams{RawVOC: "x", Channel: ticket.ChannelEmail})

	// OPEN tickets cannot be confirmed.
	rec := doJSON(t, srv, http.MethodPost, "/api/tickets/"+tk.Reference+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.tickets[tk.Reference].Status = ticket.StatusWaitingConfirm
	rec = doJSON(t, srv, http.MethodPost, "/api/tickets/"+tk.Reference+"/confirm", map[string]string{"assignee": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DONE", resp["status"])
}

func TestRejectAndRetryAndComplete(t *testing.T) {
	srv, svc := newTestServer()
	tk, _ := svc.CreateTicket(context.Background(), voc.CreateTicketParams{RawVOC: "x", Channel: ticket.ChannelEmail})

	svc.tickets[tk.Reference].Status = ticket.StatusWaitingConfirm
	rec := doJSON(t, srv, http.MethodPost, "/api/tickets/"+tk.Reference+"/reject", map[string]string{"reason": "wrong"})
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.tickets[tk.Reference].Status = ticket.StatusWaitingConfirm
	rec = doJSON(t, srv, http.MethodPost, "/api/tickets/"+tk.Reference+"/retry", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.tickets[tk.Reference].Status = ticket.StatusManualRequired
	rec = doJSON(t, srv, http.MethodPost, "/api/tickets/"+tk.Reference+"/complete", map[string]string{"resolution": "refunded"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// DONE is terminal.
	rec = doJSON(t, srv, http.MethodPost, "/api/tickets/"+tk.Reference+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/voc", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
