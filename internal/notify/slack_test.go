package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

func urgentTicket() *ticket.Ticket {
	urgency := ticket.UrgencyHigh
	summary := "Payment fails at checkout"
	return &ticket.Ticket{
		Reference:    "VOC-20260115-0042",
		Status:       ticket.StatusOpen,
		RawVOC:       "Payment keeps failing with a timeout.",
		CustomerName: "Test Customer",
		Channel:      ticket.ChannelEmail,
		ReceivedAt:   time.Now(),
		Summary:      &summary,
		Urgency:      &urgency,
	}
}

func TestNotifyUrgentTicket(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	require.True(t, n.Enabled())

	err := n.NotifyUrgentTicket(context.Background(), urgentTicket())
	require.NoError(t, err)

	blocks, ok := received["blocks"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, blocks)

	payload, err := json.Marshal(received)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "VOC-20260115-0042")
	assert.Contains(t, string(payload), "Payment fails at checkout")
}

func TestNotifyAnalysisCompleteRouting(t *testing.T) {
	var payload string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		payload = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)

	tk := urgentTicket()
	tk.Status = ticket.StatusManualRequired
	require.NoError(t, n.NotifyAnalysisComplete(context.Background(), tk, "integration_error", 0.42))

	assert.Contains(t, payload, "manual review required")
	assert.Contains(t, payload, "integration_error")
	assert.Contains(t, payload, "42%")
}

func TestDisabledNotifierIsNoOp(t *testing.T) {
	n := New("")
	assert.False(t, n.Enabled())

	err := n.NotifyUrgentTicket(context.Background(), urgentTicket())
	assert.NoError(t, err)
}

func TestNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.NotifyUrgentTicket(context.Background(), urgentTicket())
	assert.Error(t, err)
}
