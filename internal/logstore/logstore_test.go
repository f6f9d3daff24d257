package logstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

func entry(offset time.Duration, level, msg string) Entry {
	return Entry{Timestamp: base.Add(offset), Level: level, Service: "PaymentService", Message: msg}
}

func TestQueryTimeWindowAndLevel(t *testing.T) {
	s := NewStore()
	s.Add("PaymentService",
		entry(-2*time.Hour, "ERROR", "too early"),
		entry(-30*time.Minute, "ERROR", "in window"),
		entry(-10*time.Minute, "WARN", "warn in window"),
		entry(10*time.Minute, "ERROR", "also in window"),
		entry(2*time.Hour, "ERROR", "too late"),
	)

	res, err := s.Query(context.Background(), QueryParams{
		Service: "PaymentService",
		Start:   base.Add(-time.Hour),
		End:     base.Add(time.Hour),
		Level:   "ERROR",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "in window", res.Entries[0].Message)
	assert.Equal(t, "also in window", res.Entries[1].Message)
}

func TestQueryUnknownServiceIsEmptyNotError(t *testing.T) {
	s := NewStore()
	res, err := s.Query(context.Background(), QueryParams{
		Service: "NoSuchService",
		Start:   base.Add(-time.Hour),
		End:     base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Zero(t, res.TotalCount)
}

func TestQueryLimitCapsEntriesNotTotal(t *testing.T) {
	s := NewStore()
	for i := 0; i < 150; i++ {
		s.Add("PaymentService", entry(time.Duration(i)*time.Second, "ERROR", "e"))
	}

	res, err := s.Query(context.Background(), QueryParams{
		Service: "PaymentService",
		Start:   base.Add(-time.Hour),
		End:     base.Add(time.Hour),
		Limit:   200, // above cap, must clamp to MaxQueryLimit
	})
	require.NoError(t, err)
	assert.Len(t, res.Entries, MaxQueryLimit)
	assert.Equal(t, 150, res.TotalCount)

	res, err = s.Query(context.Background(), QueryParams{
		Service: "PaymentService",
		Start:   base.Add(-time.Hour),
		End:     base.Add(time.Hour),
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 10)
	assert.Equal(t, 150, res.TotalCount)
}

func TestAddScenario(t *testing.T) {
	s := NewStore()
	err := s.AddScenario([]byte(`{
		"service": "RefundService",
		"logs": [
			{"timestamp": "2026-01-15T14:30:00Z", "level": "ERROR", "service": "RefundService",
			 "message": "NullPointerException in refund handler", "error_code": "NPE-001",
			 "stack_trace": "java.lang.NullPointerException\n  at RefundHandler.process"}
		]
	}`))
	require.NoError(t, err)

	res, err := s.Query(context.Background(), QueryParams{
		Service: "RefundService",
		Start:   base,
		End:     base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "NPE-001", res.Entries[0].ErrorCode)
}

func TestAddScenarioRejectsMissingService(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.AddScenario([]byte(`{"logs": []}`)))
	assert.Error(t, s.AddScenario([]byte(`not json`)))
}
