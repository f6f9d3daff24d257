package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

type queueClaimer struct {
	mu     sync.Mutex
	queue  []*ticket.Ticket
	err    error
	claims int
}

func (c *queueClaimer) ClaimNextOpenTicket(_ context.Context) (*ticket.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.queue) == 0 {
		return nil, nil
	}
	tk := c.queue[0]
	c.queue = c.queue[1:]
	return tk, nil
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []uuid.UUID
	inFlight  int
	maxSeen   int
	delay     time.Duration
}

func (p *recordingProcessor) ProcessClaimed(_ context.Context, tk *ticket.Ticket) error {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inFlight--
	p.processed = append(p.processed, tk.ID)
	p.mu.Unlock()
	return nil
}

func newTicket() *ticket.Ticket {
	return &ticket.Ticket{ID: uuid.New(), Reference: "VOC-TEST", Status: ticket.StatusAnalyzing}
}

func TestRunnerProcessesAllQueuedTickets(t *testing.T) {
	claimer := &queueClaimer{queue: []*ticket.Ticket{newTicket(), newTicket(), newTicket()}}
	processor := &recordingProcessor{}
	runner := New(claimer, processor, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		processor.mu.Lock()
		defer processor.mu.Unlock()
		return len(processor.processed) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	var queue []*ticket.Ticket
	for i := 0; i < 10; i++ {
		queue = append(queue, newTicket())
	}
	claimer := &queueClaimer{queue: queue}
	processor := &recordingProcessor{delay: 20 * time.Millisecond}
	runner := New(claimer, processor, WithPollInterval(2*time.Millisecond), WithConcurrency(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		processor.mu.Lock()
		defer processor.mu.Unlock()
		return len(processor.processed) == 10
	}, 3*time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.LessOrEqual(t, processor.maxSeen, 2)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	claimer := &queueClaimer{}
	runner := New(claimer, &recordingProcessor{}, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunnerSurvivesClaimErrors(t *testing.T) {
	claimer := &queueClaimer{err: errors.New("connection refused")}
	runner := New(claimer, &recordingProcessor{}, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	runner.Run(ctx)

	claimer.mu.Lock()
	defer claimer.mu.Unlock()
	assert.Greater(t, claimer.claims, 1, "runner must keep polling after claim errors")
}
