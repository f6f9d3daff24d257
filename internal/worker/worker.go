// Package worker runs the background loop that picks up open tickets and
// feeds them through the analysis pipeline.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/ticket"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultConcurrency  = 4
)

// Claimer hands out open tickets, at most once each. Claiming moves the
// ticket to ANALYZING so concurrent workers never double-process.
type Claimer interface {
	ClaimNextOpenTicket(ctx context.Context) (*ticket.Ticket, error)
}

// Processor runs the pipeline for one claimed ticket. The claim already
// moved the ticket to ANALYZING, so the processor must not claim again.
type Processor interface {
	ProcessClaimed(ctx context.Context, tk *ticket.Ticket) error
}

// Runner polls for open tickets and processes them with bounded concurrency.
type Runner struct {
	claimer   Claimer
	processor Processor

	pollInterval time.Duration
	concurrency  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithPollInterval overrides how often the runner polls when idle.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollInterval = d }
}

// WithConcurrency overrides how many tickets may be in flight at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// New creates a Runner.
func New(claimer Claimer, processor Processor, opts ...Option) *Runner {
	r := &Runner{
		claimer:      claimer,
		processor:    processor,
		pollInterval: defaultPollInterval,
		concurrency:  defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled, then waits for in-flight tickets to
// finish. Tickets are independent; one failing never affects the others.
func (r *Runner) Run(ctx context.Context) {
	log.Printf("worker: started (poll %s, concurrency %d)", r.pollInterval, r.concurrency)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		r.drainQueue(ctx, sem, &wg)

		select {
		case <-ctx.Done():
			wg.Wait()
			log.Printf("worker: stopped")
			return
		case <-ticker.C:
		}
	}
}

// drainQueue claims tickets until the queue is empty or all slots are busy.
func (r *Runner) drainQueue(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		tk, err := r.claimer.ClaimNextOpenTicket(ctx)
		if err != nil {
			<-sem
			if ctx.Err() == nil {
				log.Printf("worker: claim failed: %v", err)
			}
			return
		}
		if tk == nil {
			<-sem
			return
		}

		wg.Add(1)
		go func(tk *ticket.Ticket) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := r.processor.ProcessClaimed(ctx, tk); err != nil {
				log.Printf("worker: processing %s failed: %v", tk.Reference, err)
			}
		}(tk)
	}
}
