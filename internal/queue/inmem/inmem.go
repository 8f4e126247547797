// Package inmem provides an in-memory queue.Producer for tests.
package inmem

import (
	"context"
	"sync"

	"github.com/polaris-ecosystems/rfp-agent/internal/queue"
)

// Producer records enqueued job IDs in order. Safe for concurrent use.
type Producer struct {
	mu     sync.Mutex
	jobIDs []string
}

// New returns an empty Producer.
func New() *Producer {
	return &Producer{}
}

// Enqueue appends jobID to the in-memory log.
func (p *Producer) Enqueue(_ context.Context, jobID string) error {
	if jobID == "" {
		return queue.ErrMissingJobID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobIDs = append(p.jobIDs, jobID)
	return nil
}

// Enqueued returns a snapshot of job IDs enqueued so far, in order.
func (p *Producer) Enqueued() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.jobIDs))
	copy(out, p.jobIDs)
	return out
}
