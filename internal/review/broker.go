package review

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// Pending is a review request waiting for a decision.
type Pending struct {
	Request orchestrator.ReviewRequest

	decision chan orchestrator.Decision
}

// Broker is a DecisionSource that suspends the gate until some other
// goroutine resolves the request. The executor stays synchronous while the
// decision can come from a console loop, an MCP tool call or a test.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*Pending
	notify  chan *Pending
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		pending: make(map[string]*Pending),
		notify:  make(chan *Pending, 16),
	}
}

// Decide publishes req and blocks until it is resolved or ctx is done.
func (b *Broker) Decide(ctx context.Context, req orchestrator.ReviewRequest) (orchestrator.Decision, error) {
	p := &Pending{Request: req, decision: make(chan orchestrator.Decision, 1)}

	b.mu.Lock()
	b.pending[req.ID] = p
	b.mu.Unlock()
	defer b.forget(req.ID)

	// Non-blocking: List still exposes the request if nobody is listening.
	select {
	case b.notify <- p:
	default:
	}

	select {
	case d := <-p.decision:
		return d, nil
	case <-ctx.Done():
		return orchestrator.Decision{}, ctx.Err()
	}
}

// Pending returns the channel on which new requests are announced.
func (b *Broker) Pending() <-chan *Pending {
	return b.notify
}

// List returns the outstanding requests, oldest first.
func (b *Broker) List() []orchestrator.ReviewRequest {
	b.mu.Lock()
	out := make([]orchestrator.ReviewRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.Request)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Resolve answers the request with the given id. Each request can be
// resolved once.
func (b *Broker) Resolve(id string, d orchestrator.Decision) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	p.decision <- d
	return nil
}

func (b *Broker) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
