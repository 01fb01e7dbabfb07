package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// terminal serializes progress lines against review prompts that share the
// same output.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}

// exclusive wraps src so progress output waits while a decision is asked for.
func (t *terminal) exclusive(src orchestrator.DecisionSource) orchestrator.DecisionSource {
	return orchestrator.DecisionFunc(func(ctx context.Context, req orchestrator.ReviewRequest) (orchestrator.Decision, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		return src.Decide(ctx, req)
	})
}
