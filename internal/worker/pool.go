package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Factory builds the invoker for one registry entry.
type Factory func(spec Spec) (Invoker, error)

// OllamaFactory returns a Factory that connects every worker to the same
// Ollama server.
func OllamaFactory(serverURL string, temperature float64, client *http.Client) Factory {
	return func(spec Spec) (Invoker, error) {
		return NewOllamaInvoker(spec, serverURL, temperature, client)
	}
}

// WithTimeout bounds every call to inv. Expiry surfaces as a Timeout
// BackendError for worker.
func WithTimeout(worker string, inv Invoker, d time.Duration) Invoker {
	if d <= 0 {
		return inv
	}
	return InvokerFunc(func(ctx context.Context, p Prompt) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		out, err := inv.Invoke(ctx, p)
		if err != nil && ctx.Err() == context.DeadlineExceeded && !IsTimeout(err) {
			var be *BackendError
			if errors.As(err, &be) {
				err = be.Err
			}
			return "", &BackendError{Worker: worker, Kind: Timeout, Err: err}
		}
		return out, Classify(worker, err)
	})
}

// Pool holds one invoker per registered worker.
type Pool struct {
	registry *Registry
	invokers map[string]Invoker
}

// NewPool builds an invoker for every worker in reg. A positive timeout is
// applied to each of them.
func NewPool(reg *Registry, factory Factory, timeout time.Duration) (*Pool, error) {
	p := &Pool{registry: reg, invokers: make(map[string]Invoker, reg.Len())}
	for _, spec := range reg.Specs() {
		inv, err := factory(spec)
		if err != nil {
			return nil, fmt.Errorf("worker: build %s: %w", spec.Name, err)
		}
		p.invokers[spec.Name] = WithTimeout(spec.Name, inv, timeout)
	}
	return p, nil
}

// Registry returns the registry the pool was built from.
func (p *Pool) Registry() *Registry { return p.registry }

// Get returns the invoker for name.
func (p *Pool) Get(name string) (Invoker, error) {
	inv, ok := p.invokers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return inv, nil
}

// Invoke calls the worker registered under name.
func (p *Pool) Invoke(ctx context.Context, name string, prompt Prompt) (string, error) {
	inv, err := p.Get(name)
	if err != nil {
		return "", err
	}
	return inv.Invoke(ctx, prompt)
}
