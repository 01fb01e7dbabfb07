// Package worker wraps the text-generation backends the pipeline calls.
// Every worker is an opaque function from a prompt to text; the package adds
// the registry of named workers, timeouts and error classification.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownWorker is returned when a logical name is not in the registry.
var ErrUnknownWorker = errors.New("worker: unknown worker")

// Prompt is the payload sent to a worker.
type Prompt struct {
	System string
	Input  string
}

// Invoker turns a prompt into generated text.
type Invoker interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, p Prompt) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// Spec is one registry entry: a logical name such as QWEN_LLM and the backend
// model identifier it points at.
type Spec struct {
	Name  string `yaml:"name" json:"name"`
	Model string `yaml:"model" json:"model"`
}

// Registry is an immutable, name-sorted set of workers. It is built once
// before the graph and never changes afterwards.
type Registry struct {
	specs  []Spec
	byName map[string]Spec
}

// NewRegistry validates specs and freezes them in name order.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{byName: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		s.Name = strings.TrimSpace(s.Name)
		s.Model = strings.TrimSpace(s.Model)
		if s.Name == "" {
			return nil, fmt.Errorf("worker: registry entry with empty name")
		}
		if s.Model == "" {
			return nil, fmt.Errorf("worker: %s has no model", s.Name)
		}
		if _, dup := r.byName[s.Name]; dup {
			return nil, fmt.Errorf("worker: %s registered twice", s.Name)
		}
		r.byName[s.Name] = s
		r.specs = append(r.specs, s)
	}
	sort.Slice(r.specs, func(i, j int) bool { return r.specs[i].Name < r.specs[j].Name })
	return r, nil
}

// FromEnv returns one Spec per environment variable ending in _LLM with a
// non-empty value. environ has the os.Environ format.
func FromEnv(environ []string) []Spec {
	var specs []Spec
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasSuffix(key, "_LLM") || strings.TrimSpace(value) == "" {
			continue
		}
		specs = append(specs, Spec{Name: key, Model: value})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns the logical names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// Specs returns a copy of the entries in order.
func (r *Registry) Specs() []Spec {
	return append([]Spec(nil), r.specs...)
}

// Len reports the number of workers.
func (r *Registry) Len() int { return len(r.specs) }

// Subset returns a registry restricted to names, keeping name order.
func (r *Registry) Subset(names []string) (*Registry, error) {
	specs := make([]Spec, 0, len(names))
	for _, n := range names {
		s, ok := r.byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, n)
		}
		specs = append(specs, s)
	}
	return NewRegistry(specs)
}
