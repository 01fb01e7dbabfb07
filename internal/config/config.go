// Package config loads blueprint settings from blueprint.yml, a .env file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/blueprint/internal/pipeline"
	"github.com/dusk-indust/blueprint/internal/worker"
)

// Defaults.
const (
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultMaxRevisions    = 3
	DefaultWorkerTimeout   = 5 * time.Minute
	DefaultDiagramEndpoint = "https://mermaid.ink"
)

// Config holds project-level settings.
type Config struct {
	OllamaURL   string         `yaml:"ollamaURL,omitempty"`
	Temperature float64        `yaml:"temperature,omitempty"`
	Workers     []worker.Spec  `yaml:"workers,omitempty"`
	Roles       pipeline.Roles `yaml:"roles,omitempty"`
	// FanOut restricts the proposal phase to these workers; empty means all.
	FanOut           []string                 `yaml:"fanOut,omitempty"`
	MaxRevisions     int                      `yaml:"maxRevisions,omitempty"`
	WorkerTimeout    time.Duration            `yaml:"workerTimeout,omitempty"`
	SecondaryFailure pipeline.SecondaryPolicy `yaml:"secondaryFailure,omitempty"`
	DiagramEndpoint  string                   `yaml:"diagramEndpoint,omitempty"`
	// RenderDiagram is a pointer so an explicit false in the file survives
	// defaulting.
	RenderDiagram *bool  `yaml:"renderDiagram,omitempty"`
	TraceFile     string `yaml:"traceFile,omitempty"`
}

// Load reads blueprint.yml or blueprint.yaml and .env from dir, then applies
// environment overrides. Missing files are not an error.
func Load(dir string) (*Config, error) {
	cfg := &Config{}
	for _, name := range []string{"blueprint.yml", "blueprint.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}

	dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	// Process environment wins over .env.
	env := make(map[string]string, len(dotenv))
	for k, v := range dotenv {
		env[k] = v
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(env map[string]string) error {
	if v := env["OLLAMA_URL"]; v != "" {
		c.OllamaURL = v
	}
	if v := env["OLLAMA_TEMPERATURE"]; v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: OLLAMA_TEMPERATURE: %w", err)
		}
		c.Temperature = t
	}
	if v := env["BLUEPRINT_MAX_REVISIONS"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: BLUEPRINT_MAX_REVISIONS: %w", err)
		}
		c.MaxRevisions = n
	}

	environ := make([]string, 0, len(env))
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}
	fromEnv := worker.FromEnv(environ)
	if len(fromEnv) == 0 {
		return nil
	}
	// *_LLM variables replace a worker of the same name and add new ones.
	index := make(map[string]int, len(c.Workers))
	for i, w := range c.Workers {
		index[w.Name] = i
	}
	for _, w := range fromEnv {
		if i, ok := index[w.Name]; ok {
			c.Workers[i] = w
			continue
		}
		c.Workers = append(c.Workers, w)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.OllamaURL == "" {
		c.OllamaURL = DefaultOllamaURL
	}
	if c.MaxRevisions == 0 {
		c.MaxRevisions = DefaultMaxRevisions
	}
	if c.WorkerTimeout == 0 {
		c.WorkerTimeout = DefaultWorkerTimeout
	}
	if c.SecondaryFailure == "" {
		c.SecondaryFailure = pipeline.SecondaryWarn
	}
	if c.DiagramEndpoint == "" {
		c.DiagramEndpoint = DefaultDiagramEndpoint
	}
	if c.RenderDiagram == nil {
		on := true
		c.RenderDiagram = &on
	}
}

// Validate checks ranges. Worker names are checked when the registry is
// built.
func (c *Config) Validate() error {
	if c.MaxRevisions < 0 {
		return fmt.Errorf("config: maxRevisions must not be negative, got %d", c.MaxRevisions)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: temperature must be within [0, 2], got %g", c.Temperature)
	}
	switch c.SecondaryFailure {
	case pipeline.SecondaryWarn, pipeline.SecondaryFail:
	default:
		return fmt.Errorf("config: secondaryFailure must be %q or %q, got %q",
			pipeline.SecondaryWarn, pipeline.SecondaryFail, c.SecondaryFailure)
	}
	return nil
}

// Registry builds the worker registry from the configured workers.
func (c *Config) Registry() (*worker.Registry, error) {
	return worker.NewRegistry(c.Workers)
}

// DiagramEnabled reports whether the flow diagram is rendered to PNG.
func (c *Config) DiagramEnabled() bool {
	return c.RenderDiagram == nil || *c.RenderDiagram
}
