// Package diagram cleans and validates mermaid flow diagrams and renders
// them to PNG.
package diagram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidDiagram is returned for source that does not open with
// "graph <direction>".
var ErrInvalidDiagram = errors.New("diagram: invalid mermaid source")

// Directions are the accepted direction tokens after the graph keyword.
var Directions = []string{"LR", "RL", "TD", "TB", "BT"}

var (
	header     = regexp.MustCompile(`^graph\s+(LR|RL|TD|TB|BT)(\s|;|$)`)
	firstGraph = regexp.MustCompile(`(?m)^[ \t]*graph[ \t]+(LR|RL|TD|TB|BT)\b`)
	fences     = regexp.MustCompile("(?i)```(mermaid)?")
)

// Clean strips code fences and any chatter before the first graph line.
func Clean(src string) string {
	src = fences.ReplaceAllString(src, "")
	if loc := firstGraph.FindStringIndex(src); loc != nil {
		src = src[loc[0]:]
	}
	return strings.TrimSpace(src)
}

// Validate checks that src begins with the graph keyword and an accepted
// direction token.
func Validate(src string) error {
	trimmed := strings.TrimSpace(src)
	if !header.MatchString(trimmed) {
		first, _, _ := strings.Cut(trimmed, "\n")
		if len(first) > 40 {
			first = first[:40] + "..."
		}
		return fmt.Errorf("%w: want \"graph <%s>\", got %q", ErrInvalidDiagram, strings.Join(Directions, "|"), first)
	}
	return nil
}

// Renderer turns valid mermaid source into an image.
type Renderer interface {
	Render(ctx context.Context, src string) ([]byte, error)
}

// DefaultEndpoint is the public mermaid.ink service.
const DefaultEndpoint = "https://mermaid.ink"

// InkRenderer renders through a mermaid.ink compatible HTTP service.
type InkRenderer struct {
	Endpoint string
	Client   *http.Client
}

// NewInkRenderer returns a renderer for endpoint. A nil client gets a 30s
// timeout.
func NewInkRenderer(endpoint string, client *http.Client) *InkRenderer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &InkRenderer{Endpoint: strings.TrimRight(endpoint, "/"), Client: client}
}

// Render validates src and fetches its PNG. Invalid source is rejected
// without contacting the service.
func (r *InkRenderer) Render(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	if err := Validate(src); err != nil {
		return nil, err
	}

	target := r.Endpoint + "/img/" + base64.URLEncoding.EncodeToString([]byte(src)) + "?type=png"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("diagram: build request: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diagram: render: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("diagram: read image: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("diagram: render: HTTP %d: %s", resp.StatusCode, msg)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("diagram: render: empty image")
	}
	return body, nil
}
