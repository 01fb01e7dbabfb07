package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// ModelInvoker calls a langchaingo chat model with a system and a human
// message and returns the cleaned answer.
type ModelInvoker struct {
	name        string
	model       llms.Model
	temperature float64
}

// NewModelInvoker wraps an llms.Model as the worker called name.
func NewModelInvoker(name string, model llms.Model, temperature float64) *ModelInvoker {
	return &ModelInvoker{name: name, model: model, temperature: temperature}
}

// NewOllamaInvoker connects spec's model on the Ollama server at serverURL.
// A nil client uses http.DefaultClient.
func NewOllamaInvoker(spec Spec, serverURL string, temperature float64, client *http.Client) (*ModelInvoker, error) {
	if client == nil {
		client = http.DefaultClient
	}
	llm, err := ollama.New(
		ollama.WithModel(spec.Model),
		ollama.WithServerURL(serverURL),
		ollama.WithHTTPClient(client),
	)
	if err != nil {
		return nil, fmt.Errorf("worker: ollama client for %s: %w", spec.Name, err)
	}
	return NewModelInvoker(spec.Name, llm, temperature), nil
}

// Invoke implements Invoker. Reasoning blocks are removed; an empty answer
// is a Malformed error.
func (m *ModelInvoker) Invoke(ctx context.Context, p Prompt) (string, error) {
	var msgs []llms.MessageContent
	if strings.TrimSpace(p.System) != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, p.Input))

	resp, err := m.model.GenerateContent(ctx, msgs, llms.WithTemperature(m.temperature))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", Classify(m.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &BackendError{Worker: m.name, Kind: Malformed, Err: errors.New("no choices in response")}
	}
	text := StripReasoning(resp.Choices[0].Content)
	if text == "" {
		return "", &BackendError{Worker: m.name, Kind: Malformed, Err: errors.New("empty response")}
	}
	return text, nil
}
