package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// Console asks a human on a terminal. It reads whole lines so it works the
// same with piped input.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a console reading from in and writing prompts to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer line.
func (c *Console) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(c.out, question)
	return c.readLine()
}

// Decide shows the document under review and reads a decision.
//
// Accepted answers: empty, "a" or "approve" to approve; "c <feedback>" or
// "changes <feedback>" to request changes.
func (c *Console) Decide(ctx context.Context, req orchestrator.ReviewRequest) (orchestrator.Decision, error) {
	fmt.Fprintf(c.out, "\n=== %s (%s, iteration %d) ===\n", req.Gate, req.Document, req.Iteration)
	fmt.Fprintln(c.out, req.Content)
	if req.Rejection != "" {
		fmt.Fprintf(c.out, "! %s\n", req.Rejection)
	}

	for {
		if err := ctx.Err(); err != nil {
			return orchestrator.Decision{}, err
		}
		fmt.Fprint(c.out, "[a]pprove or [c]hanges <feedback>: ")
		line, err := c.readLine()
		if err != nil {
			return orchestrator.Decision{}, err
		}
		verb, feedback, _ := strings.Cut(line, " ")
		d, err := ParseDecision(verb, strings.TrimSpace(feedback))
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			continue
		}
		return d, nil
	}
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", fmt.Errorf("review: read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
