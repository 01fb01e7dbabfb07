package review

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

func request(id string) orchestrator.ReviewRequest {
	return orchestrator.ReviewRequest{
		ID:        id,
		RunID:     "run-1",
		Gate:      "plan_review",
		Document:  orchestrator.DocPlan,
		Content:   "# Plan\n- subtask",
		Iteration: 1,
		CreatedAt: time.Now(),
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		verb     string
		feedback string
		want     orchestrator.Decision
		wantErr  bool
	}{
		{verb: "", want: orchestrator.Approve()},
		{verb: "A", want: orchestrator.Approve()},
		{verb: "approve", want: orchestrator.Approve()},
		{verb: "c", feedback: "add auth", want: orchestrator.RequestChanges("add auth")},
		{verb: "changes", feedback: "", want: orchestrator.RequestChanges("")},
		{verb: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.verb, func(t *testing.T) {
			got, err := ParseDecision(tt.verb, tt.feedback)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutoApprove(t *testing.T) {
	d, err := AutoApprove{}.Decide(context.Background(), request("r1"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DecisionApprove, d.Kind)
}

func TestScripted(t *testing.T) {
	s := NewScripted(orchestrator.RequestChanges("more"), orchestrator.Approve())

	d, err := s.Decide(context.Background(), request("r1"))
	require.NoError(t, err)
	assert.Equal(t, "more", d.Feedback)

	d, err = s.Decide(context.Background(), request("r2"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DecisionApprove, d.Kind)

	_, err = s.Decide(context.Background(), request("r3"))
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, s.Requests(), 3)
}

func TestBroker_ResolveUnblocksDecide(t *testing.T) {
	b := NewBroker()
	type result struct {
		d   orchestrator.Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := b.Decide(context.Background(), request("r1"))
		done <- result{d, err}
	}()

	p := <-b.Pending()
	assert.Equal(t, "r1", p.Request.ID)
	require.Len(t, b.List(), 1)

	require.NoError(t, b.Resolve("r1", orchestrator.RequestChanges("fix X")))
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "fix X", r.d.Feedback)
	assert.Empty(t, b.List())
}

func TestBroker_ResolveUnknown(t *testing.T) {
	err := NewBroker().Resolve("nope", orchestrator.Approve())
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestBroker_ResolveTwice(t *testing.T) {
	b := NewBroker()
	go func() { _, _ = b.Decide(context.Background(), request("r1")) }()
	<-b.Pending()

	require.NoError(t, b.Resolve("r1", orchestrator.Approve()))
	assert.ErrorIs(t, b.Resolve("r1", orchestrator.Approve()), ErrUnknownRequest)
}

func TestBroker_ContextCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := b.Decide(ctx, request("r1"))
		errc <- err
	}()
	<-b.Pending()
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Empty(t, b.List())
}

func TestBroker_DrivesGate(t *testing.T) {
	b := NewBroker()
	gate := orchestrator.NewGate("plan_review", orchestrator.DocPlan, b)
	state := orchestrator.NewRunState("todo", "/out")

	go func() {
		p := <-b.Pending()
		_ = b.Resolve(p.Request.ID, orchestrator.RequestChanges(""))
		p = <-b.Pending()
		_ = b.Resolve(p.Request.ID, orchestrator.RequestChanges("split milestone 2"))
	}()

	u, err := gate.Review(context.Background(), state.Snapshot())
	require.NoError(t, err)
	require.NoError(t, state.Apply(u))
	assert.True(t, state.NeedsRevision)
	assert.Equal(t, "split milestone 2", state.PendingFeedback)
}

func TestConsole_Decide(t *testing.T) {
	in := strings.NewReader("huh\nc  add a login page \n")
	var out bytes.Buffer
	c := NewConsole(in, &out)

	d, err := c.Decide(context.Background(), request("r1"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RequestChanges("add a login page"), d)
	assert.Contains(t, out.String(), "# Plan")
	assert.Contains(t, out.String(), `unrecognized decision "huh"`)
}

func TestConsole_ApproveOnEmptyLineAndRejection(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("\n"), &out)
	req := request("r1")
	req.Rejection = "a change request must include feedback"

	d, err := c.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DecisionApprove, d.Kind)
	assert.Contains(t, out.String(), "must include feedback")
}

func TestConsole_EOF(t *testing.T) {
	c := NewConsole(strings.NewReader(""), &bytes.Buffer{})
	_, err := c.Decide(context.Background(), request("r1"))
	assert.Error(t, err)
}

func TestConsole_Ask(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("build a todo app\n/tmp/out"), &out)

	req, err := c.Ask(context.Background(), "Request: ")
	require.NoError(t, err)
	assert.Equal(t, "build a todo app", req)

	dir, err := c.Ask(context.Background(), "Output directory: ")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", dir)
	assert.Equal(t, "Request: Output directory: ", out.String())
}

func TestInbox_DecisionFile(t *testing.T) {
	dir := t.TempDir()
	inbox := NewInbox(dir, nil)
	req := request("r1")

	type result struct {
		d   orchestrator.Decision
		err error
	}
	done := make(chan result, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		d, err := inbox.Decide(ctx, req)
		done <- result{d, err}
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(inbox.RequestPath("r1"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	body, err := os.ReadFile(inbox.RequestPath("r1"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "# Plan")

	require.NoError(t, os.WriteFile(inbox.DecisionPath("r1"), []byte("decision: changes\nfeedback: use postgres\n"), 0o644))

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, orchestrator.RequestChanges("use postgres"), r.d)
	_, err = os.Stat(inbox.RequestPath("r1"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInbox_DecisionAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	inbox := NewInbox(dir, nil)
	require.NoError(t, os.WriteFile(inbox.DecisionPath("r1"), []byte("decision: approve\n"), 0o644))

	d, err := inbox.Decide(context.Background(), request("r1"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DecisionApprove, d.Kind)
}

func TestInbox_ContextCancel(t *testing.T) {
	inbox := NewInbox(t.TempDir(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inbox.Decide(ctx, request("r1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
