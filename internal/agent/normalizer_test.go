package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a scriptable in-memory client.
type fakeClient struct {
	mu          sync.Mutex
	onEvent     func(RawEvent)
	connectErr  error
	connectHang bool
	prompts     []string
	aborted     int
	closed      bool
}

func (f *fakeClient) Connect(ctx context.Context, onEvent func(RawEvent)) error {
	if f.connectHang {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.onEvent = onEvent
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Prompt(ctx context.Context, text string) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Abort(ctx context.Context) error {
	f.mu.Lock()
	f.aborted++
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) emit(raw RawEvent) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	fn(raw)
}

func connected(t *testing.T, client *fakeClient) *Normalizer {
	t.Helper()
	n := NewNormalizer(client, time.Second)
	require.NoError(t, n.Connect(context.Background()))
	return n
}

func next(t *testing.T, n *Normalizer) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := n.Next(ctx)
	require.NoError(t, err)
	return ev
}

func TestCanonicalizationOfEachRawKind(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.StartTurn(context.Background(), "go"))

	client.emit(RawEvent{Type: RawThinking, Content: "hmm"})
	client.emit(RawEvent{Type: RawToolStart, ID: "t1", Name: "write_file", Arguments: map[string]any{"path": "a.go"}})
	client.emit(RawEvent{Type: RawToolResult, ID: "t1", Result: "ok"})
	client.emit(RawEvent{Type: RawTextDelta, Content: "done"})
	client.emit(RawEvent{Type: RawTurnEnd})

	ev := next(t, n)
	assert.Equal(t, KindThinkingDelta, ev.Kind)
	assert.Equal(t, "hmm", ev.Content)

	ev = next(t, n)
	assert.Equal(t, KindToolCallStart, ev.Kind)
	assert.Equal(t, "t1", ev.ToolCallID)
	assert.Equal(t, "write_file", ev.ToolName)
	assert.Equal(t, map[string]any{"path": "a.go"}, ev.Arguments)

	ev = next(t, n)
	assert.Equal(t, KindToolCallResult, ev.Kind)
	assert.Equal(t, "ok", ev.Result)

	assert.Equal(t, KindTextDelta, next(t, n).Kind)
	assert.Equal(t, KindTurnEnd, next(t, n).Kind)
}

func TestEmptyFinalTextIsDropped(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.StartTurn(context.Background(), "go"))

	client.emit(RawEvent{Type: RawText, Content: ""})
	client.emit(RawEvent{Type: RawTurnEnd})

	assert.Equal(t, KindTurnEnd, next(t, n).Kind)
}

func TestParagraphSeparatorBetweenAdjacentChunks(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.StartTurn(context.Background(), "go"))

	client.emit(RawEvent{Type: RawTextDelta, Content: "First paragraph."})
	client.emit(RawEvent{Type: RawTextDelta, Content: "Second paragraph."})

	assert.Equal(t, "First paragraph.", next(t, n).Content)
	assert.Equal(t, "\n\nSecond paragraph.", next(t, n).Content)
}

func TestNoSeparatorWhenWhitespaceAlreadyPresent(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.StartTurn(context.Background(), "go"))

	client.emit(RawEvent{Type: RawTextDelta, Content: "Ends with newline\n"})
	client.emit(RawEvent{Type: RawTextDelta, Content: "follows it"})
	client.emit(RawEvent{Type: RawTextDelta, Content: " leading space"})

	assert.Equal(t, "Ends with newline\n", next(t, n).Content)
	assert.Equal(t, "follows it", next(t, n).Content)
	assert.Equal(t, " leading space", next(t, n).Content)
}

func TestSeparatorStateResetsPerTurn(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)

	require.NoError(t, n.StartTurn(context.Background(), "one"))
	client.emit(RawEvent{Type: RawTextDelta, Content: "tail."})
	assert.Equal(t, "tail.", next(t, n).Content)

	require.NoError(t, n.StartTurn(context.Background(), "two"))
	client.emit(RawEvent{Type: RawTextDelta, Content: "fresh"})
	assert.Equal(t, "fresh", next(t, n).Content)
}

func TestNextBlocksUntilEventArrives(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.StartTurn(context.Background(), "go"))

	got := make(chan Event, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ev, err := n.Next(ctx)
		if err == nil {
			got <- ev
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any event was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	client.emit(RawEvent{Type: RawTextDelta, Content: "now"})

	select {
	case ev := <-got:
		assert.Equal(t, "now", ev.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestStartTurnDiscardsStaleEvents(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)

	require.NoError(t, n.StartTurn(context.Background(), "one"))
	client.emit(RawEvent{Type: RawTextDelta, Content: "stale"})

	require.NoError(t, n.StartTurn(context.Background(), "two"))
	client.emit(RawEvent{Type: RawTurnEnd})

	assert.Equal(t, KindTurnEnd, next(t, n).Kind)
}

func TestRawErrorBecomesTurnError(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.StartTurn(context.Background(), "go"))

	client.emit(RawEvent{Type: RawError, Error: "process crashed"})

	ev := next(t, n)
	assert.Equal(t, KindTurnError, ev.Kind)
	assert.EqualError(t, ev.Err, "process crashed")
}

func TestConnectTimesOutWithActionableError(t *testing.T) {
	n := NewNormalizer(&fakeClient{connectHang: true}, 100*time.Millisecond)

	err := n.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready within")
	assert.Contains(t, err.Error(), "authentication")
}

func TestConnectIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)
	require.NoError(t, n.Connect(context.Background()))
}

func TestStartTurnRequiresConnection(t *testing.T) {
	n := NewNormalizer(&fakeClient{}, time.Second)
	err := n.StartTurn(context.Background(), "go")
	assert.Error(t, err)
}

func TestAbortDelegatesToClient(t *testing.T) {
	client := &fakeClient{}
	n := connected(t, client)

	require.NoError(t, n.Abort(context.Background()))
	assert.Equal(t, 1, client.aborted)
}

func TestConnectRetriesTransientFailures(t *testing.T) {
	client := &failingThenOKClient{failures: 2}
	n := NewNormalizer(client, 5*time.Second)

	require.NoError(t, n.Connect(context.Background()))
	assert.GreaterOrEqual(t, client.attempts, 3)
}

type failingThenOKClient struct {
	fakeClient
	failures int
	attempts int
}

func (f *failingThenOKClient) Connect(ctx context.Context, onEvent func(RawEvent)) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("transient")
	}
	return f.fakeClient.Connect(ctx, onEvent)
}
