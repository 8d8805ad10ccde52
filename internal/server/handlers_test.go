package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck-ai/agentdeck/internal/agent"
	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/gateway"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
	"github.com/agentdeck-ai/agentdeck/internal/workspace"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// echoClient completes every prompt with a single canned text delta.
type echoClient struct {
	mu      sync.Mutex
	onEvent func(agent.RawEvent)
}

func (c *echoClient) Connect(ctx context.Context, onEvent func(agent.RawEvent)) error {
	c.mu.Lock()
	c.onEvent = onEvent
	c.mu.Unlock()
	return nil
}

func (c *echoClient) Prompt(ctx context.Context, text string) error {
	c.mu.Lock()
	onEvent := c.onEvent
	c.mu.Unlock()
	go func() {
		onEvent(agent.RawEvent{Type: agent.RawTextDelta, Content: "echo: " + text})
		onEvent(agent.RawEvent{Type: agent.RawTurnEnd})
	}()
	return nil
}

func (c *echoClient) Abort(ctx context.Context) error { return nil }
func (c *echoClient) Close() error                    { return nil }

type serverFixture struct {
	srv     *Server
	ts      *httptest.Server
	gateway *gateway.Gateway
	bus     *event.Bus
	root    string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	store := storage.New(t.TempDir())
	gw := gateway.New(store)
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	root := t.TempDir()
	svc, err := workspace.NewService(root, 0)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	matcher := workspace.NewRouter(svc, nil)

	registry := session.NewRegistry(gw, bus, matcher, session.Options{
		Clients: func(dir string) agent.Client { return &echoClient{} },
	})
	t.Cleanup(registry.StopAll)

	srv := New(DefaultConfig(), registry, gw, svc, matcher, bus)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &serverFixture{srv: srv, ts: ts, gateway: gw, bus: bus, root: root}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateSessionEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/session", CreateSessionRequest{
		SessionID: "sess-1",
		Prompt:    "build a parser",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sess := decode[types.Session](t, resp)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, types.SessionActive, sess.Status)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/session", CreateSessionRequest{Prompt: "no id"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/session", CreateSessionRequest{SessionID: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateSessionDuplicateConflicts(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/session", CreateSessionRequest{SessionID: "dup", Prompt: "one"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/session", CreateSessionRequest{SessionID: "dup", Prompt: "two"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSendMessageUnknownSessionReturns404(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/session/ghost/message", SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestArchiveToggleIsOrthogonalToStatus(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.gateway.CreateSession(ctx, &types.Session{
		ID: "sess-1", Title: "Some work", Status: types.SessionCompleted,
	}))

	resp := f.do(t, http.MethodPatch, "/session/sess-1", map[string]any{"archived": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[types.Session](t, resp)
	assert.True(t, sess.Archived)
	assert.Equal(t, types.SessionCompleted, sess.Status)

	resp = f.do(t, http.MethodPatch, "/session/sess-1", map[string]any{"archived": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess = decode[types.Session](t, resp)
	assert.False(t, sess.Archived)
	assert.Equal(t, types.SessionCompleted, sess.Status)
}

func TestDeleteSessionCascades(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.gateway.CreateSession(ctx, &types.Session{ID: "sess-1", Title: "t"}))
	require.NoError(t, f.gateway.AppendMessage(ctx, &types.Message{
		ID: "01", SessionID: "sess-1", Role: "user", Content: "hello",
	}))

	resp := f.do(t, http.MethodDelete, "/session/sess-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/session/sess-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	messages, err := f.gateway.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestListMessagesReturnsArray(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.gateway.CreateSession(ctx, &types.Session{ID: "sess-1", Title: "t"}))

	resp := f.do(t, http.MethodGet, "/session/sess-1/message", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := decode[[]types.Message](t, resp)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestMatchWorkspaceEndpoint(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.root, "billing"), 0o755))

	resp := f.do(t, http.MethodPost, "/workspace/match", MatchWorkspaceRequest{
		Prompt: "@billing fix the invoice rounding",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	match := decode[MatchWorkspaceResponse](t, resp)
	require.NotNil(t, match.Workspace)
	assert.Equal(t, "billing", match.Workspace.Name)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, "fix the invoice rounding", match.EffectivePrompt)
}

func TestMatchWorkspaceNoMatchIsNull(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/workspace/match", MatchWorkspaceRequest{
		Prompt: "something entirely unrelated",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	match := decode[MatchWorkspaceResponse](t, resp)
	assert.Nil(t, match.Workspace)
	assert.Equal(t, 0.0, match.Confidence)
}

func TestWorkspaceListAndCreate(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/workspace", CreateWorkspaceRequest{Name: "fresh"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ws := decode[types.Workspace](t, resp)
	assert.Equal(t, "fresh", ws.Name)

	resp = f.do(t, http.MethodGet, "/workspace", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]types.Workspace](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].Name)
}

func TestEventStreamDeliversBusEvents(t *testing.T) {
	f := newServerFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL+"/event", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	lines := make(chan string, 16)
	go func() {
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitLine := func(substr string) string {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", substr)
				}
				if strings.Contains(line, substr) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", substr)
			}
		}
	}

	waitLine("server-connected")

	f.bus.Publish(event.Event{
		Type:       event.TitleUpdated,
		SessionID:  "sess-1",
		Properties: event.TitleUpdatedData{Title: "New title"},
	})

	line := waitLine("title-updated")
	assert.True(t, strings.HasPrefix(line, "data: "), "got %q", line)
	assert.Contains(t, line, "New title")
}

func TestEventStreamSessionFilter(t *testing.T) {
	f := newServerFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/event?sessionID=%s", f.ts.URL, "mine"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	lines := make(chan string, 16)
	go func() {
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Wait for the hello frame, then publish to another session and to ours.
	for line := range lines {
		if strings.Contains(line, "server-connected") {
			break
		}
	}

	f.bus.Publish(event.Event{Type: event.TextDelta, SessionID: "other", Properties: event.DeltaData{Content: "not for us"}})
	f.bus.Publish(event.Event{Type: event.TextDelta, SessionID: "mine", Properties: event.DeltaData{Content: "for us"}})

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed early")
			}
			if strings.Contains(line, "text-delta") {
				assert.Contains(t, line, "for us")
				assert.NotContains(t, line, "not for us")
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for filtered event")
		}
	}
}
