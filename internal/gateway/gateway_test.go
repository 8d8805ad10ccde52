package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck-ai/agentdeck/internal/storage"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	return New(storage.New(t.TempDir()))
}

func strptr(s string) *string { return &s }

func TestSessionLifecycle(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	session := &types.Session{
		ID:     "sess-1",
		Title:  "New Session",
		Status: types.SessionActive,
		Time:   types.SessionTime{Created: time.Now().UnixMilli(), Updated: time.Now().UnixMilli()},
	}
	require.NoError(t, g.CreateSession(ctx, session))

	got, err := g.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "New Session", got.Title)

	got.Title = "Fixing the build"
	before := got.Time.Updated
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, g.UpdateSession(ctx, got))

	got, err = g.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Fixing the build", got.Title)
	assert.Greater(t, got.Time.Updated, before)

	require.NoError(t, g.DeleteSession(ctx, "sess-1"))
	_, err = g.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSessionMissing(t *testing.T) {
	g := newGateway(t)
	_, err := g.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMessagesReturnsCreationOrder(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id := ulid.Make().String()
		ids = append(ids, id)
		require.NoError(t, g.AppendMessage(ctx, &types.Message{
			ID:        id,
			SessionID: "sess-1",
			Role:      "user",
			Content:   "msg",
			Time:      types.MessageTime{Created: time.Now().UnixMilli()},
		}))
		time.Sleep(2 * time.Millisecond) // distinct ULID timestamps
	}

	messages, err := g.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, msg := range messages {
		assert.Equal(t, ids[i], msg.ID)
	}
}

func TestUpdateMessageSetsUpdatedTime(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	msg := &types.Message{
		ID:        ulid.Make().String(),
		SessionID: "sess-1",
		Role:      "assistant",
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	require.NoError(t, g.AppendMessage(ctx, msg))
	assert.Nil(t, msg.Time.Updated)

	msg.Content = "done"
	require.NoError(t, g.UpdateMessage(ctx, msg))

	messages, err := g.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "done", messages[0].Content)
	require.NotNil(t, messages[0].Time.Updated)
}

func TestFileSnapshotRoundTripWithNestedPath(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	change := types.FileChange{
		Path:       "src/app/main.go",
		Type:       types.FileModified,
		OldContent: strptr("package main\n"),
		NewContent: strptr("package main\n\nfunc main() {}\n"),
	}
	require.NoError(t, g.SaveFileSnapshot(ctx, "sess-1", "msg-1", change))

	got, err := g.GetFileSnapshot(ctx, "sess-1", "msg-1", "src/app/main.go")
	require.NoError(t, err)
	assert.Equal(t, change, *got)

	// A different path under the same message is a distinct snapshot.
	_, err = g.GetFileSnapshot(ctx, "sess-1", "msg-1", "src/app/other.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileDiffForCreatedFile(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	require.NoError(t, g.SaveFileSnapshot(ctx, "s", "m", types.FileChange{
		Path:       "hello.txt",
		Type:       types.FileCreated,
		NewContent: strptr("hello world\n"),
	}))

	diff, err := g.FileDiff(ctx, "s", "m", "hello.txt")
	require.NoError(t, err)
	assert.Contains(t, diff, "hello world")
}
