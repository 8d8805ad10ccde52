// Package gateway provides the durable persistence operations for sessions,
// messages, and file-change snapshots on top of the JSON storage layer.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/agentdeck-ai/agentdeck/internal/storage"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// ErrNotFound mirrors the storage sentinel for callers that don't want to
// import storage directly.
var ErrNotFound = storage.ErrNotFound

// Gateway performs keyed reads and writes against durable storage.
//
// Key layout:
//
//	session/<sessionID>
//	message/<sessionID>/<messageID>
//	snapshot/<sessionID>/<messageID>/<escaped path>
type Gateway struct {
	store *storage.Storage
}

// New creates a Gateway over the given store.
func New(store *storage.Storage) *Gateway {
	return &Gateway{store: store}
}

// CreateSession persists a new session row.
func (g *Gateway) CreateSession(ctx context.Context, session *types.Session) error {
	if err := g.store.Put(ctx, []string{"session", session.ID}, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (g *Gateway) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	if err := g.store.Get(ctx, []string{"session", sessionID}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns all sessions.
func (g *Gateway) ListSessions(ctx context.Context) ([]*types.Session, error) {
	var sessions []*types.Session
	err := g.store.Scan(ctx, []string{"session"}, func(key string, data json.RawMessage) error {
		var session types.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		sessions = append(sessions, &session)
		return nil
	})
	return sessions, err
}

// UpdateSession rewrites a session row and touches its updated time.
func (g *Gateway) UpdateSession(ctx context.Context, session *types.Session) error {
	session.Time.Updated = time.Now().UnixMilli()
	if err := g.store.Put(ctx, []string{"session", session.ID}, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// DeleteSession removes a session with its messages and snapshots.
func (g *Gateway) DeleteSession(ctx context.Context, sessionID string) error {
	if err := g.store.Delete(ctx, []string{"session", sessionID}); err != nil {
		return err
	}
	if err := g.store.DeleteAll(ctx, []string{"message", sessionID}); err != nil {
		return err
	}
	return g.store.DeleteAll(ctx, []string{"snapshot", sessionID})
}

// AppendMessage persists a new message row.
func (g *Gateway) AppendMessage(ctx context.Context, msg *types.Message) error {
	if err := g.store.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// UpdateMessage rewrites an existing message row and touches its updated time.
func (g *Gateway) UpdateMessage(ctx context.Context, msg *types.Message) error {
	now := time.Now().UnixMilli()
	msg.Time.Updated = &now
	if err := g.store.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in creation order. Message ids
// are ULIDs, so lexical scan order is creation order.
func (g *Gateway) ListMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := g.store.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// SaveFileSnapshot persists one file change keyed by (session, message, path)
// so a point-in-time diff can be reconstructed later.
func (g *Gateway) SaveFileSnapshot(ctx context.Context, sessionID, messageID string, change types.FileChange) error {
	key := []string{"snapshot", sessionID, messageID, escapePath(change.Path)}
	if err := g.store.Put(ctx, key, change); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetFileSnapshot loads the file change recorded for (session, message, path).
func (g *Gateway) GetFileSnapshot(ctx context.Context, sessionID, messageID, path string) (*types.FileChange, error) {
	var change types.FileChange
	key := []string{"snapshot", sessionID, messageID, escapePath(path)}
	if err := g.store.Get(ctx, key, &change); err != nil {
		return nil, err
	}
	return &change, nil
}

// FileDiff reconstructs a text diff for a snapshot. Created files diff from
// empty, deleted files diff to empty.
func (g *Gateway) FileDiff(ctx context.Context, sessionID, messageID, path string) (string, error) {
	change, err := g.GetFileSnapshot(ctx, sessionID, messageID, path)
	if err != nil {
		return "", err
	}

	var before, after string
	if change.OldContent != nil {
		before = *change.OldContent
	}
	if change.NewContent != nil {
		after = *change.NewContent
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs), nil
}

// escapePath flattens a file path into a single storage key segment.
func escapePath(path string) string {
	return url.PathEscape(path)
}
