// Package session implements the session registry: the owner of all active
// session state, the turn driver that pulls canonical events from the agent
// adapter into per-session accumulators, and the exactly-once finalization of
// each turn into durable storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/agent"
	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/gateway"
	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/workspace"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// ErrSessionNotFound is returned when an operation names a session that does
// not exist in durable storage.
var ErrSessionNotFound = errors.New("session not found")

// ClientFactory builds an agent client rooted at the given workspace
// directory. An empty directory means the session has no bound workspace.
type ClientFactory func(workspaceDir string) agent.Client

// Options configures a Registry.
type Options struct {
	// Clients builds the agent connection for each session. Required.
	Clients ClientFactory
	// InitTimeout bounds adapter initialization. Zero means the default.
	InitTimeout time.Duration
	// Titles summarizes conversations into session titles. Nil means the
	// built-in headline summarizer.
	Titles Summarizer
}

// Registry owns the set of active sessions. It is the sole creator and
// destroyer of activeSession state and the only component that mutates
// session lifecycle fields; accumulators only ever touch their own buffers.
// Constructed once by the entry point and passed by reference, never global.
type Registry struct {
	gateway     *gateway.Gateway
	bus         *event.Bus
	router      *workspace.Router
	clients     ClientFactory
	titles      Summarizer
	initTimeout time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	active map[string]*activeSession
	viewed string
}

// activeSession is the ephemeral per-session state. At most one exists per
// session id; it is created on first turn or lazy rehydration and destroyed
// on explicit stop. The adapter is created lazily and reused across turns so
// the underlying process keeps its conversational context.
type activeSession struct {
	sessionID    string
	workspaceDir string

	// turnMu serializes turns: no two turn drivers run concurrently for
	// the same session.
	turnMu sync.Mutex

	mu               sync.Mutex
	adapter          *agent.Normalizer
	currentMessageID string
	turnStarted      int64
	streaming        bool
	aborted          bool
	finalized        bool
	cancel           context.CancelFunc

	acc accumulator
}

func (s *activeSession) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// NewRegistry creates a session registry.
func NewRegistry(gw *gateway.Gateway, bus *event.Bus, router *workspace.Router, opts Options) *Registry {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = agent.DefaultInitTimeout
	}
	if opts.Titles == nil {
		opts.Titles = HeadlineSummarizer{}
	}
	return &Registry{
		gateway:     gw,
		bus:         bus,
		router:      router,
		clients:     opts.Clients,
		titles:      opts.Titles,
		initTimeout: opts.InitTimeout,
		log:         logging.For("session"),
		active:      make(map[string]*activeSession),
	}
}

// CreateSession creates a session under a caller-supplied id, resolves its
// workspace, persists the session row, and starts the first turn in the
// background. The returned session reflects the persisted row; first-turn
// failures surface through the turn-error event path, not here.
func (r *Registry) CreateSession(ctx context.Context, sessionID, workspaceHint, prompt string) (*types.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	r.mu.Lock()
	if _, exists := r.active[sessionID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}
	r.mu.Unlock()

	match := r.router.ResolveWithHint(ctx, workspaceHint, prompt)

	now := time.Now().UnixMilli()
	sess := &types.Session{
		ID:     sessionID,
		Title:  defaultTitle,
		Status: types.SessionActive,
		Time:   types.SessionTime{Created: now, Updated: now},
	}
	if match.Workspace != nil {
		sess.WorkspaceName = &match.Workspace.Name
		sess.WorkspacePath = &match.Workspace.Path
	}
	if err := r.gateway.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	r.bus.Publish(event.Event{
		Type:       event.SessionCreated,
		SessionID:  sess.ID,
		Properties: event.SessionData{Session: sess},
	})

	state := r.register(sess)

	userMsg := &types.Message{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		Role:      "user",
		Content:   match.EffectivePrompt,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := r.gateway.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	go r.runTurn(state, match.EffectivePrompt)
	return sess, nil
}

// SendMessage appends a user message to an existing session and starts a new
// turn. Sessions with no in-memory state (after a restart) are rehydrated
// from durable storage; a session missing from storage fails with
// ErrSessionNotFound. The user message is durable before this returns.
func (r *Registry) SendMessage(ctx context.Context, sessionID, content string) (*types.Message, error) {
	state, sess, err := r.ensureActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	userMsg := &types.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Role:      "user",
		Content:   content,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := r.gateway.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	sess.Status = types.SessionActive
	sess.Time.Updated = time.Now().UnixMilli()
	if err := r.gateway.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	r.bus.Publish(event.Event{
		Type:       event.SessionUpdated,
		SessionID:  sessionID,
		Properties: event.SessionData{Session: sess},
	})

	go r.runTurn(state, content)
	return userMsg, nil
}

// AbortSession flags the session's in-flight turn as aborted and signals the
// adapter. The call returns once the adapter acknowledges the abort; the
// underlying process may keep emitting events, which the turn driver now
// ignores. A session with no active turn is a no-op.
func (r *Registry) AbortSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	state := r.active[sessionID]
	r.mu.Unlock()
	if state == nil {
		return nil
	}

	state.mu.Lock()
	if !state.streaming {
		state.mu.Unlock()
		return nil
	}
	state.aborted = true
	adapter := state.adapter
	cancelTurn := state.cancel
	state.mu.Unlock()

	r.log.Info().Str("session", sessionID).Msg("aborting turn")
	// Cancelling the turn context unblocks a driver waiting on the next
	// event; an agent that goes silent after acknowledging the abort would
	// otherwise leave the turn held open forever.
	if cancelTurn != nil {
		cancelTurn()
	}
	if adapter == nil {
		return nil
	}
	return adapter.Abort(ctx)
}

// StopSession releases the session's adapter and discards its in-memory
// state. The durable session row is untouched.
func (r *Registry) StopSession(sessionID string) {
	r.mu.Lock()
	state := r.active[sessionID]
	delete(r.active, sessionID)
	r.mu.Unlock()
	if state == nil {
		return
	}

	state.mu.Lock()
	state.aborted = true
	if state.cancel != nil {
		state.cancel()
	}
	adapter := state.adapter
	state.adapter = nil
	state.mu.Unlock()

	if adapter != nil {
		if err := adapter.Close(); err != nil {
			r.log.Warn().Err(err).Str("session", sessionID).Msg("close adapter")
		}
	}
}

// StopAll stops every active session. Must run before process exit so agent
// subprocesses are not leaked.
func (r *Registry) StopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.StopSession(id)
	}
}

// SetViewedSession records which session the caller currently has in view.
// Completed turns on the viewed session do not mark it unread. An empty id
// means no session is in view.
func (r *Registry) SetViewedSession(sessionID string) {
	r.mu.Lock()
	r.viewed = sessionID
	r.mu.Unlock()
}

func (r *Registry) viewedSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewed
}

// register creates the activeSession for a session row. The caller must have
// checked that none exists yet; if one appeared concurrently it wins.
func (r *Registry) register(sess *types.Session) *activeSession {
	state := &activeSession{sessionID: sess.ID}
	if sess.WorkspacePath != nil {
		state.workspaceDir = *sess.WorkspacePath
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.active[sess.ID]; ok {
		return existing
	}
	r.active[sess.ID] = state
	return state
}

// ensureActive returns the session's active state, lazily rehydrating it from
// durable storage after a restart.
func (r *Registry) ensureActive(ctx context.Context, sessionID string) (*activeSession, *types.Session, error) {
	sess, err := r.gateway.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, nil, err
	}

	r.mu.Lock()
	state, ok := r.active[sessionID]
	r.mu.Unlock()
	if ok {
		return state, sess, nil
	}

	r.log.Debug().Str("session", sessionID).Msg("rehydrating session state")
	return r.register(sess), sess, nil
}
