package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
)

// DefaultInitTimeout bounds adapter initialization. The agent process can
// block silently (for example on an external auth prompt), so connecting must
// fail loudly instead of hanging.
const DefaultInitTimeout = 30 * time.Second

// Normalizer turns one client's push-delivered raw events into a pull-based
// sequence of canonical events. One Normalizer exists per active session and
// is reused across turns so the underlying process keeps its conversational
// context.
type Normalizer struct {
	client      Client
	initTimeout time.Duration
	log         zerolog.Logger

	mu        sync.Mutex
	queue     []Event
	notify    chan struct{}
	connected bool
	tail      byte // last byte of the previous text chunk this turn, 0 if none
}

// NewNormalizer wraps a client. A non-positive initTimeout selects
// DefaultInitTimeout.
func NewNormalizer(client Client, initTimeout time.Duration) *Normalizer {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	return &Normalizer{
		client:      client,
		initTimeout: initTimeout,
		log:         logging.For("agent"),
		notify:      make(chan struct{}, 1),
	}
}

// Connect establishes the underlying connection, retrying transient failures
// within the initialization bound. It is idempotent.
func (n *Normalizer) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.connected {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, n.initTimeout)
	defer cancel()

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		return n.client.Connect(ctx, n.ingest)
	}, bo)
	if err != nil {
		return fmt.Errorf(
			"agent connection not ready within %s; the agent process may be blocked on an external prompt (e.g. authentication): %w",
			n.initTimeout, err)
	}

	n.mu.Lock()
	n.connected = true
	n.mu.Unlock()
	return nil
}

// StartTurn begins a new turn. Events still queued from a previous turn are
// discarded so an aborted turn leaves no residue.
func (n *Normalizer) StartTurn(ctx context.Context, prompt string) error {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return errors.New("agent not connected")
	}
	n.queue = nil
	n.tail = 0
	n.mu.Unlock()

	return n.client.Prompt(ctx, prompt)
}

// Next blocks until the next canonical event is available. The caller stops
// pulling once it observes KindTurnEnd or KindTurnError.
func (n *Normalizer) Next(ctx context.Context) (Event, error) {
	for {
		n.mu.Lock()
		if len(n.queue) > 0 {
			ev := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()
			return ev, nil
		}
		n.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-n.notify:
		}
	}
}

// Abort forwards an abort request to the client and returns once the agent
// acknowledges it. Events already in flight may still arrive afterwards.
func (n *Normalizer) Abort(ctx context.Context) error {
	return n.client.Abort(ctx)
}

// Close releases the underlying client.
func (n *Normalizer) Close() error {
	n.mu.Lock()
	n.connected = false
	n.mu.Unlock()
	return n.client.Close()
}

// ingest canonicalizes one raw event and appends it to the queue. It runs on
// the client's read loop.
func (n *Normalizer) ingest(raw RawEvent) {
	switch raw.Type {
	case RawThinking:
		n.push(Event{Kind: KindThinkingDelta, Content: raw.Content})
	case RawTextDelta:
		n.pushText(raw.Content)
	case RawText:
		// A final non-streamed block counts as a delta only when it carries
		// content; empty blocks would produce useless empty deltas.
		if raw.Content != "" {
			n.pushText(raw.Content)
		}
	case RawToolStart:
		n.push(Event{
			Kind:       KindToolCallStart,
			ToolCallID: raw.ID,
			ToolName:   raw.Name,
			Arguments:  raw.Arguments,
		})
	case RawToolResult:
		n.push(Event{Kind: KindToolCallResult, ToolCallID: raw.ID, Result: raw.Result})
	case RawTurnEnd:
		n.push(Event{Kind: KindTurnEnd})
	case RawError:
		n.push(Event{Kind: KindTurnError, Err: errors.New(raw.Error)})
	case RawReady, RawAbortAck:
		// Handshake and control acknowledgments are handled by the client.
	default:
		n.log.Debug().Str("type", raw.Type).Msg("skip unrecognized agent event")
	}
}

// pushText enqueues a text delta, inserting a paragraph separator when the
// chunk would otherwise merge with the previous one with no whitespace
// between them.
func (n *Normalizer) pushText(content string) {
	if content == "" {
		return
	}
	n.mu.Lock()
	if n.tail != 0 && !isSpace(n.tail) && !isSpace(content[0]) {
		content = "\n\n" + content
	}
	n.tail = content[len(content)-1]
	n.mu.Unlock()

	n.push(Event{Kind: KindTextDelta, Content: content})
}

func (n *Normalizer) push(ev Event) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	select {
	case n.notify <- struct{}{}:
	default:
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
