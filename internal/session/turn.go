package session

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdeck-ai/agentdeck/internal/agent"
	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// runTurn drives one turn for a session: ensure the adapter is connected,
// reset the accumulator, persist the placeholder assistant message, then pull
// canonical events until turn end. It runs in its own goroutine; turnMu keeps
// turns on the same session strictly sequential.
func (r *Registry) runTurn(state *activeSession, prompt string) {
	state.turnMu.Lock()
	defer state.turnMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state.mu.Lock()
	state.cancel = cancel
	state.aborted = false
	state.finalized = false
	state.streaming = true
	state.currentMessageID = ulid.Make().String()
	state.turnStarted = time.Now().UnixMilli()
	state.acc.reset()
	messageID := state.currentMessageID
	created := state.turnStarted
	state.mu.Unlock()

	defer func() {
		state.mu.Lock()
		state.streaming = false
		state.cancel = nil
		state.mu.Unlock()
	}()

	placeholder := &types.Message{
		ID:        messageID,
		SessionID: state.sessionID,
		Role:      "assistant",
		Time:      types.MessageTime{Created: created},
	}
	if err := r.gateway.AppendMessage(ctx, placeholder); err != nil {
		r.markTurnError(ctx, state, err)
		return
	}

	adapter, err := r.ensureAdapter(ctx, state)
	if err != nil {
		r.markTurnError(ctx, state, err)
		return
	}

	if err := adapter.StartTurn(ctx, prompt); err != nil {
		r.markTurnError(ctx, state, err)
		return
	}

	for {
		ev, err := adapter.Next(ctx)
		if err != nil {
			if !state.isAborted() {
				r.markTurnError(ctx, state, err)
			}
			return
		}
		if state.isAborted() {
			// The abort path owns final state; queued events for this
			// turn are dropped unprocessed.
			r.log.Debug().Str("session", state.sessionID).Msg("dropping event after abort")
			return
		}

		switch ev.Kind {
		case agent.KindThinkingDelta:
			state.acc.appendThinking(ev.Content)
			r.publish(state.sessionID, event.ThinkingDelta, event.DeltaData{Content: ev.Content})

		case agent.KindTextDelta:
			state.acc.appendContent(ev.Content)
			r.publish(state.sessionID, event.TextDelta, event.DeltaData{Content: ev.Content})

		case agent.KindToolCallStart:
			state.acc.startToolCall(ev.ToolCallID, ev.ToolName, ev.Arguments)
			r.publish(state.sessionID, event.ToolCallStart, event.ToolCallStartData{
				ID:        ev.ToolCallID,
				Name:      ev.ToolName,
				Arguments: ev.Arguments,
			})

		case agent.KindToolCallResult:
			call := state.acc.completeToolCall(ev.ToolCallID, ev.Result)
			if call != nil {
				if change, ok := inferFileChange(call.Name, call.Arguments); ok {
					state.acc.addFileChange(change)
				}
			}
			r.publish(state.sessionID, event.ToolCallResult, event.ToolCallResultData{
				ToolCallID: ev.ToolCallID,
				Result:     ev.Result,
			})

		case agent.KindTurnEnd:
			r.finalizeTurn(ctx, state)
			return

		case agent.KindTurnError:
			r.markTurnError(ctx, state, ev.Err)
			return
		}
	}
}

// ensureAdapter returns the session's adapter, creating and connecting it on
// first use. The adapter survives across turns so the agent process keeps its
// conversational context.
func (r *Registry) ensureAdapter(ctx context.Context, state *activeSession) (*agent.Normalizer, error) {
	state.mu.Lock()
	adapter := state.adapter
	state.mu.Unlock()
	if adapter != nil {
		return adapter, nil
	}

	adapter = agent.NewNormalizer(r.clients(state.workspaceDir), r.initTimeout)
	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}

	state.mu.Lock()
	state.adapter = adapter
	state.mu.Unlock()
	return adapter, nil
}

// finalizeTurn writes the accumulator to the placeholder message in a single
// update, persists one snapshot per file change, touches the session row, and
// emits turn-done. It runs exactly once per turn: the finalized flag guards
// re-entry and an aborted turn makes it a no-op.
func (r *Registry) finalizeTurn(ctx context.Context, state *activeSession) {
	state.mu.Lock()
	if state.aborted || state.finalized {
		state.mu.Unlock()
		return
	}
	state.finalized = true
	messageID := state.currentMessageID
	created := state.turnStarted
	state.mu.Unlock()

	thinking, content, toolCalls, fileChanges := state.acc.snapshot()

	msg := &types.Message{
		ID:          messageID,
		SessionID:   state.sessionID,
		Role:        "assistant",
		Content:     content,
		Thinking:    thinking,
		ToolCalls:   toolCalls,
		FileChanges: fileChanges,
		Time:        types.MessageTime{Created: created},
	}
	if err := r.gateway.UpdateMessage(ctx, msg); err != nil {
		r.markTurnError(ctx, state, err)
		return
	}

	for _, change := range fileChanges {
		if err := r.gateway.SaveFileSnapshot(ctx, state.sessionID, messageID, change); err != nil {
			r.log.Warn().Err(err).Str("path", change.Path).Msg("persist file snapshot")
		}
	}

	sess, err := r.gateway.GetSession(ctx, state.sessionID)
	if err != nil {
		r.log.Error().Err(err).Str("session", state.sessionID).Msg("load session for finalization")
		return
	}
	sess.Status = types.SessionCompleted
	sess.Time.Updated = time.Now().UnixMilli()
	if r.viewedSession() != state.sessionID {
		sess.HasUnread = true
	}
	if err := r.gateway.UpdateSession(ctx, sess); err != nil {
		r.log.Error().Err(err).Str("session", state.sessionID).Msg("touch session after turn")
	}

	r.publish(state.sessionID, event.TurnDone, event.TurnDoneData{
		MessageID:   messageID,
		Thinking:    thinking,
		Content:     content,
		ToolCalls:   toolCalls,
		FileChanges: fileChanges,
	})
	r.publish(state.sessionID, event.SessionUpdated, event.SessionData{Session: sess})

	// Title summarization is part of finalization, after the message is
	// durable. Failures keep the previous title.
	r.maybeUpdateTitle(ctx, sess)
}

// markTurnError marks the session errored and emits turn-error. Content
// accumulated during the failed turn is deliberately not persisted; the
// placeholder assistant message stays empty.
func (r *Registry) markTurnError(ctx context.Context, state *activeSession, turnErr error) {
	r.log.Error().Err(turnErr).Str("session", state.sessionID).Msg("turn failed")

	r.publish(state.sessionID, event.TurnError, event.TurnErrorData{Error: turnErr.Error()})

	sess, err := r.gateway.GetSession(ctx, state.sessionID)
	if err != nil {
		r.log.Error().Err(err).Str("session", state.sessionID).Msg("load session for error marking")
		return
	}
	sess.Status = types.SessionError
	sess.Time.Updated = time.Now().UnixMilli()
	if err := r.gateway.UpdateSession(ctx, sess); err != nil {
		r.log.Error().Err(err).Str("session", state.sessionID).Msg("persist error status")
		return
	}
	r.publish(state.sessionID, event.SessionUpdated, event.SessionData{Session: sess})
}

func (r *Registry) publish(sessionID string, typ event.Type, payload any) {
	r.bus.Publish(event.Event{Type: typ, SessionID: sessionID, Properties: payload})
}
