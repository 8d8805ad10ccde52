package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/gateway"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

const defaultTitle = "New Session"

// TitleMaxLength is the hard cap on generated titles.
const TitleMaxLength = 50

// titleMessageInterval re-runs automatic summarization every Nth message
// after the first completed turn.
const titleMessageInterval = 10

// Context windows for the automatic and the manual regeneration paths. The
// manual path gets more messages and longer excerpts.
const (
	autoTitleMessages       = 4
	autoTitleExcerptLen     = 240
	regenerateTitleMessages = 12
	regenerateTitleExcerpt  = 600
)

// Summarizer derives a short session title from a slice of messages. The
// result must fit maxLen; implementations exceeding it are truncated anyway.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*types.Message, maxLen int) (string, error)
}

// maybeUpdateTitle runs the automatic summarization schedule: after the first
// completed turn, then every 10th message. Any failure keeps the existing
// title.
func (r *Registry) maybeUpdateTitle(ctx context.Context, sess *types.Session) {
	messages, err := r.gateway.ListMessages(ctx, sess.ID)
	if err != nil {
		r.log.Warn().Err(err).Str("session", sess.ID).Msg("list messages for title")
		return
	}

	// A session still carrying the default title has never had a completed
	// turn summarized, whatever the message count says; errored turns leave
	// messages behind without producing a title.
	untitled := sess.Title == defaultTitle
	if !untitled && len(messages)%titleMessageInterval != 0 {
		return
	}

	window := boundedWindow(messages, autoTitleMessages, autoTitleExcerptLen)
	title, err := r.titles.Summarize(ctx, window, TitleMaxLength)
	if err != nil {
		r.log.Debug().Err(err).Str("session", sess.ID).Msg("title summarization failed; keeping previous")
		return
	}
	r.applyTitle(ctx, sess, title)
}

// RegenerateTitle re-summarizes the session title on demand with a wider
// context window than the automatic path. Summarization failure is non-fatal
// and leaves the current title in place.
func (r *Registry) RegenerateTitle(ctx context.Context, sessionID string) (string, error) {
	sess, err := r.gateway.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return "", err
	}

	messages, err := r.gateway.ListMessages(ctx, sessionID)
	if err != nil {
		return sess.Title, nil
	}

	window := boundedWindow(messages, regenerateTitleMessages, regenerateTitleExcerpt)
	title, err := r.titles.Summarize(ctx, window, TitleMaxLength)
	if err != nil {
		r.log.Debug().Err(err).Str("session", sessionID).Msg("title regeneration failed; keeping previous")
		return sess.Title, nil
	}
	r.applyTitle(ctx, sess, title)
	return sess.Title, nil
}

func (r *Registry) applyTitle(ctx context.Context, sess *types.Session, title string) {
	title = truncateTitle(strings.TrimSpace(title), TitleMaxLength)
	if title == "" || title == sess.Title {
		return
	}

	sess.Title = title
	sess.Time.Updated = time.Now().UnixMilli()
	if err := r.gateway.UpdateSession(ctx, sess); err != nil {
		r.log.Warn().Err(err).Str("session", sess.ID).Msg("persist title")
		return
	}
	r.publish(sess.ID, event.TitleUpdated, event.TitleUpdatedData{Title: title})
	r.publish(sess.ID, event.SessionUpdated, event.SessionData{Session: sess})
}

// boundedWindow returns up to maxMessages leading messages with content
// clipped to excerptLen, skipping empty placeholders.
func boundedWindow(messages []*types.Message, maxMessages, excerptLen int) []*types.Message {
	window := make([]*types.Message, 0, maxMessages)
	for _, msg := range messages {
		if len(window) == maxMessages {
			break
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		clipped := *msg
		if len(clipped.Content) > excerptLen {
			clipped.Content = clipped.Content[:excerptLen]
		}
		window = append(window, &clipped)
	}
	return window
}

// truncateTitle hard-caps a title at maxLen, cutting at a word boundary when
// one is close enough.
func truncateTitle(title string, maxLen int) string {
	if len(title) <= maxLen {
		return title
	}
	cut := title[:maxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:")
}

// HeadlineSummarizer is the built-in summarizer: it titles the session from
// the first user message. An LLM-backed implementation can replace it via
// Options.Titles.
type HeadlineSummarizer struct{}

var titleNoise = map[string]bool{
	"the": true, "a": true, "an": true, "my": true, "this": true,
	"please": true, "can": true, "you": true, "could": true,
}

func (HeadlineSummarizer) Summarize(ctx context.Context, messages []*types.Message, maxLen int) (string, error) {
	var source string
	for _, msg := range messages {
		if msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			source = msg.Content
			break
		}
	}
	if source == "" {
		return "", errors.New("no user content to summarize")
	}

	if idx := strings.IndexByte(source, '\n'); idx >= 0 {
		source = source[:idx]
	}

	words := strings.Fields(source)
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if titleNoise[strings.ToLower(word)] {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		kept = words
	}

	title := strings.Join(kept, " ")
	if len(title) > 0 {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	return truncateTitle(title, maxLen), nil
}
