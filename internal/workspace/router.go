package workspace

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// ConfidenceThreshold is the minimum confidence at which the scored tier may
// bind a session to a workspace. Operating silently in the wrong project is
// worse than operating in none, so this bound is strict.
const ConfidenceThreshold = 0.7

// keywordFallbackConfidence is reported by the token-overlap fallback tier.
const keywordFallbackConfidence = 0.8

// newProjectPhrases signal the intent to start something rather than work on
// an existing workspace.
var newProjectPhrases = []string{
	"create a new",
	"start a new",
	"new project",
	"scaffold",
	"bootstrap",
	"from scratch",
}

// Match is the result of routing a prompt to a workspace. Workspace is nil
// when no tier produced a confident answer; EffectivePrompt has any explicit
// @mention stripped.
type Match struct {
	Workspace       *types.Workspace
	Confidence      float64
	Reason          string
	EffectivePrompt string
}

// Candidate is one workspace presented to the scored tier.
type Candidate struct {
	Name    string
	Excerpt string
}

// Scorer is the bounded classification step of the scored tier. It names the
// best candidate and its confidence in [0,1].
type Scorer interface {
	Score(ctx context.Context, prompt string, candidates []Candidate) (name string, confidence float64, err error)
}

// Router resolves free-form prompts to workspaces through a strict tier
// order: explicit mention, new-project intent, scored match, keyword
// fallback, no match.
type Router struct {
	workspaces *Service
	scorer     Scorer
	log        zerolog.Logger
}

// NewRouter creates a Router. A nil scorer selects the built-in lexical one.
func NewRouter(workspaces *Service, scorer Scorer) *Router {
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	return &Router{
		workspaces: workspaces,
		scorer:     scorer,
		log:        logging.For("router"),
	}
}

// ResolveWithHint routes a prompt with an out-of-band workspace hint. A hint
// naming an existing workspace binds directly and leaves the prompt untouched;
// otherwise routing falls through to the prompt tiers.
func (r *Router) ResolveWithHint(ctx context.Context, hint, prompt string) Match {
	if hint != "" {
		ws, err := r.workspaces.Get(ctx, hint)
		if err == nil {
			return Match{Workspace: ws, Confidence: 1.0, Reason: "workspace hint", EffectivePrompt: prompt}
		}
		r.log.Debug().Str("workspace", hint).Msg("hinted workspace does not exist")
	}
	return r.Resolve(ctx, prompt)
}

// Resolve routes a prompt. The first confident tier wins; tier errors are
// recovered locally and fall through to the next tier, never to the caller.
func (r *Router) Resolve(ctx context.Context, prompt string) Match {
	// Tier 1: explicit @mention.
	if name, rest, ok := explicitMention(prompt); ok {
		ws, err := r.workspaces.Get(ctx, name)
		if err == nil {
			return Match{Workspace: ws, Confidence: 1.0, Reason: "explicit mention", EffectivePrompt: rest}
		}
		r.log.Debug().Str("workspace", name).Msg("mentioned workspace does not exist")
	}

	// Tier 2: new-project intent creates a fresh workspace.
	if hasNewProjectIntent(prompt) {
		name := GenerateName()
		ws, err := r.workspaces.Create(ctx, name)
		if err == nil {
			return Match{Workspace: ws, Confidence: 1.0, Reason: "new-project intent", EffectivePrompt: prompt}
		}
		r.log.Warn().Err(err).Str("workspace", name).Msg("could not create workspace for new-project intent")
	}

	candidates, err := r.candidates(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("workspace enumeration failed; routing without a workspace")
		return Match{Reason: "no match", EffectivePrompt: prompt}
	}

	// Tier 3: scored match, accepted only above the confidence threshold.
	if len(candidates) > 0 {
		name, confidence, err := r.scorer.Score(ctx, prompt, candidates)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Msg("scored matching failed; falling back to keywords")
		case confidence > ConfidenceThreshold:
			if ws, err := r.workspaces.Get(ctx, name); err == nil {
				return Match{Workspace: ws, Confidence: confidence, Reason: "scored match", EffectivePrompt: prompt}
			}
		}
	}

	// Tier 4: keyword fallback over workspace name tokens.
	if ws := r.keywordMatch(ctx, prompt, candidates); ws != nil {
		return Match{Workspace: ws, Confidence: keywordFallbackConfidence, Reason: "keyword match", EffectivePrompt: prompt}
	}

	return Match{Reason: "no match", EffectivePrompt: prompt}
}

func (r *Router) candidates(ctx context.Context) ([]Candidate, error) {
	workspaces, err := r.workspaces.List(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(workspaces))
	for _, ws := range workspaces {
		candidates = append(candidates, Candidate{
			Name:    ws.Name,
			Excerpt: r.workspaces.Excerpt(ctx, ws.Name),
		})
	}
	return candidates, nil
}

// keywordMatch accepts a candidate when at least two of its name tokens
// appear in the prompt, or when a single-token name appears. The first
// qualifying candidate wins.
func (r *Router) keywordMatch(ctx context.Context, prompt string, candidates []Candidate) *types.Workspace {
	lower := strings.ToLower(prompt)
	for _, c := range candidates {
		tokens := splitName(c.Name)
		hits := 0
		for _, token := range tokens {
			if strings.Contains(lower, token) {
				hits++
			}
		}
		if hits >= 2 || (len(tokens) == 1 && hits == 1) {
			if ws, err := r.workspaces.Get(ctx, c.Name); err == nil {
				return ws
			}
		}
	}
	return nil
}

// explicitMention extracts a leading @name token, returning the name and the
// remainder of the prompt.
func explicitMention(prompt string) (name, rest string, ok bool) {
	trimmed := strings.TrimSpace(prompt)
	if !strings.HasPrefix(trimmed, "@") {
		return "", "", false
	}

	mention, rest, _ := strings.Cut(trimmed, " ")
	name = strings.TrimPrefix(mention, "@")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

func hasNewProjectIntent(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, phrase := range newProjectPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// splitName tokenizes a workspace name on - and _.
func splitName(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '-' || r == '_'
	})
}
