// Package workspace enumerates project workspaces under a configured root
// directory and resolves free-form requests to one of them.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

const (
	// DefaultScanDepth bounds how deep excerpt discovery looks below a
	// workspace directory.
	DefaultScanDepth = 2

	// excerptLimit caps how much of a readme/instruction file feeds the
	// matching tiers.
	excerptLimit = 2048

	excerptTTL = 5 * time.Minute
)

// excerptPatterns are the files whose content describes a workspace, in
// priority order.
var excerptPatterns = []string{
	"README.md",
	"readme.md",
	"AGENTS.md",
	".agentdeck/instructions.md",
	"**/README.md",
}

// Service lists, creates, and describes workspaces. The workspace list and
// per-workspace excerpts are cached; an fsnotify watcher on the root
// invalidates the caches when directories appear or disappear.
type Service struct {
	root  string
	depth int
	log   zerolog.Logger

	mu     sync.Mutex
	listed []types.Workspace
	stale  bool

	excerpts *gocache.Cache
	watcher  *fsnotify.Watcher
}

// NewService creates a Service rooted at root, creating the root directory
// if needed. A non-positive depth selects DefaultScanDepth.
func NewService(root string, depth int) (*Service, error) {
	if depth <= 0 {
		depth = DefaultScanDepth
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	s := &Service{
		root:     root,
		depth:    depth,
		log:      logging.For("workspace"),
		stale:    true,
		excerpts: gocache.New(excerptTTL, 2*excerptTTL),
	}

	// The watcher is an optimization; enumeration still works without it.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn().Err(err).Msg("workspace watcher unavailable; caches expire by TTL only")
		return s, nil
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		s.log.Warn().Err(err).Msg("cannot watch workspace root")
		return s, nil
	}
	s.watcher = watcher
	go s.watchLoop()

	return s, nil
}

// Root returns the workspace root directory.
func (s *Service) Root() string { return s.root }

// List returns all workspaces, sorted by directory order.
func (s *Service) List(ctx context.Context) ([]types.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stale {
		return append([]types.Workspace(nil), s.listed...), nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}

	var workspaces []types.Workspace
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		workspaces = append(workspaces, types.Workspace{
			Name: entry.Name(),
			Path: filepath.Join(s.root, entry.Name()),
		})
	}

	s.listed = workspaces
	s.stale = false
	return append([]types.Workspace(nil), workspaces...), nil
}

// Get returns the named workspace, or storage-agnostic os.ErrNotExist when
// no such directory exists.
func (s *Service) Get(ctx context.Context, name string) (*types.Workspace, error) {
	path := filepath.Join(s.root, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s: %w", name, os.ErrNotExist)
	}
	return &types.Workspace{Name: name, Path: path}, nil
}

// Create makes a new workspace directory.
func (s *Service) Create(ctx context.Context, name string) (*types.Workspace, error) {
	path := filepath.Join(s.root, name)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", name, err)
	}

	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()

	return &types.Workspace{Name: name, Path: path}, nil
}

// Excerpt returns a short description of the workspace assembled from its
// readme/instruction files, bounded by the configured scan depth. Missing
// files simply yield an empty excerpt.
func (s *Service) Excerpt(ctx context.Context, name string) string {
	if cached, ok := s.excerpts.Get(name); ok {
		return cached.(string)
	}

	root := os.DirFS(filepath.Join(s.root, name))
	var b strings.Builder
	for _, pattern := range excerptPatterns {
		if b.Len() >= excerptLimit {
			break
		}
		matches, err := doublestar.Glob(root, pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			if strings.Count(match, "/") >= s.depth || b.Len() >= excerptLimit {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.root, name, match))
			if err != nil {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			remaining := excerptLimit - b.Len()
			if len(data) > remaining {
				data = data[:remaining]
			}
			b.Write(data)
		}
	}

	excerpt := b.String()
	s.excerpts.SetDefault(name, excerpt)
	return excerpt
}

// Close stops the root watcher.
func (s *Service) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Service) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.mu.Lock()
				s.stale = true
				s.mu.Unlock()
				s.excerpts.Delete(filepath.Base(ev.Name))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Debug().Err(err).Msg("workspace watcher error")
		}
	}
}
