package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
)

// maxEventLine bounds a single event line from the agent process. Tool
// results can embed whole files.
const maxEventLine = 8 * 1024 * 1024

// ProcessClient runs the agent as a child process speaking newline-delimited
// JSON: RawEvent objects on stdout, control objects on stdin. Stderr is
// forwarded to the log.
type ProcessClient struct {
	command string
	args    []string
	dir     string
	log     zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	onEvent func(RawEvent)
	readyCh chan struct{}
	ackCh   chan struct{}
	done    chan struct{}
	closing bool
}

// NewProcessClient creates a client for one agent subprocess rooted at dir.
// An empty dir runs the agent in the server's working directory.
func NewProcessClient(command string, args []string, dir string) *ProcessClient {
	return &ProcessClient{
		command: command,
		args:    args,
		dir:     dir,
		log:     logging.For("agent-process").With().Str("command", command).Logger(),
	}
}

// Connect spawns the process and blocks until it emits its ready event or
// ctx expires.
func (c *ProcessClient) Connect(ctx context.Context, onEvent func(RawEvent)) error {
	c.mu.Lock()
	if c.cmd != nil {
		c.mu.Unlock()
		return nil
	}

	cmd := exec.Command(c.command, c.args...)
	cmd.Dir = c.dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start agent process: %w", err)
	}

	readyCh := make(chan struct{})
	done := make(chan struct{})
	c.cmd = cmd
	c.stdin = stdin
	c.onEvent = onEvent
	c.readyCh = readyCh
	c.ackCh = make(chan struct{}, 1)
	c.done = done
	c.mu.Unlock()

	go c.readLoop(stdout)
	go c.stderrLoop(stderr)

	select {
	case <-readyCh:
		return nil
	case <-done:
		c.reset()
		return errors.New("agent process exited before becoming ready")
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// Prompt starts a turn.
func (c *ProcessClient) Prompt(ctx context.Context, text string) error {
	return c.send(map[string]any{"type": "prompt", "content": text})
}

// Abort requests that the current turn stop and waits for the process to
// acknowledge. The acknowledgment is advisory: the process may keep emitting
// queued events for a while.
func (c *ProcessClient) Abort(ctx context.Context) error {
	c.mu.Lock()
	ackCh := c.ackCh
	done := c.done
	c.mu.Unlock()
	if ackCh == nil {
		return errors.New("agent not connected")
	}

	if err := c.send(map[string]any{"type": "abort"}); err != nil {
		return err
	}

	select {
	case <-ackCh:
		return nil
	case <-done:
		return nil // process exit is as stopped as it gets
	case <-ctx.Done():
		return fmt.Errorf("waiting for abort acknowledgment: %w", ctx.Err())
	}
}

// Close terminates the subprocess. It closes stdin first so a well-behaved
// agent can exit cleanly, then kills after a grace period.
func (c *ProcessClient) Close() error {
	c.mu.Lock()
	cmd := c.cmd
	stdin := c.stdin
	done := c.done
	c.closing = true
	c.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		stdin.Close()
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		cmd.Process.Kill()
		<-done
	}

	c.reset()
	return nil
}

func (c *ProcessClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdin == nil {
		return errors.New("agent not connected")
	}
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

func (c *ProcessClient) readLoop(stdout io.Reader) {
	defer func() {
		c.mu.Lock()
		cmd := c.cmd
		done := c.done
		onEvent := c.onEvent
		closing := c.closing
		c.mu.Unlock()
		if cmd != nil {
			cmd.Wait()
		}
		// A process that dies on its own mid-turn would otherwise go
		// silent; the consumer is blocked waiting for the next event, so
		// the exit must surface as one.
		if onEvent != nil && !closing {
			onEvent(RawEvent{Type: RawError, Error: "agent process exited unexpectedly"})
		}
		if done != nil {
			close(done)
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw RawEvent
		if err := json.Unmarshal(line, &raw); err != nil {
			c.log.Warn().Err(err).Msg("skip malformed agent event")
			continue
		}

		switch raw.Type {
		case RawReady:
			c.mu.Lock()
			readyCh := c.readyCh
			c.readyCh = nil
			c.mu.Unlock()
			if readyCh != nil {
				close(readyCh)
			}
		case RawAbortAck:
			c.mu.Lock()
			ackCh := c.ackCh
			c.mu.Unlock()
			select {
			case ackCh <- struct{}{}:
			default:
			}
		default:
			c.mu.Lock()
			onEvent := c.onEvent
			c.mu.Unlock()
			if onEvent != nil {
				onEvent(raw)
			}
		}
	}
}

func (c *ProcessClient) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.log.Debug().Msg(scanner.Text())
	}
}

func (c *ProcessClient) reset() {
	c.mu.Lock()
	c.cmd = nil
	c.stdin = nil
	c.onEvent = nil
	c.closing = false
	c.mu.Unlock()
}
