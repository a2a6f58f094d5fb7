package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"def-gateway/src/internal/common"
	interrors "def-gateway/src/internal/errors"
)

// ErrSessionBusy is returned when a request races another one onto the
// non-reentrant session. Callers treat it exactly like IsBusy()==true.
var ErrSessionBusy = errors.New("session is busy")

// DefaultPrompt is the reply terminator the session prints when idle.
const DefaultPrompt = "*>"

// DefaultStartTimeout bounds waiting for the session's first prompt.
const DefaultStartTimeout = 60 * time.Second

// ProcessSession runs the analysis process over stdin/stdout pipes. One
// query at a time; the busy lock is try-acquired, never waited on.
type ProcessSession struct {
	command string
	args    []string
	workDir string
	prompt  string

	busy     sync.Mutex
	busyFlag atomic.Bool
	loaded   atomic.Bool

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string

	stderrMu  sync.Mutex
	stderrBuf []string
}

// NewProcessSession creates a session for the given command line. Empty
// prompt selects DefaultPrompt.
func NewProcessSession(command string, args []string, workDir, prompt string) *ProcessSession {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &ProcessSession{
		command: command,
		args:    args,
		workDir: workDir,
		prompt:  prompt,
	}
}

// Start launches the process and waits for its first prompt, at which point
// the session counts as loaded.
func (s *ProcessSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return interrors.NewProcessError(s.command, "start", errors.New("session already started"))
	}

	cmd := exec.Command(s.command, s.args...)
	if s.workDir != "" {
		cmd.Dir = s.workDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return interrors.NewProcessError(s.command, "start", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return interrors.NewProcessError(s.command, "start", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return interrors.NewProcessError(s.command, "start", err)
	}

	if err := cmd.Start(); err != nil {
		return interrors.NewProcessError(s.command, "start", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.lines = make(chan string, 256)
	s.started = true

	go s.readStdout(stdout)
	go s.readStderr(stderr)

	if err := s.awaitPrompt(ctx); err != nil {
		return err
	}

	s.loaded.Store(true)
	common.ReplLogger.Info("Session ready: %s", s.command)
	return nil
}

// Stop terminates the process.
func (s *ProcessSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.loaded.Store(false)
	s.started = false
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			return interrors.NewProcessError(s.command, "stop", err)
		}
		s.cmd.Wait()
	}
	return nil
}

// IsBusy reports whether a query is in flight right now.
func (s *ProcessSession) IsBusy() bool {
	return s.busyFlag.Load()
}

// IsLoaded reports whether the session has printed its first prompt.
func (s *ProcessSession) IsLoaded() bool {
	return s.loaded.Load()
}

// FindLocationInfo issues one location query. Fails fast with
// ErrSessionBusy when another query holds the session; never queues.
func (s *ProcessSession) FindLocationInfo(ctx context.Context, query LocationQuery) (*Response, error) {
	if !s.busy.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.busy.Unlock()

	s.busyFlag.Store(true)
	defer s.busyFlag.Store(false)

	if !s.loaded.Load() {
		return nil, interrors.NewProcessError(s.command, "communication", errors.New("session not loaded"))
	}

	s.drainStderr()

	line := fmt.Sprintf(":loc-at %s %d %d %d %d %s\n",
		query.File.Filename(), query.StartLine, query.StartCol, query.EndLine, query.EndCol, query.Identifier)
	if _, err := io.WriteString(s.stdin, line); err != nil {
		s.loaded.Store(false)
		return nil, interrors.NewProcessError(s.command, "communication", err)
	}

	stdout, err := s.collectReply(ctx)
	if err != nil {
		return nil, err
	}

	return &Response{
		Stdout: stdout,
		Stderr: s.drainStderr(),
	}, nil
}

// collectReply reads stdout lines until the prompt reappears.
func (s *ProcessSession) collectReply(ctx context.Context) ([]string, error) {
	var stdout []string
	for {
		select {
		case <-ctx.Done():
			// The reply will land after we are gone; this session must be
			// reloaded before it can be trusted again.
			s.loaded.Store(false)
			return nil, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				s.loaded.Store(false)
				return nil, interrors.NewProcessError(s.command, "communication", errors.New("session terminated"))
			}
			if strings.HasPrefix(strings.TrimSpace(line), s.prompt) {
				return stdout, nil
			}
			stdout = append(stdout, line)
		}
	}
}

// awaitPrompt waits for the session's first prompt under the start timeout.
func (s *ProcessSession) awaitPrompt(ctx context.Context) error {
	timer := time.NewTimer(DefaultStartTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return interrors.NewTimeoutError("session start", DefaultStartTimeout, nil)
		case line, ok := <-s.lines:
			if !ok {
				return interrors.NewProcessError(s.command, "start", errors.New("session terminated during start"))
			}
			if strings.HasPrefix(strings.TrimSpace(line), s.prompt) {
				return nil
			}
		}
	}
}

func (s *ProcessSession) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	close(s.lines)
}

func (s *ProcessSession) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.stderrMu.Lock()
		s.stderrBuf = append(s.stderrBuf, scanner.Text())
		s.stderrMu.Unlock()
	}
}

// drainStderr returns and clears the accumulated error-stream lines.
func (s *ProcessSession) drainStderr() []string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()

	out := s.stderrBuf
	s.stderrBuf = nil
	return out
}
