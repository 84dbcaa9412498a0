/*
Package actions runs the side effects bound to custom commands.

The engine only needs two collaborators:
  - Launcher starts an external process (ShellCommand actions)
  - Opener opens a URL in the user's browser (WebOpen actions)

Both are fire-and-forget from the caller's point of view: Execute returns
once the process has started, and a background reaper waits for it with a
timeout.
*/
package actions

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// Launcher executes a command line.
type Launcher interface {
	Execute(ctx context.Context, command string) error
}

// Opener opens a URL. Failures are not reported to the caller.
type Opener interface {
	Open(url string)
}

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("launcher closed")

// ExecutionError reports a command that could not be started.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// DefaultTimeout bounds how long a launched process may run.
const DefaultTimeout = 30 * time.Second

// closeGrace is how long Close waits for running processes before killing them.
const closeGrace = 2 * time.Second

// execCommand is a variable that allows tests to mock exec.CommandContext
var execCommand = exec.CommandContext

// ProcessLauncher starts processes and reaps them in the background.
type ProcessLauncher struct {
	useShell bool
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running map[*exec.Cmd]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// LauncherOption configures a ProcessLauncher.
type LauncherOption func(*ProcessLauncher)

// WithShell runs command lines through "sh -c" instead of splitting them
// into an argv.
func WithShell(useShell bool) LauncherOption {
	return func(l *ProcessLauncher) { l.useShell = useShell }
}

// WithTimeout sets the maximum run time of a launched process.
func WithTimeout(d time.Duration) LauncherOption {
	return func(l *ProcessLauncher) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) LauncherOption {
	return func(l *ProcessLauncher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewProcessLauncher creates a launcher.
func NewProcessLauncher(opts ...LauncherOption) *ProcessLauncher {
	l := &ProcessLauncher{
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		running: make(map[*exec.Cmd]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute starts command and returns once it is running.
//
// The command line is split with shell quoting rules (no shell is involved)
// unless the launcher was created WithShell(true). A non-zero exit status
// is logged, not returned.
func (l *ProcessLauncher) Execute(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return &ExecutionError{Command: command, Err: errors.New("empty command")}
	}

	var argv []string
	if l.useShell {
		argv = []string{"sh", "-c", command}
	} else {
		parts, err := shlex.Split(command)
		if err != nil {
			return &ExecutionError{Command: command, Err: fmt.Errorf("failed to parse command: %w", err)}
		}
		if len(parts) == 0 {
			return &ExecutionError{Command: command, Err: errors.New("empty command")}
		}
		argv = parts
	}

	if err := ctx.Err(); err != nil {
		return &ExecutionError{Command: command, Err: err}
	}
	if err := l.start(argv); err != nil {
		return &ExecutionError{Command: command, Err: err}
	}
	return nil
}

// start launches argv with its own timeout context, detached from any
// request context.
func (l *ProcessLauncher) start(argv []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	procCtx, cancel := context.WithTimeout(context.Background(), l.timeout)
	cmd := execCommand(procCtx, argv[0], argv[1:]...)

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start process: %w", err)
	}

	l.running[cmd] = cancel
	l.wg.Add(1)
	go l.reap(cmd, cancel, argv[0])

	l.logger.Debug("process started", zap.String("program", argv[0]), zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (l *ProcessLauncher) reap(cmd *exec.Cmd, cancel context.CancelFunc, program string) {
	defer l.wg.Done()

	err := cmd.Wait()
	cancel()

	l.mu.Lock()
	delete(l.running, cmd)
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("process exited with error", zap.String("program", program), zap.Error(err))
	}
}

// Running returns the number of processes not yet reaped.
func (l *ProcessLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Close stops accepting new commands, waits briefly for running processes,
// then kills the rest.
func (l *ProcessLauncher) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(closeGrace):
	}

	l.mu.Lock()
	n := len(l.running)
	for _, cancel := range l.running {
		cancel()
	}
	l.mu.Unlock()

	l.logger.Info("killed processes that did not exit in time", zap.Int("count", n))
	<-done
	return nil
}
