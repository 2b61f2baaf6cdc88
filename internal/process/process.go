// Package process runs the external valuation engine as a subprocess with a
// bounded run time.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtlprog/cdsrisk/internal/metrics"
)

const (
	DefaultTimeout   = 300 * time.Second
	DefaultKillGrace = 5 * time.Second
)

var (
	ErrTimeout        = errors.New("engine run timed out")
	ErrLaunch         = errors.New("engine launch failed")
	ErrWorkDirBusy    = errors.New("working directory already in use")
	ErrBinaryNotFound = errors.New("engine binary not found")
)

// State is the lifecycle state of one execution.
type State int32

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// ExitError is returned when the engine exits with a non-zero status.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("engine exited with code %d", e.Code)
}

// TimeoutError is returned when the engine is killed for exceeding its time limit.
// It matches ErrTimeout with errors.Is.
type TimeoutError struct {
	Timeout time.Duration
	Output  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Config configures a Manager.
type Config struct {
	BinaryPath string
	Timeout    time.Duration
	KillGrace  time.Duration
}

// Manager launches engine executions. It is safe for concurrent use; each
// working directory may host only one execution at a time.
type Manager struct {
	binary    string
	timeout   time.Duration
	killGrace time.Duration

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewManager resolves the engine binary and fails if it is missing or not executable.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("%w: empty path", ErrBinaryNotFound)
	}
	path, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	m := &Manager{
		binary:    path,
		timeout:   cfg.Timeout,
		killGrace: cfg.KillGrace,
		busy:      make(map[string]struct{}),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.killGrace <= 0 {
		m.killGrace = DefaultKillGrace
	}
	return m, nil
}

// BinaryPath returns the resolved engine binary.
func (m *Manager) BinaryPath() string { return m.binary }

// Timeout returns the per-execution time limit.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Execution is one asynchronous engine run.
type Execution struct {
	state atomic.Int32
	done  chan struct{}

	output string
	err    error
}

func newExecution() *Execution {
	return &Execution{done: make(chan struct{})}
}

// State returns the current lifecycle state.
func (e *Execution) State() State { return State(e.state.Load()) }

// Done is closed once the execution reaches a terminal state.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the execution finishes and returns the captured combined
// stdout and stderr. The output is returned even when err is non-nil.
func (e *Execution) Wait() (string, error) {
	<-e.done
	return e.output, e.err
}

func (e *Execution) setState(s State) { e.state.Store(int32(s)) }

func (e *Execution) finish(s State, output string, err error) {
	e.output = output
	e.err = err
	e.setState(s)
	close(e.done)
}

// Run starts an execution and waits for it.
func (m *Manager) Run(ctx context.Context, workDir, inputFile string) (string, error) {
	return m.Start(ctx, workDir, inputFile).Wait()
}

// Start launches the engine with inputFile as its single argument and workDir as
// its working directory. Cancelling ctx kills the process.
func (m *Manager) Start(ctx context.Context, workDir, inputFile string) *Execution {
	exe := newExecution()

	key := filepath.Clean(workDir)
	if !m.claim(key) {
		exe.finish(StateFailed, "", fmt.Errorf("%w: %s", ErrWorkDirBusy, workDir))
		return exe
	}

	exe.setState(StateLaunching)
	go func() {
		state, output, err := m.execute(ctx, exe, workDir, inputFile)
		m.release(key)
		exe.finish(state, output, err)
	}()
	return exe
}

func (m *Manager) execute(ctx context.Context, exe *Execution, workDir, inputFile string) (State, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, m.binary, inputFile)
	cmd.Dir = workDir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = m.killGrace
	stopKill := configureKill(cmd, m.killGrace)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return record(StateFailed, start, "", fmt.Errorf("%w: %w", ErrLaunch, err))
	}
	exe.setState(StateRunning)
	metrics.EngineRunsInFlight.Inc()
	slog.Debug("engine started", "pid", cmd.Process.Pid, "workDir", workDir)

	waitErr := cmd.Wait()
	stopKill()
	metrics.EngineRunsInFlight.Dec()
	output := out.String()

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return record(StateTimedOut, start, output, &TimeoutError{Timeout: m.timeout, Output: output})
	case ctx.Err() != nil:
		return record(StateFailed, start, output, fmt.Errorf("engine run cancelled: %w", ctx.Err()))
	case errors.As(waitErr, &exitErr):
		return record(StateFailed, start, output, &ExitError{Code: exitErr.ExitCode(), Output: output})
	case waitErr != nil:
		return record(StateFailed, start, output, fmt.Errorf("waiting for engine: %w", waitErr))
	default:
		return record(StateSucceeded, start, output, nil)
	}
}

func record(s State, start time.Time, output string, err error) (State, string, error) {
	elapsed := time.Since(start)
	metrics.EngineRunsTotal.WithLabelValues(s.String()).Inc()
	metrics.EngineRunDuration.WithLabelValues(s.String()).Observe(elapsed.Seconds())

	if err != nil {
		slog.Warn("engine run failed", "state", s.String(), "duration", elapsed, "error", err)
	} else {
		slog.Info("engine run finished", "duration", elapsed, "outputBytes", len(output))
	}
	return s, output, err
}

func (m *Manager) claim(dir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.busy[dir]; ok {
		return false
	}
	m.busy[dir] = struct{}{}
	return true
}

func (m *Manager) release(dir string) {
	m.mu.Lock()
	delete(m.busy, dir)
	m.mu.Unlock()
}
