package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/terraconstructs/svcgate/pkg/sdk/telemetry"
)

// Mode selects how the subordinate server is launched.
type Mode int

const (
	// ModeUnmanaged launches once, bound to the caller's abort context.
	ModeUnmanaged Mode = iota
	// ModeManaged relaunches on exit up to MaxRestarts times.
	ModeManaged
)

func (m Mode) String() string {
	if m == ModeManaged {
		return "managed"
	}
	return "unmanaged"
}

const (
	DefaultMaxRestarts  = 10
	DefaultRestartDelay = time.Second

	// stopGrace is how long a child gets between SIGTERM and SIGKILL, and
	// how long output pipes may outlive the child before they are closed.
	stopGrace = 5 * time.Second
)

// Config configures a Supervisor.
type Config struct {
	Target Target
	Mode   Mode

	// MaxRestarts bounds relaunches in managed mode. Zero selects DefaultMaxRestarts.
	MaxRestarts  int
	RestartDelay time.Duration

	// Port is probed by ShouldInit; zero disables the probe.
	Port int
	// BackgroundMode keeps launching even when Port is already bound.
	BackgroundMode bool
	// DisableManagedStart skips launching entirely.
	DisableManagedStart bool

	// Stdout and Stderr receive unmanaged child output. Defaults to the
	// parent's streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a snapshot of the supervised process.
type Process struct {
	Mode         Mode
	State        State
	RunID        string
	PID          int
	RestartCount int
	LastExitCode int
}

// Supervisor owns the single subordinate server process for a run.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	onEvent func(Event)
	grace   time.Duration

	mu      sync.Mutex
	proc    Process
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option mutates a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle events and child output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records lifecycle events on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithEventHook registers fn to observe every transition. fn runs on the
// supervisor's goroutine and must not block.
func WithEventHook(fn func(Event)) Option {
	return func(s *Supervisor) {
		s.onEvent = fn
	}
}

// New creates a Supervisor. Nothing is launched until Start.
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		proc:   Process{Mode: cfg.Mode, State: StateNotStarted},
		grace:  stopGrace,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldInit reports whether a launch is required. Launching is skipped when
// managed start is disabled, or when Port already has a listener and
// background mode is off, so an externally managed instance can be reused.
func (s *Supervisor) ShouldInit(ctx context.Context) bool {
	if s.cfg.DisableManagedStart {
		s.logger.Info("managed start disabled, not launching server")
		return false
	}
	if s.cfg.Port > 0 && !s.cfg.BackgroundMode && PortInUse(ctx, s.cfg.Port) {
		s.logger.Info("server port already bound, attaching to running instance", "port", s.cfg.Port)
		return false
	}
	return true
}

// PortInUse reports whether something accepts TCP connections on the local port.
func PortInUse(ctx context.Context, port int) bool {
	dialer := net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Start launches the server. In unmanaged mode the child is bound to abort:
// cancelling it terminates the child, and there is no restart. In managed
// mode abort is ignored; the restart loop runs until the budget is exhausted
// or Stop is called.
func (s *Supervisor) Start(abort context.Context) error {
	name, args, err := s.cfg.Target.Command()
	if err != nil {
		return fmt.Errorf("build server command: %w", err)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.started = true
	s.proc.RunID = uuid.NewString()
	s.mu.Unlock()

	s.logger.Info("launching server",
		"mode", s.cfg.Mode.String(),
		"command", name,
		"args", args,
		"run_id", s.proc.RunID,
	)

	if s.cfg.Mode == ModeManaged {
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go s.runManaged(ctx, name, args)
		return nil
	}

	return s.startUnmanaged(abort, name, args)
}

// Stop ends the managed lifecycle and terminates the current child. It has
// no effect in unmanaged mode, which is stopped through the abort context.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the supervisor will launch nothing more.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Status returns a snapshot of the supervised process.
func (s *Supervisor) Status() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *Supervisor) startUnmanaged(abort context.Context, name string, args []string) error {
	s.emit(abort, EventLaunch, 0, nil)

	cmd := s.command(abort, name, args)
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr

	if err := cmd.Start(); err != nil {
		s.emit(abort, EventError, 0, err)
		s.emit(abort, EventStop, 0, nil)
		close(s.done)
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.setPID(cmd.Process.Pid)
	s.emit(abort, EventSpawn, 0, nil)

	go func() {
		defer close(s.done)
		code, err := waitExitCode(cmd)
		s.logger.Info("server exited", "pid", cmd.Process.Pid, "code", code, "error", err)
		s.emit(abort, EventExit, code, err)
		if abort.Err() != nil {
			s.emit(abort, EventStop, 0, nil)
		}
	}()
	return nil
}

func (s *Supervisor) runManaged(ctx context.Context, name string, args []string) {
	defer close(s.done)

	for {
		s.emit(ctx, EventLaunch, 0, nil)

		if err := s.launchManaged(ctx, name, args); err != nil {
			s.logger.Error("server error", "error", err)
		}

		if ctx.Err() != nil {
			s.emit(ctx, EventStop, 0, nil)
			s.logger.Info("supervisor exit", "reason", "stopped", "restarts", s.Status().RestartCount)
			return
		}

		restarts := s.Status().RestartCount
		if restarts >= s.cfg.MaxRestarts {
			s.emit(ctx, EventGiveUp, 0, nil)
			s.logger.Error("supervisor exit",
				"reason", "restart budget exhausted",
				"max_restarts", s.cfg.MaxRestarts,
				"last_exit_code", s.Status().LastExitCode,
			)
			return
		}

		s.mu.Lock()
		s.proc.RestartCount++
		s.mu.Unlock()
		s.emit(ctx, EventRestart, 0, nil)

		select {
		case <-ctx.Done():
			s.emit(ctx, EventStop, 0, nil)
			s.logger.Info("supervisor exit", "reason", "stopped", "restarts", restarts+1)
			return
		case <-time.After(s.cfg.RestartDelay):
		}
	}
}

// launchManaged runs one child to completion, logging its output line by
// line. The child is reaped independently of its output: a grandchild that
// inherits the streams delays the exit by at most the grace period.
func (s *Supervisor) launchManaged(ctx context.Context, name string, args []string) error {
	cmd := s.command(ctx, name, args)
	stdout := newLineLogger(s.logger, slog.LevelInfo, "stdout")
	stderr := newLineLogger(s.logger, slog.LevelWarn, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		s.emit(ctx, EventError, 0, err)
		return fmt.Errorf("spawn: %w", err)
	}
	pid := cmd.Process.Pid
	stdout.setPID(pid)
	stderr.setPID(pid)
	s.setPID(pid)
	s.emit(ctx, EventSpawn, 0, nil)

	code, err := waitExitCode(cmd)
	stdout.Flush()
	stderr.Flush()
	s.logger.Info("child exit", "pid", pid, "code", code, "error", err)
	s.emit(ctx, EventExit, code, err)
	return nil
}

func (s *Supervisor) command(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), s.cfg.Target.Env...)
	cmd.Dir = s.cfg.Target.Dir
	// Ask politely first; WaitDelay escalates to SIGKILL.
	cmd.Cancel = func() error {
		return terminate(cmd.Process, runtime.GOOS)
	}
	cmd.WaitDelay = s.grace
	return cmd
}

func (s *Supervisor) setPID(pid int) {
	s.mu.Lock()
	s.proc.PID = pid
	s.mu.Unlock()
}

// emit applies ev to the state machine, logs it, and notifies the hook.
func (s *Supervisor) emit(ctx context.Context, ev EventType, exitCode int, evErr error) {
	s.mu.Lock()
	state, err := next(s.proc.State, ev, exitCode)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("ignoring lifecycle event", "event", ev.String(), "error", err)
		return
	}
	s.proc.State = state
	if ev == EventExit {
		s.proc.LastExitCode = exitCode
	}
	event := Event{
		Type:         ev,
		State:        state,
		RunID:        s.proc.RunID,
		PID:          s.proc.PID,
		ExitCode:     exitCode,
		RestartCount: s.proc.RestartCount,
		Err:          evErr,
		Time:         time.Now(),
	}
	hook := s.onEvent
	s.mu.Unlock()

	attrs := []any{"event", ev.String(), "state", state.String(), "pid", event.PID, "restarts", event.RestartCount}
	switch ev {
	case EventError:
		s.logger.Error("server lifecycle", append(attrs, "error", evErr)...)
	case EventExit:
		s.logger.Info("server lifecycle", append(attrs, "code", exitCode)...)
	default:
		s.logger.Debug("server lifecycle", attrs...)
	}
	s.metrics.RecordProcessEvent(ctx, ev.String(), s.cfg.Mode.String())

	if hook != nil {
		hook(event)
	}
}

// terminate asks p to shut down. Windows has no SIGTERM, so the process is
// killed outright there.
func terminate(p *os.Process, goos string) error {
	if goos == "windows" {
		return p.Kill()
	}
	return p.Signal(syscall.SIGTERM)
}

// waitExitCode waits for cmd and returns its exit status. A child killed by
// a signal reports -1. Output pipes still held open by a grandchild after the
// grace period do not hide the child's own status.
func waitExitCode(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}
