package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultWaitDelay bounds how long Wait blocks on output pipes after the
// scanner is killed.
const DefaultWaitDelay = 5 * time.Second

// CommandRunner abstracts process execution for testability. Output is
// written to stdout and stderr as it is produced. A start failure is
// returned as *SpawnError; a non-zero exit is reported through exitCode
// with a nil error.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) (exitCode int, err error)
}

// ExecRunner implements CommandRunner with os/exec. On cancellation the
// whole process tree is killed.
type ExecRunner struct {
	WaitDelay time.Duration
	Log       *zap.Logger
}

func (e *ExecRunner) Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return killTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		return -1, &SpawnError{Path: name, Err: err}
	}

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// The scanner exited but a descendant kept its output open; whatever
		// arrived after WaitDelay is lost.
		if e.Log != nil {
			e.Log.Warn("scanner output truncated: pipes still open after exit",
				zap.String("path", name),
				zap.Duration("wait_delay", cmd.WaitDelay))
		}
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait: %w", err)
}

// Runner spawns the scanner binary against a workspace.
type Runner struct {
	cmd     CommandRunner
	timeout time.Duration
	log     *zap.Logger
}

// NewRunner creates a Runner. A zero timeout lets the scanner run until it
// exits or ctx is cancelled.
func NewRunner(cmd CommandRunner, timeout time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cmd: cmd, timeout: timeout, log: log}
}

// Run executes exe with root as both working directory and sole argument.
// Exit codes 0 and 1 both mean the scan completed.
func (r *Runner) Run(ctx context.Context, exe, root string, stdout, stderr io.Writer) (*RawScanResult, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var errBuf strings.Builder
	stderr = io.MultiWriter(stderr, &errBuf)

	r.log.Debug("spawning scanner", zap.String("exe", exe), zap.String("dir", root))
	start := time.Now()
	code, err := r.cmd.Run(runCtx, root, exe, []string{root}, stdout, stderr)
	raw := &RawScanResult{
		ExitCode: code,
		Stderr:   sanitizeBlock(errBuf.String()),
		Duration: time.Since(start),
	}

	if err != nil {
		var spawnErr *SpawnError
		if errors.As(err, &spawnErr) {
			return raw, err
		}
		if ctx.Err() == nil && runCtx.Err() == context.DeadlineExceeded {
			r.log.Warn("scanner timed out", zap.Duration("timeout", r.timeout))
			return raw, &TimeoutError{Timeout: r.timeout}
		}
		return raw, fmt.Errorf("run scanner: %w", err)
	}

	r.log.Debug("scanner exited", zap.Int("exit_code", code), zap.Duration("duration", raw.Duration))
	if code != 0 && code != 1 {
		return raw, &NonRecoverableExitError{ExitCode: code, Stderr: raw.Stderr}
	}
	return raw, nil
}
