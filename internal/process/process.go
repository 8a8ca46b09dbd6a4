// Package process launches the evaluation sidecar as the leader of its own
// process group and tears the whole group down again.
//
// The sidecar is expected to start helpers of its own (npx starts node,
// node may start workers). Signalling only the direct child would orphan
// those, so every signal goes to the negative PGID.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/jseval/internal/readiness"
)

const (
	groupProbeInterval = 20 * time.Millisecond
	outputDrainTimeout = time.Second
)

// Spec describes the sidecar to launch.
type Spec struct {
	Executable string
	Args       []string

	// Env is appended to the current environment. Nil inherits it unchanged.
	Env []string
	Dir string

	// Signal is sent to the process group on Terminate. Defaults to SIGINT.
	Signal syscall.Signal

	// KillGrace is how long Terminate waits after Signal before sending
	// SIGKILL to whatever is left of the group. Zero waits indefinitely
	// for the direct child and does not escalate.
	KillGrace time.Duration

	Logger *zap.Logger
}

// SpawnError reports that the sidecar could not be launched.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn sidecar %q: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Handle is a running sidecar. It is owned by exactly one evaluator.
type Handle struct {
	PID        int
	PGID       int
	Executable string

	cmd    *exec.Cmd
	signal syscall.Signal
	grace  time.Duration
	logger *zap.Logger

	done    chan struct{}
	exitErr error

	output    sync.WaitGroup
	terminate sync.Once
}

// Spawn starts spec.Executable in a new session, making it the leader of a
// fresh process group detached from the caller's.
func Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Executable == "" {
		return nil, &SpawnError{Executable: spec.Executable, Err: errors.New("no executable configured")}
	}

	logger := spec.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sig := spec.Signal
	if sig == 0 {
		sig = unix.SIGINT
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// The pipes are created here rather than with cmd.StdoutPipe so that
	// Wait does not depend on descendants closing their inherited copies.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}
	stdoutW.Close()
	stderrW.Close()

	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// The child may already have exited; with Setsid its group is its PID.
		pgid = pid
	}

	h := &Handle{
		PID:        pid,
		PGID:       pgid,
		Executable: spec.Executable,
		cmd:        cmd,
		signal:     sig,
		grace:      spec.KillGrace,
		logger:     logger.With(zap.Int("pid", pid), zap.Int("pgid", pgid)),
		done:       make(chan struct{}),
	}

	h.output.Add(2)
	go h.forward(stdoutR, "stdout")
	go h.forward(stderrR, "stderr")
	go h.monitor()

	h.logger.Debug("Sidecar started", zap.String("executable", spec.Executable), zap.Strings("args", spec.Args))
	return h, nil
}

// monitor reaps the direct child as soon as it exits.
func (h *Handle) monitor() {
	err := h.cmd.Wait()
	h.exitErr = err
	close(h.done)
}

// Done is closed once the direct child has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the direct child is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the child's exit status once Done is closed.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

// Terminate signals the whole process group, waits for the direct child to
// be reaped and, when a kill grace is configured, makes sure no member of
// the group survives it. It is idempotent and never fails: a group that is
// already gone is the desired end state.
func (h *Handle) Terminate() {
	h.terminate.Do(h.doTerminate)
}

func (h *Handle) doTerminate() {
	h.signalGroup(h.signal)

	if h.grace > 0 {
		timer := time.NewTimer(h.grace)
		select {
		case <-h.done:
			timer.Stop()
		case <-timer.C:
			h.logger.Warn("Sidecar ignored interrupt, killing process group", zap.Duration("grace", h.grace))
			h.signalGroup(unix.SIGKILL)
			<-h.done
		}

		// Descendants can outlive the leader, e.g. background jobs of a
		// shell, which ignore SIGINT.
		err := readiness.Poll(context.Background(), h.groupGone, groupProbeInterval, h.grace)
		if err != nil {
			h.logger.Warn("Process group outlived sidecar, killing it", zap.Error(err))
			h.signalGroup(unix.SIGKILL)
		}
	} else {
		<-h.done
	}

	h.logger.Debug("Sidecar exited", zap.NamedError("status", h.exitErr))

	drained := make(chan struct{})
	go func() {
		h.output.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(outputDrainTimeout):
	}
}

// signalGroup delivers sig to every process in the sidecar's group.
// ESRCH means the group is already empty and is not an error.
func (h *Handle) signalGroup(sig syscall.Signal) {
	if err := unix.Kill(-h.PGID, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		h.logger.Warn("Failed to signal process group", zap.Stringer("signal", sig), zap.Error(err))
	}
}

func (h *Handle) groupGone() bool {
	return errors.Is(unix.Kill(-h.PGID, 0), unix.ESRCH)
}
