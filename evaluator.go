package jseval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jseval/internal/infrastructure/config"
	"github.com/GriffinCanCode/jseval/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jseval/internal/process"
	"github.com/GriffinCanCode/jseval/internal/protocol"
	"github.com/GriffinCanCode/jseval/internal/readiness"
	"github.com/GriffinCanCode/jseval/internal/shared/id"
	"github.com/GriffinCanCode/jseval/internal/transport"
)

// maxSocketPath is the smallest sun_path limit among supported platforms.
const maxSocketPath = 104

// Mode selects sync or async evaluation.
type Mode = protocol.Mode

// Evaluation modes.
const (
	ModeSync  = protocol.ModeSync
	ModeAsync = protocol.ModeAsync
)

// SidecarInfo describes a running sidecar.
type SidecarInfo struct {
	PID       int
	PGID      int
	Endpoint  string
	SessionID string
}

// Evaluator evaluates code in one sidecar. It is safe for concurrent use;
// calls do not wait for each other.
type Evaluator struct {
	id      id.SessionID
	config  config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	dir      string
	endpoint string
	handle   *process.Handle
	session  *transport.Session

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New starts a sidecar and waits until it accepts requests. ctx bounds
// setup only; cancelling it later does not affect the Evaluator. On any
// failure everything acquired so far is released before New returns.
func New(ctx context.Context, opts ...Option) (*Evaluator, error) {
	o, cfg, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	sessionID := id.NewSessionID()
	e := &Evaluator{
		id:     sessionID,
		config: cfg,
		logger: o.logger.With(zap.String("session_id", sessionID.String())),
	}
	if o.registerer != nil {
		e.metrics = monitoring.NewMetrics(o.registerer)
	}

	start := time.Now()
	if reason, err := e.setup(ctx, o.env); err != nil {
		e.metrics.RecordSetupFailure(reason)
		if releaseErr := e.release(); releaseErr != nil {
			e.logger.Warn("Cleanup after failed setup incomplete", zap.Error(releaseErr))
		}
		e.closed.Store(true)
		return nil, err
	}
	e.metrics.RecordSetup(time.Since(start))

	e.logger.Info("Evaluator ready",
		zap.Int("pid", e.handle.PID),
		zap.Int("pgid", e.handle.PGID),
		zap.String("endpoint", e.endpoint),
		zap.Duration("duration", time.Since(start)))
	return e, nil
}

// setup acquires the temp dir, the sidecar and the session, in that order.
// It returns the failure reason for metrics alongside any error.
func (e *Evaluator) setup(ctx context.Context, env []string) (string, error) {
	s := e.config.Sidecar

	dir, err := os.MkdirTemp("", s.TempPattern)
	if err != nil {
		return monitoring.ReasonTempDir, fmt.Errorf("failed to create temp dir: %w", err)
	}
	e.dir = dir
	e.endpoint = filepath.Join(dir, s.SocketName)
	if len(e.endpoint) >= maxSocketPath {
		return monitoring.ReasonTempDir, fmt.Errorf("socket path %q is too long for a unix socket", e.endpoint)
	}

	sig, err := s.Signal()
	if err != nil {
		return monitoring.ReasonSpawn, err
	}
	args := make([]string, 0, len(s.Args)+2)
	args = append(args, s.Args...)
	args = append(args, s.EndpointFlag, e.endpoint)

	handle, err := process.Spawn(ctx, process.Spec{
		Executable: s.Executable,
		Args:       args,
		Env:        env,
		Signal:     sig,
		KillGrace:  s.KillGrace.Std(),
		Logger:     e.logger,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return monitoring.ReasonCanceled, err
		}
		return monitoring.ReasonSpawn, err
	}
	e.handle = handle
	e.metrics.IncSidecars()

	listening := readiness.FileExists(e.endpoint)
	err = readiness.Poll(ctx, func() bool {
		return listening() || !handle.Alive()
	}, s.ReadyStep.Std(), s.ReadyTimeout.Std())
	switch {
	case errors.Is(err, readiness.ErrTimeout):
		return monitoring.ReasonTimeout, fmt.Errorf("%w: %w", ErrSetupTimeout, err)
	case err != nil:
		return monitoring.ReasonCanceled, fmt.Errorf("waiting for sidecar: %w", err)
	case !listening():
		return monitoring.ReasonExited, exitedEarly(handle.ExitErr())
	}

	t := e.config.Transport
	session, err := transport.Open(e.endpoint, transport.Options{
		MaxConns:  t.MaxConns,
		RateLimit: t.RateLimit,
		RateBurst: t.RateBurst,
		Logger:    e.logger,
	})
	if err != nil {
		return monitoring.ReasonTransport, err
	}
	e.session = session
	return "", nil
}

// exitedEarly reports a sidecar that died before creating its endpoint. It
// matches ErrSetupTimeout since the sidecar can no longer become ready.
func exitedEarly(status error) error {
	if status == nil {
		return fmt.Errorf("%w: sidecar exited before listening", ErrSetupTimeout)
	}
	return fmt.Errorf("%w: sidecar exited before listening: %w", ErrSetupTimeout, status)
}

// release tears down in reverse order of acquisition. Only the temp dir
// removal can fail.
func (e *Evaluator) release() error {
	if e.session != nil {
		e.session.Close()
	}
	if e.handle != nil {
		e.handle.Terminate()
		e.metrics.DecSidecars()
	}
	if e.dir != "" {
		if err := os.RemoveAll(e.dir); err != nil {
			return fmt.Errorf("failed to remove temp dir: %w", err)
		}
	}
	return nil
}

// Close shuts the sidecar down and removes its temp dir. Subsequent calls
// return the first call's result.
func (e *Evaluator) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.release()
		e.logger.Info("Evaluator closed", zap.NamedError("cleanup_error", e.closeErr))
	})
	return e.closeErr
}

// With creates an Evaluator, passes it to fn and closes it afterwards, even
// if fn panics. Both fn's error and the close error are returned.
func With(ctx context.Context, fn func(*Evaluator) error, opts ...Option) (err error) {
	e, err := New(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, e.Close())
	}()
	return fn(e)
}

// Run evaluates code as the body of a plain function and returns the
// decoded result. JSON numbers decode to float64.
func (e *Evaluator) Run(ctx context.Context, code string) (any, error) {
	return e.decode(ctx, code, ModeSync)
}

// RunAsync evaluates code as the body of an async function, so it may
// await, and returns the decoded result.
func (e *Evaluator) RunAsync(ctx context.Context, code string) (any, error) {
	return e.decode(ctx, code, ModeAsync)
}

// EvalInto evaluates code and decodes the result into out.
func (e *Evaluator) EvalInto(ctx context.Context, code string, mode Mode, out any) error {
	raw, err := e.Eval(ctx, code, mode)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

func (e *Evaluator) decode(ctx context.Context, code string, mode Mode) (any, error) {
	var v any
	if err := e.EvalInto(ctx, code, mode, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Eval evaluates code in mode and returns the raw JSON result. A result
// the code did not explicitly return is JSON null.
func (e *Evaluator) Eval(ctx context.Context, code string, mode Mode) (json.RawMessage, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	requestID := id.NewRequestID()
	timer := monitoring.NewTimer(e.metrics, mode.String())

	resp, err := e.session.Run(transport.WithRequestID(ctx, requestID.String()), protocol.Request{Code: code}, mode)
	if err != nil {
		outcome := monitoring.OutcomeTransport
		if ctx.Err() != nil {
			outcome = monitoring.OutcomeCanceled
		}
		duration := timer.Stop(outcome)
		e.logger.Warn("Evaluation request failed",
			zap.String("request_id", requestID.String()),
			zap.Stringer("mode", mode),
			zap.Duration("duration", duration),
			zap.Error(err))
		if e.closed.Load() {
			return nil, fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return nil, err
	}

	if resp.Failed() {
		duration := timer.Stop(monitoring.OutcomeError)
		e.logger.Debug("Evaluation raised",
			zap.String("request_id", requestID.String()),
			zap.Stringer("mode", mode),
			zap.Duration("duration", duration),
			zap.String("error", resp.Error.Message),
			zap.Int("cause_depth", resp.Error.Depth()))
		return nil, &EvaluationError{Object: resp.Error}
	}

	duration := timer.Stop(monitoring.OutcomeOK)
	e.logger.Debug("Evaluation finished",
		zap.String("request_id", requestID.String()),
		zap.Stringer("mode", mode),
		zap.Duration("duration", duration))
	return resp.Value(), nil
}

// Sidecar describes the running sidecar.
func (e *Evaluator) Sidecar() SidecarInfo {
	return SidecarInfo{
		PID:       e.handle.PID,
		PGID:      e.handle.PGID,
		Endpoint:  e.endpoint,
		SessionID: e.id.String(),
	}
}
