// Package transport carries evaluation requests to a sidecar over its
// private unix socket.
//
// A Session is a resty client whose only dial target is the socket, so no
// TCP port is ever opened. Requests are never retried: an evaluation may
// have side effects in the sidecar, and repeating it would repeat them.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/jseval/internal/protocol"
)

// baseURL is a placeholder; the dialer ignores the host.
const baseURL = "http://sidecar"

// Options configures a Session.
type Options struct {
	// MaxConns bounds concurrent connections to the sidecar. Zero means 64.
	MaxConns int
	// RateLimit throttles requests per second. Zero or less is unlimited.
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
}

// Session is an HTTP client bound to one sidecar endpoint. It is safe for
// concurrent use.
type Session struct {
	Endpoint string

	client    *resty.Client
	transport *http.Transport
	limiter   *rate.Limiter
	logger    *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// Open creates a session for the unix socket at endpoint. It does not
// connect until the first request.
func Open(endpoint string, opts Options) (*Session, error) {
	if endpoint == "" {
		return nil, &Error{Op: "open", Err: errors.New("empty endpoint")}
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{}
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", endpoint)
		},
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	client := resty.New().
		SetTransport(tr).
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "jseval/1.0")

	limiter := rate.NewLimiter(rate.Inf, 0) // Unlimited by default
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Session{
		Endpoint:  endpoint,
		client:    client,
		transport: tr,
		limiter:   limiter,
		logger:    logger.With(zap.String("endpoint", endpoint)),
	}, nil
}

// Run submits req for evaluation in mode and returns the decoded response.
// A response carrying an evaluation error is returned without error; the
// caller decides what it means. Any failure to obtain a well-formed
// response is an *Error.
func (s *Session) Run(ctx context.Context, req protocol.Request, mode protocol.Mode) (*protocol.Response, error) {
	if s.closed.Load() {
		return nil, s.fail("post", 0, ErrClosed)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, s.fail("throttle", 0, err)
	}

	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, s.fail("encode", 0, err)
	}

	r := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetQueryParam(protocol.AsyncParam, mode.QueryValue())
	requestID := RequestIDFromContext(ctx)
	if requestID != "" {
		r.SetHeader(protocol.RequestIDHeader, requestID)
	}

	start := time.Now()
	resp, err := r.Post(protocol.RunPath)
	if err != nil {
		return nil, s.fail("post", 0, err)
	}

	s.logger.Debug("Sidecar responded",
		zap.String("request_id", requestID),
		zap.Stringer("mode", mode),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))

	out, err := decodeResponse(resp.Body())
	if err != nil {
		if !resp.IsSuccess() {
			return nil, s.fail("post", resp.StatusCode(), ErrUnexpectedStatus)
		}
		return nil, s.fail("decode", resp.StatusCode(), err)
	}

	// An evaluation error wins regardless of status.
	if out.Error != nil {
		return out, nil
	}
	if !resp.IsSuccess() {
		return nil, s.fail("post", resp.StatusCode(), ErrUnexpectedStatus)
	}
	return out, nil
}

// decodeResponse accepts only a JSON object whose "error" member, when
// present, is itself an object.
func decodeResponse(body []byte) (*protocol.Response, error) {
	root, err := sonic.Get(body)
	if err != nil {
		return nil, err
	}
	if t := root.TypeSafe(); t != ast.V_OBJECT {
		return nil, fmt.Errorf("%w: body is %s, not an object", ErrMalformedResponse, typeName(t))
	}
	if e := root.Get("error"); e.Exists() && e.TypeSafe() != ast.V_OBJECT {
		return nil, fmt.Errorf("%w: error is %s, not an object", ErrMalformedResponse, typeName(e.TypeSafe()))
	}

	var out protocol.Response
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func typeName(t int) string {
	switch t {
	case ast.V_NULL:
		return "null"
	case ast.V_TRUE, ast.V_FALSE:
		return "a boolean"
	case ast.V_ARRAY:
		return "an array"
	case ast.V_STRING:
		return "a string"
	case ast.V_NUMBER:
		return "a number"
	default:
		return "invalid"
	}
}

// Close releases idle connections. Requests in flight are not interrupted.
// It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.transport.CloseIdleConnections()
	})
	return nil
}

func (s *Session) fail(op string, status int, err error) error {
	return &Error{Op: op, Endpoint: s.Endpoint, StatusCode: status, Err: err}
}
