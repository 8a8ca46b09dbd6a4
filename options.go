package jseval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jseval/internal/infrastructure/config"
)

// Option configures an Evaluator.
type Option func(*options)

type options struct {
	config     *config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer
	env        []string

	executable   *string
	args         []string
	readyTimeout time.Duration
	readyStep    time.Duration
}

// WithConfig replaces the configuration loaded from the environment.
// Other options take precedence over it regardless of order.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithExecutable sets the sidecar executable and the arguments placed
// before the endpoint flag.
func WithExecutable(path string, args ...string) Option {
	return func(o *options) {
		o.executable = &path
		o.args = args
	}
}

// WithReadyTimeout bounds how long New waits for the sidecar's socket.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readyTimeout = d
	}
}

// WithReadyStep sets the interval between socket checks.
func WithReadyStep(d time.Duration) Option {
	return func(o *options) {
		o.readyStep = d
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers evaluator metrics on reg. Evaluators sharing a
// registerer share their collectors.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithEnv adds KEY=value entries to the sidecar's environment.
func WithEnv(env []string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// resolve applies opts and returns a validated configuration.
func resolve(opts []Option) (*options, config.Config, error) {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	var cfg config.Config
	if o.config != nil {
		cfg = *o.config
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, cfg, err
		}
		cfg = *loaded
	}

	if o.executable != nil {
		cfg.Sidecar.Executable = *o.executable
		cfg.Sidecar.Args = o.args
	}
	if o.readyTimeout > 0 {
		cfg.Sidecar.ReadyTimeout = config.Duration(o.readyTimeout)
	}
	if o.readyStep > 0 {
		cfg.Sidecar.ReadyStep = config.Duration(o.readyStep)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	return o, cfg, nil
}

// Config is the evaluator configuration.
type Config = config.Config

// DefaultConfig returns the built-in configuration, ignoring the environment.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads the configuration from JSEVAL_* environment variables,
// overlaid with the YAML or TOML file at path when path is not empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
