package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/jseval"
	"github.com/GriffinCanCode/jseval/internal/infrastructure/logging"
)

const usage = `Usage: jseval [flags] [-e code | file | -]

Evaluates JavaScript in a sidecar and prints the JSON result.

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("jseval", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	async := flags.Bool("async", false, "Evaluate as the body of an async function")
	code := flags.StringP("eval", "e", "", "Code to evaluate")
	configFile := flags.String("config", "", "YAML or TOML config file")
	executable := flags.String("executable", "", "Sidecar executable (default from config)")
	readyTimeout := flags.Duration("ready-timeout", 0, "How long to wait for the sidecar (default from config)")
	verbose := flags.BoolP("verbose", "v", false, "Log sidecar lifecycle to stderr")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	src, err := readSource(flags, *code, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "jseval: %v\n", err)
		return 2
	}

	cfg, err := jseval.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "jseval: %v\n", err)
		return 2
	}

	opts := []jseval.Option{jseval.WithConfig(cfg)}
	if *executable != "" {
		opts = append(opts, jseval.WithExecutable(*executable, cfg.Sidecar.Args...))
	}
	if *readyTimeout > 0 {
		opts = append(opts, jseval.WithReadyTimeout(*readyTimeout))
	}
	if *verbose {
		logger := logging.NewDevelopment()
		defer logger.Sync()
		opts = append(opts, jseval.WithLogger(logger.Logger))
	}

	mode := jseval.ModeSync
	if *async {
		mode = jseval.ModeAsync
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = jseval.With(ctx, func(e *jseval.Evaluator) error {
		result, err := e.Eval(ctx, src, mode)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(result))
		return nil
	}, opts...)

	var evalErr *jseval.EvaluationError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &evalErr):
		fmt.Fprintln(stderr, evalErr.Error())
		return 1
	default:
		fmt.Fprintf(stderr, "jseval: %v\n", err)
		return 3
	}
}

// readSource returns the code from -e, a file argument, or stdin for "-".
func readSource(flags *pflag.FlagSet, code string, stdin io.Reader) (string, error) {
	if flags.Changed("eval") {
		if flags.NArg() > 0 {
			return "", errors.New("-e and a file argument are mutually exclusive")
		}
		return code, nil
	}

	switch flags.NArg() {
	case 0:
		return "", errors.New("no code given, use -e, a file or -")
	case 1:
	default:
		return "", errors.New("only one file may be given")
	}

	var (
		data []byte
		err  error
	)
	if name := flags.Arg(0); name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	return string(data), nil
}
