package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/GriffinCanCode/miniapp/internal/app"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
)

// Version is reported by --version
var Version = "dev"

// Exit codes
const (
	ExitFailure         = 1
	ExitConsentRequired = 3
)

// New builds the miniapp app writing results to out
func New(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "miniapp",
		Usage:   "Fetch, verify and host platform mini-app bundles",
		Version: Version,
		Writer:  out,
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			ListCommand(),
			InfoCommand(),
			FetchCommand(),
			GrantsCommand(),
			ConsentCommand(),
			GCCommand(),
		},
	}
}

// loadConfig reads --config and applies --log-level
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(ConfigFlag.Name))
	if err != nil {
		return nil, err
	}
	if level := c.String(LogLevelFlag.Name); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
}

// withRuntime runs fn against a freshly wired runtime and renders its result
func withRuntime(c *cli.Context, fn func(ctx context.Context, rt *app.Runtime) (interface{}, error)) error {
	r, err := NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := app.New(cfg, app.Options{Logger: logger.Logger})
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "close store: %v\n", cerr)
		}
	}()

	out, err := fn(c.Context, rt)
	exit, isExit := err.(cli.ExitCoder)
	if err != nil && !isExit {
		return cli.Exit(err.Error(), ExitFailure)
	}
	if rerr := r.Render(out); rerr != nil {
		return cli.Exit(rerr.Error(), ExitFailure)
	}
	if isExit {
		return exit
	}
	return nil
}
