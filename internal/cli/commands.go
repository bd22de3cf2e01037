package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/GriffinCanCode/miniapp/internal/app"
	"github.com/GriffinCanCode/miniapp/internal/domain/permission"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/server"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// ServeCommand runs the HTTP and bridge server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the REST API and the bundle bridge",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			srv, err := server.NewServer(cfg, server.Options{Logger: logger})
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			defer func() { _ = srv.Close() }()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Run(ctx); err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			return nil
		},
	}
}

// ListCommand lists published apps
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List published apps, or the versions of one app",
		ArgsUsage: "[app-id]",
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(ctx context.Context, rt *app.Runtime) (interface{}, error) {
				return rt.Resolver.List(ctx, c.Args().First())
			})
		},
	}
}

// InfoCommand shows the cached versions of one app
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show the versions of an app cached on this host",
		ArgsUsage: "<app-id>",
		Action: func(c *cli.Context) error {
			appID, err := requireAppID(c)
			if err != nil {
				return err
			}
			return withRuntime(c, func(ctx context.Context, rt *app.Runtime) (interface{}, error) {
				records, err := rt.Store.Records(ctx, appID)
				if err != nil {
					return nil, err
				}
				if records == nil {
					records = []types.CachedVersionRecord{}
				}
				return map[string]interface{}{"app_id": appID, "records": records}, nil
			})
		},
	}
}

// FetchCommand makes an app ready to launch
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Resolve, download and verify an app",
		ArgsUsage: "<app-id>",
		Flags:     []cli.Flag{versionFlag},
		Action: func(c *cli.Context) error {
			appID, err := requireAppID(c)
			if err != nil {
				return err
			}
			return withRuntime(c, func(ctx context.Context, rt *app.Runtime) (interface{}, error) {
				res, err := rt.Loader.Load(ctx, appID, c.String(versionFlag.Name))
				if err != nil && errors.Is(err, types.ErrMetaDataFailure) && res != nil {
					return res, cli.Exit(err.Error(), ExitConsentRequired)
				}
				if err != nil {
					return nil, err
				}
				return res, nil
			})
		},
	}
}

// GrantsCommand shows recorded and pending consent
func GrantsCommand() *cli.Command {
	return &cli.Command{
		Name:      "grants",
		Usage:     "Show the grants and pending consent of a loaded app",
		ArgsUsage: "<app-id>",
		Action: func(c *cli.Context) error {
			appID, err := requireAppID(c)
			if err != nil {
				return err
			}
			return withRuntime(c, func(ctx context.Context, rt *app.Runtime) (interface{}, error) {
				manifest, err := loadedManifest(ctx, rt, appID)
				if err != nil {
					return nil, err
				}
				grants, err := rt.Engine.Grants(ctx, appID)
				if err != nil {
					return nil, err
				}
				pending, err := rt.Engine.Pending(ctx, appID, manifest)
				if err != nil {
					return nil, err
				}
				if grants == nil {
					grants = []types.Grant{}
				}
				if pending == nil {
					pending = []types.PermissionRequest{}
				}
				return map[string]interface{}{"grants": grants, "pending": pending}, nil
			})
		},
	}
}

// ConsentCommand records decisions given as NAME=STATUS pairs
func ConsentCommand() *cli.Command {
	return &cli.Command{
		Name:      "consent",
		Usage:     "Record consent decisions for a loaded app",
		ArgsUsage: "<app-id> PERMISSION=ALLOWED|DENIED...",
		Action: func(c *cli.Context) error {
			appID, err := requireAppID(c)
			if err != nil {
				return err
			}
			decisions, err := parseDecisions(c.Args().Tail())
			if err != nil {
				return cli.Exit(err.Error(), ExitFailure)
			}
			return withRuntime(c, func(ctx context.Context, rt *app.Runtime) (interface{}, error) {
				manifest, err := loadedManifest(ctx, rt, appID)
				if err != nil {
					return nil, err
				}
				grants, err := rt.Engine.Record(ctx, appID, manifest, decisions)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"grants": grants}, nil
			})
		},
	}
}

// GCCommand collects stale records and directories
func GCCommand() *cli.Command {
	return &cli.Command{
		Name:  "gc",
		Usage: "Remove stale records, orphaned versions and staging leftovers",
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(ctx context.Context, rt *app.Runtime) (interface{}, error) {
				return rt.Loader.Collect(ctx)
			})
		},
	}
}

func requireAppID(c *cli.Context) (string, error) {
	appID := c.Args().First()
	if appID == "" {
		return "", cli.Exit("an app id is required", ExitFailure)
	}
	if err := types.ValidateAppID(appID); err != nil {
		return "", cli.Exit(err.Error(), ExitFailure)
	}
	return appID, nil
}

func loadedManifest(ctx context.Context, rt *app.Runtime, appID string) (*types.Manifest, error) {
	manifest, err := rt.Store.Manifest(ctx, appID)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, types.NewError(types.KindNotFound, appID+" has not been loaded")
	}
	return manifest, nil
}

// parseDecisions reads NAME=STATUS pairs; STATUS defaults to ALLOWED
func parseDecisions(args []string) ([]permission.Decision, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one NAME=STATUS decision is required")
	}
	out := make([]permission.Decision, 0, len(args))
	for _, arg := range args {
		name, status, found := strings.Cut(arg, "=")
		if !found {
			status = string(types.GrantAllowed)
		}
		d := permission.Decision{
			Type:   types.PermissionType(strings.TrimSpace(name)),
			Status: types.GrantStatus(strings.ToUpper(strings.TrimSpace(status))),
		}
		if d.Type == "" {
			return nil, fmt.Errorf("decision %q has no permission name", arg)
		}
		if !d.Status.Valid() {
			return nil, fmt.Errorf("decision %q has unknown status %q", arg, status)
		}
		out = append(out, d)
	}
	return out, nil
}
