package cli

import "github.com/urfave/cli/v2"

// Global flags shared by every command
var (
	// ConfigFlag points at a YAML or TOML config file
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a YAML or TOML config file",
		EnvVars: []string{"MINIAPP_CONFIG"},
	}

	// LogLevelFlag overrides the configured log level
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}

	// FormatFlag selects output format
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, yaml",
		Value:   string(FormatJSON),
	}
)

// GlobalFlags returns the flags mounted on the app
func GlobalFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, LogLevelFlag, FormatFlag}
}

// versionFlag selects a specific version
var versionFlag = &cli.StringFlag{
	Name:  "version",
	Usage: "Version id to load instead of the current one",
}
