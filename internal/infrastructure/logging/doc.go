// Package logging builds the zap loggers handed to every component.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Logs go to stderr by default so CLI output on stdout stays parseable.
// Components accept a *zap.Logger and fall back to a no-op logger via OrNop.
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Info("bundle ready", logging.Identity(id))
package logging
