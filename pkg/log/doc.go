/*
Package log provides structured logging for Quiver using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers and configurable log levels. All logs include
timestamps and support filtering by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	routerLog := log.WithComponent("router")
	routerLog.Info().Uint64("hash", h).Str("shard_id", primary.ID).Msg("routed write")

The gateway emits JSON in production and human-readable console output in
development, selected by configuration.
*/
package log
