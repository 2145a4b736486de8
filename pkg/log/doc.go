/*
Package log provides the process-wide structured logger.

Logging is built on zerolog. Init configures a single global Logger; every
package logs through it or through a child logger carrying a context field:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	log.Logger.Info().Str("collector", "compute").Int("nodes", 12).Msg("Compute model rebuilt")

	logger := log.WithAuditID(audit.ID)
	logger.Warn().Err(err).Msg("Audit failed")

Child loggers:

	WithComponent  component=<name>   long-running subsystems
	WithCollector  collector=<name>   collection scheduler jobs
	WithAuditID    audit_id=<id>      audit workers
	WithStrategy   strategy=<name>    strategy runs
	WithEndpoint   endpoint=<name>    notification endpoints

Console output (the default) is meant for a terminal; set JSONOutput in
production so log shippers can parse the fields.
*/
package log
