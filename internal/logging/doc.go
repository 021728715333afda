// Package logging configures the process-wide slog logger: JSON records
// written to a size-rotated file under ~/.amanfind/logs, optionally teed
// to stderr. Stdout is never used so the MCP stdio transport stays clean.
package logging
