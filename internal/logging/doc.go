// Package logging builds slog loggers for the transfer tool.
//
// It supports a compact console format for interactive use and a JSON
// format for scheduler log capture, plus attribute helpers and the
// standardized field names shared across components.
package logging
