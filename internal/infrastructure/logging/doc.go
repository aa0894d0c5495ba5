// Package logging provides structured logging for the audio node.
//
// It wraps log/slog with configuration-driven level, format and output
// selection, and stamps every record with the service name and version.
// Components that want to be testable without a concrete logger accept a
// narrow Logger interface locally and default to a no-op implementation.
package logging
