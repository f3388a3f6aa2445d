// Package logging builds the slog loggers used across webmill and carries
// the shared attribute helpers and component conventions.
package logging
