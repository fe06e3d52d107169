// Package logging configures the proxy's zerolog output: console writer,
// global level, and a perr.Kind-aware error field so a log line for a
// pipeline failure shows which stage (parse, fetch, cache, ...) produced
// it instead of just the wrapped message.
package logging

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

// Setup sets console output, global level, and the error marshaler, then
// tags the global logger with a "component" field so lines from the proxy
// binary are distinguishable when aggregated alongside other services.
func Setup(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	zerolog.ErrorMarshalFunc = marshalError
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: zerolog.TimeFieldFormat}).
		With().Str("component", "proxy").Logger()
}

// marshalError expands a *perr.Error into its Kind and response status
// alongside the wrapped message, so an `error` field in a log line can be
// filtered by pipeline stage (e.g. "kind":"FetchFailed") rather than just
// grepped as free text. Any other error marshals as-is.
func marshalError(err error) any {
	var pe *perr.Error
	if errors.As(err, &pe) {
		return map[string]any{
			"kind":    string(pe.Kind),
			"status":  pe.Status,
			"message": pe.Error(),
		}
	}
	return err
}
