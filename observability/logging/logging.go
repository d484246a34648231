package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures process-wide structured JSON logging and returns the
// slog.Logger the service should pass to its components. Every line carries
// the service name, plus the environment when provided.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	args := []any{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		args = append(args, slog.String("env", env))
	}

	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	// Route the stdlib logger through the same handler so dependency log
	// lines stay structured.
	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
