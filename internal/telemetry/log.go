package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is text, json or logfmt. Defaults to text.
	Format string
}

// SetupLogger makes a charmbracelet logger the handler behind the default slog logger.
func SetupLogger(w io.Writer, c LogConfig) (*slog.Logger, error) {
	lvl := log.InfoLevel
	if c.Level != "" {
		var err error
		if lvl, err = log.ParseLevel(c.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	var f log.Formatter
	switch c.Format {
	case "", "text":
		f = log.TextFormatter
	case "json":
		f = log.JSONFormatter
	case "logfmt":
		f = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("log format: unknown %q", c.Format)
	}

	h := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       f,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})

	l := slog.New(h)
	slog.SetDefault(l)
	return l, nil
}
