package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/properties"
)

var root = New(os.Stderr, "info")

// Setup configures the root logger from the environment. Call once at startup.
func Setup() {
	root = New(os.Stderr, properties.LogLevel())
}

// New builds a console logger writing to w at the named level.
func New(w io.Writer, level string) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(cw).Level(parseLevel(level)).With().Timestamp().Logger()
}

// Component returns a child of the root logger tagged with a subsystem name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
