package tlspump

import (
	"os"

	termutil "github.com/andrew-d/go-termutil"
	"github.com/hashicorp/go-hclog"
)

// NewDefaultLogger builds the hclog.Logger a caller gets if it does not
// supply its own via WithLogger: leveled output to stderr, with color
// enabled only when stderr is a terminal.
func NewDefaultLogger(name string) hclog.Logger {
	color := hclog.ColorOff
	if termutil.Isatty(os.Stderr.Fd()) {
		color = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           hclog.Info,
		Color:           color,
		Output:          os.Stderr,
		IncludeLocation: false,
	})
}

// NewLoggerFromEnv is like NewDefaultLogger but honors the TLSPUMP_LOG_LEVEL
// environment variable (e.g. "debug", "warn"), falling back to Info on an
// unset or unrecognized value.
func NewLoggerFromEnv(name string) hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("TLSPUMP_LOG_LEVEL"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	color := hclog.ColorOff
	if termutil.Isatty(os.Stderr.Fd()) {
		color = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Color:  color,
		Output: os.Stderr,
	})
}
