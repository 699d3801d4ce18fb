package observability

import (
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// SetLogLevel applies a textual level to the global fiber logger. Unknown
// levels fall back to info.
func SetLogLevel(level string) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", level)
	}
}
