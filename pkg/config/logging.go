package config

import (
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

// SetupLogging sets the stdout threshold from a level name. Unknown names
// fall back to info.
func SetupLogging(level string) {
	jww.SetStdoutThreshold(ParseLevel(level))
}

func ParseLevel(level string) jww.Threshold {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return jww.LevelTrace
	case "debug":
		return jww.LevelDebug
	case "warn", "warning":
		return jww.LevelWarn
	case "error":
		return jww.LevelError
	case "fatal":
		return jww.LevelFatal
	}
	return jww.LevelInfo
}
