package filtering

import "strings"

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelFatal
	levelOff

	levelUnknown = -1
)

// parseLevel maps a log level name to its rank. Boolean values are accepted
// for settings: false disables the source, true lets everything through.
func parseLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "true", "1", "yes":
		return levelTrace
	case "debug":
		return levelDebug
	case "info", "information":
		return levelInfo
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	case "fatal", "critical":
		return levelFatal
	case "off", "false", "0", "no":
		return levelOff
	}
	return levelUnknown
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}
