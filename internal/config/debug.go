package config

import "os"

func IsDebug() bool {
	return os.Getenv("BRAIN_DEBUG") == "1"
}

// LogFormat is read before .env is loaded, so only the process
// environment counts.
func LogFormat() string {
	if os.Getenv("LOG_FORMAT") == "json" {
		return "json"
	}
	return "console"
}
