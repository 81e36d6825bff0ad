package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

// getSecret reads key, or the file named by key_FILE when the variable is unset.
// Mounted secrets carry a trailing newline that is trimmed.
func getSecret(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if path, ok := os.LookupEnv(key + "_FILE"); ok && path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			return strings.TrimRight(string(raw), "\r\n")
		}
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsBool(key string, defaultVal bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

// getEnvAsStringSlice splits a comma separated list, dropping blanks.
func getEnvAsStringSlice(key string, defaults []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaults
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
