package env

import (
	"os"
	"strings"
)

var (
	// environment holds the current environment value retrieved from the ENVIRONMENT variable.
	environment = os.Getenv("ENVIRONMENT")
)

// IsDevelopment returns true if the current environment is set to "development".
func IsDevelopment() bool {
	return environment == "development"
}

// IsProduction returns true if the current environment is set to "production".
func IsProduction() bool {
	return environment == "production"
}

// IsRemote returns true if the application is running in either "production" or "development" mode.
// Remote environments get the JSON production logger.
func IsRemote() bool {
	return IsProduction() || IsDevelopment()
}

// IsLocal returns true if the application is running in a local environment.
func IsLocal() bool {
	return environment == "local" || environment == ""
}

func GetEnvironment() string {
	return environment
}

// Lookup returns the first non-blank value among the given variables.
func Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, true
		}
	}
	return "", false
}

// Hostname prefers HOSTNAME (set by most container runtimes) over the kernel hostname.
func Hostname() string {
	if h, ok := Lookup("HOSTNAME"); ok {
		return h
	}
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

// WorkingDir returns the process working directory or "" when it cannot be read.
func WorkingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
