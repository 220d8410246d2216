package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsandov/airbrake-go/pkg/env"
)

const (
	DefaultHost      = "https://api.airbrake.io"
	DefaultTimeout   = 5 * time.Second
	DefaultSeverity  = "error"
	DefaultMaxFrames = 64
	DefaultMaxCauses = 3
)

var ErrNotConfigured = errors.New("airbrake: api key (APIKey) and project id (ProjectID) must be set, " +
	"either explicitly or through AIRBRAKE_API_KEY and AIRBRAKE_PROJECT_ID")

// Config holds everything a notifier needs. Zero values mean "not set" and are
// filled from the environment and then from defaults by Resolve.
type Config struct {
	ProjectID     string
	APIKey        string
	Host          string
	Environment   string
	Hostname      string
	RootDirectory string
	Severity      string
	Timeout       time.Duration
	AppVersion    string
	Revision      string

	// SendUncaughtPanics is a pointer so an explicit false survives Resolve.
	SendUncaughtPanics *bool

	MaxFrames int
	MaxCauses int

	// Whitelist and Blacklist name keys of params, environment and session
	// whose values are replaced with "[Filtered]".
	Whitelist []string
	Blacklist []string

	// DedupeTTL is how long an already reported error is suppressed. Zero disables dedupe.
	DedupeTTL time.Duration
}

// Bool is a helper for the optional boolean fields.
func Bool(b bool) *bool { return &b }

// FromEnv reads the AIRBRAKE_* variables. Unset variables stay zero.
func FromEnv() Config {
	var c Config
	c.ProjectID, _ = env.Lookup("AIRBRAKE_PROJECT_ID")
	c.APIKey, _ = env.Lookup("AIRBRAKE_API_KEY")
	c.Host, _ = env.Lookup("AIRBRAKE_HOST")
	c.Environment, _ = env.Lookup("AIRBRAKE_ENVIRONMENT", "ENVIRONMENT")
	c.RootDirectory, _ = env.Lookup("AIRBRAKE_ROOT_DIRECTORY")
	c.Severity, _ = env.Lookup("AIRBRAKE_SEVERITY")
	c.AppVersion, _ = env.Lookup("AIRBRAKE_APP_VERSION", "APP_VERSION")
	c.Revision, _ = env.Lookup("AIRBRAKE_REVISION")
	if h, ok := env.Lookup("HOSTNAME"); ok {
		c.Hostname = h
	}
	if v, ok := env.Lookup("AIRBRAKE_TIMEOUT"); ok {
		if d, err := parseTimeout(v); err == nil {
			c.Timeout = d
		}
	}
	if v, ok := env.Lookup("AIRBRAKE_DEDUPE_TTL"); ok {
		if d, err := parseTimeout(v); err == nil {
			c.DedupeTTL = d
		}
	}
	if v, ok := env.Lookup("AIRBRAKE_SEND_UNCAUGHT"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SendUncaughtPanics = &b
		}
	}
	return c
}

// parseTimeout accepts either a Go duration ("2s") or a number of seconds ("2", "0.5").
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", v, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Merge returns c with every unset field taken from fallback. Set fields of c win.
func (c Config) Merge(fallback Config) Config {
	out := c
	pick := func(dst *string, fb string) {
		if *dst == "" {
			*dst = fb
		}
	}
	pick(&out.ProjectID, fallback.ProjectID)
	pick(&out.APIKey, fallback.APIKey)
	pick(&out.Host, fallback.Host)
	pick(&out.Environment, fallback.Environment)
	pick(&out.Hostname, fallback.Hostname)
	pick(&out.RootDirectory, fallback.RootDirectory)
	pick(&out.Severity, fallback.Severity)
	pick(&out.AppVersion, fallback.AppVersion)
	pick(&out.Revision, fallback.Revision)
	if out.Timeout == 0 {
		out.Timeout = fallback.Timeout
	}
	if out.SendUncaughtPanics == nil {
		out.SendUncaughtPanics = fallback.SendUncaughtPanics
	}
	if out.MaxFrames == 0 {
		out.MaxFrames = fallback.MaxFrames
	}
	if out.MaxCauses == 0 {
		out.MaxCauses = fallback.MaxCauses
	}
	if out.Whitelist == nil {
		out.Whitelist = fallback.Whitelist
	}
	if out.Blacklist == nil {
		out.Blacklist = fallback.Blacklist
	}
	if out.DedupeTTL == 0 {
		out.DedupeTTL = fallback.DedupeTTL
	}
	return out
}

// Resolve layers explicit values over the environment over defaults and validates the result.
// The returned Config owns its slices.
func Resolve(explicit Config) (Config, error) {
	c := explicit.Merge(FromEnv()).Merge(Defaults())
	c.Host = strings.TrimRight(c.Host, "/")
	c.Whitelist = append([]string(nil), c.Whitelist...)
	c.Blacklist = append([]string(nil), c.Blacklist...)
	if c.SendUncaughtPanics != nil {
		c.SendUncaughtPanics = Bool(*c.SendUncaughtPanics)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Defaults are the values used when neither the caller nor the environment set a field.
func Defaults() Config {
	return Config{
		Host:               DefaultHost,
		Environment:        "development",
		Hostname:           env.Hostname(),
		RootDirectory:      env.WorkingDir(),
		Severity:           DefaultSeverity,
		Timeout:            DefaultTimeout,
		SendUncaughtPanics: Bool(true),
		MaxFrames:          DefaultMaxFrames,
		MaxCauses:          DefaultMaxCauses,
	}
}

func (c Config) Validate() error {
	if c.ProjectID == "" || c.APIKey == "" {
		return ErrNotConfigured
	}
	if !strings.HasPrefix(c.Host, "http://") && !strings.HasPrefix(c.Host, "https://") {
		return fmt.Errorf("airbrake: host %q must include an http(s) scheme", c.Host)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("airbrake: negative timeout %s", c.Timeout)
	}
	return nil
}

// SendsUncaught reports whether deferred panic hooks should report.
func (c Config) SendsUncaught() bool {
	return c.SendUncaughtPanics == nil || *c.SendUncaughtPanics
}

// String hides the API key.
func (c Config) String() string {
	return fmt.Sprintf("Config(project_id=%s, api_key=*****, environment=%s, host=%s)",
		c.ProjectID, c.Environment, c.Host)
}

var (
	instance *Config
	once     sync.Once
	initErr  error
)

// Init resolves cfg once for the whole process. Later calls are no-ops and
// return the first call's error.
func Init(cfg Config) error {
	once.Do(func() {
		resolved, err := Resolve(cfg)
		if err != nil {
			initErr = err
			return
		}
		instance = &resolved
	})
	return initErr
}

// Get returns the process configuration, initializing it from the environment if needed.
func Get() (Config, error) {
	if instance == nil {
		if err := Init(Config{}); err != nil {
			return Config{}, err
		}
	}
	return *instance, nil
}

func MustGet() Config {
	if instance == nil {
		panic("airbrake config not initialized: call config.Init first")
	}
	return *instance
}
