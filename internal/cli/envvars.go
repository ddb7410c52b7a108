package cli

import (
	"os"
	"strings"
	"time"

	envparse "github.com/caarlos0/env/v11"
)

// baseEnv defines root CLI defaults sourced from DEPCONFCTL_* env vars.
type baseEnv struct {
	// ConfigPath is the session.yaml path from DEPCONFCTL_CONFIG.
	ConfigPath string `env:"DEPCONFCTL_CONFIG"`
	// StatePath is the state file from DEPCONFCTL_STATE.
	StatePath string `env:"DEPCONFCTL_STATE"`
	// LogLevel is the logging level from DEPCONFCTL_LOG_LEVEL.
	LogLevel string `env:"DEPCONFCTL_LOG_LEVEL"`
}

// varsEnv describes inline vars and var files passed via env.
type varsEnv struct {
	// Vars is a k=v,k2=v2 list from DEPCONFCTL_VARS.
	Vars string `env:"DEPCONFCTL_VARS"`
	// VarFile is a YAML/ENV path from DEPCONFCTL_VAR_FILE.
	VarFile string `env:"DEPCONFCTL_VAR_FILE"`
}

// serverEnv overrides the server block of session.yaml.
type serverEnv struct {
	// URL is the server base URL from DEPCONFCTL_SERVER_URL.
	URL string `env:"DEPCONFCTL_SERVER_URL"`
	// User is the basic auth user from DEPCONFCTL_USER.
	User string `env:"DEPCONFCTL_USER"`
	// Password is the basic auth password from DEPCONFCTL_PASSWORD.
	Password string `env:"DEPCONFCTL_PASSWORD"`
	// Timeout is the request timeout from DEPCONFCTL_TIMEOUT.
	Timeout time.Duration `env:"DEPCONFCTL_TIMEOUT"`
	// CAFile is a PEM bundle path from DEPCONFCTL_CA_FILE.
	CAFile string `env:"DEPCONFCTL_CA_FILE"`
}

// parseEnv fills target from DEPCONFCTL_* env vars via caarlos0/env.
func parseEnv(target any) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}
