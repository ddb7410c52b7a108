// Package ghoutput publishes run results as GitHub Actions step outputs.
package ghoutput

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// EnvVar names the file GitHub Actions reads step outputs from.
const EnvVar = "GITHUB_OUTPUT"

// Write appends values to the file named by GITHUB_OUTPUT. It does nothing
// outside GitHub Actions or when values is empty.
func Write(values map[string]string) error {
	return WriteFile(strings.TrimSpace(os.Getenv(EnvVar)), values)
}

// WriteFile appends values to path in the step output format. Multi-line
// values use a random heredoc delimiter.
func WriteFile(path string, values map[string]string) error {
	if path == "" || len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		value := values[key]
		if !strings.ContainsAny(value, "\r\n") {
			fmt.Fprintf(&b, "%s=%s\n", key, value)
			continue
		}
		delim := "ghadelimiter_" + uuid.NewString()
		fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", key, delim, strings.TrimRight(value, "\r\n"), delim)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", EnvVar, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", EnvVar, err)
	}
	return nil
}
