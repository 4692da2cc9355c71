package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations travel through the config file as strings ("250ms", "30s",
// "1m") so the YAML and JSON forms stay symmetric. They are parsed when
// the file config is mapped into component configs; path names the
// offending field in errors.

// ParseDurationField parses one duration value. An empty or blank
// value means unset and yields zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: not a duration: %q", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted
// for unset values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
