package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration reads an optional duration field ("1.5s", "250ms").
// An empty value is zero; negative values are rejected.
func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", field, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %v", field, d)
	}
	return d, nil
}

// parseDurationOr substitutes def when the field is empty or zero.
func parseDurationOr(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDuration(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
