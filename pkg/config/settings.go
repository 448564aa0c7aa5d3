package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Settings is a flat mapping of setting names to raw values, as loaded from
// a config file. Scoped names are lower-case; the upper-case form of a name
// is its legacy spelling.
type Settings map[string]any

// EitherOr resolves name under its scoped (lower-case) spelling and falls
// back to the legacy (upper-case) spelling. usedFallback is true when the
// value came from the legacy spelling or name itself is not the scoped
// spelling, so callers can warn about the deprecated form.
func (s Settings) EitherOr(name string) (value any, usedFallback bool) {
	scoped := strings.ToLower(name)
	legacy := strings.ToUpper(name)

	if v, ok := s[scoped]; ok && v != nil {
		return v, name != scoped
	}
	if v, ok := s[legacy]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// parseDuration accepts Go duration strings ("90s", "5m") and plain
// numbers, which are read as seconds.
func parseDuration(name string, raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		secs, err := cast.ToFloat64E(s)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid duration %q", name, v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid duration %v: %w", name, v, err)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
