// Package duration provides a time.Duration wrapper that serializes as
// a human-readable string ("30s", "5m") in YAML and JSON, for use in
// configuration files.
package duration

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDuration is returned for durations outside the allowed range.
var ErrInvalidDuration = errors.New("invalid duration")

// Duration limits for configuration values.
const (
	// MinDuration is the minimum allowed duration (1 second).
	MinDuration = 1 * time.Second

	// MaxDuration is the maximum allowed duration (24 hours).
	MaxDuration = 24 * time.Hour
)

// Duration wraps time.Duration with string-based YAML and JSON codecs.
type Duration time.Duration

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Validate checks the duration against the configuration limits.
func (d Duration) Validate() error {
	v := time.Duration(d)
	if v < MinDuration || v > MaxDuration {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidDuration, v, MinDuration, MaxDuration)
	}
	return nil
}

// UnmarshalYAML parses either a duration string or a bare number of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("%w: expected duration string or seconds", ErrInvalidDuration)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalYAML emits the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON parses either a quoted duration string or a number of
// seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("%w: expected duration string or seconds", ErrInvalidDuration)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalJSON emits the duration as a quoted string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
