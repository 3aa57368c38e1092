package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration read from strings like "30s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Duration converts to time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds a credential. Every printed or encoded form is masked; only
// Value returns the real string.
type Secret string

const masked = "[REDACTED]"

func (s Secret) mask() string {
	if s == "" {
		return ""
	}
	return masked
}

func (s Secret) Value() string { return string(s) }
func (s Secret) IsSet() bool   { return s != "" }

func (s Secret) String() string   { return s.mask() }
func (s Secret) GoString() string { return fmt.Sprintf("config.Secret(%q)", s.mask()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.mask()), nil }
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.mask()) }
func (s Secret) MarshalYAML() (any, error)    { return s.mask(), nil }

// UnmarshalText takes the raw value; env vars and koanf decode through it.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
