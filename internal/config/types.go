package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that decodes from "30s"-style strings or a
// bare number of seconds, the form most container platforms pass timeouts in.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	var parsed time.Duration
	if secs, err := strconv.Atoi(s); err == nil {
		parsed = time.Duration(secs) * time.Second
	} else if parsed, err = time.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// secretFilePrefix marks a value naming a file that holds the secret, as
// mounted by Docker and Kubernetes secrets.
const secretFilePrefix = "file:"

const redacted = "[REDACTED]"

// Secret is an API key or token. Every printing and JSON path shows
// "[REDACTED]"; only Value exposes it.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return "Secret(" + redacted + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Value returns the raw credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool { return s != "" }

// UnmarshalText stores text as is, or the trimmed content of the named file
// when text has the form "file:/path".
func (s *Secret) UnmarshalText(text []byte) error {
	v := string(text)
	path, ok := strings.CutPrefix(v, secretFilePrefix)
	if !ok {
		*s = Secret(v)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading secret file: %w", err)
	}
	*s = Secret(strings.TrimSpace(string(data)))
	return nil
}
