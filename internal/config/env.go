package config

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "QORZEN_"

// LoadEnvOverlay scans the process environment for QORZEN_<KEY_PATH>
// variables (uppercase, "__" as the dotted-path separator) and writes each
// into the Runtime tier. Values are coerced to bool/int/float when they
// parse cleanly, and left as strings otherwise.
func LoadEnvOverlay(s *Store) error {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}

		path := strings.TrimPrefix(name, envPrefix)
		key := strings.ToLower(strings.ReplaceAll(path, "__", "."))
		if err := s.Set(key, coerce(value), Runtime); err != nil {
			return err
		}
	}
	return nil
}

func coerce(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
