package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvLookup returns a Lookup backed by the process environment.
func EnvLookup() Lookup {
	return os.LookupEnv
}

// MapLookup returns a Lookup over a fixed map. Handy for tests and for
// callers that snapshot the environment.
func MapLookup(env map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

// LoadDotEnv seeds the process environment from a .env file. Variables that
// are already set are left alone. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a YAML run file into a Values layer. Keys are the Key
// names (base_url, viewport, trace, ...). Unknown keys are rejected so typos
// do not silently fall through to defaults.
func LoadFile(path string) (Values, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read run file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse run file %s: %w", path, err)
	}

	values := make(Values, len(raw))
	for name, v := range raw {
		key := Key(name)
		if _, known := EnvNames[key]; !known {
			return nil, &ConfigurationError{Field: key, Value: fmt.Sprint(v), Reason: "unknown run file key"}
		}
		if v == nil {
			continue
		}
		values[key] = fmt.Sprint(v)
	}
	return values, nil
}
