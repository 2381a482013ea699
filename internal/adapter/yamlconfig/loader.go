package yamlconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"bytemomo/harpoon/internal/config"

	"gopkg.in/yaml.v3"
)

// LoaderError is returned when a configuration file cannot be used.
type LoaderError struct {
	Path    string
	Message string
	Cause   error
}

func (e LoaderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error for %s: %s (caused by: %v)", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("config error for %s: %s", e.Path, e.Message)
}

func (e LoaderError) Unwrap() error {
	return e.Cause
}

// Load reads the YAML file at path on top of config.Default, expands
// ${VAR} references, applies HARPOON_* overrides and validates the result.
// An empty path yields the defaults plus overrides.
func Load(path string) (*config.Config, error) {
	return LoadWithEnv(path, config.NewEnv(config.EnvPrefix))
}

func LoadWithEnv(path string, env *config.Env) (*config.Config, error) {
	cfg := config.Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, LoaderError{Path: path, Message: "failed to read file", Cause: err}
		}
		data = []byte(os.ExpandEnv(string(data)))

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, LoaderError{Path: path, Message: "failed to parse file", Cause: err}
		}
	}

	cfg.ApplyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, LoaderError{Path: path, Message: "validation failed", Cause: err}
	}
	return cfg, nil
}
