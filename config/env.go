package config

import (
	"fmt"
	"os"

	env "github.com/hashicorp/go-envparse"
)

// LoadEnvFile reads KEY=value pairs from a dotenv-style file for use with
// [LoadWithEnv]. Values are not exported to the process environment.
func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	vars, err := env.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return vars, nil
}
