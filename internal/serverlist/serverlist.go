// Package serverlist persists the dashboard's server addresses as a flat
// JSON array and watches the file for hand edits.
//
// The file format is intentionally minimal:
//
//	["10.0.0.5:8188", "10.0.0.6:8188"]
package serverlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Load reads the address list at path.
//
// A missing or empty file is an empty list, not an error, so a fresh
// deployment can start without creating the file first.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of address strings.
func Parse(data []byte) ([]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []string{}, nil
	}

	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("failed to parse server list: %w", err)
	}
	if addrs == nil {
		addrs = []string{}
	}
	return addrs, nil
}

// Save writes the address list to path atomically: the data goes to a
// temporary file in the same directory which is then renamed over path.
func Save(path string, addrs []string) error {
	if addrs == nil {
		addrs = []string{}
	}
	data, err := json.MarshalIndent(addrs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode server list: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create server list directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary server list: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write server list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write server list: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to write server list: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace server list: %w", err)
	}
	return nil
}
