package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/khariha/ferris-wheel/examples"
)

// runInit prepares a working directory: the data directory and an
// example config.yaml. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Ferris Wheel workspace in %s\n", dir)

	dbDir := filepath.Join(dir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dbDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml, then run: ferris-wheel serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. The config holds API keys, so callers pass 0600 for it.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
