package mqtt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// instanceFile holds the deployment's identity under the data directory.
const instanceFile = "instance_id"

// LoadOrCreateInstanceID returns the UUID stored in dataDir, creating and
// persisting a UUIDv7 when the file is missing or does not hold a UUID.
// The ID suffixes the MQTT client ID so two deployments sharing a broker
// never take over each other's session.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id, perr := uuid.Parse(strings.TrimSpace(string(data))); perr == nil {
			return id.String(), nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read instance ID %s: %w", path, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}
	return id.String(), nil
}
