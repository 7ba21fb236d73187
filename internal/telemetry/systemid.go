package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const systemIDFile = ".system_id"

// LoadOrCreateSystemID returns the installation ID stored in dir, creating
// one on first use. The ID tags Sentry events so reports from one machine
// group together without identifying the user.
func LoadOrCreateSystemID(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	idFile := filepath.Join(dir, systemIDFile)
	if data, err := os.ReadFile(idFile); err == nil { //nolint:gosec // fixed file name under the config dir
		id := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.WriteFile(idFile, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("failed to save system ID: %w", err)
	}
	return id, nil
}
