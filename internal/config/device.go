package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/prayerwall/internal/logging"
)

// LoadOrCreateDeviceID returns the device id stored at path, creating one on first use.
// Prayed flags are scoped to this id, not to a person. An unreadable id is
// replaced, which orphans the flags saved under it, so the replacement is logged.
func LoadOrCreateDeviceID(path string, logger *zap.Logger) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		_, perr := uuid.Parse(id)
		if perr == nil {
			return id, nil
		}
		logging.OrNop(logger).Warn("device id is not a UUID; generating a new one, prayed flags from the old id are no longer shown",
			zap.String("path", path),
			zap.String("old", id),
			zap.Error(perr))
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write device id: %w", err)
	}
	return id, nil
}
