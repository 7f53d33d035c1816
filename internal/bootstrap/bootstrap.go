// Package bootstrap prepares the geostream home directory on first run.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/neoclaw-ai/geostream/internal/config"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/store"
)

// Initialize creates the home and data directories and writes a starter
// config.toml when none exists. Existing files are never touched.
func Initialize(cfg *config.Config) error {
	for _, dir := range []string{cfg.HomeDir, cfg.DataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	body, err := config.DefaultUserConfigTOML()
	if err != nil {
		return err
	}
	wrote, err := writeFileIfMissing(cfg.ConfigPath(), body)
	if err != nil {
		return err
	}
	if wrote {
		logging.Logger().Info("wrote starter config", "path", cfg.ConfigPath())
	}
	return nil
}

// writeFileIfMissing uses mode 0600 since the config may hold credentials.
func writeFileIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %q: %w", path, err)
	}

	if err := store.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write file %q: %w", path, err)
	}
	return true, nil
}
