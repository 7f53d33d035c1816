package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neoclaw-ai/geostream/internal/config"
)

func TestInitializeCreatesHomeAndStarterConfig(t *testing.T) {
	cfg := &config.Config{HomeDir: filepath.Join(t.TempDir(), ".geostream")}

	if err := Initialize(cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if info, err := os.Stat(cfg.DataDir()); err != nil || !info.IsDir() {
		t.Fatalf("expected data dir %q: %v", cfg.DataDir(), err)
	}
	raw, err := os.ReadFile(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), "[credentials]") || !strings.Contains(string(raw), "locations") {
		t.Fatalf("expected starter config sections, got:\n%s", raw)
	}
	info, err := os.Stat(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected config mode 0600, got %v", info.Mode().Perm())
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	cfg := &config.Config{HomeDir: filepath.Join(t.TempDir(), ".geostream")}
	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	custom := "[stream]\nautostart = false\n"
	if err := os.WriteFile(cfg.ConfigPath(), []byte(custom), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := Initialize(cfg); err != nil {
			t.Fatalf("initialize #%d: %v", i+1, err)
		}
	}

	raw, err := os.ReadFile(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(raw) != custom {
		t.Fatalf("expected existing config preserved, got %q", raw)
	}
}
