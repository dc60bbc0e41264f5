package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dselans/beampatch/config"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestValidateRejectsMissingPatchListURL(t *testing.T) {
	y := &config.YAML{
		Patcher: &config.YAMLPatcher{TargetGRF: "data.grf"},
		App:     &config.YAMLApp{},
		Health:  &config.YAMLHealth{Backend: "mem"},
		Audit:   &config.YAMLAudit{},
	}
	if err := config.Validate(y); err == nil {
		t.Fatal("expected error for missing patch_list_url")
	}
}

func TestValidateRejectsRedisBackendWithoutAddr(t *testing.T) {
	y := &config.YAML{
		Patcher: &config.YAMLPatcher{PatchListURL: "http://example.com/list.txt", TargetGRF: "data.grf"},
		App:     &config.YAMLApp{},
		Health:  &config.YAMLHealth{Backend: "redis"},
		Audit:   &config.YAMLAudit{},
	}
	if err := config.Validate(y); err == nil {
		t.Fatal("expected error for redis backend without addr")
	}
}

func TestValidateRejectsAuditFileWithoutPath(t *testing.T) {
	y := &config.YAML{
		Patcher: &config.YAMLPatcher{PatchListURL: "http://example.com/list.txt", TargetGRF: "data.grf"},
		App:     &config.YAMLApp{},
		Health:  &config.YAMLHealth{Backend: "mem"},
		Audit:   &config.YAMLAudit{Type: "file"},
	}
	if err := config.Validate(y); err == nil {
		t.Fatal("expected error for file audit sink without path")
	}
}

func TestValidateAcceptsMinimalValidConfig(t *testing.T) {
	y := &config.YAML{
		Patcher: &config.YAMLPatcher{PatchListURL: "http://example.com/list.txt", TargetGRF: "data.grf"},
		App:     &config.YAMLApp{},
		Health:  &config.YAMLHealth{Backend: "mem"},
		Audit:   &config.YAMLAudit{},
	}
	if err := config.Validate(y); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestNewConfigRejectsMissingFile(t *testing.T) {
	os.Args = []string{"beampatch", "--config-file", filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := config.NewConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestNewConfigLoadsValidFile(t *testing.T) {
	path := writeYAML(t, `
patcher:
  mirrors:
    - name: primary
      url: http://mirror1.example.com
      priority: 0
  patch_list_url: http://mirror1.example.com/patch_list.txt
  verify_checksums: true
  target_grf: data.grf
  allow_manual_patch: false
app:
  game_directory: /games/ro
`)

	os.Args = []string{"beampatch", "--config-file", path}
	cfg, err := config.NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.YAML.Patcher.PatchListURL != "http://mirror1.example.com/patch_list.txt" {
		t.Fatalf("unexpected patch list url: %+v", cfg.YAML.Patcher)
	}
	if cfg.YAML.Health.Backend != "mem" {
		t.Fatalf("expected default health backend mem, got %q", cfg.YAML.Health.Backend)
	}
}
