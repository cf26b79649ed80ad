package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRejectsValidateWithoutListenPort(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Default().Validate() should fail: listen_port is unset")
	}
}

func TestValidateRejectsPlaceholderPort(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 44
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject listen_port=44")
	}
}

func TestValidateRejectsBadPadding(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 30303
	cfg.PaddingMin = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject padding_min <= 0")
	}

	cfg.PaddingMin = 250
	cfg.PaddingMax = 100
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject padding_max < padding_min")
	}
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	yaml := "client_id: tiny-ether-test\nlisten_port: 30303\nnode_key_file: node.key\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != 30303 {
		t.Errorf("ListenPort = %d, want 30303", cfg.ListenPort)
	}
	if cfg.PaddingMin != 100 || cfg.PaddingMax != 250 {
		t.Errorf("padding bounds = [%d, %d], want defaults [100, 250]", cfg.PaddingMin, cfg.PaddingMax)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail on a missing file")
	}
}
