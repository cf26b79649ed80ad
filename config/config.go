// Package config loads the handful of values an embedder must supply to run
// an RLPx channel: protocol identity, handshake padding bounds, and the
// static node key source. Configuration is YAML, matching the teacher
// corpus's config/tooling dependency surface.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the embedder-supplied configuration for one node.
type Config struct {
	ClientID     string   `yaml:"client_id"`
	Capabilities []CapSpec `yaml:"capabilities"`
	ListenPort   uint64   `yaml:"listen_port"`
	NodeKeyFile  string   `yaml:"node_key_file"`
	PaddingMin   int      `yaml:"padding_min"`
	PaddingMax   int      `yaml:"padding_max"`
	UseSnappy    bool     `yaml:"use_snappy"`
}

// CapSpec is one devp2p capability entry in YAML form.
type CapSpec struct {
	Name    string `yaml:"name"`
	Version uint   `yaml:"version"`
}

// Default returns a Config matching spec.md's stated constants: protocol
// version 4 (carried implicitly by the rlpx package, not configurable
// here), client id "tiny-ether", and the 100-250 byte padding bounds. A
// zero-config embedder gets a spec-conformant channel except for
// ListenPort, which has no safe default and MUST be set explicitly (see
// Validate). NodeKeyFile defaults to empty and Validate does not check it.
func Default() Config {
	return Config{
		ClientID:   "tiny-ether",
		PaddingMin: 100,
		PaddingMax: 250,
	}
}

// Load reads and parses a YAML config file, starting from Default() so
// unset fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects the original source's placeholder defaults: a
// listen_port of 44 (the libup2p hard-coded stand-in) or zero, and a
// client id exceeding the 80-byte wire limit. It does NOT validate
// NodeKeyFile's existence; that is a caller-time I/O concern.
func (c Config) Validate() error {
	if c.ListenPort == 0 {
		return fmt.Errorf("config: listen_port is required")
	}
	if c.ListenPort == 44 {
		return fmt.Errorf("config: listen_port=44 is the original implementation's placeholder, not a real port")
	}
	if len(c.ClientID) > 80 {
		return fmt.Errorf("config: client_id exceeds 80 bytes")
	}
	if c.PaddingMin <= 0 || c.PaddingMax < c.PaddingMin {
		return fmt.Errorf("config: padding_min/padding_max must satisfy 0 < min <= max")
	}
	return nil
}
