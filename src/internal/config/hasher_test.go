package config

import (
	"testing"
)

func TestCalculateHash_Deterministic(t *testing.T) {
	cfg := validConfig()

	hash1, err := CalculateHash(cfg)
	if err != nil {
		t.Fatalf("Failed to calculate hash: %v", err)
	}
	hash2, err := CalculateHash(cfg)
	if err != nil {
		t.Fatalf("Failed to calculate hash: %v", err)
	}

	if hash1 != hash2 {
		t.Errorf("Hashes should be identical, got %s and %s", hash1, hash2)
	}
	if len(hash1) != 32 {
		t.Errorf("Expected MD5 hex digest, got %q", hash1)
	}
}

func TestCalculateHash_DetectsChanges(t *testing.T) {
	base := validConfig()
	baseHash, _ := CalculateHash(base)

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"diversion address", func(c *Config) { c.Server.DiversionAddress = "10.0.0.2" }},
		{"whitelist", func(c *Config) { c.Server.Whitelist = append(c.Server.Whitelist, "hulu") }},
		{"allow all", func(c *Config) { c.Server.AllowAll = true }},
		{"upstreams", func(c *Config) { c.Resolver.Upstreams = []string{"udp://1.1.1.1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			hash, err := CalculateHash(cfg)
			if err != nil {
				t.Fatalf("Failed to calculate hash: %v", err)
			}
			if hash == baseHash {
				t.Error("Expected hash to change")
			}
		})
	}
}

func TestConfigHasher_ListFileChange(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "whitelist.txt", "netflix\n")
	configFile := writeFile(t, tmpDir, "dnsdivert.toml", `[server]
diversion_address = "10.0.0.1"
whitelist_file = "whitelist.txt"
`)

	hasher := NewConfigHasher(configFile)
	initial, err := hasher.UpdateCurrentConfigHash()
	if err != nil {
		t.Fatalf("Failed to hash config: %v", err)
	}
	hasher.SetActiveConfigHash(initial)

	changed, err := hasher.IsConfigChanged()
	if err != nil {
		t.Fatalf("IsConfigChanged failed: %v", err)
	}
	if changed {
		t.Error("Expected config to be unchanged")
	}

	writeFile(t, tmpDir, "whitelist.txt", "netflix\nhulu\n")

	// The cached hash is only refreshed explicitly or after the cache expires
	updated, err := hasher.UpdateCurrentConfigHash()
	if err != nil {
		t.Fatalf("Failed to hash config: %v", err)
	}
	if updated == initial {
		t.Error("Expected hash to change after whitelist file changed")
	}

	changed, err = hasher.IsConfigChanged()
	if err != nil {
		t.Fatalf("IsConfigChanged failed: %v", err)
	}
	if !changed {
		t.Error("Expected config to be reported as changed")
	}
}

func TestConfigHasher_MissingConfig(t *testing.T) {
	hasher := NewConfigHasher("/non/existent/dnsdivert.toml")
	if _, err := hasher.IsConfigChanged(); err == nil {
		t.Error("Expected error for missing config file")
	}
}
