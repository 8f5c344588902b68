package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dnsdivert/dnsdivert/src/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/non/existent/file.toml")
	if err == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if !errors.Is(err, errors.ErrConfig) {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	configFile := writeFile(t, t.TempDir(), "invalid.toml", "[server\ndiversion_address = \"10.0.0.1\"")

	_, err := LoadConfig(configFile)
	if err == nil {
		t.Fatal("Expected error for invalid TOML")
	}
	if !errors.Is(err, errors.ErrConfig) {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := writeFile(t, tmpDir, "dnsdivert.toml", `[server]
listen_port = 5353
diversion_address = "10.0.0.1"
whitelist = ["example.com"]
whitelist_file = "whitelist.txt"
failure_reply = "NXDOMAIN"

[resolver]
upstreams = ["udp://1.1.1.1", "doh://dns.google/dns-query"]
timeout_ms = 500

[api]
enable = true
`)

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.ListenPort != 5353 {
		t.Errorf("Expected listen port 5353, got %d", cfg.Server.ListenPort)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("Expected default listen addr, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.FailureReply != FailureReplyNXDomain {
		t.Errorf("Expected failure reply to be lowercased, got %q", cfg.Server.FailureReply)
	}
	if cfg.Server.AnswerTTL != DefaultAnswerTTL {
		t.Errorf("Expected default answer TTL, got %d", cfg.Server.AnswerTTL)
	}
	if len(cfg.Resolver.Upstreams) != 2 {
		t.Errorf("Expected 2 upstreams, got %v", cfg.Resolver.Upstreams)
	}
	if cfg.Resolver.GetTimeout().Milliseconds() != 500 {
		t.Errorf("Expected 500ms timeout, got %s", cfg.Resolver.GetTimeout())
	}
	if cfg.Resolver.CacheTTLSec != DefaultCacheTTLSec {
		t.Errorf("Expected default cache TTL, got %d", cfg.Resolver.CacheTTLSec)
	}
	if cfg.API.ListenAddr != DefaultAPIListenAddr {
		t.Errorf("Expected default API address, got %q", cfg.API.ListenAddr)
	}
	if got := cfg.GetAbsWhitelistFile(); got != filepath.Join(tmpDir, "whitelist.txt") {
		t.Errorf("Expected whitelist file relative to config dir, got %q", got)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	configFile := writeFile(t, t.TempDir(), "dnsdivert.yaml", `server:
  diversion_address: 10.0.0.2
  allow_all: true
  restrict_clients: true
  allowed_clients:
    - 192.168.1.0/24
resolver:
  upstreams:
    - 9.9.9.9
`)

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.DiversionAddress != "10.0.0.2" || !cfg.Server.AllowAll || !cfg.Server.RestrictClients {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedClients) != 1 || cfg.Resolver.Upstreams[0] != "9.9.9.9" {
		t.Errorf("Unexpected lists: %v %v", cfg.Server.AllowedClients, cfg.Resolver.Upstreams)
	}
	if cfg.Server.ListenPort != DefaultListenPort {
		t.Errorf("Expected default port, got %d", cfg.Server.ListenPort)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ListenPort != 53 || cfg.Server.MaxInflight != 1024 || cfg.Server.ShutdownGraceSec != 3 {
		t.Errorf("Unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Server.FailureReply != FailureReplyServFail {
		t.Errorf("Expected servfail default, got %q", cfg.Server.FailureReply)
	}
	if len(cfg.Resolver.Upstreams) != 1 || cfg.Resolver.Upstreams[0] != "system://" {
		t.Errorf("Expected system resolver default, got %v", cfg.Resolver.Upstreams)
	}
	if cfg.Resolver.TimeoutMs != 2000 || cfg.Resolver.CacheTTLSec != 300 || cfg.Resolver.CacheMaxDomains != 10000 {
		t.Errorf("Unexpected resolver defaults: %+v", cfg.Resolver)
	}
	if cfg.Firewall.Chain != DefaultFirewallChain {
		t.Errorf("Expected default chain, got %q", cfg.Firewall.Chain)
	}
}

func TestSerializeConfig_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.DiversionAddress = "10.0.0.1"
	cfg.Server.Whitelist = []string{"example.com"}

	buf, err := cfg.SerializeConfig()
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	parsed, err := ParseConfig(buf.Bytes(), "toml")
	if err != nil {
		t.Fatalf("Failed to parse serialized config: %v", err)
	}
	if parsed.Server.DiversionAddress != "10.0.0.1" || len(parsed.Server.Whitelist) != 1 {
		t.Errorf("Serialized config lost data: %+v", parsed.Server)
	}
}
