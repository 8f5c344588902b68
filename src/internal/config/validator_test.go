package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DiversionAddress = "10.0.0.1"
	cfg.Server.Whitelist = []string{"example.com"}
	return cfg
}

func TestValidateConfig_Success(t *testing.T) {
	if err := validConfig().ValidateConfig(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		fieldPath string
	}{
		{
			name:      "missing diversion address",
			modify:    func(c *Config) { c.Server.DiversionAddress = "" },
			fieldPath: "server.diversion_address",
		},
		{
			name:      "IPv6 diversion address",
			modify:    func(c *Config) { c.Server.DiversionAddress = "::1" },
			fieldPath: "server.diversion_address",
		},
		{
			name:      "invalid listen address",
			modify:    func(c *Config) { c.Server.ListenAddr = "not-an-ip" },
			fieldPath: "server.listen_addr",
		},
		{
			name:      "invalid failure reply",
			modify:    func(c *Config) { c.Server.FailureReply = "refuse" },
			fieldPath: "server.failure_reply",
		},
		{
			name:      "invalid allowed client",
			modify:    func(c *Config) { c.Server.AllowedClients = []string{"10.0.0.0/8", "nope"} },
			fieldPath: "server.allowed_clients[1]",
		},
		{
			name:      "restriction without clients",
			modify:    func(c *Config) { c.Server.RestrictClients = true },
			fieldPath: "server.allowed_clients",
		},
		{
			name: "whitelist mode without entries",
			modify: func(c *Config) {
				c.Server.Whitelist = nil
				c.Server.WhitelistFile = ""
			},
			fieldPath: "server.whitelist",
		},
		{
			name:      "unsupported upstream",
			modify:    func(c *Config) { c.Resolver.Upstreams = []string{"tcp://1.1.1.1"} },
			fieldPath: "resolver.upstreams[0]",
		},
		{
			name:      "empty upstream list",
			modify:    func(c *Config) { c.Resolver.Upstreams = []string{} },
			fieldPath: "resolver.upstreams",
		},
		{
			name:      "negative timeout",
			modify:    func(c *Config) { c.Resolver.TimeoutMs = -1 },
			fieldPath: "resolver.timeout_ms",
		},
		{
			name: "api without address",
			modify: func(c *Config) {
				c.API.Enable = true
				c.API.ListenAddr = ""
			},
			fieldPath: "api.listen_addr",
		},
		{
			name:      "invalid firewall chain",
			modify:    func(c *Config) { c.Firewall.Chain = "1-bad chain" },
			fieldPath: "firewall.chain",
		},
		{
			name:      "firewall without restriction",
			modify:    func(c *Config) { c.Firewall.Enable = true },
			fieldPath: "firewall.enable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.ValidateConfig()
			if err == nil {
				t.Fatal("Expected validation error")
			}

			verrs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("Expected ValidationErrors, got %T", err)
			}

			found := false
			for _, e := range verrs {
				if e.FieldPath == tt.fieldPath {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error for %s, got: %v", tt.fieldPath, verrs)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{FieldPath: "server.listen_port", Message: "must be >= 1"},
		{FieldPath: "resolver.upstreams", Message: "field is required"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 error(s)") || !strings.Contains(msg, "server.listen_port: must be >= 1") {
		t.Errorf("Unexpected message: %s", msg)
	}
	if ValidationErrors(nil).Error() != "no validation errors" {
		t.Error("Unexpected message for empty errors")
	}
}

func TestValidateUpstreamURL(t *testing.T) {
	valid := []string{"system://", "udp://8.8.8.8:53", "8.8.8.8", "doh://dns.google/dns-query", "https://1.1.1.1/dns-query"}
	for _, u := range valid {
		if err := validateUpstreamURL(u); err != nil {
			t.Errorf("Expected %q to be valid, got %v", u, err)
		}
	}

	invalid := []string{"", "tcp://8.8.8.8", "udp://", "keenetic://"}
	for _, u := range invalid {
		if err := validateUpstreamURL(u); err == nil {
			t.Errorf("Expected %q to be invalid", u)
		}
	}
}
