package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dnserrors "github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	FailureReplyServFail = "servfail"
	FailureReplyNXDomain = "nxdomain"
	FailureReplyDrop     = "drop"
)

const (
	DefaultListenAddr       = "0.0.0.0"
	DefaultListenPort       = 53
	DefaultMaxInflight      = 1024
	DefaultShutdownGraceSec = 3
	DefaultAnswerTTL        = 60
	DefaultUpstream         = "system://"
	DefaultTimeoutMs        = 2000
	DefaultCacheTTLSec      = 300
	DefaultCacheMaxDomains  = 10000
	DefaultAPIListenAddr    = "127.0.0.1:8053"
	DefaultFirewallChain    = "DNSDIVERT_CLIENTS"
)

// LoadConfig reads a TOML configuration file (YAML when the extension is .yaml or .yml)
// and fills in defaults. The result is not validated.
func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		path, err := filepath.Abs(configFile)
		if err != nil {
			return nil, dnserrors.NewConfigError("failed to get absolute path", err)
		}
		configFile = path
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, dnserrors.NewConfigError(fmt.Sprintf("configuration file not found: %s", configFile), nil)
		}
		return nil, dnserrors.NewConfigError("failed to read config file", err)
	}

	config, err := ParseConfig(content, formatFromPath(configFile))
	if err != nil {
		return nil, err
	}
	config._absConfigFilePath = configFile

	log.Debugf("Configuration file path: %s", configFile)

	return config, nil
}

// ParseConfig decodes configuration content in the given format ("toml" or "yaml")
// and applies defaults.
func ParseConfig(content []byte, format string) (*Config, error) {
	var config Config

	switch format {
	case "yaml":
		if err := yaml.Unmarshal(content, &config); err != nil {
			return nil, dnserrors.NewConfigError("failed to parse config file", err)
		}
	default:
		if err := toml.Unmarshal(content, &config); err != nil {
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				row, col := derr.Position()
				return nil, dnserrors.NewConfigError(fmt.Sprintf("failed to parse config file at line %d, column %d", row, col), err)
			}
			return nil, dnserrors.NewConfigError("failed to parse config file", err)
		}
	}

	config.ApplyDefaults()
	return &config, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// DefaultConfig returns a configuration with every default applied.
// DiversionAddress has no default and stays empty.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills missing sections and zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Resolver == nil {
		c.Resolver = &ResolverConfig{}
	}
	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.Firewall == nil {
		c.Firewall = &FirewallConfig{}
	}

	s := c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.ListenPort == 0 {
		s.ListenPort = DefaultListenPort
	}
	if s.MaxInflight == 0 {
		s.MaxInflight = DefaultMaxInflight
	}
	if s.ShutdownGraceSec == 0 {
		s.ShutdownGraceSec = DefaultShutdownGraceSec
	}
	if s.FailureReply == "" {
		s.FailureReply = FailureReplyServFail
	}
	s.FailureReply = strings.ToLower(s.FailureReply)
	if s.AnswerTTL == 0 {
		s.AnswerTTL = DefaultAnswerTTL
	}

	r := c.Resolver
	if len(r.Upstreams) == 0 {
		r.Upstreams = []string{DefaultUpstream}
	}
	if r.TimeoutMs == 0 {
		r.TimeoutMs = DefaultTimeoutMs
	}
	if r.CacheTTLSec == 0 {
		r.CacheTTLSec = DefaultCacheTTLSec
	}
	if r.CacheMaxDomains == 0 {
		r.CacheMaxDomains = DefaultCacheMaxDomains
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultAPIListenAddr
	}

	if c.Firewall.Chain == "" {
		c.Firewall.Chain = DefaultFirewallChain
	}
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}
