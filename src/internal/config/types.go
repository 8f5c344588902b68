package config

import (
	"path/filepath"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/utils"
)

type Config struct {
	// Server holds the DNS listener and admission policy settings.
	Server *ServerConfig `toml:"server" yaml:"server" json:"server"`
	// Resolver holds the upstream resolver chain settings.
	Resolver *ResolverConfig `toml:"resolver" yaml:"resolver" json:"resolver"`
	// API holds the local control API settings.
	API *APIConfig `toml:"api" yaml:"api" json:"api"`
	// Firewall holds the optional iptables enforcement of allowed clients.
	Firewall *FirewallConfig `toml:"firewall" yaml:"firewall" json:"firewall"`

	_absConfigFilePath string
}

type ServerConfig struct {
	// ListenAddr is the address the DNS listener binds to (default: 0.0.0.0).
	ListenAddr string `toml:"listen_addr" yaml:"listen_addr" json:"listen_addr" validate:"omitempty,ip"`
	// ListenPort is the UDP port of the DNS listener (default: 53). Changing it requires a restart.
	ListenPort uint16 `toml:"listen_port" yaml:"listen_port" json:"listen_port" validate:"required,min=1"`
	// DiversionAddress is the IPv4 address returned for admitted names.
	DiversionAddress string `toml:"diversion_address" yaml:"diversion_address" json:"diversion_address" validate:"required,ipv4_addr"`
	// AllowAll diverts every name regardless of the whitelist.
	AllowAll bool `toml:"allow_all" yaml:"allow_all" json:"allow_all"`
	// Whitelist holds inline whitelist tokens; a token matches any name containing it.
	Whitelist []string `toml:"whitelist" yaml:"whitelist" json:"whitelist"`
	// WhitelistFile is a file with one whitelist token per line, relative to the config file.
	WhitelistFile string `toml:"whitelist_file" yaml:"whitelist_file" json:"whitelist_file"`
	// RestrictClients serves only the clients listed in allowed_clients / allowed_clients_file.
	RestrictClients bool `toml:"restrict_clients" yaml:"restrict_clients" json:"restrict_clients"`
	// AllowedClients holds inline client addresses or CIDR prefixes.
	AllowedClients []string `toml:"allowed_clients" yaml:"allowed_clients" json:"allowed_clients" validate:"dive,ip_or_cidr"`
	// AllowedClientsFile is a file with one client address or prefix per line.
	AllowedClientsFile string `toml:"allowed_clients_file" yaml:"allowed_clients_file" json:"allowed_clients_file"`
	// MaxInflight bounds queries handled concurrently; excess datagrams are dropped (default: 1024).
	MaxInflight int64 `toml:"max_inflight" yaml:"max_inflight" json:"max_inflight" validate:"min=1"`
	// ShutdownGraceSec is how long in-flight queries may finish on shutdown (default: 3).
	ShutdownGraceSec int `toml:"shutdown_grace_sec" yaml:"shutdown_grace_sec" json:"shutdown_grace_sec" validate:"min=0,max=300"`
	// FailureReply is the reply when resolution fails: servfail, nxdomain or drop (default: servfail).
	FailureReply string `toml:"failure_reply" yaml:"failure_reply" json:"failure_reply" validate:"failure_reply"`
	// AnswerTTL is the TTL of returned A records in seconds (default: 60).
	AnswerTTL uint32 `toml:"answer_ttl" yaml:"answer_ttl" json:"answer_ttl" validate:"min=1,max=2147483647"`
}

type ResolverConfig struct {
	// Upstreams are tried in order. Supported: system://, udp://ip[:port], doh://host/path (default: ["system://"]).
	Upstreams []string `toml:"upstreams" yaml:"upstreams" json:"upstreams" validate:"required,min=1,dive,upstream_url"`
	// TimeoutMs bounds each upstream attempt (default: 2000).
	TimeoutMs int `toml:"timeout_ms" yaml:"timeout_ms" json:"timeout_ms" validate:"min=1,max=60000"`
	// CacheTTLSec is how long resolved addresses are cached (default: 300).
	CacheTTLSec uint32 `toml:"cache_ttl_sec" yaml:"cache_ttl_sec" json:"cache_ttl_sec" validate:"min=1,max=86400"`
	// CacheMaxDomains bounds the number of cached names (default: 10000).
	CacheMaxDomains int `toml:"cache_max_domains" yaml:"cache_max_domains" json:"cache_max_domains" validate:"min=1"`
}

type APIConfig struct {
	// Enable starts the control API.
	Enable bool `toml:"enable" yaml:"enable" json:"enable"`
	// ListenAddr is the host:port of the control API (default: 127.0.0.1:8053).
	ListenAddr string `toml:"listen_addr" yaml:"listen_addr" json:"listen_addr" validate:"required_if=Enable true,omitempty,hostname_port"`
}

type FirewallConfig struct {
	// Enable installs iptables rules dropping DNS traffic from clients outside allowed_clients.
	// Only applied when server.restrict_clients is set.
	Enable bool `toml:"enable" yaml:"enable" json:"enable"`
	// Chain is the iptables chain holding the rules (default: DNSDIVERT_CLIENTS).
	Chain string `toml:"chain" yaml:"chain" json:"chain" validate:"omitempty,iptables_chain"`
	// Interface limits the rules to one inbound interface (empty = all).
	Interface string `toml:"interface" yaml:"interface" json:"interface" validate:"omitempty,max=15"`
}

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// GetConfigFilePath returns the absolute path the config was loaded from.
func (c *Config) GetConfigFilePath() string {
	return c._absConfigFilePath
}

// GetAbsWhitelistFile returns the whitelist file path resolved against the config directory.
func (c *Config) GetAbsWhitelistFile() string {
	return utils.GetAbsolutePath(c.Server.WhitelistFile, c.GetConfigDir())
}

// GetAbsAllowedClientsFile returns the allowed clients file path resolved against the config directory.
func (c *Config) GetAbsAllowedClientsFile() string {
	return utils.GetAbsolutePath(c.Server.AllowedClientsFile, c.GetConfigDir())
}

func (r *ResolverConfig) GetTimeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (r *ResolverConfig) GetCacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSec) * time.Second
}
