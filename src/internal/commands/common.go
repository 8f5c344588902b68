package commands

import (
	"fmt"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/caching"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/upstreams"
)

type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

type AppContext struct {
	ConfigPath string
	Verbose    bool
}

// loadAndValidateConfigOrFail loads configuration from file and validates it.
func loadAndValidateConfigOrFail(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// buildChain creates the cache and the resolver chain described by the configuration.
func buildChain(cfg *config.Config) (*upstreams.Chain, error) {
	ups, err := upstreams.ParseUpstreams(cfg.Resolver.Upstreams)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstreams: %w", err)
	}

	cache := caching.NewRecordsCache(cfg.Resolver.CacheMaxDomains)

	return upstreams.NewChain(ups, cache, upstreams.Options{
		Timeout:  cfg.Resolver.GetTimeout(),
		CacheTTL: cfg.Resolver.GetCacheTTL(),
	}), nil
}
