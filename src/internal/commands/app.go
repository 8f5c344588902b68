package commands

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/dnsdivert/dnsdivert/src/internal/api"
	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	"github.com/dnsdivert/dnsdivert/src/internal/firewall"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
)

// App wires the proxy, its resolver chain, the optional firewall guard and the
// config hasher together. It is what the control API sees as the service.
type App struct {
	configPath   string
	configHasher *config.ConfigHasher

	mu    sync.Mutex
	cfg   *config.Config
	proxy *dnsproxy.DNSProxy
	guard *firewall.ClientGuard
}

var _ api.Service = (*App)(nil)

// NewApp builds every component from a validated configuration. Nothing is bound yet.
func NewApp(configPath string, cfg *config.Config) (*App, error) {
	snap, err := config.BuildSnapshot(cfg)
	if err != nil {
		return nil, err
	}

	chain, err := buildChain(cfg)
	if err != nil {
		return nil, err
	}

	proxy, err := dnsproxy.NewDNSProxy(dnsproxy.ProxyConfigFromAppConfig(cfg), policy.NewStore(snap), chain)
	if err != nil {
		chain.Close()
		return nil, fmt.Errorf("failed to create DNS proxy: %w", err)
	}

	return &App{
		configPath:   configPath,
		configHasher: config.NewConfigHasher(configPath),
		cfg:          cfg,
		proxy:        proxy,
	}, nil
}

// Start binds the DNS listener and installs the firewall rules when enabled.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.proxy.Start(); err != nil {
		return err
	}

	if a.cfg.Firewall.Enable {
		guard, err := firewall.NewClientGuard(firewall.Options{
			Chain:     a.cfg.Firewall.Chain,
			Interface: a.cfg.Firewall.Interface,
			Port:      a.cfg.Server.ListenPort,
		})
		if err != nil {
			log.Errorf("Failed to set up firewall client restriction: %v", err)
			log.Warnf("Unlisted clients are still refused by the proxy itself")
		} else {
			a.guard = guard
			a.syncGuard(a.proxy.Snapshot())
		}
	}

	a.recordActiveHash(a.cfg)

	snap := a.proxy.Snapshot()
	log.Infof("Serving DNS on %s: mode=%s, diversion address %s, %d whitelist entries, upstreams %s",
		a.proxy.LocalAddr(), snap.Mode(), snap.DiversionAddress, len(snap.Whitelist), a.proxy.Chain())

	return nil
}

// Stop removes the firewall rules and drains the proxy.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.guard != nil {
		if err := a.guard.Remove(); err != nil {
			log.Errorf("Failed to remove firewall rules: %v", err)
		}
	}

	err := a.proxy.Stop(ctx)
	if cerr := a.proxy.Chain().Close(); cerr != nil {
		log.Debugf("Failed to close upstreams: %v", cerr)
	}
	return err
}

// Reload re-reads the configuration and list files and swaps the policy snapshot.
// Listener and resolver settings only take effect after a restart.
func (a *App) Reload() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, err := loadAndValidateConfigOrFail(a.configPath)
	if err != nil {
		return err
	}

	snap, err := config.BuildSnapshot(cfg)
	if err != nil {
		return err
	}

	if cfg.Server.ListenAddr != a.cfg.Server.ListenAddr || cfg.Server.ListenPort != a.cfg.Server.ListenPort {
		log.Warnf("Listen address changed to %s:%d; restart required to apply it", cfg.Server.ListenAddr, cfg.Server.ListenPort)
	}
	if !reflect.DeepEqual(cfg.Resolver, a.cfg.Resolver) {
		log.Warnf("Resolver settings changed; restart required to apply them")
	}
	if cfg.Firewall.Enable != (a.guard != nil) {
		log.Warnf("Firewall setting changed; restart required to apply it")
	}

	a.proxy.Reload(snap)

	if a.guard != nil {
		a.syncGuard(snap)
	}

	a.cfg = cfg
	a.recordActiveHash(cfg)

	return nil
}

// syncGuard installs firewall rules while client restriction is on and removes them otherwise.
func (a *App) syncGuard(snap *policy.Snapshot) {
	if !snap.RestrictClients {
		if err := a.guard.Remove(); err != nil {
			log.Errorf("Failed to remove firewall rules: %v", err)
		}
		return
	}

	if err := a.guard.Apply(snap.AllowedClients); err != nil {
		log.Errorf("Failed to apply firewall rules: %v", err)
	}
}

func (a *App) recordActiveHash(cfg *config.Config) {
	hash, err := config.CalculateHash(cfg)
	if err != nil {
		log.Warnf("Failed to calculate config hash: %v", err)
		return
	}
	a.configHasher.SetActiveConfigHash(hash)

	if _, err := a.configHasher.UpdateCurrentConfigHash(); err != nil {
		log.Debugf("Failed to refresh config file hash: %v", err)
	}
}

// Stats returns the proxy counters.
func (a *App) Stats() dnsproxy.Stats {
	return a.proxy.Stats()
}

// Snapshot returns the applied policy.
func (a *App) Snapshot() *policy.Snapshot {
	return a.proxy.Snapshot()
}

// Upstreams returns the resolver chain in order.
func (a *App) Upstreams() []string {
	ups := a.proxy.Chain().Upstreams()
	out := make([]string, 0, len(ups))
	for _, u := range ups {
		out = append(out, u.String())
	}
	return out
}

// Proxy returns the DNS proxy.
func (a *App) Proxy() *dnsproxy.DNSProxy {
	return a.proxy
}

// ConfigHasher returns the hasher tracking the applied configuration.
func (a *App) ConfigHasher() *config.ConfigHasher {
	return a.configHasher
}
