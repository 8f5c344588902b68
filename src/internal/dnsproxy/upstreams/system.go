package upstreams

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"

	dnserrors "github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/miekg/dns"
)

// DefaultResolvConfPath is where the operating system lists its nameservers.
const DefaultResolvConfPath = "/etc/resolv.conf"

const systemScheme = "system://"

// lookuper is the subset of net.Resolver used as a fallback.
type lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SystemUpstream resolves through the operating system's nameservers.
// They are read from resolv.conf on first use; when that file is missing or
// lists no servers, Go's built-in resolver is used instead.
type SystemUpstream struct {
	BaseUpstream
	resolvConf string

	once     sync.Once
	servers  []*UDPUpstream
	fallback lookuper
}

// NewSystemUpstream creates an upstream backed by the system resolver configuration.
func NewSystemUpstream(resolvConf string, restrictedDomain string) *SystemUpstream {
	return &SystemUpstream{
		BaseUpstream: NewBaseUpstream(restrictedDomain),
		resolvConf:   resolvConf,
		fallback:     net.DefaultResolver,
	}
}

func (s *SystemUpstream) load() {
	cfg, err := dns.ClientConfigFromFile(s.resolvConf)
	if err != nil {
		log.Debugf("System resolver config %s unavailable, using built-in resolver: %v", s.resolvConf, err)
		return
	}

	port := cfg.Port
	if port == "" {
		port = defaultDNSPort
	}

	for _, server := range cfg.Servers {
		u, err := NewUDPUpstream(net.JoinHostPort(server, port), "")
		if err != nil {
			log.Warnf("Skipping system nameserver %q: %v", server, err)
			continue
		}
		s.servers = append(s.servers, u)
	}

	if len(s.servers) == 0 {
		log.Debugf("No nameservers in %s, using built-in resolver", s.resolvConf)
	}
}

// Servers returns the nameservers read from resolv.conf.
func (s *SystemUpstream) Servers() []string {
	s.once.Do(s.load)

	result := make([]string, 0, len(s.servers))
	for _, u := range s.servers {
		result = append(result, u.Address())
	}
	return result
}

// Resolve tries each system nameserver in order and returns the first answer.
// An authoritative NXDOMAIN from one server ends the attempt.
func (s *SystemUpstream) Resolve(ctx context.Context, name string) (netip.Addr, error) {
	s.once.Do(s.load)

	if len(s.servers) == 0 {
		return s.lookupFallback(ctx, name)
	}

	var lastErr error
	for _, server := range s.servers {
		addr, err := server.Resolve(ctx, name)
		if err == nil {
			return addr, nil
		}
		lastErr = err

		if Classify(err) == dnserrors.ReasonNXDomain || ctx.Err() != nil {
			break
		}
	}

	return netip.Addr{}, lastErr
}

func (s *SystemUpstream) lookupFallback(ctx context.Context, name string) (netip.Addr, error) {
	addrs, err := s.fallback.LookupNetIP(ctx, "ip4", name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return netip.Addr{}, dnserrors.NewResolutionFailure(dnserrors.ReasonNXDomain, name, s.String(), err)
		}
		return netip.Addr{}, err
	}

	for _, addr := range addrs {
		if addr = addr.Unmap(); addr.Is4() {
			return addr, nil
		}
	}
	return netip.Addr{}, dnserrors.NewResolutionFailure(dnserrors.ReasonNXDomain, name, s.String(), nil)
}

// String returns the upstream in URL form.
func (s *SystemUpstream) String() string {
	return s.withDomain(systemScheme)
}

// Close closes any resources held by the upstream.
func (s *SystemUpstream) Close() error {
	return nil
}
