// Package upstreams resolves names through an ordered chain of upstream resolvers.
package upstreams

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
	"github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/miekg/dns"
)

// Upstream is one resolver strategy.
type Upstream interface {
	// Resolve returns the first IPv4 address of name. Failures are *errors.ResolutionFailure
	// or transport errors understood by Classify.
	Resolve(ctx context.Context, name string) (netip.Addr, error)
	// MatchesDomain reports whether the upstream should be asked about name.
	MatchesDomain(name string) bool
	// String returns the upstream in URL form.
	String() string
	// Close releases any resources held by the upstream.
	Close() error
}

// BaseUpstream restricts an upstream to a domain and its subdomains.
// An empty domain matches every name.
type BaseUpstream struct {
	Domain           string
	normalizedDomain string
}

// NewBaseUpstream creates a BaseUpstream with a pre-normalized domain.
func NewBaseUpstream(domain string) BaseUpstream {
	return BaseUpstream{
		Domain:           domain,
		normalizedDomain: wire.NormalizeName(domain),
	}
}

// GetDomain returns the domain this upstream is restricted to.
func (b *BaseUpstream) GetDomain() string {
	return b.Domain
}

// MatchesDomain returns true if this upstream should handle the given name.
func (b *BaseUpstream) MatchesDomain(name string) bool {
	if b.normalizedDomain == "" {
		return true
	}

	name = wire.NormalizeName(name)
	return name == b.normalizedDomain || strings.HasSuffix(name, "."+b.normalizedDomain)
}

func (b *BaseUpstream) withDomain(s string) string {
	if b.Domain == "" {
		return s
	}
	return fmt.Sprintf("%s?domain=%s", s, b.Domain)
}

// ParseUpstream maps an upstream URL to a strategy.
// Supported formats:
//   - system:// - nameservers of the operating system
//   - udp://ip[:port] or bare ip[:port] - plain UDP DNS (port defaults to 53)
//   - doh://host/path or https://host/path - DNS-over-HTTPS
//
// A "domain" query parameter restricts the upstream to that domain.
func ParseUpstream(upstreamURL string) (Upstream, error) {
	u, err := url.Parse(upstreamURL)
	// "8.8.8.8:53" either fails to parse or comes back without a scheme
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Scheme != "system") {
		if strings.Contains(upstreamURL, "://") {
			return nil, fmt.Errorf("invalid upstream URL %q", upstreamURL)
		}
		return NewUDPUpstream(upstreamURL, "")
	}

	domain := u.Query().Get("domain")

	switch u.Scheme {
	case "system":
		return NewSystemUpstream(DefaultResolvConfPath, domain), nil
	case "udp":
		return NewUDPUpstream(u.Host, domain)
	case "doh", "https":
		q := u.Query()
		q.Del("domain")
		u.RawQuery = q.Encode()
		return NewDoHUpstream(u.String(), domain), nil
	default:
		return nil, fmt.Errorf("unsupported upstream scheme: %s", u.Scheme)
	}
}

// ParseUpstreams parses a list of upstream URLs, closing already created
// upstreams when one of them is invalid.
func ParseUpstreams(urls []string) ([]Upstream, error) {
	result := make([]Upstream, 0, len(urls))
	for _, s := range urls {
		u, err := ParseUpstream(s)
		if err != nil {
			for _, created := range result {
				created.Close()
			}
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}

// addressFromResponse extracts the first A record of a response.
func addressFromResponse(name, strategy string, resp *dns.Msg) (netip.Addr, error) {
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return netip.Addr{}, errors.NewResolutionFailure(errors.ReasonNXDomain, name, strategy, nil)
	default:
		return netip.Addr{}, errors.NewResolutionFailure(errors.ReasonServFail, name, strategy,
			fmt.Errorf("upstream answered %s", dns.RcodeToString[resp.Rcode]))
	}

	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
				return addr, nil
			}
		}
	}

	return netip.Addr{}, errors.NewResolutionFailure(errors.ReasonNXDomain, name, strategy,
		fmt.Errorf("no A record in answer"))
}
