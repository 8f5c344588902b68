package upstreams

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/miekg/dns"
)

const (
	defaultDNSPort = "53"

	// Upper bound for a single exchange; the chain's context deadline is normally shorter.
	udpClientTimeout = 5 * time.Second
)

// UDPUpstream implements Upstream using plain UDP DNS.
type UDPUpstream struct {
	BaseUpstream
	address string
	client  *dns.Client
}

// NewUDPUpstream creates a new UDP DNS upstream.
// The domain parameter restricts the upstream to a specific domain (empty = all domains).
func NewUDPUpstream(address string, restrictedDomain string) (*UDPUpstream, error) {
	host := address
	if !containsPort(host) {
		host = net.JoinHostPort(host, defaultDNSPort)
	}

	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return nil, fmt.Errorf("invalid UDP address: %w", err)
	}
	if h == "" {
		return nil, fmt.Errorf("invalid UDP address %q: empty host", address)
	}

	return &UDPUpstream{
		BaseUpstream: NewBaseUpstream(restrictedDomain),
		address:      host,
		client: &dns.Client{
			Net:     "udp",
			Timeout: udpClientTimeout,
		},
	}, nil
}

// Query sends a DNS message to the upstream and returns the raw response.
func (u *UDPUpstream) Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	queryInfo := "unknown"
	if len(req.Question) > 0 {
		q := req.Question[0]
		queryInfo = fmt.Sprintf("%s %s", q.Name, dns.TypeToString[q.Qtype])
	}

	log.Debugf("[%04x] Querying upstream: %s for %s", req.Id, u, queryInfo)

	resp, _, err := u.client.ExchangeContext(ctx, req, u.address)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Debugf("[%04x] Upstream timeout (context) for query: %s (upstream: %s)", req.Id, queryInfo, u)
		} else {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Debugf("[%04x] Upstream timeout (network) for query: %s (upstream: %s)", req.Id, queryInfo, u)
			} else {
				log.Debugf("[%04x] Upstream error for query %s (upstream: %s): %v", req.Id, queryInfo, u, err)
			}
		}
		return nil, err
	}
	return resp, nil
}

// Resolve queries the upstream for the A record of name.
func (u *UDPUpstream) Resolve(ctx context.Context, name string) (netip.Addr, error) {
	resp, err := u.Query(ctx, wire.EncodeQuery(name))
	if err != nil {
		return netip.Addr{}, err
	}
	return addressFromResponse(name, u.String(), resp)
}

// Address returns the host:port the upstream sends queries to.
func (u *UDPUpstream) Address() string {
	return u.address
}

// String returns the upstream in URL form.
func (u *UDPUpstream) String() string {
	return u.withDomain("udp://" + u.address)
}

// Close closes any resources held by the upstream.
func (u *UDPUpstream) Close() error {
	return nil
}

// containsPort checks if the address contains a port number.
func containsPort(address string) bool {
	// For IPv6 addresses like [::1]:53, check after the closing bracket
	if idx := lastIndex(address, ']'); idx != -1 {
		return len(address) > idx+1 && address[idx+1] == ':'
	}
	// A bare IPv6 address has several colons and no port
	if addr, err := netip.ParseAddr(address); err == nil && addr.Is6() {
		return false
	}
	return lastIndex(address, ':') != -1
}

// lastIndex returns the index of the last occurrence of char in s, or -1 if not found.
func lastIndex(s string, char byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == char {
			return i
		}
	}
	return -1
}
