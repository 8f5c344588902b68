package dnsproxy

import (
	"net/netip"
	"strings"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
)

// DNSCheckDomain is answered locally so a client can prove it uses this proxy.
const DNSCheckDomain = "dns-check.dnsdivert.internal"

// Short TTL so repeated checks reach the proxy again.
const dnsCheckTTL = 1

// Answer used for check queries when no diversion address is configured.
var dnsCheckFallbackIP = netip.MustParseAddr("192.0.2.53")

// Subscribe adds a new subscriber for DNS check events.
// Returns a channel that will receive domain names when DNS check queries are received.
func (p *DNSProxy) Subscribe() chan string {
	ch := make(chan string, 10)
	p.dnscheckSubscribersMu.Lock()
	p.dnscheckSubscribers[ch] = struct{}{}
	p.dnscheckSubscribersMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *DNSProxy) Unsubscribe(ch chan string) {
	p.dnscheckSubscribersMu.Lock()
	if _, exists := p.dnscheckSubscribers[ch]; exists {
		delete(p.dnscheckSubscribers, ch)
		close(ch)
	}
	p.dnscheckSubscribersMu.Unlock()
}

// CloseAllSubscribers closes all subscriber channels, unblocking their readers.
func (p *DNSProxy) CloseAllSubscribers() {
	p.dnscheckSubscribersMu.Lock()
	defer p.dnscheckSubscribersMu.Unlock()

	for ch := range p.dnscheckSubscribers {
		close(ch)
	}
	p.dnscheckSubscribers = make(map[chan string]struct{})
}

// broadcastDNSCheck sends a domain to all subscribers without blocking.
func (p *DNSProxy) broadcastDNSCheck(domain string) {
	if p.ctx != nil && p.ctx.Err() != nil {
		return
	}

	p.dnscheckSubscribersMu.RLock()
	defer p.dnscheckSubscribersMu.RUnlock()

	for ch := range p.dnscheckSubscribers {
		select {
		case ch <- domain:
		default:
			// Channel full, skip
		}
	}
}

// isDNSCheckDomain reports whether domain is the check domain or one of its subdomains.
func isDNSCheckDomain(domain string) bool {
	domain = strings.ToLower(domain)
	if domain == DNSCheckDomain {
		return true
	}
	return strings.HasSuffix(domain, "."+DNSCheckDomain)
}

// processDNSCheckRequest answers a check domain query and notifies subscribers.
func (p *DNSProxy) processDNSCheckRequest(q *wire.Query, snap *policy.Snapshot) ([]byte, error) {
	domain := q.First().Name
	log.Debugf("[%04x] DNS check query intercepted: %s", q.ID, domain)

	p.counters.checkHits.Add(1)
	p.broadcastDNSCheck(domain)

	answer := dnsCheckFallbackIP
	if snap != nil && snap.DiversionAddress.Is4() {
		answer = snap.DiversionAddress
	}
	return wire.Encode(q, answer, dnsCheckTTL)
}
