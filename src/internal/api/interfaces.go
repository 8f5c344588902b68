package api

import (
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
)

// Service is the running proxy as seen by the API.
// It lets the API observe the proxy without importing the commands package.
type Service interface {
	// Stats returns the proxy counters.
	Stats() dnsproxy.Stats
	// Snapshot returns the policy currently applied.
	Snapshot() *policy.Snapshot
	// Upstreams returns the resolver chain in order.
	Upstreams() []string
	// Reload re-reads the configuration and list files and applies them.
	Reload() error
}

// DNSCheckSubscriber provides check domain notifications.
type DNSCheckSubscriber interface {
	Subscribe() chan string
	Unsubscribe(ch chan string)
}
