package dnsproxy

import (
	"sync/atomic"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/caching"
)

type counters struct {
	received       atomic.Uint64
	malformed      atomic.Uint64
	refusedClients atomic.Uint64
	diverted       atomic.Uint64
	forwarded      atomic.Uint64
	failed         atomic.Uint64
	shed           atomic.Uint64
	discarded      atomic.Uint64
	checkHits      atomic.Uint64
	inFlight       atomic.Int64
}

// Stats is a snapshot of the proxy counters.
type Stats struct {
	State          string         `json:"state"`
	Received       uint64         `json:"received"`
	Malformed      uint64         `json:"malformed"`
	RefusedClients uint64         `json:"refused_clients"`
	Diverted       uint64         `json:"diverted"`
	Forwarded      uint64         `json:"forwarded"`
	Failed         uint64         `json:"failed"`
	Shed           uint64         `json:"shed"`
	Discarded      uint64         `json:"discarded"`
	CheckHits      uint64         `json:"check_hits"`
	InFlight       int64          `json:"in_flight"`
	Cache          *caching.Stats `json:"cache,omitempty"`
}

// Stats returns DNS proxy statistics.
func (p *DNSProxy) Stats() Stats {
	s := Stats{
		State:          p.State().String(),
		Received:       p.counters.received.Load(),
		Malformed:      p.counters.malformed.Load(),
		RefusedClients: p.counters.refusedClients.Load(),
		Diverted:       p.counters.diverted.Load(),
		Forwarded:      p.counters.forwarded.Load(),
		Failed:         p.counters.failed.Load(),
		Shed:           p.counters.shed.Load(),
		Discarded:      p.counters.discarded.Load(),
		CheckHits:      p.counters.checkHits.Load(),
		InFlight:       p.counters.inFlight.Load(),
	}

	if cache := p.chain.Cache(); cache != nil {
		cs := cache.Stats()
		s.Cache = &cs
	}

	return s
}
