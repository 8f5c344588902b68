package dnsproxy

import (
	"net/netip"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/miekg/dns"
)

// processRequest handles one datagram and returns the reply to send,
// or nil when the datagram is dropped.
func (p *DNSProxy) processRequest(clientAddr netip.AddrPort, reqBytes []byte) []byte {
	q, err := wire.Decode(reqBytes)
	if err != nil {
		p.counters.malformed.Add(1)
		log.Debugf("Dropping malformed datagram from %s: %v", clientAddr, err)
		return nil
	}

	// One snapshot for the whole query, even if a reload happens meanwhile.
	snap := p.store.Load()

	if !policy.ClientAllowed(clientAddr.Addr(), snap) {
		p.counters.refusedClients.Add(1)
		log.Debugf("[%04x] Dropping query from client %s: not in allowed clients", q.ID, clientAddr.Addr())
		return nil
	}

	log.Debugf("[%04x] DNS query: %s from %s", q.ID, q, clientAddr)

	resp, err := p.answer(q, snap)
	if err != nil {
		log.Warnf("[%04x] Failed to build response for %s: %v", q.ID, q, err)
		return nil
	}
	return resp
}

// answer builds the reply for a decoded query. A nil reply without error means drop.
func (p *DNSProxy) answer(q *wire.Query, snap *policy.Snapshot) ([]byte, error) {
	if q.Opcode != dns.OpcodeQuery {
		return wire.EncodeFailure(q, dns.RcodeNotImplemented)
	}

	first := q.First()

	if isDNSCheckDomain(first.Name) {
		return p.processDNSCheckRequest(q, snap)
	}

	decision := policy.Decide(first.Name, snap)
	if decision.Action == policy.Divert {
		p.counters.diverted.Add(1)
		if decision.Token != "" {
			log.Debugf("[%04x] Diverting %s to %s (matched %q)", q.ID, first.Name, decision.Address, decision.Token)
		} else {
			log.Debugf("[%04x] Diverting %s to %s", q.ID, first.Name, decision.Address)
		}
		return wire.Encode(q, decision.Address, p.config.AnswerTTL)
	}

	p.counters.forwarded.Add(1)

	// Only A/IN is resolved; anything else gets an empty NOERROR.
	if first.Type != dns.TypeA || first.Class != dns.ClassINET {
		log.Debugf("[%04x] No data for %s", q.ID, q)
		return wire.Encode(q, netip.Addr{}, p.config.AnswerTTL)
	}

	result := p.chain.Resolve(p.ctx, first.Name)
	if result.OK() {
		log.Debugf("[%04x] Resolved %s to %s via %s", q.ID, first.Name, result.Address, result.Strategy)
		return wire.Encode(q, result.Address, p.config.AnswerTTL)
	}

	p.counters.failed.Add(1)
	log.Debugf("[%04x] Resolution failed: %v", q.ID, result.Failure)

	switch p.config.FailureReply {
	case config.FailureReplyDrop:
		return nil, nil
	case config.FailureReplyNXDomain:
		return wire.EncodeFailure(q, dns.RcodeNameError)
	default:
		return wire.EncodeFailure(q, dns.RcodeServerFailure)
	}
}
