// Package policy decides whether a queried name is diverted to the configured
// address or forwarded to the upstream resolvers, and which clients are served.
package policy

import (
	"net/netip"
	"strings"
)

// Action is the outcome of a policy decision.
type Action int

const (
	Forward Action = iota
	Divert
)

func (a Action) String() string {
	if a == Divert {
		return "divert"
	}
	return "forward"
}

// Decision is the result of Decide. Address is set only for Divert.
// Token is the whitelist entry that matched, if any.
type Decision struct {
	Action  Action
	Address netip.Addr
	Token   string
}

// Decide applies the admission policy to name:
// allow-all diverts everything, otherwise a name is diverted when any whitelist
// token occurs anywhere in it ("ads" matches "myads.com"), and forwarded otherwise.
func Decide(name string, snap *Snapshot) Decision {
	if snap == nil {
		return Decision{Action: Forward}
	}

	if snap.AllowAll {
		return Decision{Action: Divert, Address: snap.DiversionAddress}
	}

	name = strings.ToLower(name)
	for _, token := range snap.Whitelist {
		if strings.Contains(name, token) {
			return Decision{Action: Divert, Address: snap.DiversionAddress, Token: token}
		}
	}

	return Decision{Action: Forward}
}

// ClientAllowed reports whether a query from addr should be served.
// Without client restriction every source is allowed.
func ClientAllowed(addr netip.Addr, snap *Snapshot) bool {
	if snap == nil || !snap.RestrictClients {
		return true
	}

	addr = addr.Unmap()
	for _, p := range snap.AllowedClients {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
