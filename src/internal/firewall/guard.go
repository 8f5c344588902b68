package firewall

import (
	"fmt"
	"net/netip"
	"strconv"
	"sync"

	"github.com/coreos/go-iptables/iptables"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/vishvananda/netlink"
)

const (
	tableFilter = "filter"
	chainInput  = "INPUT"
)

// ruleRunner is the subset of *iptables.IPTables used by ClientGuard.
type ruleRunner interface {
	NewChain(table, chain string) error
	ClearChain(table, chain string) error
	DeleteChain(table, chain string) error
	AppendUnique(table, chain string, rulespec ...string) error
	InsertUnique(table, chain string, pos int, rulespec ...string) error
	DeleteIfExists(table, chain string, rulespec ...string) error
	Proto() iptables.Protocol
}

// Options configure a ClientGuard.
type Options struct {
	// Chain holds the per-client rules.
	Chain string
	// Interface limits enforcement to one inbound interface; empty means all.
	Interface string
	// Port is the UDP port of the DNS listener.
	Port uint16
}

// ClientGuard maintains an iptables chain that accepts DNS datagrams from the
// allowed clients and drops the rest. Both IPv4 and IPv6 tables are managed
// when available.
type ClientGuard struct {
	mu sync.Mutex

	opts    Options
	enabled bool
	clients []netip.Prefix

	ipt4 ruleRunner
	ipt6 ruleRunner
}

// NewClientGuard creates a guard. The interface, when set, must exist.
func NewClientGuard(opts Options) (*ClientGuard, error) {
	if opts.Chain == "" {
		return nil, fmt.Errorf("firewall chain name is required")
	}

	if opts.Interface != "" {
		if _, err := netlink.LinkByName(opts.Interface); err != nil {
			return nil, fmt.Errorf("interface %s not found: %w", opts.Interface, err)
		}
	}

	ipt4, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("failed to create iptables (IPv4): %w", err)
	}

	var ipt6 ruleRunner
	if t, err := iptables.NewWithProtocol(iptables.ProtocolIPv6); err != nil {
		log.Debugf("IPv6 iptables not available: %v", err)
	} else {
		ipt6 = t
	}

	return newClientGuard(opts, ipt4, ipt6), nil
}

func newClientGuard(opts Options, ipt4, ipt6 ruleRunner) *ClientGuard {
	return &ClientGuard{
		opts: opts,
		ipt4: ipt4,
		ipt6: ipt6,
	}
}

// Apply installs rules admitting exactly the given clients, replacing the
// previous set. It is safe to call on every policy reload.
func (g *ClientGuard) Apply(clients []netip.Prefix) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clients = append([]netip.Prefix(nil), clients...)

	for _, ipt := range g.runners() {
		if err := g.applyRules(ipt); err != nil {
			g.removeRules()
			g.enabled = false
			return fmt.Errorf("failed to apply %s rules: %w", protoName(ipt.Proto()), err)
		}
	}

	g.enabled = true
	log.Infof("Firewall client restriction applied to UDP port %d (%d allowed prefixes)", g.opts.Port, len(g.clients))

	return nil
}

// Remove deletes the chain and its jump rule.
func (g *ClientGuard) Remove() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled {
		return nil
	}

	g.removeRules()
	g.enabled = false
	log.Infof("Firewall client restriction removed")

	return nil
}

// Enabled reports whether rules are installed.
func (g *ClientGuard) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

func (g *ClientGuard) runners() []ruleRunner {
	runners := []ruleRunner{g.ipt4}
	if g.ipt6 != nil {
		runners = append(runners, g.ipt6)
	}
	return runners
}

func (g *ClientGuard) applyRules(ipt ruleRunner) error {
	if err := ipt.NewChain(tableFilter, g.opts.Chain); err != nil {
		// Exit status 1 means the chain already exists
		if eerr, ok := err.(*iptables.Error); !(ok && eerr.ExitStatus() == 1) {
			return fmt.Errorf("failed to create chain: %w", err)
		}
	}

	if err := ipt.ClearChain(tableFilter, g.opts.Chain); err != nil {
		return fmt.Errorf("failed to clear chain: %w", err)
	}

	for _, rule := range clientRules(ipt.Proto(), g.clients) {
		if err := ipt.AppendUnique(tableFilter, g.opts.Chain, rule...); err != nil {
			return fmt.Errorf("failed to add rule: %w", err)
		}
	}

	if err := ipt.InsertUnique(tableFilter, chainInput, 1, g.jumpRule()...); err != nil {
		return fmt.Errorf("failed to link chain: %w", err)
	}

	return nil
}

func (g *ClientGuard) removeRules() {
	for _, ipt := range g.runners() {
		if err := ipt.DeleteIfExists(tableFilter, chainInput, g.jumpRule()...); err != nil {
			log.Debugf("Failed to unlink chain: %v", err)
		}
		if err := ipt.ClearChain(tableFilter, g.opts.Chain); err != nil {
			log.Debugf("Failed to clear chain: %v", err)
		}
		if err := ipt.DeleteChain(tableFilter, g.opts.Chain); err != nil {
			log.Debugf("Failed to delete chain: %v", err)
		}
	}
}

// jumpRule sends inbound DNS datagrams to the guard chain.
func (g *ClientGuard) jumpRule() []string {
	rule := []string{"-p", "udp", "--dport", strconv.Itoa(int(g.opts.Port))}
	if g.opts.Interface != "" {
		rule = append(rule, "-i", g.opts.Interface)
	}
	return append(rule, "-j", g.opts.Chain)
}

// clientRules returns RETURN rules for the prefixes of the table's family,
// followed by a final DROP.
func clientRules(proto iptables.Protocol, clients []netip.Prefix) [][]string {
	var rules [][]string
	for _, p := range clients {
		if p.Addr().Is4() != (proto == iptables.ProtocolIPv4) {
			continue
		}
		rules = append(rules, []string{"-s", p.String(), "-j", "RETURN"})
	}
	return append(rules, []string{"-j", "DROP"})
}

func protoName(proto iptables.Protocol) string {
	if proto == iptables.ProtocolIPv6 {
		return "IPv6"
	}
	return "IPv4"
}
