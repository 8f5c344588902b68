package policy

import (
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"
)

const (
	ModeAllowAll  = "allow_all"
	ModeWhitelist = "whitelist"
)

// Snapshot is an immutable view of the admission policy.
// It is replaced as a whole on reload and never modified in place.
type Snapshot struct {
	DiversionAddress netip.Addr
	AllowAll         bool
	Whitelist        []string
	RestrictClients  bool
	AllowedClients   []netip.Prefix
}

// NewSnapshot returns a normalized copy of raw: whitelist tokens are cleaned up
// and client prefixes masked.
func NewSnapshot(raw Snapshot) *Snapshot {
	clients := make([]netip.Prefix, 0, len(raw.AllowedClients))
	for _, p := range raw.AllowedClients {
		clients = append(clients, p.Masked())
	}

	return &Snapshot{
		DiversionAddress: raw.DiversionAddress,
		AllowAll:         raw.AllowAll,
		Whitelist:        NormalizeTokens(raw.Whitelist),
		RestrictClients:  raw.RestrictClients,
		AllowedClients:   clients,
	}
}

// Mode returns ModeAllowAll or ModeWhitelist.
func (s *Snapshot) Mode() string {
	if s.AllowAll {
		return ModeAllowAll
	}
	return ModeWhitelist
}

// NormalizeTokens trims and lowercases tokens, strips trailing dots,
// skips blanks and '#' comments, and drops duplicates keeping first-seen order.
func NormalizeTokens(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	tokens := make([]string, 0, len(lines))

	for _, line := range lines {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		token = strings.TrimSuffix(strings.ToLower(token), ".")
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}

	return tokens
}

// ParseClients parses IP addresses and CIDR prefixes. A bare address becomes a
// single-host prefix. Blank lines and '#' comments are skipped.
func ParseClients(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid client prefix %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid client address %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

// Store holds the current snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding the initial snapshot.
func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Swap installs a new snapshot and returns the previous one.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}
