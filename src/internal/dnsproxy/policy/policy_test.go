package policy

import (
	"net/netip"
	"sync"
	"testing"
)

var diversion = netip.MustParseAddr("10.0.0.1")

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		snap      Snapshot
		query     string
		wantDiv   bool
		wantToken string
	}{
		{
			name:    "allow all diverts everything",
			snap:    Snapshot{DiversionAddress: diversion, AllowAll: true},
			query:   "anything.example",
			wantDiv: true,
		},
		{
			name:      "exact whitelist entry",
			snap:      Snapshot{DiversionAddress: diversion, Whitelist: []string{"example.com"}},
			query:     "example.com",
			wantDiv:   true,
			wantToken: "example.com",
		},
		{
			name:      "substring match",
			snap:      Snapshot{DiversionAddress: diversion, Whitelist: []string{"ads"}},
			query:     "myads.com",
			wantDiv:   true,
			wantToken: "ads",
		},
		{
			name:      "case insensitive",
			snap:      Snapshot{DiversionAddress: diversion, Whitelist: []string{"Example.COM"}},
			query:     "WWW.EXAMPLE.com",
			wantDiv:   true,
			wantToken: "example.com",
		},
		{
			name:    "no match forwards",
			snap:    Snapshot{DiversionAddress: diversion, Whitelist: []string{"example.com"}},
			query:   "other.org",
			wantDiv: false,
		},
		{
			name:    "empty whitelist forwards",
			snap:    Snapshot{DiversionAddress: diversion},
			query:   "example.com",
			wantDiv: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.query, NewSnapshot(tt.snap))
			if (d.Action == Divert) != tt.wantDiv {
				t.Fatalf("expected divert=%v, got %s", tt.wantDiv, d.Action)
			}
			if tt.wantDiv && d.Address != diversion {
				t.Errorf("expected address %s, got %s", diversion, d.Address)
			}
			if !tt.wantDiv && d.Address.IsValid() {
				t.Errorf("forward decision must not carry an address, got %s", d.Address)
			}
			if d.Token != tt.wantToken {
				t.Errorf("expected token %q, got %q", tt.wantToken, d.Token)
			}
		})
	}
}

func TestDecide_NilSnapshot(t *testing.T) {
	if d := Decide("example.com", nil); d.Action != Forward {
		t.Errorf("expected forward, got %s", d.Action)
	}
}

func TestNormalizeTokens(t *testing.T) {
	got := NormalizeTokens([]string{
		"  Example.COM. ",
		"",
		"# comment",
		"ads",
		"example.com",
		".",
		"ADS",
	})

	want := []string{"example.com", "ads"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestParseClients(t *testing.T) {
	prefixes, err := ParseClients([]string{"192.168.1.10", "10.0.0.0/8", "# office", "", "::ffff:172.16.0.1", "fd00::/8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"192.168.1.10/32", "10.0.0.0/8", "172.16.0.1/32", "fd00::/8"}
	if len(prefixes) != len(want) {
		t.Fatalf("expected %d prefixes, got %v", len(want), prefixes)
	}
	for i, w := range want {
		if prefixes[i].String() != w {
			t.Errorf("prefix %d: expected %s, got %s", i, w, prefixes[i])
		}
	}

	for _, bad := range []string{"not-an-ip", "10.0.0.0/33"} {
		if _, err := ParseClients([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestClientAllowed(t *testing.T) {
	clients, err := ParseClients([]string{"192.168.1.0/24", "10.1.1.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	restricted := NewSnapshot(Snapshot{RestrictClients: true, AllowedClients: clients})
	open := NewSnapshot(Snapshot{AllowedClients: clients})

	tests := []struct {
		name string
		snap *Snapshot
		addr string
		want bool
	}{
		{"inside prefix", restricted, "192.168.1.77", true},
		{"exact host", restricted, "10.1.1.1", true},
		{"ipv4-mapped source", restricted, "::ffff:192.168.1.5", true},
		{"outside", restricted, "10.1.1.2", false},
		{"restriction disabled", open, "8.8.8.8", true},
		{"nil snapshot", nil, "8.8.8.8", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientAllowed(netip.MustParseAddr(tt.addr), tt.snap); got != tt.want {
				t.Errorf("ClientAllowed(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestSnapshot_Mode(t *testing.T) {
	if m := NewSnapshot(Snapshot{AllowAll: true}).Mode(); m != ModeAllowAll {
		t.Errorf("expected %s, got %s", ModeAllowAll, m)
	}
	if m := NewSnapshot(Snapshot{}).Mode(); m != ModeWhitelist {
		t.Errorf("expected %s, got %s", ModeWhitelist, m)
	}
}

func TestStore_Swap(t *testing.T) {
	first := NewSnapshot(Snapshot{DiversionAddress: diversion, Whitelist: []string{"a.com"}})
	second := NewSnapshot(Snapshot{DiversionAddress: diversion, AllowAll: true})

	store := NewStore(first)

	// A handler that loaded the old snapshot keeps deciding with it.
	held := store.Load()
	if old := store.Swap(second); old != first {
		t.Error("expected Swap to return the previous snapshot")
	}

	if d := Decide("b.com", held); d.Action != Forward {
		t.Errorf("held snapshot should still forward b.com, got %s", d.Action)
	}
	if d := Decide("b.com", store.Load()); d.Action != Divert {
		t.Errorf("new snapshot should divert b.com, got %s", d.Action)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(NewSnapshot(Snapshot{DiversionAddress: diversion}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = Decide("example.com", store.Load())
			}
		}()
		go func(allowAll bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Swap(NewSnapshot(Snapshot{DiversionAddress: diversion, AllowAll: allowAll}))
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if store.Load() == nil {
		t.Fatal("expected a snapshot after concurrent swaps")
	}
}
