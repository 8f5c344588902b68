package dnsproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/upstreams"
	dnserrors "github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/miekg/dns"
	"golang.org/x/sync/semaphore"
)

const (
	networkUDP = "udp"

	cacheCleanupInterval = 1 * time.Minute

	defaultMaxInflight   = 1024
	defaultShutdownGrace = 3 * time.Second
)

// State is the lifecycle state of a DNSProxy.
type State int32

const (
	StateInit State = iota
	StateBound
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBound:
		return "bound"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ProxyConfig contains configuration for the DNS proxy.
type ProxyConfig struct {
	// ListenAddress is the address to listen on (default: 0.0.0.0)
	ListenAddress string

	// ListenPort is the UDP port to listen on; 0 picks a free port
	ListenPort uint16

	// MaxInflight bounds concurrently handled queries (default: 1024)
	MaxInflight int64

	// ShutdownGrace is how long Stop waits for in-flight queries (default: 3s)
	ShutdownGrace time.Duration

	// FailureReply selects the reply sent when resolution fails: servfail, nxdomain or drop
	FailureReply string

	// AnswerTTL is the TTL of synthesized A records
	AnswerTTL uint32
}

// ProxyConfigFromAppConfig creates a ProxyConfig from the application config.
func ProxyConfigFromAppConfig(cfg *config.Config) ProxyConfig {
	return ProxyConfig{
		ListenAddress: cfg.Server.ListenAddr,
		ListenPort:    cfg.Server.ListenPort,
		MaxInflight:   cfg.Server.MaxInflight,
		ShutdownGrace: time.Duration(cfg.Server.ShutdownGraceSec) * time.Second,
		FailureReply:  cfg.Server.FailureReply,
		AnswerTTL:     cfg.Server.AnswerTTL,
	}
}

// DNSProxy answers UDP DNS queries according to the current policy snapshot.
type DNSProxy struct {
	config ProxyConfig

	store *policy.Store
	chain *upstreams.Chain

	// Bounds handler goroutines
	sem *semaphore.Weighted

	counters counters
	state    atomic.Int32

	// Subscribers notified of check domain queries
	dnscheckSubscribersMu sync.RWMutex
	dnscheckSubscribers   map[chan string]struct{}

	// Cancelled after the shutdown grace period; aborts pending resolutions
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        *net.UDPConn
	receiveDone chan struct{}
	cleanupWG   sync.WaitGroup
	handlers    sync.WaitGroup
}

// NewDNSProxy creates a new DNS proxy in the init state.
func NewDNSProxy(cfg ProxyConfig, store *policy.Store, chain *upstreams.Chain) (*DNSProxy, error) {
	if store == nil || store.Load() == nil {
		return nil, fmt.Errorf("policy snapshot is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("resolver chain is required")
	}

	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = defaultMaxInflight
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if cfg.FailureReply == "" {
		cfg.FailureReply = config.FailureReplyServFail
	}
	if cfg.AnswerTTL == 0 {
		cfg.AnswerTTL = config.DefaultAnswerTTL
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DNSProxy{
		config:              cfg,
		store:               store,
		chain:               chain,
		sem:                 semaphore.NewWeighted(cfg.MaxInflight),
		dnscheckSubscribers: make(map[chan string]struct{}),
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

// Start binds the UDP socket and starts the receive loop.
// A bind failure is returned as a BIND_ERROR and leaves the proxy in the init state.
func (p *DNSProxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.State(); s != StateInit {
		return fmt.Errorf("DNS proxy cannot be started in state %s", s)
	}

	listenAddr := net.JoinHostPort(p.config.ListenAddress, strconv.Itoa(int(p.config.ListenPort)))

	udpAddr, err := net.ResolveUDPAddr(networkUDP, listenAddr)
	if err != nil {
		return dnserrors.NewBindError(fmt.Sprintf("invalid listen address %s", listenAddr), err)
	}

	conn, err := net.ListenUDP(networkUDP, udpAddr)
	if err != nil {
		return dnserrors.NewBindError(fmt.Sprintf("%s: %s", listenAddr, bindErrorReason(err)), err)
	}

	p.conn = conn
	p.receiveDone = make(chan struct{})
	p.setState(StateBound)

	go p.serveUDP(conn)

	p.cleanupWG.Add(1)
	go p.cleanupLoop()

	p.setState(StateRunning)
	log.Infof("DNS proxy started on %s (UDP)", conn.LocalAddr())

	return nil
}

// Stop stops receiving, waits up to the shutdown grace period for in-flight
// queries, then cancels whatever is still pending. Late results are discarded.
// ctx may shorten the grace period.
func (p *DNSProxy) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateStopped, StateDraining:
		return nil
	case StateInit:
		p.cancel()
		p.CloseAllSubscribers()
		p.setState(StateStopped)
		return nil
	}

	log.Infof("Stopping DNS proxy...")
	p.setState(StateDraining)

	// Unblock the receive loop without closing the socket; handlers that
	// finish within the grace period still need it to send their replies.
	if err := p.conn.SetReadDeadline(time.Now()); err != nil {
		log.Debugf("Failed to interrupt UDP reads: %v", err)
		p.conn.Close()
	}

	// The receive loop must be gone before waiting on handlers,
	// otherwise it could still add to the wait group.
	<-p.receiveDone

	done := make(chan struct{})
	go func() {
		p.handlers.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.config.ShutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		log.Warnf("Shutdown grace period elapsed, cancelling %d in-flight queries", p.counters.inFlight.Load())
	case <-ctx.Done():
		log.Warnf("Shutdown interrupted, cancelling %d in-flight queries", p.counters.inFlight.Load())
	}

	p.cancel()
	<-done
	p.cleanupWG.Wait()

	if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debugf("Failed to close UDP socket: %v", err)
	}

	p.CloseAllSubscribers()
	p.setState(StateStopped)
	log.Infof("DNS proxy stopped")

	return nil
}

// Reload installs a new policy snapshot. Queries already being handled keep
// the snapshot they started with.
func (p *DNSProxy) Reload(snap *policy.Snapshot) {
	if snap == nil {
		return
	}
	p.store.Swap(snap)
	log.Infof("Policy reloaded: mode=%s, %d whitelist entries, client restriction: %v",
		snap.Mode(), len(snap.Whitelist), snap.RestrictClients)
}

// Snapshot returns the current policy snapshot.
func (p *DNSProxy) Snapshot() *policy.Snapshot {
	return p.store.Load()
}

// State returns the current lifecycle state.
func (p *DNSProxy) State() State {
	return State(p.state.Load())
}

func (p *DNSProxy) setState(s State) {
	p.state.Store(int32(s))
}

// LocalAddr returns the bound address, or nil before Start.
func (p *DNSProxy) LocalAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	return p.conn.LocalAddr()
}

// Chain returns the resolver chain used for forwarded names.
func (p *DNSProxy) Chain() *upstreams.Chain {
	return p.chain
}

// serveUDP reads datagrams sequentially and hands each one to its own goroutine.
func (p *DNSProxy) serveUDP(conn *net.UDPConn) {
	defer close(p.receiveDone)

	buf := make([]byte, dns.MaxMsgSize)

	for {
		n, clientAddr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || p.State() >= StateDraining {
				return
			}
			log.Debugf("UDP read error: %v", err)
			continue
		}

		p.counters.received.Add(1)

		if !p.sem.TryAcquire(1) {
			p.counters.shed.Add(1)
			log.Debugf("Shedding datagram from %s: %d queries in flight", clientAddr, p.config.MaxInflight)
			continue
		}

		req := make([]byte, n)
		copy(req, buf[:n])

		p.handlers.Add(1)
		p.counters.inFlight.Add(1)
		go func(clientAddr netip.AddrPort, req []byte) {
			defer func() {
				p.counters.inFlight.Add(-1)
				p.sem.Release(1)
				p.handlers.Done()
			}()

			resp := p.processRequest(clientAddr, req)
			if resp == nil {
				return
			}

			if p.ctx.Err() != nil {
				p.counters.discarded.Add(1)
				return
			}

			if _, err := conn.WriteToUDPAddrPort(resp, clientAddr); err != nil {
				log.Debugf("UDP write error: %v", err)
			}
		}(clientAddr, req)
	}
}

// cleanupLoop periodically evicts expired cache entries.
func (p *DNSProxy) cleanupLoop() {
	defer p.cleanupWG.Done()

	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if cache := p.chain.Cache(); cache != nil {
				if n := cache.EvictExpiredEntries(); n > 0 {
					log.Debugf("Evicted %d expired cache entries", n)
				}
			}
		}
	}
}
