package upstreams

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/caching"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
	"github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout  = 2 * time.Second
	DefaultCacheTTL = 300 * time.Second

	// StrategyCache is reported as the strategy of cache hits.
	StrategyCache = "cache"
)

// Options tune a Chain. Zero values fall back to the defaults.
type Options struct {
	// Timeout bounds each upstream attempt.
	Timeout time.Duration
	// CacheTTL is how long a successful resolution is cached.
	CacheTTL time.Duration
}

// Result is the outcome of Chain.Resolve. Exactly one of Address and Failure is set.
type Result struct {
	Address  netip.Addr
	Strategy string
	Cached   bool
	Failure  *errors.ResolutionFailure
}

// OK reports whether an address was produced.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Chain tries upstreams in order, consulting the cache first.
// Concurrent resolutions of the same name share one upstream exchange.
type Chain struct {
	upstreams []Upstream
	cache     *caching.RecordsCache
	timeout   time.Duration
	cacheTTL  uint32

	group singleflight.Group
}

// NewChain creates a resolver chain. cache may be nil.
func NewChain(upstreams []Upstream, cache *caching.RecordsCache, opts Options) *Chain {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	return &Chain{
		upstreams: upstreams,
		cache:     cache,
		timeout:   opts.Timeout,
		cacheTTL:  uint32(opts.CacheTTL / time.Second),
	}
}

// Resolve returns the IPv4 address of name. A cache hit returns without any
// upstream call. Otherwise each matching upstream is tried at most once, in
// order, each under its own timeout; the first success is cached. When all fail,
// the failure carries the reason of the last attempt and nothing is cached.
func (c *Chain) Resolve(ctx context.Context, name string) Result {
	name = wire.NormalizeName(name)

	if c.cache != nil {
		if addr, ok := c.cache.Get(name); ok {
			return Result{Address: addr, Strategy: StrategyCache, Cached: true}
		}
	}

	ch := c.group.DoChan(name, func() (interface{}, error) {
		return c.resolveUpstreams(ctx, name), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Result)
	case <-ctx.Done():
		return Result{Failure: errors.NewResolutionFailure(Classify(ctx.Err()), name, "", ctx.Err())}
	}
}

func (c *Chain) resolveUpstreams(ctx context.Context, name string) Result {
	var last *errors.ResolutionFailure
	attempted := 0

	for _, upstream := range c.upstreams {
		if !upstream.MatchesDomain(name) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		attempted++

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		addr, err := upstream.Resolve(attemptCtx, name)
		cancel()

		if err == nil {
			if c.cache != nil {
				c.cache.Put(name, addr, c.cacheTTL)
			}
			return Result{Address: addr, Strategy: upstream.String()}
		}

		last = asFailure(name, upstream.String(), err)
		log.Debugf("Upstream %s failed for %s: %s", upstream, name, last.Reason)
	}

	if last == nil {
		if attempted == 0 && ctx.Err() == nil {
			return Result{Failure: errors.NewResolutionFailure(errors.ReasonNoResolverAvailable, name, "", nil)}
		}
		return Result{Failure: errors.NewResolutionFailure(Classify(ctx.Err()), name, "", ctx.Err())}
	}

	return Result{Failure: last}
}

// Upstreams returns the configured strategies in order.
func (c *Chain) Upstreams() []Upstream {
	return c.upstreams
}

// Timeout returns the per-attempt timeout.
func (c *Chain) Timeout() time.Duration {
	return c.timeout
}

// Cache returns the resolution cache, or nil.
func (c *Chain) Cache() *caching.RecordsCache {
	return c.cache
}

// String returns the upstreams joined by commas.
func (c *Chain) String() string {
	parts := make([]string, 0, len(c.upstreams))
	for _, upstream := range c.upstreams {
		parts = append(parts, upstream.String())
	}
	return strings.Join(parts, ", ")
}

// Close closes all upstreams.
func (c *Chain) Close() error {
	for _, upstream := range c.upstreams {
		upstream.Close()
	}
	return nil
}
