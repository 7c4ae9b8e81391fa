package collector

import (
	"context"
	"net"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"
)

type ResolverOptions struct {
	// Timeout bounds one reverse lookup.
	Timeout time.Duration
	// TTL is how long a resolved name is kept; NegativeTTL applies to
	// addresses that did not resolve.
	TTL         time.Duration
	NegativeTTL time.Duration
	// Concurrency caps the number of lookups in flight.
	Concurrency int
	Logger      *zap.SugaredLogger
}

func (o *ResolverOptions) fill() {
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.TTL <= 0 {
		o.TTL = 10 * time.Minute
	}
	if o.NegativeTTL <= 0 {
		o.NegativeTTL = time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// HostResolver maps remote addresses to hostnames in the background. Lookup
// never blocks: an address is answered from the cache, and a miss schedules
// a reverse lookup whose result shows up on a later call.
type HostResolver struct {
	opt    ResolverOptions
	lookup func(ctx context.Context, addr string) ([]string, error)
	names  *cache.Cache
	group  singleflight.Group
	sem    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHostResolver(opt ResolverOptions) *HostResolver {
	opt.fill()
	ctx, cancel := context.WithCancel(context.Background())
	return &HostResolver{
		opt:    opt,
		lookup: net.DefaultResolver.LookupAddr,
		names:  cache.New(opt.TTL, 2*opt.TTL),
		sem:    make(chan struct{}, opt.Concurrency),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Lookup returns the cached hostname of addr, or "" when none is known yet.
func (r *HostResolver) Lookup(addr string) string {
	if !resolvable(addr) {
		return ""
	}
	if v, ok := r.names.Get(addr); ok {
		return v.(string)
	}
	if r.ctx.Err() != nil {
		return ""
	}

	// DoChan runs at most one lookup per address; the buffered result
	// channel is dropped unread.
	r.group.DoChan(addr, func() (interface{}, error) {
		return r.Resolve(r.ctx, addr), nil
	})
	return ""
}

// Resolve performs a blocking, cached reverse lookup of addr.
func (r *HostResolver) Resolve(ctx context.Context, addr string) string {
	if !resolvable(addr) {
		return ""
	}
	if v, ok := r.names.Get(addr); ok {
		return v.(string)
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return ""
	}

	lctx, cancel := context.WithTimeout(ctx, r.opt.Timeout)
	defer cancel()

	names, err := r.lookup(lctx, addr)
	if err != nil || len(names) == 0 {
		if ctx.Err() == nil {
			r.opt.Logger.Debugf("reverse lookup of %s failed: %v", addr, err)
			r.names.Set(addr, "", r.opt.NegativeTTL)
		}
		return ""
	}

	name := displayName(names[0])
	r.names.Set(addr, name, cache.DefaultExpiration)
	return name
}

// Close stops scheduling lookups and cancels the ones in flight.
func (r *HostResolver) Close() {
	r.cancel()
}

// resolvable rejects loopback, link-local and unspecified addresses, which
// have no useful public name.
func resolvable(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast() && !ip.IsUnspecified()
}

func displayName(name string) string {
	name = strings.TrimSuffix(name, ".")
	if u, err := idna.ToUnicode(name); err == nil {
		return u
	}
	return name
}
