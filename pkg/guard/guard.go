package guard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/parse"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// Resolver looks up the addresses of a host name. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// reservedPrefixes are special-purpose ranges not covered by the netip predicates
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // "this network"
	netip.MustParsePrefix("100.64.0.0/10"),   // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),    // IETF protocol assignments
	netip.MustParsePrefix("192.0.2.0/24"),    // TEST-NET-1
	netip.MustParsePrefix("198.18.0.0/15"),   // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3
	netip.MustParsePrefix("240.0.0.0/4"),     // reserved, includes broadcast
	netip.MustParsePrefix("100::/64"),        // discard-only
	netip.MustParsePrefix("2001::/23"),       // IETF protocol assignments
	netip.MustParsePrefix("2001:db8::/32"),   // documentation
	netip.MustParsePrefix("fc00::/7"),        // unique local
	netip.MustParsePrefix("64:ff9b:1::/48"),  // local-use NAT64
	netip.MustParsePrefix("::ffff:0:0:0/96"), // SIIT translated
}

const (
	defaultCacheSize     = 1024
	defaultLookupTimeout = 5 * time.Second
)

// verdict is a cached host decision
type verdict struct {
	blocked bool
	reason  string
	at      time.Time
}

// Guard rejects scan targets that point at the service's own network:
// localhost, private, loopback, link-local, multicast, unspecified and reserved addresses,
// whether given literally or reached through DNS. Unresolvable hosts are rejected too.
type Guard struct {
	resolver      Resolver
	allowPrivate  bool
	lookupTimeout time.Duration
	ttl           time.Duration
	cache         *lru.Cache[string, verdict]
	log           *logrus.Entry
}

// Options configures a Guard
type Options struct {
	Resolver      Resolver      // nil uses net.DefaultResolver
	AllowPrivate  bool          // skip host checks entirely (local development)
	CacheSize     int           // verdicts kept, 0 uses the default
	CacheTTL      time.Duration // how long a verdict stays valid, 0 means one minute
	LookupTimeout time.Duration
}

// New creates a Guard
func New(opts Options, log *logrus.Entry) (*Guard, error) {
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	cache, err := lru.New[string, verdict](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create verdict cache: %w", err)
	}
	if opts.AllowPrivate {
		log.Warn("Host safety gate disabled: private and local targets are allowed")
	}
	return &Guard{
		resolver:      opts.Resolver,
		allowPrivate:  opts.AllowPrivate,
		lookupTimeout: opts.LookupTimeout,
		ttl:           opts.CacheTTL,
		cache:         cache,
		log:           log,
	}, nil
}

// Validate normalizes raw and checks its host.
// Normalization failures wrap utils.ErrInvalidInput, rejected hosts wrap utils.ErrBlockedHost.
func (g *Guard) Validate(ctx context.Context, raw string) (string, error) {
	target, err := parse.NormalizeTarget(raw)
	if err != nil {
		return "", err
	}
	if g.allowPrivate {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}
	if err := g.CheckHost(ctx, u.Hostname()); err != nil {
		return "", err
	}
	return target, nil
}

// CheckHost returns an error wrapping utils.ErrBlockedHost when host must not be scanned
func (g *Guard) CheckHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	hostLog := g.log.WithField("host", host)

	if host == "" {
		return fmt.Errorf("%w: empty host", utils.ErrBlockedHost)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		hostLog.Info("Blocked localhost target")
		return fmt.Errorf("%w: %s is a local name", utils.ErrBlockedHost, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := disallowedReason(addr); reason != "" {
			hostLog.Infof("Blocked literal address: %s", reason)
			return fmt.Errorf("%w: %s is %s", utils.ErrBlockedHost, host, reason)
		}
		return nil
	}

	if v, ok := g.cache.Get(host); ok && time.Since(v.at) < g.ttl {
		if v.blocked {
			return fmt.Errorf("%w: %s", utils.ErrBlockedHost, v.reason)
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()
	addrs, err := g.resolver.LookupNetIP(lookupCtx, "ip", host)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// DNS failures are not cached: the next request may resolve
		hostLog.Infof("Blocked unresolvable host: %v", err)
		return fmt.Errorf("%w: cannot resolve %s: %v", utils.ErrBlockedHost, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s has no addresses", utils.ErrBlockedHost, host)
	}

	v := verdict{at: time.Now()}
	for _, addr := range addrs {
		if reason := disallowedReason(addr); reason != "" {
			v.blocked = true
			v.reason = fmt.Sprintf("%s resolves to %s (%s)", host, addr.Unmap(), reason)
			break
		}
	}
	g.cache.Add(host, v)

	if v.blocked {
		hostLog.Infof("Blocked host: %s", v.reason)
		return fmt.Errorf("%w: %s", utils.ErrBlockedHost, v.reason)
	}
	return nil
}

// IsDisallowed reports whether addr belongs to a range scans must never reach
func IsDisallowed(addr netip.Addr) bool {
	return disallowedReason(addr) != ""
}

func disallowedReason(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid():
		return "an invalid address"
	case addr.IsUnspecified():
		return "unspecified"
	case addr.IsLoopback():
		return "loopback"
	case addr.IsPrivate():
		return "private"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local"
	case addr.IsInterfaceLocalMulticast(), addr.IsMulticast():
		return "multicast"
	}
	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return "reserved (" + prefix.String() + ")"
		}
	}
	return ""
}
