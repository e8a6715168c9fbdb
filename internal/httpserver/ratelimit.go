package httpserver

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"chatspace/internal/metrics"
)

const (
	limiterTTL           = 10 * time.Minute
	limiterSweepPeriod   = time.Minute
	defaultAuthRateRPS   = 5
	defaultAuthRateBurst = 10
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per client address. Entries idle for
// longer than ttl are swept on access.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	clock     clock.Clock

	// Peers allowed to report the client address in X-Forwarded-For or
	// X-Real-IP. Everyone else is keyed on the socket peer.
	trusted []netip.Prefix
}

func newLimiterPool(rps float64, burst int, trusted []netip.Prefix) *limiterPool {
	if rps <= 0 {
		rps = defaultAuthRateRPS
	}
	if burst <= 0 {
		burst = defaultAuthRateBurst
	}
	c := clock.New()
	return &limiterPool{
		m:         make(map[string]*limiterEntry),
		rps:       rps,
		burst:     burst,
		ttl:       limiterTTL,
		lastSweep: c.Now(),
		clock:     c,
		trusted:   trusted,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if now.Sub(p.lastSweep) >= limiterSweepPeriod {
		p.sweepLocked(now)
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}

func (p *limiterPool) sweepLocked(now time.Time) {
	for k, e := range p.m {
		if now.Sub(e.lastSeen) > p.ttl {
			delete(p.m, k)
		}
	}
	p.lastSweep = now
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// RateLimit rejects requests from an address that exceeds its bucket.
func RateLimit(pool *limiterPool, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pool.Allow(pool.clientKey(r)) {
				m.AuthFailed("rate_limit")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the socket peer address, or the forwarded client address
// when the peer is a trusted proxy.
func (p *limiterPool) clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !p.isTrusted(peer.Unmap()) {
		return host
	}
	if fwd := forwardedFor(r); fwd != "" {
		return fwd
	}
	return host
}

func (p *limiterPool) isTrusted(addr netip.Addr) bool {
	for _, pfx := range p.trusted {
		if pfx.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedFor returns the client address a proxy reported: the last
// X-Forwarded-For hop, since earlier hops are client-supplied, then X-Real-IP.
func forwardedFor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(hops[len(hops)-1])); err == nil {
			return addr.String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}
	return ""
}
