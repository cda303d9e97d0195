package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// exemptPaths are never rate limited.
var exemptPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-client token bucket rate limiter. Recalculation is the
// expensive endpoint, so it is mounted on the API routes.
type Limiter struct {
	buckets sync.Map // client IP -> *bucket
	rate    float64  // tokens per second
	burst   int

	idle   time.Duration
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst
// and starts the goroutine that evicts idle clients. Call Stop to end it.
func NewLimiter(rate float64, burst int) *Limiter {
	l := &Limiter{
		rate:   rate,
		burst:  burst,
		idle:   10 * time.Minute,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	l.wg.Add(1)
	go l.evictLoop(5 * time.Minute)
	return l
}

// Stop ends the eviction goroutine. Safe to call multiple times.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// Middleware rejects clients that ran out of tokens with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		ok, remaining, wait := l.take(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take refills the client's bucket and consumes one token. When none is
// left it returns the seconds until the next one.
func (l *Limiter) take(ip string) (ok bool, remaining int, retryAfter int) {
	now := l.now()
	v, _ := l.buckets.LoadOrStore(ip, &bucket{tokens: float64(l.burst), lastRefill: now})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(math.Floor(b.tokens)), 0
	}
	wait := int(math.Ceil((1 - b.tokens) / l.rate))
	if wait < 1 {
		wait = 1
	}
	return false, 0, wait
}

func (l *Limiter) evictLoop(every time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evict()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evict() {
	cutoff := l.now().Add(-l.idle)
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		stale := b.lastRefill.Before(cutoff)
		b.mu.Unlock()
		if stale {
			l.buckets.Delete(key)
		}
		return true
	})
}

// clientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then
// the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
