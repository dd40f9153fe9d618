package transporthttp

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

type ctxKey int

const siteKey ctxKey = iota

// SiteFrom returns the authenticated site stored by BearerAuth.
func SiteFrom(ctx context.Context) *model.Site {
	site, _ := ctx.Value(siteKey).(*model.Site)
	return site
}

// BodyLimit caps request bodies at maxBytes.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuth authenticates `Authorization: Bearer sk_...` against stored API
// keys and scopes the request to the key's site. Key usage is recorded
// best-effort off the request path.
func BearerAuth(st store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearerToken(r)
			if !ok {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			key, err := st.GetAPIKeyBySecret(r.Context(), secret)
			if err != nil {
				zap.L().Error("api key lookup failed", zap.Error(err))
				WriteProblem(w, http.StatusInternalServerError, "internal error", "")
				return
			}
			if key == nil || !key.IsActive {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}
			site, err := st.GetSite(r.Context(), key.SiteID)
			if err != nil {
				zap.L().Error("site lookup failed", zap.Error(err))
				WriteProblem(w, http.StatusInternalServerError, "internal error", "")
				return
			}
			if site == nil || !site.IsActive {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "site is inactive")
				return
			}

			go func(id string) {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := st.TouchAPIKey(ctx, id, time.Now().UTC()); err != nil {
					zap.L().Debug("touch api key failed", zap.Error(err))
				}
			}(key.ID)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), siteKey, site)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// ipRateLimiter keeps one token bucket per client IP. Buckets idle for ten
// minutes are evicted on the next sweep.
type ipRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ipClient
	limit   rate.Limit
	burst   int
}

type ipClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	l := &ipRateLimiter{
		clients: map[string]*ipClient{},
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
	go l.sweep()
	return l
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[ip]
	if !ok {
		c = &ipClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

func (l *ipRateLimiter) sweep() {
	for range time.Tick(time.Minute) {
		l.mu.Lock()
		for ip, c := range l.clients {
			if time.Since(c.lastSeen) > 10*time.Minute {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimitByIP throttles requests per client IP.
func RateLimitByIP(perSecond float64, burst int) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newIPRateLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r)) {
				WriteProblem(w, http.StatusTooManyRequests, "rate limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
