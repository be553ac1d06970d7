package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
	"github.com/akalivaty/Artale-drop-bot/pkg/ratelimit"
)

// ClientIDHeader lets a chat front end rate-limit per chat user instead of
// per connecting host.
const ClientIDHeader = "X-Client-ID"

// RateLimit rejects requests to the listed paths with 429 once the caller's
// bucket is empty. Other paths, such as health probes, pass through.
func RateLimit(l *ratelimit.Limiter, m *metrics.Metrics, paths ...string) func(http.Handler) http.Handler {
	limited := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		limited[p] = struct{}{}
	}
	retryAfter := strconv.Itoa(int(math.Ceil(l.RetryAfter().Seconds())))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := limited[r.URL.Path]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(clientKey(r)) {
				m.IncRateLimited()
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "查詢太頻繁，請稍後再試。", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get(ClientIDHeader); id != "" && len(id) <= maxRequestIDLen {
		return "client:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
