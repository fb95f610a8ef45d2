package middleware

import (
	"net"
	"net/http"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// ClientContext attaches the caller's IP and User-Agent to the request
// context, where the engine reads them for audit events and client-keyed
// lockout. RemoteAddr is used as-is; put a proxy-aware handler in front when
// the portal sits behind a load balancer.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := portalAuth.WithClientIP(r.Context(), ip)
		ctx = portalAuth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
