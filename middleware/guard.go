package middleware

import (
	"context"
	"net/http"
	"strings"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// AssertionCookie is read when the request carries no Authorization header.
const AssertionCookie = "portal_assertion"

type claimsContextKey struct{}

// ClaimsFromContext returns the assertion claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*portalAuth.AssertionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*portalAuth.AssertionClaims)
	return claims, ok
}

// Guard admits requests carrying a valid assertion for the engine's surface.
func Guard(engine *portalAuth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(engine, r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(engine *portalAuth.Engine, r *http.Request) (*portalAuth.AssertionClaims, bool) {
	if engine == nil {
		return nil, false
	}
	token, ok := assertionToken(r)
	if !ok {
		return nil, false
	}
	claims, err := engine.ParseAssertion(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func assertionToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}
	c, err := r.Cookie(AssertionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
