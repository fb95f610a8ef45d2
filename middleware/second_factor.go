package middleware

import (
	"net/http"
	"slices"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// RequireSecondFactor is Guard plus a check that the assertion was issued
// after a TOTP code, not a password alone.
func RequireSecondFactor(engine *portalAuth.Engine) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			if claims == nil || !slices.Contains(claims.Methods, "otp") {
				http.Error(w, "second factor required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
