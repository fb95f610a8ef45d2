package portalAuth

import (
	"context"

	"github.com/MrEthical07/portalAuth/internal"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is recorded in
// audit events and, with Lockout.KeyByClient, folded into the attempt key.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the caller's User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// clientFingerprint is empty when the caller attached neither IP nor
// User-Agent.
func clientFingerprint(ctx context.Context) string {
	ip := clientIPFromContext(ctx)
	ua := userAgentFromContext(ctx)
	if ip == "" && ua == "" {
		return ""
	}
	return internal.ClientFingerprint(ip + "|" + ua)
}
