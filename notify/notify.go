package notify

import "context"

// Purpose binds a one-time code to the flow that issued it.
type Purpose string

const (
	PurposePasswordReset Purpose = "password_reset"
	PurposeStepUp        Purpose = "step_up"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposePasswordReset, PurposeStepUp:
		return true
	default:
		return false
	}
}

// Notifier delivers a one-time code out of band. Implementations may block on
// network I/O; the engine never calls Send on the request path.
type Notifier interface {
	Send(ctx context.Context, identifier, code string, purpose Purpose) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, identifier, code string, purpose Purpose) error

func (f Func) Send(ctx context.Context, identifier, code string, purpose Purpose) error {
	return f(ctx, identifier, code, purpose)
}

// Nop discards every code. Used when no delivery channel is configured.
type Nop struct{}

func (Nop) Send(context.Context, string, string, Purpose) error { return nil }
