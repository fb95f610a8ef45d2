package portalAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/portalAuth/accountstore"
	"github.com/MrEthical07/portalAuth/internal/limiters"
	"github.com/MrEthical07/portalAuth/notify"
)

// Outcome is the caller-facing result of a login step.
type Outcome string

const (
	OutcomeAuthenticated        Outcome = "authenticated"
	OutcomeLocked               Outcome = "locked"
	OutcomeRejected             Outcome = "rejected"
	OutcomeAwaitingSecondFactor Outcome = "awaiting_second_factor"
)

// LoginResult reports where a login attempt landed in the state machine.
//
// RemainingMinutes is set for OutcomeLocked. RemainingAttempts is set for a
// rejected password while the key is not yet locked; a rejected second
// factor never discloses a count. Challenge is set for
// OutcomeAwaitingSecondFactor and for a rejected code that may be retried.
// Assertion is set only for OutcomeAuthenticated.
type LoginResult struct {
	Outcome           Outcome
	RemainingMinutes  int
	RemainingAttempts int
	Challenge         string
	Assertion         string
	Identifier        string
}

// TOTPSetup is returned when an account starts TOTP enrollment. The secret
// is stored disabled until ConfirmTOTPSetup verifies a code.
type TOTPSetup struct {
	Secret string
	URI    string
	QRCode []byte
}

// Account is the record shape exchanged with an AccountStore.
type Account = accountstore.Account

// AccountStatus values mirror accountstore.Status.
type AccountStatus = accountstore.Status

const (
	AccountActive   = accountstore.StatusActive
	AccountDisabled = accountstore.StatusDisabled
)

// AccountStore is the persistent member record collaborator. Identifiers
// passed in are already normalized. GetByIdentifier returns
// ErrAccountNotFound for unknown accounts.
type AccountStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (Account, error)
	UpdatePasswordHash(ctx context.Context, identifier, hash string) error
	UpdateTOTP(ctx context.Context, identifier string, enabled bool, secret string) error
}

// Purpose scopes a one-time code.
type Purpose = notify.Purpose

const (
	PurposePasswordReset = notify.PurposePasswordReset
	PurposeStepUp        = notify.PurposeStepUp
)

// Notifier delivers one-time codes out of band.
type Notifier = notify.Notifier

// AttemptState is a tracker's view of one key after an operation.
type AttemptState = limiters.AttemptState

// AttemptTracker counts failed password attempts and derives lockouts.
// Implementations must apply each operation atomically per key.
type AttemptTracker interface {
	RecordFailure(ctx context.Context, key string, now time.Time) (AttemptState, error)
	IsLocked(ctx context.Context, key string, now time.Time) (bool, time.Time, error)
	Reset(ctx context.Context, key string) error
}

// AssertionClaims is the validated content of an authenticated assertion.
type AssertionClaims struct {
	Identifier string
	Surface    string
	Methods    []string
	ID         string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}
