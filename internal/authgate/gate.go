// Package authgate mediates access to protected vault entries through a
// platform authenticator (biometric or passcode).
//
// The platform prompt itself is an external collaborator; this package owns
// only the pass/fail/cancel contract and the lockout policy. Lockout is
// tracked as an explicit deadline checked on each attempt, not a background
// timer, so it is trivially testable and cancellation-safe.
package authgate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emberwallet/ember-core/internal/log"
)

// Outcome is the tri-state result of a platform authentication prompt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeCancelled
)

// Authenticator is the platform prompt capability. The reason string is
// shown to the user verbatim.
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) (Outcome, error)
}

// Gate errors.
var (
	ErrAuthenticationFailed    = errors.New("authentication failed")
	ErrAuthenticationCancelled = errors.New("authentication cancelled")
	ErrLockedOut               = errors.New("authentication locked out")
)

// Gate wraps an Authenticator with attempt counting and lockout.
type Gate struct {
	mu            sync.Mutex
	auth          Authenticator
	maxAttempts   int
	lockout       time.Duration
	failed        int
	lockedUntil   time.Time
	now           func() time.Time
}

// New creates a gate allowing maxAttempts consecutive failures before
// refusing attempts for the lockout duration.
func New(auth Authenticator, maxAttempts int, lockout time.Duration) *Gate {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Gate{
		auth:        auth,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         time.Now,
	}
}

// Authorize runs the platform prompt. Cancellation propagates as
// ErrAuthenticationCancelled, distinct from ErrAuthenticationFailed so the
// caller may re-prompt. A nil underlying authenticator authorizes
// unconditionally (no platform gate configured).
func (g *Gate) Authorize(ctx context.Context, reason string) error {
	if g == nil || g.auth == nil {
		return nil
	}

	g.mu.Lock()
	if !g.lockedUntil.IsZero() && g.now().Before(g.lockedUntil) {
		remaining := g.lockedUntil.Sub(g.now())
		g.mu.Unlock()
		return errors.Join(ErrLockedOut, errors.New("retry in "+remaining.Round(time.Second).String()))
	}
	g.mu.Unlock()

	outcome, err := g.auth.Authenticate(ctx, reason)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ErrAuthenticationCancelled
		}
		return errors.Join(ErrAuthenticationFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	switch outcome {
	case OutcomeSuccess:
		g.failed = 0
		g.lockedUntil = time.Time{}
		return nil
	case OutcomeCancelled:
		// User cancellation does not count toward lockout.
		return ErrAuthenticationCancelled
	default:
		g.failed++
		if g.failed >= g.maxAttempts {
			g.lockedUntil = g.now().Add(g.lockout)
			g.failed = 0
			log.Auth.Warn().
				Time("locked_until", g.lockedUntil).
				Msg("authentication locked out")
		}
		return ErrAuthenticationFailed
	}
}

// AttemptsRemaining reports how many consecutive failures remain before
// lockout, when that metadata is available to callers for display.
func (g *Gate) AttemptsRemaining() int {
	if g == nil || g.auth == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxAttempts - g.failed
}
