package wizard

import (
	"context"

	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

// StatusChecker looks up the backend-tracked session state for a
// consent correlation id.
type StatusChecker interface {
	SessionStatus(ctx context.Context, userID, consentID string) (*backend.SessionStatus, error)
}

// Reconciler runs the one-shot status check a waiting step performs
// before arming its event listener. The check is sequenced strictly
// before arming so a session that completed before the step mounted is
// never missed.
type Reconciler struct {
	checker StatusChecker
	logger  logging.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(checker StatusChecker, logger logging.Logger) *Reconciler {
	return &Reconciler{checker: checker, logger: logger}
}

// Reconcile checks the session once and either advances immediately or
// arms the listener:
//
//   - no correlation id: skip the check, arm the listener
//   - check succeeds and done(status) is true: advance, never arm
//   - check succeeds but not done: arm
//   - check fails: log and arm (fail open toward waiting; the user is
//     never silently blocked)
//
// Exactly one of advance or arm is invoked, synchronously.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	userID, consentID string,
	done func(backend.SessionStatus) bool,
	advance func(),
	arm func(),
) {
	if consentID == "" {
		arm()
		return
	}

	status, err := r.checker.SessionStatus(ctx, userID, consentID)
	if err != nil {
		r.logger.Warn("session status check failed, falling back to listener",
			logging.String("consent_id", consentID), logging.Err(err))
		arm()
		return
	}

	if done(*status) {
		r.logger.Info("session already complete, skipping wait",
			logging.String("consent_id", consentID),
			logging.String("status", status.Status))
		advance()
		return
	}

	arm()
}
