package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

type stubChecker struct {
	status *backend.SessionStatus
	err    error
	calls  int
}

func (c *stubChecker) SessionStatus(ctx context.Context, userID, consentID string) (*backend.SessionStatus, error) {
	c.calls++
	return c.status, c.err
}

func reconcileOutcome(t *testing.T, checker *stubChecker, consentID string, done func(backend.SessionStatus) bool) (advanced, armed bool) {
	t.Helper()
	r := NewReconciler(checker, logging.Nop())
	r.Reconcile(context.Background(), "user-1", consentID, done,
		func() { advanced = true },
		func() { armed = true },
	)
	return advanced, armed
}

func TestReconcileAdvancesWhenAlreadyDone(t *testing.T) {
	checker := &stubChecker{status: &backend.SessionStatus{
		Exists:    true,
		Completed: true,
		Status:    backend.SessionCompleted,
	}}

	advanced, armed := reconcileOutcome(t, checker, "consent-1",
		func(s backend.SessionStatus) bool { return s.LinkingDone() })

	if !advanced {
		t.Error("expected advance")
	}
	if armed {
		t.Error("listener armed after completed check")
	}
}

func TestReconcileArmsWhenPending(t *testing.T) {
	checker := &stubChecker{status: &backend.SessionStatus{
		Exists: true,
		Status: backend.SessionPending,
	}}

	advanced, armed := reconcileOutcome(t, checker, "consent-1",
		func(s backend.SessionStatus) bool { return s.LinkingDone() })

	if advanced {
		t.Error("advanced on pending session")
	}
	if !armed {
		t.Error("expected listener armed")
	}
}

func TestReconcileFailsOpenToListener(t *testing.T) {
	checker := &stubChecker{err: errors.New("upstream down")}

	advanced, armed := reconcileOutcome(t, checker, "consent-1",
		func(s backend.SessionStatus) bool { return s.LinkingDone() })

	if advanced {
		t.Error("advanced despite check failure")
	}
	if !armed {
		t.Error("check failure must still arm the listener")
	}
}

func TestReconcileWithoutConsentSkipsCheck(t *testing.T) {
	checker := &stubChecker{}

	_, armed := reconcileOutcome(t, checker, "",
		func(s backend.SessionStatus) bool { return true })

	if checker.calls != 0 {
		t.Errorf("status checked %d times without a consent id", checker.calls)
	}
	if !armed {
		t.Error("expected listener armed")
	}
}

func TestStaleCompletedSessionDoesNotAdvance(t *testing.T) {
	// A completed session whose consent was already used once must not
	// skip the linking wait for a fresh consent attempt.
	checker := &stubChecker{status: &backend.SessionStatus{
		Exists:     true,
		Completed:  true,
		Status:     backend.SessionCompleted,
		UsageCount: 1,
	}}

	advanced, armed := reconcileOutcome(t, checker, "consent-1",
		func(s backend.SessionStatus) bool { return s.LinkingDone() })

	if advanced {
		t.Error("stale completed session advanced the wizard")
	}
	if !armed {
		t.Error("expected listener armed")
	}
}
