package wizard

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/draft"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/pubsub"
	"github.com/Jitendersingh2001/Wealthyfy/internal/realtime"
)

// fakeBackend scripts the REST responses the wizard consumes.
type fakeBackend struct {
	mu sync.Mutex

	user          *backend.User
	sessionStatus *backend.SessionStatus
	otpValid      bool

	verifyPancardCalls int
	sendOTPCalls       int
	statusCalls        int
	setupCompleted     bool
}

func (f *fakeBackend) GetUser(ctx context.Context, userID string) (*backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return &backend.User{ID: userID}, nil
	}
	return f.user, nil
}

func (f *fakeBackend) VerifyPancard(ctx context.Context, userID, pan, consent string) (*backend.PancardVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyPancardCalls++
	return &backend.PancardVerification{Verified: true}, nil
}

func (f *fakeBackend) CreatePanAndPhone(ctx context.Context, userID, pan, mobile string) (*backend.PancardVerification, error) {
	return &backend.PancardVerification{Verified: true, PancardID: "pc-1"}, nil
}

func (f *fakeBackend) SendOTP(ctx context.Context, userID, mobile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendOTPCalls++
	return nil
}

func (f *fakeBackend) VerifyOTP(ctx context.Context, userID, mobile, otp string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otpValid, nil
}

func (f *fakeBackend) LinkBank(ctx context.Context, userID string, params map[string]any) (*backend.ConsentLink, error) {
	return &backend.ConsentLink{ConsentID: "consent-1", ConsentURL: "https://consent.example/redirect"}, nil
}

func (f *fakeBackend) SessionStatus(ctx context.Context, userID, consentID string) (*backend.SessionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.sessionStatus == nil {
		return &backend.SessionStatus{Exists: true, Status: backend.SessionPending}, nil
	}
	return f.sessionStatus, nil
}

func (f *fakeBackend) MarkSetupComplete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupCompleted = true
	return nil
}

type wizardFixture struct {
	wizard  *Wizard
	backend *fakeBackend
	drafts  *draft.MemoryStore
	bus     *pubsub.Memory
}

func newWizardFixture(t *testing.T) *wizardFixture {
	t.Helper()

	fb := &fakeBackend{otpValid: true}
	drafts := draft.NewMemoryStore()
	bus := pubsub.NewMemory()
	t.Cleanup(func() { bus.Close() })

	manager := realtime.NewManagerWithPubSub(bus, logging.Nop())

	w := New(Config{
		UserID:       "user-1",
		Backend:      fb,
		Drafts:       drafts,
		Channels:     manager,
		Logger:       logging.Nop(),
		TickInterval: time.Hour,
	})
	t.Cleanup(w.Close)

	require.NoError(t, w.Start(context.Background()))
	return &wizardFixture{wizard: w, backend: fb, drafts: drafts, bus: bus}
}

func (fx *wizardFixture) publish(t *testing.T, event string, payload map[string]any) {
	t.Helper()
	topic := realtime.UserChannel("user-1")
	require.NoError(t, fx.bus.Publish(topic, pubsub.EncodeEvent(event, payload)))
}

func (fx *wizardFixture) waitForStep(t *testing.T, index int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return fx.wizard.Sequencer().Index() == index
	}, 2*time.Second, 10*time.Millisecond, "wizard stuck at step %d", fx.wizard.Sequencer().Index())
}

func TestWizardHappyPath(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()
	w := fx.wizard

	w.Next() // welcome
	require.Equal(t, 1, w.Sequencer().Index())

	require.NoError(t, w.SubmitPanMobile(ctx, "abcde1234f", "9876543210"))
	assert.Equal(t, 2, w.Sequencer().Index())
	assert.Equal(t, "ABCDE1234F", w.Draft().PAN)
	assert.True(t, w.Draft().PANVerified)
	assert.Equal(t, 1, fx.backend.sendOTPCalls)

	require.NoError(t, w.SubmitOTP(ctx, "123456"))
	require.Equal(t, 3, w.Sequencer().Index())

	require.NoError(t, w.SubmitSelectData(ctx, []string{"DEPOSIT"}, "ONETIME", "12", "30"))
	require.Equal(t, LinkBankStepIndex, w.Sequencer().Index())

	require.NoError(t, w.LinkBank(ctx))
	assert.Equal(t, "https://consent.example/redirect", w.ConsentURL())

	fx.publish(t, realtime.EventSessionCompleted, map[string]any{
		"session_id": "s1", "consent_id": "consent-1", "status": backend.SessionCompleted,
	})
	fx.waitForStep(t, LinkBankStepIndex+1)

	fx.publish(t, realtime.EventDataFetchingCompleted, map[string]any{
		"status": backend.SessionCompleted, "message": "done",
	})
	fx.waitForStep(t, LinkBankStepIndex+2)

	require.NoError(t, w.Finish(ctx))
	assert.True(t, w.Sequencer().Completed())
	assert.True(t, fx.backend.setupCompleted)

	_, err := fx.drafts.Load(ctx, "user-1")
	assert.ErrorIs(t, err, draft.ErrNotFound)
}

func TestWizardValidationRejected(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()

	err := fx.wizard.SubmitPanMobile(ctx, "bad", "123")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, fx.backend.verifyPancardCalls)

	err = fx.wizard.SubmitOTP(ctx, "12")
	require.ErrorIs(t, err, ErrValidation)
}

func TestWizardPanEditInvalidatesVerification(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()
	w := fx.wizard

	require.NoError(t, w.SubmitPanMobile(ctx, "ABCDE1234F", "9876543210"))
	require.Equal(t, 1, fx.backend.verifyPancardCalls)

	// Same PAN again: verification status survives.
	w.Sequencer().GoTo(1)
	require.NoError(t, w.SubmitPanMobile(ctx, "ABCDE1234F", "9876543210"))
	require.Equal(t, 1, fx.backend.verifyPancardCalls)

	// Edited PAN: must re-verify.
	w.Sequencer().GoTo(1)
	require.NoError(t, w.SubmitPanMobile(ctx, "FGHIJ5678K", "9876543210"))
	require.Equal(t, 2, fx.backend.verifyPancardCalls)
}

func TestWizardCallbackJumpsOnce(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()
	w := fx.wizard

	q, _ := url.ParseQuery("success=false&errorcode=E-401&errormsg=denied")
	w.HandleCallback(ctx, q)

	require.Equal(t, LinkBankStepIndex, w.Sequencer().Index())
	require.NotNil(t, w.ConsentError())
	assert.Equal(t, "E-401", w.ConsentError().Code)
	assert.Equal(t, "denied", w.ConsentError().Message)

	// Re-rendering the callback route must not re-fire the jump.
	w.Sequencer().GoTo(0)
	w.ClearConsentError()
	w.HandleCallback(ctx, q)
	assert.Equal(t, 0, w.Sequencer().Index())
	assert.Nil(t, w.ConsentError())
}

func TestWizardCallbackSuccessEntersWait(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()
	w := fx.wizard

	q, _ := url.ParseQuery("success=true&id=consent-9")
	w.HandleCallback(ctx, q)

	require.Equal(t, LinkBankStepIndex, w.Sequencer().Index())
	require.Nil(t, w.ConsentError())

	// The wait was armed: the completion event advances the wizard.
	fx.publish(t, realtime.EventSessionCompleted, map[string]any{
		"status": backend.SessionCompleted,
	})
	fx.waitForStep(t, LinkBankStepIndex+1)
}

func TestWizardReconcileSkipsWaitWhenDone(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()
	w := fx.wizard

	fx.backend.mu.Lock()
	fx.backend.sessionStatus = &backend.SessionStatus{
		Exists: true, Completed: true, Status: backend.SessionCompleted,
	}
	fx.backend.mu.Unlock()

	w.Sequencer().GoTo(LinkBankStepIndex)
	require.NoError(t, w.LinkBank(ctx))

	// No event published; the one-shot check alone advances.
	require.Equal(t, LinkBankStepIndex+1, w.Sequencer().Index())
}

func TestWizardStaleEventCannotAdvance(t *testing.T) {
	fx := newWizardFixture(t)
	ctx := context.Background()
	w := fx.wizard

	w.Sequencer().GoTo(LinkBankStepIndex)
	require.NoError(t, w.LinkBank(ctx))

	// User backs out of the waiting step before the event arrives.
	w.Back()
	require.Equal(t, LinkBankStepIndex-1, w.Sequencer().Index())

	fx.publish(t, realtime.EventSessionCompleted, map[string]any{
		"status": backend.SessionCompleted,
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, LinkBankStepIndex-1, w.Sequencer().Index())
}

func TestWizardWaitOutlivesEnteringRequest(t *testing.T) {
	fx := newWizardFixture(t)
	w := fx.wizard

	reqCtx, cancelReq := context.WithCancel(context.Background())
	w.Sequencer().GoTo(LinkBankStepIndex)
	require.NoError(t, w.LinkBank(reqCtx))

	// The request that entered the wait ends here; the wizard keeps
	// waiting on its own lifetime.
	cancelReq()

	// By the time the linking event lands, the fetch already finished.
	fx.backend.mu.Lock()
	fx.backend.sessionStatus = &backend.SessionStatus{
		Exists: true, Completed: true, Status: backend.SessionCompleted, IsReady: true,
	}
	fx.backend.mu.Unlock()

	fx.publish(t, realtime.EventSessionCompleted, map[string]any{
		"status": backend.SessionCompleted,
	})

	// The fetch step's one-shot check must still run and observe the
	// ready session, with no fetch event ever published.
	fx.waitForStep(t, LinkBankStepIndex+2)
}

func TestWizardServerDataWinsOverDraft(t *testing.T) {
	fb := &fakeBackend{
		otpValid: true,
		user: &backend.User{
			ID: "user-1", PAN: "ZYXWV9876A", Mobile: "9999999999", PancardID: "pc-9",
		},
	}
	drafts := draft.NewMemoryStore()
	require.NoError(t, drafts.Save(context.Background(), "user-1", draft.Data{
		PAN: "ABCDE1234F", Mobile: "1111111111",
	}))

	bus := pubsub.NewMemory()
	defer bus.Close()

	w := New(Config{
		UserID:       "user-1",
		Backend:      fb,
		Drafts:       drafts,
		Channels:     realtime.NewManagerWithPubSub(bus, logging.Nop()),
		Logger:       logging.Nop(),
		TickInterval: time.Hour,
	})
	defer w.Close()

	require.NoError(t, w.Start(context.Background()))

	assert.Equal(t, "ZYXWV9876A", w.Draft().PAN)
	assert.Equal(t, "9999999999", w.Draft().Mobile)
	assert.True(t, w.Draft().PANVerified)

	// The winning values were written back to the store.
	stored, err := drafts.Load(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ZYXWV9876A", stored.PAN)
}
