package wizard

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/consent"
	"github.com/Jitendersingh2001/Wealthyfy/internal/draft"
	"github.com/Jitendersingh2001/Wealthyfy/internal/forms"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/realtime"
)

// Default user-facing messages per operation, overridable by a
// server-supplied detail.
const (
	MsgFailedToVerifyPAN     = "Failed to verify PAN"
	MsgFailedToSendOTP       = "Failed to send OTP"
	MsgFailedToVerifyOTP     = "Failed to verify OTP"
	MsgInvalidOTP            = "The OTP you entered is incorrect"
	MsgFailedToLinkBank      = "Failed to link bank account"
	MsgFailedToCompleteSetup = "Failed to complete account setup"
)

// Common wizard errors.
var (
	ErrValidation           = errors.New("validation failed")
	ErrVerificationInFlight = errors.New("verification already in flight")
)

// Backend is the subset of the REST backend the wizard drives.
type Backend interface {
	GetUser(ctx context.Context, userID string) (*backend.User, error)
	VerifyPancard(ctx context.Context, userID, pan, consentGiven string) (*backend.PancardVerification, error)
	CreatePanAndPhone(ctx context.Context, userID, pan, mobile string) (*backend.PancardVerification, error)
	SendOTP(ctx context.Context, userID, mobile string) error
	VerifyOTP(ctx context.Context, userID, mobile, otp string) (bool, error)
	LinkBank(ctx context.Context, userID string, params map[string]any) (*backend.ConsentLink, error)
	SessionStatus(ctx context.Context, userID, consentID string) (*backend.SessionStatus, error)
	MarkSetupComplete(ctx context.Context, userID string) error
}

// Notifier pushes wizard events toward the connected browser.
type Notifier func(event string, payload map[string]any)

// Notification event names pushed to the client.
const (
	NotifyStepChanged   = "step-changed"
	NotifyConsentError  = "consent-error"
	NotifyToast         = "toast"
	NotifyOTPCountdown  = "otp-countdown"
	NotifySetupComplete = "setup-complete"
)

// Wizard is one user's account-setup flow. Created on wizard entry,
// discarded on exit; drafts outlive it through the draft store.
type Wizard struct {
	userID string

	seq        *Sequencer
	backend    Backend
	drafts     draft.Store
	reconciler *Reconciler
	channels   *realtime.Manager
	notify     Notifier
	logger     logging.Logger

	// ctx spans the wizard's lifetime. Wait-state reconciles run on it
	// rather than on the HTTP request that entered the wait, which may
	// long be over when a deferred advance fires.
	ctx    context.Context
	cancel context.CancelFunc

	// All mutation happens on the owning session's event loop; the
	// sequencer and listeners carry their own locking for the
	// callbacks that arrive from the event fabric.
	data       draft.Data
	consentURL string
	consentID  string
	consentErr *consent.Error

	// callbackHandled makes the jump-to-step side effect fire exactly
	// once per wizard lifetime even if the callback route re-renders.
	callbackHandled bool

	// generation invalidates late async completions: every step
	// transition bumps it, and an advance closure captured under an
	// older generation is a no-op.
	generation atomic.Int64

	verifying       bool
	lastVerifiedPAN string

	sessionListener *realtime.Listener
	fetchListener   *realtime.Listener
	resendTimer     *ResendTimer
}

// Config wires a wizard's collaborators.
type Config struct {
	UserID   string
	Backend  Backend
	Drafts   draft.Store
	Channels *realtime.Manager
	Notify   Notifier
	Logger   logging.Logger

	// TickInterval overrides the OTP countdown tick for tests.
	TickInterval time.Duration
}

// New creates a wizard at the welcome step. Call Start to hydrate
// state and subscribe the realtime channel.
func New(cfg Config) *Wizard {
	if cfg.Notify == nil {
		cfg.Notify = func(string, map[string]any) {}
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Wizard{
		userID:     cfg.UserID,
		ctx:        ctx,
		cancel:     cancel,
		seq:        NewSequencer(SetupSteps()),
		backend:    cfg.Backend,
		drafts:     cfg.Drafts,
		reconciler: NewReconciler(cfg.Backend, cfg.Logger),
		channels:   cfg.Channels,
		notify:     cfg.Notify,
		logger:     cfg.Logger.With(logging.String("user_id", cfg.UserID)),
	}

	w.seq.OnTransition(func(from, to int) {
		w.generation.Add(1)
		w.notify(NotifyStepChanged, map[string]any{"from": from, "to": to})
	})

	w.sessionListener = realtime.NewListener(cfg.Channels, realtime.EventSessionCompleted,
		realtime.Options{Once: true, Enabled: false}, w.logger)
	w.fetchListener = realtime.NewListener(cfg.Channels, realtime.EventDataFetchingCompleted,
		realtime.Options{Once: true, Enabled: false}, w.logger)
	w.resendTimer = NewResendTimer(cfg.TickInterval, func(remaining int) {
		w.notify(NotifyOTPCountdown, map[string]any{"remaining": remaining})
	})

	return w
}

// Sequencer exposes the step state to the host page.
func (w *Wizard) Sequencer() *Sequencer {
	return w.seq
}

// Draft returns the current form snapshot.
func (w *Wizard) Draft() draft.Data {
	return w.data
}

// ConsentURL returns the hosted consent redirect URL, once linked.
func (w *Wizard) ConsentURL() string {
	return w.consentURL
}

// ConsentError returns the structured consent failure, if any.
func (w *Wizard) ConsentError() *consent.Error {
	return w.consentErr
}

// Start hydrates the draft and subscribes the realtime channel.
// Server-side data wins over the locally persisted draft and is
// written back into the store.
func (w *Wizard) Start(ctx context.Context) error {
	if d, err := w.drafts.Load(ctx, w.userID); err == nil {
		w.data = d
	} else if !errors.Is(err, draft.ErrNotFound) {
		w.logger.Warn("draft load failed", logging.Err(err))
	}

	user, err := w.backend.GetUser(ctx, w.userID)
	if err != nil {
		// Hydration is best effort; the wizard still runs on the local draft.
		w.logger.Warn("user hydration failed", logging.Err(err))
	} else {
		serverWins := false
		if user.PAN != "" && user.PAN != w.data.PAN {
			w.data.PAN = user.PAN
			w.data.PANVerified = true
			w.lastVerifiedPAN = user.PAN
			serverWins = true
		}
		if user.Mobile != "" && user.Mobile != w.data.Mobile {
			w.data.Mobile = user.Mobile
			serverWins = true
		}
		if user.PancardID != "" && user.PancardID != w.data.PancardID {
			w.data.PancardID = user.PancardID
			serverWins = true
		}
		if serverWins {
			w.saveDraft(ctx)
		}
	}
	if w.data.PANVerified && w.lastVerifiedPAN == "" {
		w.lastVerifiedPAN = w.data.PAN
	}
	if w.data.Consent != "" {
		w.consentID = w.data.Consent
	}

	if _, err := w.channels.Subscribe(w.userID); err != nil {
		// Not fatal: the reconciler's one-shot checks still work, and
		// every waiting step retries arming on mount.
		w.logger.Warn("realtime subscribe failed", logging.Err(err))
	}

	return nil
}

// Close tears down listeners, timers, and the channel subscription.
func (w *Wizard) Close() {
	w.cancel()
	w.sessionListener.Disarm()
	w.fetchListener.Disarm()
	w.resendTimer.Stop()
	w.channels.Unsubscribe()
}

func (w *Wizard) saveDraft(ctx context.Context) {
	if err := w.drafts.Save(ctx, w.userID, w.data); err != nil {
		w.logger.Warn("draft save failed", logging.Err(err))
	}
}

func (w *Wizard) toastError(err error, fallback string) {
	msg := fallback
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.UserMessage(fallback)
	}
	w.notify(NotifyToast, map[string]any{"level": "error", "message": msg})
}

// HandleCallback consumes consent redirect parameters. The jump to the
// link-bank step happens exactly once per wizard even if the callback
// route is re-rendered with the same query.
func (w *Wizard) HandleCallback(ctx context.Context, query url.Values) {
	cb, has := consent.ParseCallback(query)
	if !has || w.callbackHandled {
		return
	}
	w.callbackHandled = true

	w.consentErr = cb.Error()
	if cb.CorrelationID != "" {
		w.consentID = cb.CorrelationID
	}

	if err := w.seq.GoTo(LinkBankStepIndex); err != nil {
		w.logger.Error("callback step jump failed", logging.Err(err))
		return
	}

	if w.consentErr != nil {
		w.notify(NotifyConsentError, map[string]any{
			"code":    w.consentErr.Code,
			"message": w.consentErr.Message,
		})
		return
	}

	// Returning from consent, awaiting confirmation.
	w.EnterLinkingWait()
}

// ClearConsentError resets the failure screen for the retry path.
func (w *Wizard) ClearConsentError() {
	w.consentErr = nil
}

// SubmitPanMobile validates, verifies, and stores the PAN + mobile
// step, then advances. A PAN that diverged from the last verified
// value is re-verified; stale verification status never survives an
// edit.
func (w *Wizard) SubmitPanMobile(ctx context.Context, pan, mobile string) error {
	cs := forms.PanMobileChangeset(w.data.ToMap(), pan, mobile)
	if !cs.Valid {
		return errors.Join(ErrValidation, errors.New(cs.ErrorMessages()))
	}

	normPAN := cs.GetString(forms.FieldPAN)
	normMobile := cs.GetString(forms.FieldMobile)

	if w.data.PANVerified && normPAN != w.lastVerifiedPAN {
		w.data.PANVerified = false
	}

	if !w.data.PANVerified {
		verification, err := w.backend.VerifyPancard(ctx, w.userID, normPAN, "Y")
		if err != nil {
			w.toastError(err, MsgFailedToVerifyPAN)
			return err
		}
		if !verification.Verified {
			w.toastError(nil, MsgFailedToVerifyPAN)
			return ErrValidation
		}

		created, err := w.backend.CreatePanAndPhone(ctx, w.userID, normPAN, normMobile)
		if err != nil {
			w.toastError(err, MsgFailedToVerifyPAN)
			return err
		}
		w.data.PancardID = created.PancardID
		w.data.PANVerified = true
		w.lastVerifiedPAN = normPAN
	}

	w.data.PAN = normPAN
	w.data.Mobile = normMobile
	w.saveDraft(ctx)

	if err := w.SendOTP(ctx); err != nil {
		return err
	}

	w.seq.Next()
	return nil
}

// SendOTP triggers an OTP and starts the resend countdown.
func (w *Wizard) SendOTP(ctx context.Context) error {
	if err := w.backend.SendOTP(ctx, w.userID, w.data.Mobile); err != nil {
		w.toastError(err, MsgFailedToSendOTP)
		return err
	}
	w.resendTimer.Reset()
	return nil
}

// ResendOTP is the user-triggered retry. Only available once the
// countdown has expired.
func (w *Wizard) ResendOTP(ctx context.Context) error {
	if !w.resendTimer.CanResend() {
		return nil
	}
	return w.SendOTP(ctx)
}

// ResendTimer exposes the countdown to the host page.
func (w *Wizard) ResendTimer() *ResendTimer {
	return w.resendTimer
}

// SubmitOTP validates and verifies an OTP entry, then advances.
func (w *Wizard) SubmitOTP(ctx context.Context, otp string) error {
	if w.verifying {
		return ErrVerificationInFlight
	}

	cs := forms.OTPChangeset(otp)
	if !cs.Valid {
		return errors.Join(ErrValidation, errors.New(cs.ErrorMessages()))
	}

	w.verifying = true
	defer func() { w.verifying = false }()

	ok, err := w.backend.VerifyOTP(ctx, w.userID, w.data.Mobile, cs.GetString(forms.FieldOTP))
	if err != nil {
		w.toastError(err, MsgFailedToVerifyOTP)
		return err
	}
	if !ok {
		w.toastError(nil, MsgInvalidOTP)
		return ErrValidation
	}

	w.resendTimer.Stop()
	w.seq.Next()
	return nil
}

// MaybeAutoSubmitOTP submits when the entry hits the full length and
// passes validation, unless a verification is already in flight.
func (w *Wizard) MaybeAutoSubmitOTP(ctx context.Context, otp string) error {
	if !forms.ShouldAutoSubmitOTP(otp, w.verifying) {
		return nil
	}
	return w.SubmitOTP(ctx, otp)
}

// SubmitSelectData stores the data-selection parameters and advances.
func (w *Wizard) SubmitSelectData(ctx context.Context, fiTypes []string, fetchType, period, duration string) error {
	cs := forms.Cast(w.data.ToMap(), map[string]any{
		"fetchType":       fetchType,
		"dataPeriod":      period,
		"consentDuration": duration,
	}, draft.Whitelist).
		ValidateRequired("fetchType", "dataPeriod", "consentDuration").
		ValidateInclusion("fetchType", []string{"ONETIME", "PERIODIC"})
	if !cs.Valid {
		return errors.Join(ErrValidation, errors.New(cs.ErrorMessages()))
	}
	if len(fiTypes) == 0 {
		return errors.Join(ErrValidation, errors.New("fiTypes is required"))
	}

	w.data.FITypes = fiTypes
	w.data.FetchType = fetchType
	w.data.DataPeriod = period
	w.data.ConsentDuration = duration
	w.saveDraft(ctx)

	w.seq.Next()
	return nil
}

// LinkBank initiates the consent flow. On success the host renders the
// hosted consent URL and the wizard waits for the redirect callback or
// the completion event.
func (w *Wizard) LinkBank(ctx context.Context) error {
	link, err := w.backend.LinkBank(ctx, w.userID, map[string]any{
		"fi_types":         w.data.FITypes,
		"fetch_type":       w.data.FetchType,
		"data_period":      w.data.DataPeriod,
		"consent_duration": w.data.ConsentDuration,
	})
	if err != nil {
		w.toastError(err, MsgFailedToLinkBank)
		return err
	}

	w.consentURL = link.ConsentURL
	w.consentID = link.ConsentID
	w.data.Consent = link.ConsentID
	w.saveDraft(ctx)

	w.EnterLinkingWait()
	return nil
}

// EnterLinkingWait runs the linking step's mount sequence: one-shot
// status check, then arm the session-completed listener. A late check
// result or a stale event can no longer advance once the wizard has
// moved on. The reconcile runs on the wizard's own context: the
// advance may fire from an event long after the request that entered
// the wait has ended.
func (w *Wizard) EnterLinkingWait() {
	gen := w.generation.Load()
	advance := func() {
		if w.generation.Load() != gen || w.seq.Index() != LinkBankStepIndex {
			return
		}
		w.sessionListener.Disarm()
		w.seq.Next()
		w.EnterFetchWait()
	}

	w.sessionListener.SetHandler(func(ev realtime.Event) {
		status, _ := ev.Payload["status"].(string)
		if status == backend.SessionCompleted {
			advance()
		}
	})

	w.reconciler.Reconcile(w.ctx, w.userID, w.consentID,
		func(s backend.SessionStatus) bool { return s.LinkingDone() },
		advance,
		func() {
			w.sessionListener.SetEnabled(true)
			w.sessionListener.Arm()
		},
	)
}

// EnterFetchWait runs the fetch step's mount sequence: one-shot status
// check against the is_ready flag, then arm the
// data-fetching-completed listener.
func (w *Wizard) EnterFetchWait() {
	gen := w.generation.Load()
	fetchIndex := LinkBankStepIndex + 1

	advance := func() {
		if w.generation.Load() != gen || w.seq.Index() != fetchIndex {
			return
		}
		w.fetchListener.Disarm()
		w.seq.Next()
	}

	w.fetchListener.SetHandler(func(ev realtime.Event) {
		status, _ := ev.Payload["status"].(string)
		if status == backend.SessionCompleted {
			advance()
		}
	})

	w.reconciler.Reconcile(w.ctx, w.userID, w.consentID,
		func(s backend.SessionStatus) bool { return s.FetchDone() },
		advance,
		func() {
			w.fetchListener.SetEnabled(true)
			w.fetchListener.Arm()
		},
	)
}

// Finish marks setup complete, clears the draft, and completes the flow.
func (w *Wizard) Finish(ctx context.Context) error {
	if err := w.backend.MarkSetupComplete(ctx, w.userID); err != nil {
		w.toastError(err, MsgFailedToCompleteSetup)
		return err
	}

	if err := w.drafts.Clear(ctx, w.userID); err != nil {
		w.logger.Warn("draft clear failed", logging.Err(err))
	}
	w.data = draft.Data{}

	w.seq.Next()
	w.notify(NotifySetupComplete, map[string]any{"user_id": w.userID})
	return nil
}

// Back retreats one step. The false return means the wizard is at the
// first step and the host should exit instead.
func (w *Wizard) Back() bool {
	w.sessionListener.Disarm()
	w.fetchListener.Disarm()
	_, ok := w.seq.Back()
	return ok
}

// Next advances past a step with no async work (welcome, finish view).
func (w *Wizard) Next() {
	w.seq.Next()
}
