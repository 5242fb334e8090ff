package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Jitendersingh2001/Wealthyfy/internal/auth"
	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/protocol"
	"github.com/Jitendersingh2001/Wealthyfy/internal/realtime"
	"github.com/Jitendersingh2001/Wealthyfy/internal/transport"
	"github.com/Jitendersingh2001/Wealthyfy/internal/wizard"
)

// userSession resolves the caller's wizard session. Handlers behind
// RequireAuth always have an auth session.
func (s *Server) userSession(w http.ResponseWriter, r *http.Request) (*session, *auth.Session, bool) {
	authSess := auth.SessionFromContext(r.Context())
	sess, err := s.sessions.get(r.Context(), authSess.UserID)
	if err != nil {
		s.logger.Error("session init failed",
			logging.String("user_id", authSess.UserID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to initialize session")
		return nil, nil, false
	}
	return sess, authSess, true
}

func wizardState(wz *wizard.Wizard) map[string]any {
	step, _ := wz.Sequencer().Current()
	state := map[string]any{
		"step":      wz.Sequencer().Index(),
		"stepName":  step.Name,
		"completed": wz.Sequencer().Completed(),
		"draft":     wz.Draft(),
	}
	if url := wz.ConsentURL(); url != "" {
		state["consentUrl"] = url
	}
	if cerr := wz.ConsentError(); cerr != nil {
		state["consentError"] = map[string]any{
			"code": cerr.Code, "message": cerr.Message,
		}
	}
	if remaining := wz.ResendTimer().Remaining(); remaining > 0 {
		state["resendIn"] = remaining
	}
	return state
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

// wizardError maps a wizard failure to an HTTP response.
func wizardError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, wizard.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, wizard.ErrVerificationInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.UserMessage("upstream request failed"))
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handlePanMobile(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	var req struct {
		PAN    string `json:"pan"`
		Mobile string `json:"mobile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := sess.wizard.SubmitPanMobile(ctx, req.PAN, req.Mobile); err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	var req struct {
		OTP  string `json:"otp"`
		Auto bool   `json:"auto"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	var err error
	if req.Auto {
		err = sess.wizard.MaybeAutoSubmitOTP(ctx, req.OTP)
	} else {
		err = sess.wizard.SubmitOTP(ctx, req.OTP)
	}
	if err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := sess.wizard.ResendOTP(ctx); err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resendIn": sess.wizard.ResendTimer().Remaining(),
	})
}

func (s *Server) handleSelectData(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	var req struct {
		FITypes         []string `json:"fiTypes"`
		FetchType       string   `json:"fetchType"`
		DataPeriod      string   `json:"dataPeriod"`
		ConsentDuration string   `json:"consentDuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := sess.wizard.SubmitSelectData(ctx, req.FITypes, req.FetchType, req.DataPeriod, req.ConsentDuration); err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleLinkBank(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := sess.wizard.LinkBank(ctx); err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}
	sess.wizard.ClearConsentError()
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}
	sess.wizard.Next()
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}
	exited := !sess.wizard.Back()
	state := wizardState(sess.wizard)
	state["exited"] = exited
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := sess.wizard.Finish(ctx); err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizardState(sess.wizard))
}

// handleWizardPage serves the wizard shell. Consent callback params in
// the query are consumed here, after the guard has routed them to this
// path.
func (s *Server) handleWizardPage(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAuthenticated(r.Context()) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	if q := r.URL.Query(); len(q) > 0 {
		sess.wizard.HandleCallback(r.Context(), q)
	}

	renderPage(w, "Account Setup")
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	renderPage(w, "Wealthyfy")
}

// absoluteURL rebuilds a path as an absolute URL on the request's host,
// for the identity provider's redirect_uri parameter.
func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}

// handleLogin sends the browser to the identity provider. The provider
// redirects back to the landing page and the route guard takes over.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.identity.LoginURL(absoluteURL(r, s.paths.Landing)), http.StatusFound)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.identity.RegisterURL(absoluteURL(r, s.paths.Landing)), http.StatusFound)
}

// handleLogout drops the wizard session and the token cookie, then
// ends the provider session too.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if authSess := auth.SessionFromContext(r.Context()); authSess.IsAuthenticated() {
		s.sessions.drop(authSess.UserID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, s.identity.LogoutURL(absoluteURL(r, s.paths.Landing)), http.StatusFound)
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, "Dashboard")
}

// handleTransactions proxies the paginated transaction list.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	authSess := auth.SessionFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	txns, err := s.backend.Transactions(ctx, authSess.UserID, page, pageSize)
	if err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

// handleMetrics proxies the account metric summary.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	authSess := auth.SessionFromContext(r.Context())

	ctx, cancel := requestContext(r)
	defer cancel()

	metrics, err := s.backend.AccountMetrics(ctx, authSess.UserID)
	if err != nil {
		wizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleChannelAuth signs a private-channel subscription for the
// caller's own channel.
func (s *Server) handleChannelAuth(w http.ResponseWriter, r *http.Request) {
	authSess := auth.SessionFromContext(r.Context())

	var req struct {
		Channel  string `json:"channel_name"`
		SocketID string `json:"socket_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.authorizer.Authorize(authSess.UserID, req.Channel, req.SocketID)
	if err != nil {
		writeError(w, http.StatusForbidden, "channel not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auth": token})
}

// handleWebSocket upgrades the push socket and serves its frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	authSess := auth.SessionFromContext(r.Context())

	sess, _, ok := s.userSession(w, r)
	if !ok {
		return
	}

	sock, err := transport.Accept(w, r, s.transport, s.codecs, s.logger)
	if err != nil {
		return
	}

	s.sockets.Add(authSess.UserID, sock)
	sess.setSocket(sock)

	defer func() {
		s.sockets.Remove(authSess.UserID, sock)
		sock.Close()
	}()

	for msg := range sock.Receive() {
		s.handleSocketMessage(r, authSess, sess, sock, msg)
	}
}

// handleSocketMessage dispatches one inbound frame.
func (s *Server) handleSocketMessage(r *http.Request, authSess *auth.Session, sess *session, sock *transport.Socket, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgSubscribe:
		if !s.authorizer.Verify(msg.Auth, msg.Channel, sock.ID()) ||
			msg.Channel != realtime.UserChannel(authSess.UserID) {
			sock.Send(protocol.ErrorReply(msg.Ref, msg.Channel, "channel not allowed"))
			return
		}
		sock.Send(protocol.OkReply(msg.Ref, msg.Channel, nil))

	case protocol.MsgUnsubscribe:
		sess.setSocket(nil)
		sock.Send(protocol.OkReply(msg.Ref, msg.Channel, nil))

	case protocol.MsgAction:
		s.handleSocketAction(r, sess, sock, msg)

	default:
		sock.Send(protocol.ErrorReply(msg.Ref, msg.Channel, "unsupported frame"))
	}
}

// handleSocketAction runs a wizard action arriving over the socket.
func (s *Server) handleSocketAction(r *http.Request, sess *session, sock *transport.Socket, msg *protocol.Message) {
	ctx, cancel := requestContext(r)
	defer cancel()

	var err error
	switch msg.Event {
	case "submit-otp":
		if msg.GetPayloadBool("auto") {
			err = sess.wizard.MaybeAutoSubmitOTP(ctx, msg.GetPayloadString("otp"))
		} else {
			err = sess.wizard.SubmitOTP(ctx, msg.GetPayloadString("otp"))
		}
	case "resend-otp":
		err = sess.wizard.ResendOTP(ctx)
	case "next":
		sess.wizard.Next()
	case "back":
		sess.wizard.Back()
	default:
		sock.Send(protocol.ErrorReply(msg.Ref, msg.Channel, "unknown action"))
		return
	}

	if err != nil {
		sock.Send(protocol.ErrorReply(msg.Ref, msg.Channel, err.Error()))
		return
	}
	sock.Send(protocol.OkReply(msg.Ref, msg.Channel, wizardState(sess.wizard)))
}

func renderPage(w http.ResponseWriter, title string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<!DOCTYPE html><html><head><title>" + title +
		"</title></head><body data-app=\"wealthyfy\"></body></html>"))
}
