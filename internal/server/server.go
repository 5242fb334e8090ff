// Package server exposes the account-setup wizard, its realtime push
// endpoint, and the dashboard passthrough over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Jitendersingh2001/Wealthyfy/internal/auth"
	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/guard"
	"github.com/Jitendersingh2001/Wealthyfy/internal/health"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/protocol"
	"github.com/Jitendersingh2001/Wealthyfy/internal/pubsub"
	"github.com/Jitendersingh2001/Wealthyfy/internal/realtime"
	"github.com/Jitendersingh2001/Wealthyfy/internal/transport"
	"github.com/Jitendersingh2001/Wealthyfy/internal/wizard"
)

// SessionResolver turns an incoming request into an auth session.
// A nil result means unauthenticated.
type SessionResolver func(r *http.Request) *auth.Session

// IdentityRedirects builds the identity provider's browser-redirect
// URLs. Login, registration, and logout all happen on the provider.
type IdentityRedirects interface {
	LoginURL(redirectURI string) string
	RegisterURL(redirectURI string) string
	LogoutURL(redirectURI string) string
}

// Provider-redirect routes.
const (
	loginPath    = "/login"
	registerPath = "/register"
	logoutPath   = "/logout"
)

// Options wires the server's collaborators.
type Options struct {
	Backend     *backend.Client
	Bus         pubsub.PubSub
	Authorizer  *realtime.Authorizer
	Resolver    SessionResolver
	Identity    IdentityRedirects
	BuildWizard func(userID string, manager *realtime.Manager, notify wizard.Notifier) *wizard.Wizard
	Health      *health.Checker
	Transport   *transport.Config
	Logger      logging.Logger
}

// Server is the HTTP front for the wizard.
type Server struct {
	router     *mux.Router
	backend    *backend.Client
	sessions   *sessionManager
	sockets    *transport.Registry
	authorizer *realtime.Authorizer
	resolver   SessionResolver
	identity   IdentityRedirects
	paths      guard.Paths
	codecs     *protocol.CodecRegistry
	transport  *transport.Config
	checker    *health.Checker
	logger     logging.Logger
}

// New builds the server and its routes.
func New(opts Options) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		backend:    opts.Backend,
		sessions:   newSessionManager(opts.Bus, opts.BuildWizard, opts.Logger),
		sockets:    transport.NewRegistry(),
		authorizer: opts.Authorizer,
		resolver:   opts.Resolver,
		identity:   opts.Identity,
		codecs:     protocol.NewCodecRegistry(),
		transport:  opts.Transport,
		checker:    opts.Health,
		logger:     opts.Logger,
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	paths := guard.DefaultPaths()
	s.paths = paths
	classify := guard.PathClassifier(paths,
		[]string{paths.Dashboard},
		[]string{paths.Landing, loginPath, registerPath})
	g := guard.New(paths, classify, s.logger)

	s.router.Use(s.authenticate)

	if s.checker != nil {
		s.router.Handle("/healthz", s.checker.LivenessHandler()).Methods(http.MethodGet)
		s.router.Handle("/readyz", s.checker.ReadinessHandler()).Methods(http.MethodGet)
	}

	// Pages go through the route guard; callback params on any page
	// land on the wizard route first.
	pages := s.router.PathPrefix("/").Subrouter()
	pages.Use(g.Middleware)
	pages.HandleFunc(paths.Landing, s.handleLanding).Methods(http.MethodGet)
	pages.HandleFunc(paths.Wizard, s.handleWizardPage).Methods(http.MethodGet)
	pages.HandleFunc(paths.Dashboard, s.handleDashboardPage).Methods(http.MethodGet)

	if s.identity != nil {
		pages.HandleFunc(loginPath, s.handleLogin).Methods(http.MethodGet)
		pages.HandleFunc(registerPath, s.handleRegister).Methods(http.MethodGet)
		pages.HandleFunc(logoutPath, s.handleLogout).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(auth.RequireAuth(nil))

	setup := api.PathPrefix("/setup").Subrouter()
	setup.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	setup.HandleFunc("/pan-mobile", s.handlePanMobile).Methods(http.MethodPost)
	setup.HandleFunc("/otp", s.handleOTP).Methods(http.MethodPost)
	setup.HandleFunc("/otp/resend", s.handleResendOTP).Methods(http.MethodPost)
	setup.HandleFunc("/select-data", s.handleSelectData).Methods(http.MethodPost)
	setup.HandleFunc("/link-bank", s.handleLinkBank).Methods(http.MethodPost)
	setup.HandleFunc("/retry", s.handleRetry).Methods(http.MethodPost)
	setup.HandleFunc("/next", s.handleNext).Methods(http.MethodPost)
	setup.HandleFunc("/back", s.handleBack).Methods(http.MethodPost)
	setup.HandleFunc("/finish", s.handleFinish).Methods(http.MethodPost)

	api.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	rt := s.router.PathPrefix("/realtime").Subrouter()
	rt.Use(auth.RequireAuth(nil))
	rt.HandleFunc("/auth", s.handleChannelAuth).Methods(http.MethodPost)
	rt.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// authenticate resolves the request's auth session into the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.resolver != nil {
			if sess := s.resolver(r); sess != nil {
				r = r.WithContext(auth.WithSession(r.Context(), sess))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SessionCount reports live wizard sessions, for health checks.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// SocketCount reports live push sockets, for health checks.
func (s *Server) SocketCount() int {
	return s.sockets.Count()
}

// Close tears down all sessions and sockets.
func (s *Server) Close() error {
	s.sessions.closeAll()
	s.sockets.CloseAll()
	return nil
}

// DropSession closes one user's wizard session, used on forced logout.
func (s *Server) DropSession(userID string) {
	s.sessions.drop(userID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// requestContext bounds handler work independently of the client
// connection lifetime.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 15*time.Second)
}
