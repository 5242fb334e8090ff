package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Jitendersingh2001/Wealthyfy/internal/auth"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

func testGuard() *Guard {
	paths := DefaultPaths()
	classify := PathClassifier(paths, []string{paths.Dashboard}, []string{paths.Landing})
	return New(paths, classify, logging.Nop())
}

func request(target string, sess *auth.Session) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if sess != nil {
		r = r.WithContext(auth.WithSession(r.Context(), sess))
	}
	return r
}

func validSession(setupComplete bool) *auth.Session {
	return &auth.Session{
		UserID:          "user-1",
		IsSetupComplete: setupComplete,
		ExpiresAt:       time.Now().Add(time.Hour),
	}
}

func TestGuardDecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		session  *auth.Session
		status   int
		location string
	}{
		{"unauth protected -> landing", "/dashboard", nil, http.StatusFound, "/"},
		{"unauth wizard -> landing", "/account-setup", nil, http.StatusFound, "/"},
		{"unauth landing renders", "/", nil, http.StatusOK, ""},
		{"auth landing -> dashboard", "/", validSession(false), http.StatusFound, "/dashboard"},
		{"incomplete dashboard -> wizard", "/dashboard", validSession(false), http.StatusFound, "/account-setup"},
		{"incomplete wizard renders", "/account-setup", validSession(false), http.StatusOK, ""},
		{"complete wizard -> dashboard", "/account-setup", validSession(true), http.StatusFound, "/dashboard"},
		{"complete dashboard renders", "/dashboard", validSession(true), http.StatusOK, ""},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := testGuard().Middleware(next)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, request(tt.target, tt.session))

			assert.Equal(t, tt.status, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGuardCallbackParamsOutrankEverything(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := testGuard().Middleware(next)

	// Even a setup-complete user on the dashboard is sent to the
	// wizard when the query carries consent callback params.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request("/dashboard?success=false&errorcode=E1", validSession(true)))

	assert.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "/account-setup")
	assert.Contains(t, loc, "errorcode=E1")

	// Without callback params the normal branch applies.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, request("/dashboard?tab=holdings", validSession(true)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardWizardPageNotCached(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := testGuard().Middleware(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request("/account-setup", validSession(false)))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
