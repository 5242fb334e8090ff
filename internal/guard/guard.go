// Package guard routes authenticated users to the page their account
// state requires: unfinished setups land on the wizard, finished ones
// on the dashboard, and consent redirect callbacks always reach the
// wizard first.
package guard

import (
	"net/http"
	"strings"

	"github.com/Jitendersingh2001/Wealthyfy/internal/auth"
	"github.com/Jitendersingh2001/Wealthyfy/internal/consent"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

// RouteClass partitions routes for the guard's decision table.
type RouteClass int

const (
	// RoutePublic is reachable regardless of auth state.
	RoutePublic RouteClass = iota
	// RoutePublicOnly is for signed-out users only (landing, login).
	RoutePublicOnly
	// RouteProtected requires auth and a completed setup.
	RouteProtected
	// RouteWizard is the account-setup flow itself.
	RouteWizard
)

// Paths names the three redirect targets.
type Paths struct {
	Landing   string
	Wizard    string
	Dashboard string
}

// DefaultPaths matches the application's route layout.
func DefaultPaths() Paths {
	return Paths{
		Landing:   "/",
		Wizard:    "/account-setup",
		Dashboard: "/dashboard",
	}
}

// Guard is mux middleware enforcing the route decision table.
type Guard struct {
	paths    Paths
	classify func(path string) RouteClass
	logger   logging.Logger
}

// New builds a guard. classify maps a request path to its RouteClass;
// nil means everything is RoutePublic and the guard only handles
// callback redirection.
func New(paths Paths, classify func(string) RouteClass, logger logging.Logger) *Guard {
	if classify == nil {
		classify = func(string) RouteClass { return RoutePublic }
	}
	return &Guard{paths: paths, classify: classify, logger: logger}
}

// Middleware wraps h with the guard's decision table. Consent callback
// params outrank every other branch: a redirect carrying them always
// lands on the wizard route with the params preserved, so the wizard
// can classify the outcome no matter which page the provider hit.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if target, ok := consent.RedirectTarget(r.URL.Path, g.paths.Wizard, r.URL.Query()); ok {
			g.logger.Debug("consent callback redirect",
				logging.String("from", r.URL.Path), logging.String("to", target))
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		class := g.classify(r.URL.Path)
		session := auth.SessionFromContext(r.Context())
		authed := session.IsAuthenticated()

		switch {
		case !authed && (class == RouteProtected || class == RouteWizard):
			http.Redirect(w, r, g.paths.Landing, http.StatusFound)
			return

		case authed && class == RoutePublicOnly:
			http.Redirect(w, r, g.paths.Dashboard, http.StatusFound)
			return

		case authed && !session.IsSetupComplete && class == RouteProtected:
			http.Redirect(w, r, g.paths.Wizard, http.StatusFound)
			return

		case authed && session.IsSetupComplete && class == RouteWizard:
			http.Redirect(w, r, g.paths.Dashboard, http.StatusFound)
			return
		}

		if class == RouteWizard {
			// Keep the wizard out of the history cache so the back
			// button re-requests it and the guard re-evaluates.
			w.Header().Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

// PathClassifier builds a classify func from explicit route sets. The
// wizard path and its subpaths are RouteWizard; listed protected
// prefixes are RouteProtected; listed public-only paths are
// RoutePublicOnly; everything else is RoutePublic.
func PathClassifier(paths Paths, protectedPrefixes, publicOnly []string) func(string) RouteClass {
	return func(p string) RouteClass {
		if p == paths.Wizard || strings.HasPrefix(p, paths.Wizard+"/") {
			return RouteWizard
		}
		for _, prefix := range protectedPrefixes {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return RouteProtected
			}
		}
		for _, pub := range publicOnly {
			if p == pub {
				return RoutePublicOnly
			}
		}
		return RoutePublic
	}
}
