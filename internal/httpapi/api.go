package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"scopeauth.org/internal/audit"
	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
	"scopeauth.org/internal/obs"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// IdentityResolver maps a bearer token to the calling user.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (identity.UserID, error)
}

// API is the HTTP layer over the directory service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        *directory.Service
	resolver   IdentityResolver
	recorder   *audit.Recorder
}

func New(svc *directory.Service, resolver IdentityResolver, recorder *audit.Recorder, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		resolver:   resolver,
		recorder:   recorder,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	// caller-scoped surface
	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/me/groups", a.handleMeGroups)
	a.mux.HandleFunc("/v1/me/roles", a.handleMeRoles)
	a.mux.HandleFunc("/v1/me/audit", a.handleMeAudit)
	a.mux.HandleFunc("/v1/me/deactivate", a.handleMeDeactivate)
	a.mux.HandleFunc("/v1/me/leave", a.handleMeLeave)

	// admin surface
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/groups", a.handleGroups)
	a.mux.HandleFunc("/v1/groups/", a.handleGroupResource)
	a.mux.HandleFunc("/v1/grants/allow", a.handleGrantAllow)
	a.mux.HandleFunc("/v1/grants/revoke", a.handleGrantRevoke)
	a.mux.HandleFunc("/v1/grants/check", a.handleGrantCheck)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = LoggingJSON(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// record appends an audit entry, best effort. Failures are logged and never
// fail the request that triggered them.
func (a *API) record(ctx context.Context, actor *identity.UserID, op string, fields map[string]any) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Record(ctx, actor, op, fields); err != nil {
		obs.Emit("error", "audit_record_failed", map[string]any{
			"op":    op,
			"error": err.Error(),
		})
	}
}
