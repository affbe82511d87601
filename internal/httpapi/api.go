// Package httpapi is the HTTP layer: routing, middleware, request decoding
// and the mapping from service errors to status codes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"counselsoc.org/internal/audit"
	"counselsoc.org/internal/auth"
	"counselsoc.org/internal/obs"
)

// ReadyProbe checks the dependencies readiness reporting cares about.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the API's collaborators and tunables.
type Options struct {
	Auth       *auth.Service
	Recorder   *audit.Recorder
	ReadyProbe ReadyProbe
	Sender     ResetSender
	Version    string

	MaxBodyBytes       int64
	RateLimitBurst     int
	RateLimitPerSecond int
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	auth     *auth.Service
	recorder *audit.Recorder
	probe    ReadyProbe
	sender   ResetSender
	version  string

	maxBodyBytes int64
	rateBurst    int
	ratePerSec   int
}

// New wires every route.
func New(opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         opts.Auth,
		recorder:     opts.Recorder,
		probe:        opts.ReadyProbe,
		sender:       opts.Sender,
		version:      opts.Version,
		maxBodyBytes: opts.MaxBodyBytes,
		rateBurst:    opts.RateLimitBurst,
		ratePerSec:   opts.RateLimitPerSecond,
	}
	if a.sender == nil {
		a.sender = LogSender{}
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// Member portal.
	a.mux.HandleFunc("/api/member/login", a.handleMemberLogin)
	a.mux.HandleFunc("/api/member/forgot-password", a.handleMemberForgotPassword)
	a.mux.HandleFunc("/api/member/reset-password", a.handleMemberResetPassword)
	a.mux.HandleFunc("/api/member/setup-password", a.handleMemberSetupPassword)
	a.mux.Handle("/api/member/profile", a.withMember(http.HandlerFunc(a.handleMemberProfile)))
	a.mux.Handle("/api/member/renewal", a.withMember(http.HandlerFunc(a.handleMemberRenewal)))

	// Admin portal.
	a.mux.HandleFunc("/api/admin/login", a.handleAdminLogin)
	a.mux.HandleFunc("/api/admin/forgot-password", a.handleAdminForgotPassword)
	a.mux.HandleFunc("/api/admin/reset-password", a.handleAdminResetPassword)
	a.mux.Handle("/api/admin/logout", a.withAdmin(http.HandlerFunc(a.handleAdminLogout)))
	a.mux.Handle("/api/admin/profile", a.withAdmin(http.HandlerFunc(a.handleAdminProfile)))
	a.mux.Handle("/api/admin/members", a.withAdmin(http.HandlerFunc(a.handleMembers)))
	a.mux.Handle("/api/admin/members/", a.withAdmin(http.HandlerFunc(a.handleMemberByID)))
	a.mux.Handle("/api/admin/admins", a.withAdmin(http.HandlerFunc(a.handleAdmins)))
	a.mux.Handle("/api/admin/admins/", a.withAdmin(http.HandlerFunc(a.handleAdminByID)))
	a.mux.Handle("/api/admin/audit-log", a.withAdmin(http.HandlerFunc(a.handleAuditLog)))
	a.mux.Handle("/api/admin/activities", a.withAdmin(http.HandlerFunc(a.handleActivities)))

	// Operational endpoints.
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the mux wrapped in the full middleware chain. Instrument
// sits innermost so rate-limited requests do not skew the latency histograms.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	if a.rateBurst > 0 && a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "counselsoc-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.probe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
