package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/registry"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Triggerer requests an out-of-band check cycle.
type Triggerer interface {
	Trigger() bool
}

// Limits are per-client request rates for the read and admin routes.
type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

type Server struct {
	Logger   *zap.Logger
	Targets  *registry.Registry
	States   repo.StateStore
	Checks   Triggerer
	Metrics  http.Handler // optional, served on /metrics
	Location *time.Location
}

func NewServer(l *zap.Logger, targets *registry.Registry, states repo.StateStore, checks Triggerer) *Server {
	return &Server{Logger: l, Targets: targets, States: states, Checks: checks}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	} else {
		r.Use(cors.AllowAll().Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Use(apimw.RateLimit(lim.PublicRPM, lim.PublicBurst))
			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{id}", s.handleGetTarget)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RateLimit(lim.AdminRPM, lim.AdminBurst))
			r.Post("/check", s.handleTriggerCheck)
		})
	})

	return r
}

// targetView is a registry entry joined with its persisted state.
type targetView struct {
	ID                  domain.TargetID `json:"id"`
	URL                 string          `json:"url"`
	Selector            string          `json:"selector,omitempty"`
	Status              domain.Status   `json:"status"`
	NotifiedStatus      domain.Status   `json:"notified_status"`
	ConsecutiveFailures uint            `json:"consecutive_failures"`
	Reason              string          `json:"reason,omitempty"`
	Fingerprint         string          `json:"fingerprint,omitempty"`
	LastCheckedAt       *time.Time      `json:"last_checked_at,omitempty"`
	LastTransitionAt    *time.Time      `json:"last_transition_at,omitempty"`
	LastNotifiedAt      *time.Time      `json:"last_notified_at,omitempty"`
	LastRemediatedAt    *time.Time      `json:"last_remediated_at,omitempty"`
}

func (s *Server) view(t domain.Target, st *domain.TargetState) targetView {
	v := targetView{
		ID:             t.ID,
		URL:            t.URL,
		Selector:       t.Selector,
		Status:         domain.StatusUnknown,
		NotifiedStatus: domain.StatusUnknown,
	}
	if st == nil {
		return v
	}
	v.Status = st.CanonicalStatus
	v.NotifiedStatus = st.LastNotifiedStatus
	v.ConsecutiveFailures = st.ConsecutiveFailures
	v.Reason = st.LastReason
	v.Fingerprint = st.LastFingerprint
	v.LastCheckedAt = s.stamp(st.LastCheckedAt)
	v.LastTransitionAt = s.stamp(st.LastTransitionAt)
	v.LastNotifiedAt = s.stamp(st.LastNotifiedAt)
	v.LastRemediatedAt = s.stamp(st.LastRemediatedAt)
	return v
}

func (s *Server) stamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	if s.Location != nil {
		t = t.In(s.Location)
	}
	return &t
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	states, err := s.States.List(r.Context())
	if err != nil {
		s.Logger.Error("list_states_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	byID := make(map[domain.TargetID]*domain.TargetState, len(states))
	for i := range states {
		byID[states[i].TargetID] = &states[i]
	}

	targets := s.Targets.All()
	out := make([]targetView, 0, len(targets))
	for _, t := range targets {
		out = append(out, s.view(t, byID[t.ID]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return
	}
	t, ok := s.Targets.Get(domain.TargetID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown target")
		return
	}
	st, err := s.States.Get(r.Context(), t.ID)
	if err != nil {
		s.Logger.Error("get_state_failed", zap.String("target_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "state error")
		return
	}
	writeJSON(w, http.StatusOK, s.view(t, st))
}

func (s *Server) handleTriggerCheck(w http.ResponseWriter, r *http.Request) {
	queued := s.Checks.Trigger()
	s.Logger.Info("check_triggered", zap.Bool("queued", queued))
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
