package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-pool/internal/auth"
	"github.com/example/ride-pool/internal/dispatch"
	"github.com/example/ride-pool/internal/notify"
	"github.com/example/ride-pool/internal/rides"
	"github.com/example/ride-pool/internal/search"
	"github.com/example/ride-pool/internal/storage"
)

// Deps are the collaborators the HTTP surface is wired to.
type Deps struct {
	Rides    *rides.Service
	Search   *search.Engine
	Notify   *notify.Service
	Users    storage.UserStore
	Verifier *auth.Verifier
	Registry *dispatch.Registry
	Limiter  *RateLimiter
	Logger   *slog.Logger
	// Ready reports whether backing services are reachable. Optional.
	Ready func(ctx context.Context) error
	// AllowedOrigins are the browser origins allowed for CORS and the
	// websocket handshake. Empty means same-origin only.
	AllowedOrigins []string
}

type Server struct {
	rides    *rides.Service
	search   *search.Engine
	notify   *notify.Service
	users    storage.UserStore
	verifier *auth.Verifier
	registry *dispatch.Registry
	limiter  *RateLimiter
	logger   *slog.Logger
	ready    func(ctx context.Context) error
	mux      *mux.Router
	handler  http.Handler
	upgrader websocket.Upgrader
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		rides:    d.Rides,
		search:   d.Search,
		notify:   d.Notify,
		users:    d.Users,
		verifier: d.Verifier,
		registry: d.Registry,
		limiter:  d.Limiter,
		logger:   logger,
		ready:    d.Ready,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	s.handler = s.mux
	if len(d.AllowedOrigins) > 0 {
		policy := newOriginPolicy(d.AllowedOrigins)
		s.upgrader.CheckOrigin = policy.checkOrigin
		s.handler = policy.corsHandler(s.mux)
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ws", s.handleWS).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	if s.limiter != nil {
		authed.Use(s.rateLimitMiddleware)
	}

	authed.HandleFunc("/rides", s.handleBrowseRides).Methods("GET")
	authed.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	authed.HandleFunc("/rides/created", s.handleMyRides).Methods("GET")
	authed.HandleFunc("/rides/search", s.handleSearch).Methods("POST")
	authed.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	authed.HandleFunc("/rides/{id}", s.handleUpdateRide).Methods("PUT")
	authed.HandleFunc("/rides/{id}", s.handleDeleteRide).Methods("DELETE")
	authed.HandleFunc("/rides/{id}/join", s.handleJoinRide).Methods("POST")
	authed.HandleFunc("/rides/{rideId}/accept/{participantId}", s.handleAcceptParticipant).Methods("POST")
	authed.HandleFunc("/rides/{rideId}/reject-participant/{participantId}", s.handleRejectParticipant).Methods("POST")

	authed.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")
	authed.HandleFunc("/notifications/{id}/read", s.handleMarkNotificationRead).Methods("PATCH")

	authed.HandleFunc("/users/profile", s.handleUpdateProfile).Methods("PUT")
	authed.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

// errorBody is the failure shape of the ride and user routes.
type errorBody struct {
	Msg     string `json:"msg"`
	Details string `json:"details,omitempty"`
	Error   bool   `json:"error,omitempty"`
}

// messageBody is the shape of the notification routes and ride deletion.
type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorBody{Msg: "Server Error", Details: err.Error(), Error: true})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// logFailure records a failed request with whatever identifiers it carried.
func (s *Server) logFailure(r *http.Request, msg string, err error, args ...any) {
	attrs := []any{"route", routeTemplate(r), "user_id", userIDFromContext(r.Context()), "error", err}
	if rid := requestIDFromContext(r.Context()); rid != "" {
		attrs = append(attrs, "request_id", rid)
	}
	s.logger.Error(msg, append(attrs, args...)...)
}
