package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"chatspace/internal/config"
	"chatspace/internal/domain"
	"chatspace/internal/logging"
	"chatspace/internal/metrics"
	"chatspace/internal/service"
)

// Deps are the components the router wires into routes.
type Deps struct {
	Config   *config.Config
	Auth     *service.AuthService
	Users    *service.UserService
	Channels *service.ChannelService
	Admin    *service.AdminService
	Socket   http.Handler
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	log := d.Log
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	// Long-lived; kept out of the request timeout below.
	if d.Socket != nil {
		r.Handle("/ws", d.Socket)
	}

	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		log.Warn("ignoring trusted proxies", zap.Error(err))
		trusted = nil
	}
	limiter := newLimiterPool(cfg.AuthRateRPS, cfg.AuthRateBurst, trusted)
	uploads := newUploadStore(cfg.UploadDir, int64(cfg.MaxUploadMB)<<20, log)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiter, d.Metrics))
			r.Post("/register", handleRegister(d.Auth, log))
			r.Post("/login", handleLogin(d.Auth, d.Metrics, log))
		})

		// Served without credentials so attachments can be embedded directly.
		r.Get("/uploads/{filename}", uploads.serve)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth, d.Metrics, log))

			r.Get("/me", handleMe(d.Users))
			r.Get("/users", handleListUsers(d.Users, log))

			r.Get("/channels", handleListChannels(d.Channels, log))
			r.Post("/channels", handleCreateChannel(d.Channels, log))
			r.Post("/dm", handleCreateDirect(d.Channels, log))

			r.Post("/uploads", uploads.upload)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", handleAdminStats(d.Admin, log))
				r.Get("/users", handleAdminListUsers(d.Admin, log))
				r.Delete("/users/{userID}", handleAdminDeleteUser(d.Admin, log))
				r.Get("/channels", handleAdminListChannels(d.Admin, log))
				r.Delete("/channels/{channelID}", handleAdminDeleteChannel(d.Admin, log))
			})
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"error": msg}. Internal errors are logged and replaced
// with a generic message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "Internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Errorf(domain.ErrInvalidInput, "invalid JSON body")
	}
	return nil
}
