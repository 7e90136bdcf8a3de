package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"optiadmin/internal/metrics"
)

type RouterConfig struct {
	Scheduling     *SchedulingHandler
	Auth           *AuthHandler
	AuthMiddleware mux.MiddlewareFunc
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	Log            *slog.Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	r := mux.NewRouter()
	r.Use(requestTimeout(cfg.RequestTimeout))
	r.Use(requestLogger(log))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public: admin login plus the booking flow used by the public site.
	api.HandleFunc("/auth/login", cfg.Auth.Login).Methods(http.MethodPost)
	api.HandleFunc("/appointments/check", cfg.Scheduling.CheckAvailability).Methods(http.MethodPost)
	api.HandleFunc("/appointments", cfg.Scheduling.Create).Methods(http.MethodPost)

	admin := api.PathPrefix("").Subrouter()
	admin.Use(cfg.AuthMiddleware)
	admin.HandleFunc("/appointments", cfg.Scheduling.List).Methods(http.MethodGet)
	admin.HandleFunc("/appointments/{id}", cfg.Scheduling.Get).Methods(http.MethodGet)
	admin.HandleFunc("/appointments/{id}/reschedule", cfg.Scheduling.Reschedule).Methods(http.MethodPatch)
	admin.HandleFunc("/appointments/{id}/status", cfg.Scheduling.UpdateStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/statuses", cfg.Scheduling.Statuses).Methods(http.MethodGet)
	admin.HandleFunc("/admins", cfg.Auth.CreateAdmin).Methods(http.MethodPost)

	return r
}

// requestTimeout bounds every request that arrives without a deadline, so a
// slow writer transaction is cut short rather than held open.
func requestTimeout(timeout time.Duration) mux.MiddlewareFunc {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &loggedResponse{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			log.Debug("request handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.code),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type loggedResponse struct {
	http.ResponseWriter
	code int
}

func (r *loggedResponse) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
