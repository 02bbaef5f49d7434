// Package httpapi exposes the notification pipeline over REST.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/engagement"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// SignalRecorder stores engagement signals.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, notificationID int64, kind engagement.SignalKind, at time.Time, source string) (*engagement.Event, bool, error)
}

// Analytics serves the daily report and the operator toggle.
type Analytics interface {
	Report(ctx context.Context, date time.Time) (*app.AnalyticsReport, error)
	SetOptimization(ctx context.Context, date time.Time, enabled bool) error
}

// Deps are the services behind the routes. Metrics and Health are optional.
type Deps struct {
	Notifications app.NotificationService
	Engagement    SignalRecorder
	Analytics     Analytics
	Metrics       http.Handler
	Health        func(ctx context.Context) error
	Logger        *logrus.Entry
}

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps Deps, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)

	h := &handler{deps: deps, now: time.Now}

	r.Get("/health", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications", h.queueNotification)
		r.Get("/notifications/{id}", h.getNotification)
		r.Delete("/notifications/{id}", h.cancelNotification)
		r.Get("/users/{userID}/notification-stats", h.notificationStats)

		r.Post("/engagement", h.recordEngagement)

		r.Get("/analytics/report", h.analyticsReport)
		r.Put("/analytics/optimization", h.setOptimization)
	})

	return r
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if log == nil {
				return
			}
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}
