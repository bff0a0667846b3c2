// internal/api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
)

const requestTimeout = 90 * time.Second

// NewRouter собирает chi-роутер: публичные эндпоинты и группа под JWT.
// CORS разрешён только для allowedOrigins.
func NewRouter(h *Handler, jwtSecret string, allowedOrigins []string, collector *metrics.Collector, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger, collector))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/custody", h.handleCustodyInfo)
		r.Get("/tokens/{mint}/fees", h.handleFeeInfo)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))
			r.Post("/deploy", h.handleDeploy)
			r.Post("/tokens/{mint}/direct", h.handleRegisterDirect)
			r.Post("/tokens/{mint}/claim", h.handleQuoteClaim)
			r.Post("/tokens/{mint}/claim/confirm", h.handleConfirmClaim)
		})
	})

	return r
}
