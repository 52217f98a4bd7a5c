// Package api assembles the HTTP surface: middleware, the procedure router,
// auth endpoints, notification streams and a few static resources.
package api

import (
	"net/http"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/cache"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/metrics"
	"github.com/codu-code/codu/internal/routes"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/sse"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

var apiLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	apiLogger = l
}

type Server struct {
	Config  *config.Config
	DB      db.DB
	Cache   cache.Store
	Auth    auth.AuthProvider
	RPC     *rpc.Router
	Clients *sse.SSEClients
	Metrics *metrics.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// Routes builds the root handler. Robots, health and metrics skip the rate
// limiter and auth; everything else passes through both.
func (s *Server) Routes() *chi.Mux {
	m := NewMiddleware(apiLogger, s.Metrics)
	cfg := s.Config
	if cfg == nil {
		cfg = config.Default()
	}

	r := chi.NewRouter()
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)

	r.Get(routes.RobotsPath, serveRobots)
	r.Get(routes.HealthPath, s.Healthz)
	r.Get(routes.ReadyPath, s.Readyz)
	if s.MetricsHandler != nil {
		r.Method(http.MethodGet, routes.Metrics, s.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(m.SecurityHeaders)
		r.Use(m.CORS(cfg.Security.CORSAllowedOrigins))
		r.Use(m.RateLimit(cfg.Security.RateLimitRPM))

		r.Get(routes.SyntaxTheme, serveSyntaxTheme)
		r.Get(routes.OGImage, s.serveOGImage)

		if s.Auth != nil {
			r.Post(routes.ClerkWebhook, s.Auth.HandleWebhookUser)
		}

		r.Group(func(r chi.Router) {
			r.Use(m.NoCache)
			if s.Auth != nil {
				r.Use(s.Auth.Middleware())
			}
			if p, ok := s.Auth.(*auth.Ed25519AuthProvider); ok {
				auth.RegisterEd25519AuthRoutes(r, p)
			}
			if s.RPC != nil {
				s.RPC.Mount(r)
			}
			r.Get(routes.NotificationStream, s.serveNotificationStream)
		})
	})

	return r
}
