package api

import (
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codu-code/codu/internal/cache"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/metrics"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"
)

type Middleware struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewMiddleware(logger zerolog.Logger, m *metrics.Metrics) *Middleware {
	return &Middleware{logger: logger, metrics: m, now: time.Now}
}

// RequestLogger attaches a request scoped logger and logs one line per
// request once it completes.
func (m *Middleware) RequestLogger(next http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		route := routePattern(r)
		ev := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP request")
		m.metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)
	})

	h := access(next)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.RequestIDHandler("request_id", config.HRequestID)(h)
	return hlog.NewHandler(m.logger)(h)
}

// routePattern keeps metric labels bounded by using the matched chi pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (m *Middleware) CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", config.HAuthorize, config.HCType, config.HRequestID},
		ExposedHeaders:   []string{config.HRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit allows rpm requests per minute per client address with a burst
// of a sixth of that. Idle visitors are forgotten after ten minutes.
func (m *Middleware) RateLimit(rpm int) func(http.Handler) http.Handler {
	if rpm <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	burst := rpm / 6
	if burst < 1 {
		burst = 1
	}
	visitors := cache.NewCache[string, *visitor]()
	var mu sync.Mutex
	var lastSweep time.Time

	limiterFor := func(addr string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		now := m.now()
		if now.Sub(lastSweep) > time.Minute {
			visitors.DeleteFunc(func(_ string, v *visitor) bool {
				return now.Sub(v.lastSeen) > 10*time.Minute
			})
			lastSweep = now
		}
		v, ok := visitors.Get(addr)
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
			visitors.Set(addr, v)
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiterFor(clientAddr(r)).Allow() {
				hlog.FromRequest(r).Warn().Msg("Rate limit exceeded")
				rpc.WriteError(w, rpc.NewError(rpc.CodeTooManyRequests, "Too many requests, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// NoCache marks responses as uncacheable unless the handler says otherwise.
func (m *Middleware) NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCacheControl, "no-cache")
		w.Header().Set("Vary", "Cookie")
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				hlog.FromRequest(r).Error().
					Interface("panic", rvr).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")
				rpc.WriteError(w, rpc.NewError(rpc.CodeInternal, "Something went wrong"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
