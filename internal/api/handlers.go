package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/sse"
	"github.com/codu-code/codu/internal/util"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// heartbeatInterval keeps idle streams open through proxies.
var heartbeatInterval = 25 * time.Second

func serveRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(config.HCType, "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("User-agent: *\nDisallow: /api/\n"))
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, body healthResponse) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.Header().Set(config.HCacheControl, "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Readyz checks the database and the render cache backend.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: map[string]string{}}
	if s.DB != nil {
		res.Checks["database"] = "ok"
		if conn := s.DB.Get(); conn == nil {
			res.Checks["database"] = "not initialized"
		} else if err := conn.PingContext(ctx); err != nil {
			res.Checks["database"] = err.Error()
		}
	}
	if s.Cache != nil {
		res.Checks["cache"] = "ok"
		if err := s.Cache.Ping(ctx); err != nil {
			res.Checks["cache"] = err.Error()
		}
	}

	status := http.StatusOK
	for _, v := range res.Checks {
		if v != "ok" {
			res.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	writeHealth(w, status, res)
}

func serveSyntaxTheme(w http.ResponseWriter, r *http.Request) {
	theme := chi.URLParam(r, "theme")
	if !render.ValidSyntaxTheme(theme) {
		http.NotFound(w, r)
		return
	}

	css := []byte(render.SyntaxCSS(theme))
	etag := util.ContentHash(css)
	w.Header().Set(config.HETag, etag)
	w.Header().Set(config.HCacheControl, "public, max-age=3600")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set(config.HCType, "text/css")
	w.WriteHeader(http.StatusOK)
	w.Write(css)
}

const (
	ogTitleLine  = 32
	ogTitleLines = 3
)

var ogTemplate = template.Must(template.New("og").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="1200" height="630" viewBox="0 0 1200 630">
<rect width="1200" height="630" fill="#1c1917"/>
<rect x="0" y="600" width="1200" height="30" fill="#f97316"/>
<text x="80" y="120" font-family="sans-serif" font-size="36" fill="#f97316">{{.Site}}</text>
{{range $i, $line := .Lines}}<text x="80" y="{{index $.Ys $i}}" font-family="sans-serif" font-size="64" font-weight="bold" fill="#fafaf9">{{$line}}</text>
{{end}}{{if .Author}}<text x="80" y="540" font-family="sans-serif" font-size="32" fill="#a8a29e">by {{.Author}}</text>
{{end}}</svg>
`))

// wrapTitle splits title into at most ogTitleLines lines of about
// ogTitleLine runes, ending with an ellipsis when it does not fit.
func wrapTitle(title string) []string {
	var lines []string
	var cur strings.Builder
	words := strings.Fields(title)
	for i, word := range words {
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(word) > ogTitleLine {
			lines = append(lines, cur.String())
			cur.Reset()
			if len(lines) == ogTitleLines {
				last := render.Truncate(lines[ogTitleLines-1], ogTitleLine-1)
				lines[ogTitleLines-1] = last + "…"
				return lines
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
		if i == len(words)-1 {
			lines = append(lines, cur.String())
		}
	}
	return lines
}

// serveOGImage renders the social preview card for a post.
func (s *Server) serveOGImage(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		title = "Codú"
	}
	site := "Codú"
	if s.Config != nil && s.Config.Site.Name != "" {
		site = s.Config.Site.Name
	}

	lines := wrapTitle(title)
	ys := make([]int, len(lines))
	for i := range lines {
		ys[i] = 260 + i*80
	}

	data := struct {
		Site   string
		Author string
		Lines  []string
		Ys     []int
	}{
		Site:   site,
		Author: render.Truncate(strings.TrimSpace(r.URL.Query().Get("author")), 40),
		Lines:  lines,
		Ys:     ys,
	}

	var b strings.Builder
	if err := ogTemplate.Execute(&b, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to render og image")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, config.CTypeSVG)
	w.Header().Set(config.HCacheControl, "public, max-age=86400")
	w.Header().Set(config.HETag, util.ContentHashString(b.String()))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}

// serveNotificationStream holds an event stream open for the signed in user
// and forwards their notifications and publication events.
func (s *Server) serveNotificationStream(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromRequest(r)
	if err != nil {
		rpc.WriteError(w, rpc.NewError(rpc.CodeUnauthorized, "You must be signed in"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, config.CTypeSSE)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")
	// Streams stay open past the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)

	client := sse.NewClient(userID)
	s.Clients.Add(client)
	s.Metrics.IncrementConnections(r.Context())
	l := hlog.FromRequest(r).With().Str("user_id", string(userID)).Logger()
	l.Info().Msg("Notification stream opened")

	defer func() {
		s.Clients.Delete(client)
		s.Metrics.DecrementConnections(context.Background())
		l.Info().Msg("Notification stream closed")
	}()

	if _, err := (sse.Event{Name: sse.EventConnected, Data: map[string]string{"userId": string(userID)}}).WriteTo(w); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case ev, ok := <-client.Msg:
			if !ok {
				return
			}
			if _, err := ev.WriteTo(w); err != nil {
				l.Debug().Err(err).Msg("Stream write failed")
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-done:
			return
		}
	}
}
