package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/cache"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/metrics"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/sse"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogger(zerolog.Nop())
	auth.SetLogger(zerolog.Nop())
	db.SetLogger(zerolog.Nop())
	repository.SetLogger(zerolog.Nop())
	rpc.SetLogger(zerolog.Nop())
	sse.SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

type testServer struct {
	*Server
	repos   *repository.Repositories
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	d := db.NewMemorySQLite()
	require.NoError(t, d.InitDB())
	t.Cleanup(func() { d.Close() })

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	m, metricsHandler, err := metrics.Setup("codu-test")
	require.NoError(t, err)

	repos := repository.New(d, nil)
	clients := sse.NewSSEClients()
	store := cache.NewMemoryStore()
	s := &Server{
		Config:  cfg,
		DB:      d,
		Cache:   store,
		Auth:    auth.NewEd25519AuthProvider(repos.Users, time.Hour, time.Minute),
		Clients: clients,
		Metrics: m,
		RPC: rpc.NewRouter(rpc.Deps{
			Repos:    repos,
			Renderer: render.NewRenderer(store, time.Hour),
			Clients:  clients,
			Metrics:  m,
		}),
		MetricsHandler: metricsHandler,
	}
	return &testServer{Server: s, repos: repos, handler: s.Routes()}
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// session creates a user and returns a bearer token for them.
func (ts *testServer) session(t *testing.T, username string) (*model.User, string) {
	t.Helper()
	u := &model.User{Username: username}
	require.NoError(t, ts.repos.Users.Create(context.Background(), u))
	token, _, err := ts.repos.Users.CreateSession(context.Background(), u.ID, time.Hour)
	require.NoError(t, err)
	return u, token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = ts.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var ready healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
	assert.Equal(t, map[string]string{"database": "ok", "cache": "ok"}, ready.Checks)

	ts.DB.Close()
	rr = ts.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRobots(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "User-agent: *")
	assert.Empty(t, rr.Header().Get("X-Frame-Options"))
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/api/og?title=Hi", nil))
	assert.Equal(t, "deny", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get(config.HRequestID))
}

func TestSyntaxTheme(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/syntax-theme/monokai", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/css", rr.Header().Get(config.HCType))
	assert.Contains(t, rr.Body.String(), ".chroma")
	etag := rr.Header().Get(config.HETag)
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/syntax-theme/monokai", nil)
	req.Header.Set("If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, ts.serve(req).Code)

	rr = ts.serve(httptest.NewRequest(http.MethodGet, "/syntax-theme/no-such-theme", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOGImage(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/api/og?title=%3Cscript%3Ealert(1)%3C%2Fscript%3E&author=ada", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, config.CTypeSVG, rr.Header().Get(config.HCType))

	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, "<svg"))
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "by ada")
}

func TestWrapTitle(t *testing.T) {
	testCases := []struct {
		title string
		want  []string
	}{
		{"", nil},
		{"Short title", []string{"Short title"}},
		{
			"A title that is long enough to need a second line",
			[]string{"A title that is long enough to", "need a second line"},
		},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, wrapTitle(tc.title), tc.title)
	}

	long := wrapTitle(strings.Repeat("word ", 40))
	require.Len(t, long, ogTitleLines)
	assert.True(t, strings.HasSuffix(long[ogTitleLines-1], "…"))
}

func TestRPCThroughAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	_, token := ts.session(t, "ada")

	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/api/trpc/profile.me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "no-cache", rr.Header().Get(config.HCacheControl))

	req := httptest.NewRequest(http.MethodGet, "/api/trpc/profile.me", nil)
	req.Header.Set(config.HAuthorize, "Bearer "+token)
	rr = ts.serve(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var env struct {
		Result struct {
			Data struct {
				Username string `json:"username"`
			} `json:"data"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "ada", env.Result.Data.Username)
}

func TestAuthRoutesMounted(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/auth/challenge", strings.NewReader(`{"username":"nobody"}`))
	rr := ts.serve(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"challenge"`)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Security.RateLimitRPM = 6 })

	first := ts.serve(httptest.NewRequest(http.MethodGet, "/api/trpc/post.all", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := ts.serve(httptest.NewRequest(http.MethodGet, "/api/trpc/post.all", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"TOO_MANY_REQUESTS"`)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, ts.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)

	other := httptest.NewRequest(http.MethodGet, "/api/trpc/post.all", nil)
	other.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, http.StatusOK, ts.serve(other).Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Security.CORSAllowedOrigins = []string{"https://codu.co"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/trpc/post.create", nil)
	req.Header.Set("Origin", "https://codu.co")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := ts.serve(req)
	assert.Equal(t, "https://codu.co", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/trpc/post.create", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = ts.serve(req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.serve(httptest.NewRequest(http.MethodGet, "/api/trpc/post.all", nil))

	rr := ts.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "codu_rpc_calls_total")
}

func TestRecoverer(t *testing.T) {
	m := NewMiddleware(zerolog.Nop(), nil)
	h := m.RequestLogger(m.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"INTERNAL_SERVER_ERROR"`)
}

func TestNotificationStream(t *testing.T) {
	ts := newTestServer(t, nil)
	u, token := ts.session(t, "ada")

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/notifications/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set(config.HAuthorize, "Bearer "+token)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.CTypeSSE, resp.Header.Get(config.HCType))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return name, data
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	name, _ := readEvent()
	require.Equal(t, sse.EventConnected, name)
	require.Eventually(t, func() bool { return ts.Clients.Count() == 1 }, time.Second, 10*time.Millisecond)

	sent := ts.Clients.Send(u.ID, sse.Event{Name: sse.EventNotification, Data: model.Notification{ID: 7, UserID: u.ID}})
	require.Equal(t, 1, sent)

	name, data := readEvent()
	assert.Equal(t, sse.EventNotification, name)
	assert.Contains(t, data, `"id":7`)

	cancel()
	require.Eventually(t, func() bool { return ts.Clients.Count() == 0 }, time.Second, 10*time.Millisecond)
}
