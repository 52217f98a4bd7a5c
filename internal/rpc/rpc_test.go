package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/sse"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogger(zerolog.Nop())
	db.SetLogger(zerolog.Nop())
	repository.SetLogger(zerolog.Nop())
	render.SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

const testUserHeader = "X-Test-User"

type fixture struct {
	t       *testing.T
	now     time.Time
	repos   *repository.Repositories
	clients *sse.SSEClients
	router  *Router
	mux     http.Handler
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := db.NewMemorySQLite()
	require.NoError(t, d.InitDB())
	t.Cleanup(func() { d.Close() })

	f := &fixture{t: t, now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.repos = repository.New(d, f.clock)
	f.clients = sse.NewSSEClients()
	f.router = NewRouter(Deps{
		Repos:    f.repos,
		Renderer: render.NewRenderer(nil, 0),
		Clients:  f.clients,
		Now:      f.clock,
	})

	mux := chi.NewRouter()
	mux.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get(testUserHeader); id != "" {
				r = r.WithContext(auth.ContextWithUserID(r.Context(), model.UserID(id)))
			}
			next.ServeHTTP(w, r)
		})
	})
	f.router.Mount(mux)
	f.mux = mux
	return f
}

func (f *fixture) user(username string) *model.User {
	f.t.Helper()
	u := &model.User{Username: username, Name: username}
	require.NoError(f.t, f.repos.Users.Create(context.Background(), u))
	return u
}

func (f *fixture) admin(username string) *model.User {
	f.t.Helper()
	u := f.user(username)
	require.NoError(f.t, f.repos.Users.SetRole(context.Background(), u.ID, model.RoleAdmin))
	u.Role = model.RoleAdmin
	return u
}

type response struct {
	status int
	data   json.RawMessage
	err    *Error
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.Nil(t, r.err, "unexpected error envelope")
	require.NoError(t, json.Unmarshal(r.data, v))
}

func (f *fixture) do(req *http.Request, as *model.User) response {
	f.t.Helper()
	if as != nil {
		req.Header.Set(testUserHeader, string(as.ID))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)

	var env struct {
		Result *struct {
			Data json.RawMessage `json:"data"`
		} `json:"result"`
		Error *Error `json:"error"`
	}
	require.NoError(f.t, json.NewDecoder(rr.Body).Decode(&env), "body is not an envelope")

	out := response{status: rr.Code, err: env.Error}
	if env.Result != nil {
		out.data = env.Result.Data
	}
	return out
}

func (f *fixture) call(as *model.User, procedure string, input any) response {
	f.t.Helper()
	body, err := json.Marshal(input)
	require.NoError(f.t, err)
	return f.do(httptest.NewRequest(http.MethodPost, "/api/trpc/"+procedure, bytes.NewReader(body)), as)
}

func (f *fixture) get(as *model.User, procedure string, input any) response {
	f.t.Helper()
	target := "/api/trpc/" + procedure
	if input != nil {
		body, err := json.Marshal(input)
		require.NoError(f.t, err)
		target += "?input=" + url.QueryEscape(string(body))
	}
	return f.do(httptest.NewRequest(http.MethodGet, target, nil), as)
}

func requireCode(t *testing.T, r response, code Code) {
	t.Helper()
	require.NotNil(t, r.err, "expected %s, got success", code)
	require.Equal(t, code, r.err.Code, r.err.Message)
	require.Equal(t, code.HTTPStatus(), r.status)
}

// createPost makes a draft through the router and returns its id and slug.
func (f *fixture) createPost(as *model.User, title, body string) slugResult {
	f.t.Helper()
	var out slugResult
	f.call(as, "post.create", map[string]any{"title": title, "body": body}).decode(f.t, &out)
	return out
}

func (f *fixture) publish(as *model.User, id model.PostID, extra map[string]any) response {
	f.t.Helper()
	input := map[string]any{"id": id, "published": true}
	for k, v := range extra {
		input[k] = v
	}
	return f.call(as, "post.publish", input)
}
