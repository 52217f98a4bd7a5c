// Package rpc serves the JSON procedures under /api/trpc/<procedure>.
//
// Queries accept GET with ?input=<json> or POST with a JSON body, mutations
// accept POST only. Every response is either {"result":{"data":...}} or
// {"error":{"code":...,"message":...,"fieldErrors":...}}.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/metrics"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/sse"
	"github.com/codu-code/codu/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

var rpcLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	rpcLogger = l
}

const maxInputBytes = 1 << 20

type kind int

const (
	query kind = iota
	mutation
)

// Call carries one procedure invocation.
type Call struct {
	ctx    context.Context
	userID model.UserID
	input  json.RawMessage
}

func (c *Call) Context() context.Context { return c.ctx }

// UserID is empty for anonymous callers.
func (c *Call) UserID() model.UserID { return c.userID }

// Decode unmarshals the input into v. Missing input decodes as an empty object.
func (c *Call) Decode(v any) error {
	if len(bytes.TrimSpace(c.input)) == 0 || bytes.Equal(bytes.TrimSpace(c.input), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(c.input, v); err != nil {
		return &Error{Code: CodeBadRequest, Message: "Invalid input", cause: err}
	}
	return nil
}

type HandlerFunc func(c *Call) (any, error)

type procedure struct {
	kind kind
	fn   HandlerFunc
}

// Deps are the services procedures run against.
type Deps struct {
	Repos    *repository.Repositories
	Renderer *render.Renderer
	Clients  *sse.SSEClients
	Uploader storage.Uploader
	Metrics  *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time

	PageSize    int
	MaxPageSize int
	SyntaxTheme string
}

type Router struct {
	Deps
	procs map[string]procedure
}

func NewRouter(deps Deps) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 20
	}
	if deps.MaxPageSize < deps.PageSize {
		deps.MaxPageSize = 50
	}
	if deps.Uploader == nil {
		deps.Uploader = storage.Disabled{}
	}
	if deps.SyntaxTheme == "" {
		deps.SyntaxTheme = "github-dark"
	}

	r := &Router{Deps: deps, procs: make(map[string]procedure)}
	r.registerPosts()
	r.registerComments()
	r.registerNotifications()
	r.registerProfiles()
	r.registerAdmin()
	return r
}

func (r *Router) query(name string, fn HandlerFunc) {
	r.procs[name] = procedure{kind: query, fn: fn}
}

func (r *Router) mutation(name string, fn HandlerFunc) {
	r.procs[name] = procedure{kind: mutation, fn: fn}
}

// Procedures lists registered procedure names in order.
func (r *Router) Procedures() []string {
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mount registers the procedure endpoint on a chi router.
func (r *Router) Mount(mux chi.Router) {
	mux.Get("/api/trpc/{procedure}", r.ServeHTTP)
	mux.Post("/api/trpc/{procedure}", r.ServeHTTP)
}

type successEnvelope struct {
	Result struct {
		Data any `json:"data"`
	} `json:"result"`
}

type errorEnvelope struct {
	Error *Error `json:"error"`
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "procedure")
	l := zerolog.Ctx(req.Context())

	proc, ok := r.procs[name]
	if !ok {
		r.writeError(w, req, name, NewError(CodeNotFound, "No procedure named \""+name+"\""))
		return
	}

	var input json.RawMessage
	switch {
	case req.Method == http.MethodGet && proc.kind == query:
		input = json.RawMessage(req.URL.Query().Get("input"))
	case req.Method == http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(req.Body, maxInputBytes))
		if err != nil {
			r.writeError(w, req, name, errBadInput)
			return
		}
		input = body
	default:
		r.writeError(w, req, name, NewError(CodeMethodNotAllowed, "Mutations must use POST"))
		return
	}

	userID, _ := auth.UserIDFromContext(req.Context())
	call := &Call{ctx: req.Context(), userID: userID, input: input}

	data, err := proc.fn(call)
	if err != nil {
		rpcErr := toError(err)
		if rpcErr.Code == CodeInternal {
			l.Error().Err(err).Str("procedure", name).Msg("Procedure failed")
		} else {
			l.Debug().Err(err).Str("procedure", name).Msg("Procedure rejected")
		}
		r.writeError(w, req, name, rpcErr)
		return
	}

	var env successEnvelope
	env.Result.Data = data
	r.Metrics.RecordRPC(req.Context(), name, string(CodeOK))
	writeJSON(w, http.StatusOK, env)
}

func (r *Router) writeError(w http.ResponseWriter, req *http.Request, name string, e *Error) {
	r.Metrics.RecordRPC(req.Context(), name, string(e.Code))
	writeJSON(w, e.Code.HTTPStatus(), errorEnvelope{Error: e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rpcLogger.Error().Err(err).Msg("Failed to write response")
	}
}

// now returns the router clock in UTC at storage precision.
func (r *Router) now() time.Time {
	return r.Now().UTC().Truncate(time.Microsecond)
}

// user loads the signed in caller.
func (r *Router) user(c *Call) (*model.User, error) {
	if c.userID == "" {
		return nil, errUnauthorized
	}
	u, err := r.Repos.Users.Get(c.ctx, c.userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errUnauthorized
	}
	return u, err
}

// activeUser is user plus a ban check, for procedures that create content.
func (r *Router) activeUser(c *Call) (*model.User, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}
	banned, err := r.Repos.Moderation.IsBanned(c.ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, errBanned
	}
	return u, nil
}

func (r *Router) admin(c *Call) (*model.User, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, errForbidden
	}
	return u, nil
}

// WriteError writes e in the failure envelope, for handlers outside the
// procedure router.
func WriteError(w http.ResponseWriter, e *Error) {
	writeJSON(w, e.Code.HTTPStatus(), errorEnvelope{Error: e})
}
