package client

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/codu-code/codu/internal/api"
	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/sse"
	"github.com/codu-code/codu/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	api.SetLogger(zerolog.Nop())
	auth.SetLogger(zerolog.Nop())
	db.SetLogger(zerolog.Nop())
	repository.SetLogger(zerolog.Nop())
	rpc.SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

func newServer(t *testing.T) (*httptest.Server, *repository.Repositories) {
	t.Helper()
	d := db.NewMemorySQLite()
	require.NoError(t, d.InitDB())
	t.Cleanup(func() { d.Close() })

	repos := repository.New(d, nil)
	clients := sse.NewSSEClients()
	cfg := config.Default()
	cfg.Security.RateLimitRPM = 0

	s := &api.Server{
		Config:  cfg,
		DB:      d,
		Auth:    auth.NewEd25519AuthProvider(repos.Users, time.Hour, time.Minute),
		Clients: clients,
		RPC:     rpc.NewRouter(rpc.Deps{Repos: repos, Clients: clients}),
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, repos
}

func keyedUser(t *testing.T, repos *repository.Repositories, username string) ed25519.PrivateKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pemKey, err := auth.EncodePublicKeyPEM(pub)
	require.NoError(t, err)
	require.NoError(t, repos.Users.Create(context.Background(), &model.User{Username: username, PublicKey: pemKey}))
	return priv
}

func TestLoginAndPublish(t *testing.T) {
	srv, repos := newServer(t)
	key := keyedUser(t, repos, "ada")
	ctx := context.Background()

	c := New(srv.URL)
	require.NoError(t, c.Login(ctx, "ada", key))
	require.NotEmpty(t, c.Token())

	ref, err := c.CreatePost(ctx, validation.SavePostInput{Title: "Lorem Ipsum", Body: "Body text"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, ref.Status)

	post, err := c.UpdatePost(ctx, validation.SavePostInput{ID: ref.ID, Title: "Lorem Ipsum", Body: "Long enough body text"})
	require.NoError(t, err)
	assert.Equal(t, "Long enough body text", post.Body)

	res, err := c.PublishPost(ctx, PublishInput{ID: ref.ID, Published: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, res.Status)
	assert.Equal(t, "lorem-ipsum-"+string(ref.ID), res.Slug)
	require.NotNil(t, res.Published)

	draft, err := c.EditDraft(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, draft.Status)
	assert.Equal(t, "Long enough body text", draft.Body)
}

func TestErrorEnvelope(t *testing.T) {
	srv, repos := newServer(t)
	key := keyedUser(t, repos, "ada")
	ctx := context.Background()

	anon := New(srv.URL)
	_, err := anon.CreatePost(ctx, validation.SavePostInput{Title: "x"})
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)

	c := New(srv.URL)
	require.NoError(t, c.Login(ctx, "ada", key))
	ref, err := c.CreatePost(ctx, validation.SavePostInput{Title: "Tags", Body: "Long enough body text"})
	require.NoError(t, err)

	_, err = c.PublishPost(ctx, PublishInput{ID: ref.ID, Published: true, Tags: []string{"go", "GO"}})
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeBadRequest, rpcErr.Code)
	assert.Equal(t, validation.MsgDuplicateTags, rpcErr.FieldErrors["tags"])
}

func TestLoginFailures(t *testing.T) {
	srv, repos := newServer(t)
	keyedUser(t, repos, "ada")
	_, wrong, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c := New(srv.URL)
	err = c.Login(context.Background(), "ada", wrong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Empty(t, c.Token())
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err := c.CreatePost(context.Background(), validation.SavePostInput{Title: "x"})
	assert.True(t, errors.Is(err, ErrNetwork), "got %v", err)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer garbage.Close()
	_, err = New(garbage.URL).EditDraft(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrNetwork), "got %v", err)
}
