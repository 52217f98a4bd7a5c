// Package auth resolves the calling user from a request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/codu-code/codu/internal/model"
	"github.com/rs/zerolog"
)

var authLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	authLogger = l
}

var ErrNoUser = errors.New("no user in context")

type AuthProvider interface {
	// Middleware stores the caller's user id in the request context when the
	// request carries valid credentials. Anonymous requests pass through.
	Middleware() func(http.Handler) http.Handler

	// HandleWebhookUser mirrors identity provider user events.
	HandleWebhookUser(w http.ResponseWriter, r *http.Request)
}

// UserStore is the persistence the providers need.
type UserStore interface {
	Get(ctx context.Context, id model.UserID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Upsert(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id model.UserID) error

	CreateSession(ctx context.Context, id model.UserID, ttl time.Duration) (string, *model.Session, error)
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// UserIDFromRequest returns the authenticated caller.
func UserIDFromRequest(r *http.Request) (model.UserID, error) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", ErrNoUser
	}
	return id, nil
}
