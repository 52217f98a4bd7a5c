package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/repository"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"
)

const (
	clerkSessionCookie = "__session"
	maxWebhookBody     = 1 << 20
)

var ErrWebhookSignature = errors.New("webhook signature mismatch")

type ClerkAuthProvider struct {
	users   UserStore
	webhook *svix.Webhook

	cookieExtractor clerkhttp.AuthorizationOption
}

// NewClerkAuthProvider configures the Clerk SDK with clerkKey. webhookSecret
// is the "whsec_" signing secret of the user webhook endpoint.
func NewClerkAuthProvider(users UserStore, clerkKey, webhookSecret string) (*ClerkAuthProvider, error) {
	clerk.SetKey(clerkKey)

	var wh *svix.Webhook
	if webhookSecret != "" {
		var err error
		if wh, err = svix.NewWebhook(webhookSecret); err != nil {
			return nil, fmt.Errorf("invalid webhook secret: %w", err)
		}
	}

	return &ClerkAuthProvider{
		users:   users,
		webhook: wh,
		cookieExtractor: clerkhttp.AuthorizationJWTExtractor(func(r *http.Request) string {
			cookie, err := r.Cookie(clerkSessionCookie)
			if err != nil || cookie == nil {
				return ""
			}
			return cookie.Value
		}),
	}, nil
}

// Middleware verifies the Clerk session JWT and exposes its subject as the
// user id.
func (c *ClerkAuthProvider) Middleware() func(http.Handler) http.Handler {
	verify := clerkhttp.WithHeaderAuthorization(c.cookieExtractor)
	return func(next http.Handler) http.Handler {
		withUser := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := clerk.SessionClaimsFromContext(r.Context())
			if !ok || claims.Subject == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), model.UserID(claims.Subject))))
		})
		return verify(withUser)
	}
}

// VerifyWebhook checks the svix signature headers Clerk sends with every
// delivery, including the timestamp tolerance. A provider without a secret
// accepts nothing.
func (c *ClerkAuthProvider) VerifyWebhook(h http.Header, body []byte) error {
	if c.webhook == nil {
		return ErrWebhookSignature
	}
	if err := c.webhook.Verify(body, h); err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}
	return nil
}

type clerkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// userFromClerk maps a Clerk user onto the local profile, falling back to the
// email local part and then the id when no username is set.
func userFromClerk(u *clerk.User) *model.User {
	out := &model.User{ID: model.UserID(u.ID)}

	for _, addr := range u.EmailAddresses {
		if addr == nil {
			continue
		}
		if u.PrimaryEmailAddressID != nil && addr.ID == *u.PrimaryEmailAddressID {
			out.Email = addr.EmailAddress
			break
		}
		if out.Email == "" {
			out.Email = addr.EmailAddress
		}
	}

	switch {
	case u.Username != nil && *u.Username != "":
		out.Username = strings.ToLower(*u.Username)
	case out.Email != "":
		local, _, _ := strings.Cut(out.Email, "@")
		out.Username = strings.ToLower(local)
	default:
		out.Username = strings.ToLower(u.ID)
	}

	var name []string
	if u.FirstName != nil && *u.FirstName != "" {
		name = append(name, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		name = append(name, *u.LastName)
	}
	out.Name = strings.Join(name, " ")

	if u.ImageURL != nil {
		out.Image = *u.ImageURL
	}
	return out
}

// HandleWebhookUser mirrors user.created, user.updated and user.deleted events.
func (c *ClerkAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, config.ErrBadRequest, http.StatusBadRequest)
		return
	}

	if err := c.VerifyWebhook(r.Header, body); err != nil {
		l.Warn().Err(err).Msg("Rejected webhook")
		http.Error(w, config.ErrInvalidWebhook, http.StatusUnauthorized)
		return
	}

	var event clerkEvent
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&event); err != nil {
		l.Error().Err(err).Msg("Error decoding event payload")
		http.Error(w, config.ErrBadRequest, http.StatusBadRequest)
		return
	}

	var usr clerk.User
	if err := json.Unmarshal(event.Data, &usr); err != nil || usr.ID == "" {
		http.Error(w, config.ErrBadRequest, http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "user.created", "user.updated":
		u := userFromClerk(&usr)
		if err := c.users.Upsert(r.Context(), u); err != nil {
			l.Error().Err(err).Str("user_id", usr.ID).Msg("Error saving user")
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		l.Info().Str("user_id", usr.ID).Str("event", event.Type).Msg("User synced")
		w.WriteHeader(http.StatusNoContent)

	case "user.deleted":
		if err := c.users.Delete(r.Context(), model.UserID(usr.ID)); err != nil && !errors.Is(err, repository.ErrNotFound) {
			l.Error().Err(err).Str("user_id", usr.ID).Msg("Error deleting user")
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		l.Info().Str("user_id", usr.ID).Msg("User deleted")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, config.ErrUnsupportedWebhook, http.StatusBadRequest)
	}
}
