package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codu-code/codu/internal/cache"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/model"
	"github.com/rs/zerolog"
)

var (
	ErrNoPublicKey      = errors.New("user has no public key")
	ErrChallengeMissing = errors.New("challenge expired or missing")
	ErrBadSignature     = errors.New("signature verification failed")
)

type challenge struct {
	value     []byte
	expiresAt time.Time
}

// Ed25519AuthProvider signs users in by verifying an ed25519 signature over a
// one-time challenge against the public key stored on their account, then
// issues a database session.
type Ed25519AuthProvider struct {
	users      UserStore
	challenges *cache.Cache[string, challenge]

	headerName   string
	cookieName   string
	sessionTTL   time.Duration
	challengeTTL time.Duration

	now func() time.Time
}

func NewEd25519AuthProvider(users UserStore, sessionTTL, challengeTTL time.Duration) *Ed25519AuthProvider {
	return &Ed25519AuthProvider{
		users:        users,
		challenges:   cache.NewCache[string, challenge](),
		headerName:   config.HAuthorize,
		cookieName:   config.CookieSession,
		sessionTTL:   sessionTTL,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

// ParsePublicKeyPEM decodes a PKIX PEM block holding an ed25519 key.
func ParsePublicKeyPEM(publicKeyPEM string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("key is not an Ed25519 public key")
	}
	return publicKey, nil
}

// EncodePublicKeyPEM is the inverse of ParsePublicKeyPEM.
func EncodePublicKeyPEM(key ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// NewChallenge issues a fresh challenge for username, replacing any pending one.
// Unknown usernames get a challenge too so the endpoint does not reveal which
// accounts exist.
func (p *Ed25519AuthProvider) NewChallenge(username string) ([]byte, time.Time, error) {
	value := make([]byte, 32)
	if _, err := rand.Read(value); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to generate challenge: %w", err)
	}
	expiresAt := p.now().Add(p.challengeTTL)
	p.challenges.Set(username, challenge{value: value, expiresAt: expiresAt})
	return value, expiresAt, nil
}

// Verify checks signature against the pending challenge for username and,
// on success, opens a session. A challenge can be used once.
func (p *Ed25519AuthProvider) Verify(ctx context.Context, username string, signature []byte) (string, *model.Session, error) {
	c, ok := p.challenges.Get(username)
	if !ok || !p.now().Before(c.expiresAt) {
		p.challenges.Delete(username)
		return "", nil, ErrChallengeMissing
	}
	p.challenges.Delete(username)

	u, err := p.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if u.PublicKey == "" {
		return "", nil, ErrNoPublicKey
	}

	publicKey, err := ParsePublicKeyPEM(u.PublicKey)
	if err != nil {
		return "", nil, err
	}

	if !ed25519.Verify(publicKey, c.value, signature) {
		return "", nil, ErrBadSignature
	}

	token, session, err := p.users.CreateSession(ctx, u.ID, p.sessionTTL)
	if err != nil {
		return "", nil, err
	}
	authLogger.Info().Str("user_id", string(u.ID)).Msg("User signed in")
	return token, session, nil
}

// PurgeChallenges drops expired challenges.
func (p *Ed25519AuthProvider) PurgeChallenges() int {
	now := p.now()
	return p.challenges.DeleteFunc(func(_ string, c challenge) bool {
		return !now.Before(c.expiresAt)
	})
}

func (p *Ed25519AuthProvider) tokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get(p.headerName)); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(p.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware resolves a session token from the bearer header or the session
// cookie.
func (p *Ed25519AuthProvider) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := p.tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := p.users.GetSession(r.Context(), token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Ignoring invalid session")
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithUserID(r.Context(), session.UserID)
			ctx = contextWithSessionToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logout ends the session the request was authenticated with.
func (p *Ed25519AuthProvider) Logout(ctx context.Context) error {
	token := sessionTokenFromContext(ctx)
	if token == "" {
		return ErrNoUser
	}
	return p.users.DeleteSession(ctx, token)
}

// HandleWebhookUser is a no-op for this provider.
func (p *Ed25519AuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if sig, err := base64.StdEncoding.DecodeString(s); err == nil {
		return sig, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
