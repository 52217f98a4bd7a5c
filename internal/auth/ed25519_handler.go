package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/codu-code/codu/internal/config"
	"github.com/rs/zerolog"
)

type challengeRequest struct {
	Username string `json:"username"`
}

type challengeResponse struct {
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type verifyRequest struct {
	Username  string `json:"username"`
	Signature string `json:"signature"`
}

type verifyResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Ed25519ChallengeHandler issues a challenge for the posted username.
func Ed25519ChallengeHandler(provider *Ed25519AuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := zerolog.Ctx(r.Context())
		if r.Method != http.MethodPost {
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}

		var req challengeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			http.Error(w, config.ErrBadRequest, http.StatusBadRequest)
			return
		}

		value, expiresAt, err := provider.NewChallenge(req.Username)
		if err != nil {
			l.Error().Err(err).Msg("Failed to create challenge")
			http.Error(w, config.ErrRefreshChallengeFmt, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, challengeResponse{
			Challenge: base64.StdEncoding.EncodeToString(value),
			ExpiresAt: expiresAt.UTC(),
		})
	}
}

// Ed25519VerifyHandler checks the signed challenge and sets the session cookie.
func Ed25519VerifyHandler(provider *Ed25519AuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := zerolog.Ctx(r.Context())
		if r.Method != http.MethodPost {
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Signature == "" {
			http.Error(w, config.ErrBadRequest, http.StatusBadRequest)
			return
		}

		signature, err := decodeSignature(req.Signature)
		if err != nil {
			http.Error(w, config.ErrInvalidSignatureFormat, http.StatusUnauthorized)
			return
		}

		token, session, err := provider.Verify(r.Context(), req.Username, signature)
		switch {
		case errors.Is(err, ErrChallengeMissing):
			http.Error(w, config.ErrChallengeExpired, http.StatusUnauthorized)
			return
		case err != nil:
			l.Warn().Err(err).Str("username", req.Username).Msg("Signature verification failed")
			http.Error(w, config.ErrInvalidSignature, http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     provider.cookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
			Expires:  session.ExpiresAt,
		})

		writeJSON(w, http.StatusOK, verifyResponse{
			Token:     token,
			UserID:    string(session.UserID),
			ExpiresAt: session.ExpiresAt.UTC(),
		})
	}
}

// LogoutHandler ends the current session and clears the cookie.
func LogoutHandler(provider *Ed25519AuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}
		if err := provider.Logout(r.Context()); err != nil {
			if errors.Is(err, ErrNoUser) {
				http.Error(w, config.ErrUnauthorized, http.StatusUnauthorized)
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to end session")
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     provider.cookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
