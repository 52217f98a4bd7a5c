package auth

import (
	"github.com/codu-code/codu/internal/routes"
	"github.com/go-chi/chi/v5"
)

// RegisterEd25519AuthRoutes mounts the challenge, verify and logout endpoints.
func RegisterEd25519AuthRoutes(r chi.Router, provider *Ed25519AuthProvider) {
	r.Post(routes.AuthChallenge, Ed25519ChallengeHandler(provider))
	r.Post(routes.AuthVerify, Ed25519VerifyHandler(provider))
	r.Post(routes.AuthLogout, LogoutHandler(provider))
}
