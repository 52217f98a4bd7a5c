package config

const (
	// Auth errors
	ErrInvalidSignatureFormat = "Invalid signature format"
	ErrInvalidSignature       = "Invalid signature"
	ErrInternalServerError    = "Internal server error"

	// Challenge errors
	ErrRefreshChallengeFmt = "Failed to refresh challenge"
)

const (
	ErrUnauthorized       = "Unauthorized"
	ErrBadRequest         = "Bad request"
	ErrInvalidWebhook     = "Invalid webhook signature"
	ErrChallengeExpired   = "Challenge expired or missing"
	ErrUnsupportedWebhook = "Invalid event type"
)
