package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"
	HAuthorize    = "Authorization"
	HRequestID    = "X-Request-Id"

	CTypeJSON = "application/json"
	CTypeSVG  = "image/svg+xml"
	CTypeSSE  = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieSession = "codu_session"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	AuthEd25519 = "ed25519"
	AuthClerk   = "clerk"
)
