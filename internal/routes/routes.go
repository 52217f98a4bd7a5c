// Package routes defines HTTP route constants for the application.
package routes

// API Routes
const (
	RobotsPath = "/robots.txt"
	HealthPath = "/healthz"
	ReadyPath  = "/readyz"
	Metrics    = "/metrics"

	// RPC procedures are mounted below this prefix, e.g. /api/trpc/post.create
	RPCPrefix = "/api/trpc"
	RPCPath   = RPCPrefix + "/{procedure}"

	SyntaxTheme = "/syntax-theme/{theme}"

	OGImage            = "/api/og"
	NotificationStream = "/api/notifications/stream"

	// Auth routes
	AuthChallenge = "/auth/challenge"
	AuthVerify    = "/auth/verify"
	AuthLogout    = "/auth/logout"
	ClerkWebhook  = "/webhook/user"
)

// Client-side destinations returned after publishing.
const (
	ArticlePrefix    = "/articles/"
	MyPostsScheduled = "/my-posts?tab=scheduled"
	MyPostsDrafts    = "/my-posts?tab=drafts"
	MyPostsPublished = "/my-posts?tab=published"
)

func Article(slug string) string {
	return ArticlePrefix + slug
}
