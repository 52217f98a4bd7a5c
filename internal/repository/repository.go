// Package repository persists posts, users and their interactions.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
	"github.com/rs/zerolog"
)

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type PostRepository interface {
	Create(ctx context.Context, owner model.UserID, title, body string) (*model.Post, error)
	Get(ctx context.Context, id model.PostID) (*model.Post, error)
	GetBySlug(ctx context.Context, slug string) (*model.Post, error)
	Update(ctx context.Context, post *model.Post) error
	Delete(ctx context.Context, id model.PostID) error

	ListByOwner(ctx context.Context, owner model.UserID, status model.Status) ([]model.PostSummary, error)
	Feed(ctx context.Context, q FeedQuery) ([]model.PostSummary, *int, error)
	PublishedBetween(ctx context.Context, after, upTo time.Time) ([]model.Post, error)
}

// Clock returns the current time. Stored times are UTC with microsecond
// precision so sqlite and postgres round trip them identically.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (c Clock) now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c().UTC().Truncate(time.Microsecond)
}

// Repositories groups every repository over one database.
type Repositories struct {
	Posts         *DBPostRepository
	Users         *DBUserRepository
	Comments      *DBCommentRepository
	Notifications *DBNotificationRepository
	Engagement    *DBEngagementRepository
	Moderation    *DBModerationRepository
}

func New(d db.DB, clock Clock) *Repositories {
	return &Repositories{
		Posts:         NewDBPostRepository(d, clock),
		Users:         NewDBUserRepository(d, clock),
		Comments:      NewDBCommentRepository(d, clock),
		Notifications: NewDBNotificationRepository(d, clock),
		Engagement:    NewDBEngagementRepository(d, clock),
		Moderation:    NewDBModerationRepository(d, clock),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Truncate(time.Microsecond)
}
