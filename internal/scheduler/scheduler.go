// Package scheduler watches for scheduled posts going live.
package scheduler

import (
	"context"
	"time"

	"github.com/codu-code/codu/internal/metrics"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/sse"
	"github.com/rs/zerolog"
)

var schedLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	schedLogger = l
}

const housekeepingInterval = time.Hour

type PostSource interface {
	PublishedBetween(ctx context.Context, after, upTo time.Time) ([]model.Post, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, contentHash string) error
}

type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// PublishedEvent is pushed to the owner when a scheduled post goes live.
type PublishedEvent struct {
	ID    model.PostID `json:"id"`
	Title string       `json:"title"`
	Slug  string       `json:"slug"`
}

type Scheduler struct {
	posts    PostSource
	renderer CacheInvalidator
	clients  *sse.SSEClients
	sessions SessionPurger
	metrics  *metrics.Metrics

	interval time.Duration
	now      func() time.Time

	lastTick        time.Time
	lastHousekeep   time.Time
	challengePurger func() int
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithSessionPurger(p SessionPurger) Option {
	return func(s *Scheduler) { s.sessions = p }
}

// WithChallengePurger drops expired login challenges during housekeeping.
func WithChallengePurger(fn func() int) Option {
	return func(s *Scheduler) { s.challengePurger = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New returns a scheduler that only reports posts going live after it was
// created.
func New(posts PostSource, renderer CacheInvalidator, clients *sse.SSEClients, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		posts:    posts,
		renderer: renderer,
		clients:  clients,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastTick = s.now().UTC()
	s.lastHousekeep = s.lastTick
	return s
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	schedLogger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			schedLogger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				schedLogger.Error().Err(err).Msg("Error checking scheduled posts")
			}
		}
	}
}

// Tick announces every post whose publication time fell in (lastTick, now]
// and returns how many there were. On error the window is retried next tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now().UTC()

	posts, err := s.posts.PublishedBetween(ctx, s.lastTick, now)
	if err != nil {
		return 0, err
	}

	if len(posts) == 0 {
		schedLogger.Debug().Msg("No scheduled posts went live")
	}

	for _, post := range posts {
		if err := s.renderer.Invalidate(ctx, post.BodyHash); err != nil {
			schedLogger.Warn().Err(err).Str("post_id", string(post.ID)).Msg("Failed to invalidate rendered post")
		}

		schedLogger.Info().
			Str("post_id", string(post.ID)).
			Str("title", post.Title).
			Msg("Scheduled post published")

		if s.clients != nil {
			s.clients.Send(post.Owner, sse.Event{
				Name: sse.EventPublished,
				Data: PublishedEvent{ID: post.ID, Title: post.Title, Slug: post.Slug},
			})
		}
	}
	s.metrics.RecordPublished(ctx, len(posts))
	s.lastTick = now

	if now.Sub(s.lastHousekeep) >= housekeepingInterval {
		s.housekeep(ctx)
		s.lastHousekeep = now
	}
	return len(posts), nil
}

func (s *Scheduler) housekeep(ctx context.Context) {
	if s.sessions != nil {
		n, err := s.sessions.PurgeExpiredSessions(ctx)
		if err != nil {
			schedLogger.Error().Err(err).Msg("Failed to purge sessions")
		} else if n > 0 {
			schedLogger.Info().Int64("count", n).Msg("Purged expired sessions")
		}
	}
	if s.challengePurger != nil {
		if n := s.challengePurger(); n > 0 {
			schedLogger.Debug().Int("count", n).Msg("Purged expired challenges")
		}
	}
}
