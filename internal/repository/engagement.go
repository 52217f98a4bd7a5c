package repository

import (
	"context"
	"fmt"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
)

// DBEngagementRepository stores likes and bookmarks.
type DBEngagementRepository struct {
	db    db.DB
	clock Clock
	posts *DBPostRepository
}

func NewDBEngagementRepository(d db.DB, clock Clock) *DBEngagementRepository {
	return &DBEngagementRepository{db: d, clock: clock, posts: NewDBPostRepository(d, clock)}
}

func (r *DBEngagementRepository) set(ctx context.Context, table string, userID model.UserID, postID model.PostID, on bool) error {
	var err error
	if on {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO `+table+` (user_id, post_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, post_id) DO NOTHING`,
			userID, postID, r.clock.now())
	} else {
		_, err = r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ? AND post_id = ?`, userID, postID)
	}
	if err != nil {
		return fmt.Errorf("error updating %s: %w", table, err)
	}
	return nil
}

// SetLike is idempotent in both directions.
func (r *DBEngagementRepository) SetLike(ctx context.Context, userID model.UserID, postID model.PostID, on bool) error {
	return r.set(ctx, "likes", userID, postID, on)
}

func (r *DBEngagementRepository) SetBookmark(ctx context.Context, userID model.UserID, postID model.PostID, on bool) error {
	return r.set(ctx, "bookmarks", userID, postID, on)
}

func (r *DBEngagementRepository) Counts(ctx context.Context, postID model.PostID) (likes, bookmarks int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM likes WHERE post_id = ?), (SELECT COUNT(*) FROM bookmarks WHERE post_id = ?)`,
		postID, postID).Scan(&likes, &bookmarks)
	if err != nil {
		return 0, 0, fmt.Errorf("error counting engagement: %w", err)
	}
	return likes, bookmarks, nil
}

// Flags reports whether userID liked and bookmarked postID.
func (r *DBEngagementRepository) Flags(ctx context.Context, userID model.UserID, postID model.PostID) (liked, bookmarked bool, err error) {
	var l, b int
	err = r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM likes WHERE user_id = ? AND post_id = ?),
		(SELECT COUNT(*) FROM bookmarks WHERE user_id = ? AND post_id = ?)`,
		userID, postID, userID, postID).Scan(&l, &b)
	if err != nil {
		return false, false, fmt.Errorf("error loading engagement: %w", err)
	}
	return l > 0, b > 0, nil
}

// Bookmarks lists the published posts userID bookmarked, latest bookmark first.
func (r *DBEngagementRepository) Bookmarks(ctx context.Context, userID model.UserID) ([]model.PostSummary, error) {
	return r.posts.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM bookmarks b
		JOIN posts p ON p.id = b.post_id
		JOIN users u ON u.id = p.user_id
		WHERE b.user_id = ? AND p.published <= ?
		ORDER BY b.created_at DESC`, userID, r.clock.now())
}
