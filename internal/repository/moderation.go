package repository

import (
	"context"
	"fmt"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
)

type DBModerationRepository struct {
	db    db.DB
	clock Clock
}

func NewDBModerationRepository(d db.DB, clock Clock) *DBModerationRepository {
	return &DBModerationRepository{db: d, clock: clock}
}

// Ban records the ban and signs the user out everywhere.
func (r *DBModerationRepository) Ban(ctx context.Context, userID, by model.UserID, note string) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		var exists int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("error loading user: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO banned_users (user_id, banned_by, note, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET banned_by = excluded.banned_by, note = excluded.note`,
			userID, by, note, r.clock.now())
		if err != nil {
			return fmt.Errorf("error banning user: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("error dropping sessions: %w", err)
		}
		repoLogger.Info().Str("user_id", string(userID)).Str("banned_by", string(by)).Msg("User banned")
		return nil
	})
}

func (r *DBModerationRepository) Unban(ctx context.Context, userID model.UserID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM banned_users WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("error unbanning user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	repoLogger.Info().Str("user_id", string(userID)).Msg("User unbanned")
	return nil
}

func (r *DBModerationRepository) IsBanned(ctx context.Context, userID model.UserID) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM banned_users WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("error checking ban: %w", err)
	}
	return n > 0, nil
}

func (r *DBModerationRepository) Banned(ctx context.Context) ([]model.BannedUser, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, banned_by, note, created_at FROM banned_users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying bans: %w", err)
	}
	defer rows.Close()

	out := make([]model.BannedUser, 0)
	for rows.Next() {
		var b model.BannedUser
		if err := rows.Scan(&b.UserID, &b.BannedBy, &b.Note, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning ban: %w", err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *DBModerationRepository) Report(ctx context.Context, rep *model.Report) error {
	rep.CreatedAt = r.clock.now()

	var post, comment any
	if rep.PostID != nil {
		post = *rep.PostID
	}
	if rep.CommentID != nil {
		comment = *rep.CommentID
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO reports (reporter_id, post_id, comment_id, reason, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		rep.ReporterID, post, comment, rep.Reason, rep.CreatedAt).Scan(&rep.ID)
	if err != nil {
		return fmt.Errorf("error saving report: %w", err)
	}
	return nil
}
