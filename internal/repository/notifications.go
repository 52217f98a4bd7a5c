package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
)

type DBNotificationRepository struct {
	db    db.DB
	clock Clock
}

func NewDBNotificationRepository(d db.DB, clock Clock) *DBNotificationRepository {
	return &DBNotificationRepository{db: d, clock: clock}
}

// Create stores n and fills in its id and creation time.
func (r *DBNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	n.CreatedAt = r.clock.now()

	var notifier, post, comment any
	if n.Notifier != nil {
		notifier = n.Notifier.ID
	}
	if n.PostID != "" {
		post = n.PostID
	}
	if n.CommentID != "" {
		comment = n.CommentID
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (type, user_id, notifier_id, post_id, comment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		int(n.Type), n.UserID, notifier, post, comment, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	repoLogger.Debug().Int64("notification_id", n.ID).Str("user_id", string(n.UserID)).Stringer("type", n.Type).Msg("Notification created")
	return nil
}

// List returns up to limit notifications for userID, newest first, starting
// at cursor (inclusive) when given. The returned cursor is the id of the
// first notification on the next page, nil at the end.
func (r *DBNotificationRepository) List(ctx context.Context, userID model.UserID, cursor *int64, limit int) ([]model.Notification, *int64, error) {
	query := `SELECT n.id, n.type, n.user_id, n.post_id, n.comment_id, n.created_at, n.read_at,
		u.id, u.username, u.name, u.image, p.title, p.slug
		FROM notifications n
		LEFT JOIN users u ON u.id = n.notifier_id
		LEFT JOIN posts p ON p.id = n.post_id
		WHERE n.user_id = ?`
	args := []any{userID}
	if cursor != nil {
		query += ` AND n.id <= ?`
		args = append(args, *cursor)
	}
	query += ` ORDER BY n.id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying notifications: %w", err)
	}
	defer rows.Close()

	items := make([]model.Notification, 0, limit+1)
	for rows.Next() {
		var (
			n                                        model.Notification
			typ                                      int
			postID, commentID                        sql.NullString
			readAt                                   sql.NullTime
			notifierID, username, name, image, title sql.NullString
			slug                                     sql.NullString
		)
		if err := rows.Scan(&n.ID, &typ, &n.UserID, &postID, &commentID, &n.CreatedAt, &readAt,
			&notifierID, &username, &name, &image, &title, &slug); err != nil {
			return nil, nil, fmt.Errorf("error scanning notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		n.PostID = model.PostID(postID.String)
		n.CommentID = model.CommentID(commentID.String)
		n.PostTitle = title.String
		n.PostSlug = slug.String
		n.CreatedAt = n.CreatedAt.UTC()
		if readAt.Valid {
			t := readAt.Time.UTC()
			n.ReadAt = &t
		}
		if notifierID.Valid {
			n.Notifier = &model.User{
				ID:       model.UserID(notifierID.String),
				Username: username.String,
				Name:     name.String,
				Image:    image.String,
			}
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if len(items) > limit {
		next := items[limit].ID
		return items[:limit], &next, nil
	}
	return items, nil, nil
}

func (r *DBNotificationRepository) UnreadCount(ctx context.Context, userID model.UserID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of userID's notifications read. Other users'
// notifications are reported as ErrNotFound.
func (r *DBNotificationRepository) MarkRead(ctx context.Context, userID model.UserID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`,
		r.clock.now(), id, userID)
	if err != nil {
		return fmt.Errorf("error marking notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var owner model.UserID
	if err := r.db.QueryRowContext(ctx, `SELECT user_id FROM notifications WHERE id = ?`, id).Scan(&owner); err != nil || owner != userID {
		return ErrNotFound
	}
	return nil
}

func (r *DBNotificationRepository) MarkAllRead(ctx context.Context, userID model.UserID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, r.clock.now(), userID)
	if err != nil {
		return 0, fmt.Errorf("error marking notifications read: %w", err)
	}
	return res.RowsAffected()
}
