package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
	"github.com/google/uuid"
)

type DBCommentRepository struct {
	db    db.DB
	clock Clock
}

func NewDBCommentRepository(d db.DB, clock Clock) *DBCommentRepository {
	return &DBCommentRepository{db: d, clock: clock}
}

const commentColumns = `c.id, c.post_id, c.parent_id, c.body, c.created_at, c.updated_at,
	u.id, u.username, u.name, u.image`

func scanComment(row scanner) (*model.Comment, error) {
	var (
		c      model.Comment
		author model.User
		parent sql.NullString
	)
	err := row.Scan(&c.ID, &c.PostID, &parent, &c.Body, &c.CreatedAt, &c.UpdatedAt,
		&author.ID, &author.Username, &author.Name, &author.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning comment: %w", err)
	}
	if parent.Valid {
		pid := model.CommentID(parent.String)
		c.ParentID = &pid
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.Author = &author
	return &c, nil
}

// Create stores c authored by author. A parent must belong to the same post.
func (r *DBCommentRepository) Create(ctx context.Context, author model.UserID, c *model.Comment) error {
	if c.ParentID != nil {
		parent, err := r.Get(ctx, *c.ParentID)
		if err != nil {
			return fmt.Errorf("parent comment: %w", err)
		}
		if parent.PostID != c.PostID {
			return fmt.Errorf("parent comment belongs to another post: %w", ErrNotFound)
		}
	}

	now := r.clock.now()
	c.ID = model.CommentID(uuid.New().String())
	c.CreatedAt = now
	c.UpdatedAt = now

	var parent any
	if c.ParentID != nil {
		parent = *c.ParentID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, user_id, parent_id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PostID, author, parent, c.Body, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating comment: %w", err)
	}

	created, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *created
	return nil
}

func (r *DBCommentRepository) Get(ctx context.Context, id model.CommentID) (*model.Comment, error) {
	return scanComment(r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments c JOIN users u ON u.id = c.user_id WHERE c.id = ?`, id))
}

// ListForPost returns a post's comments oldest first.
func (r *DBCommentRepository) ListForPost(ctx context.Context, postID model.PostID) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ? ORDER BY c.created_at ASC, c.id ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("error querying comments: %w", err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func (r *DBCommentRepository) Count(ctx context.Context, postID model.PostID) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE post_id = ?`, postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting comments: %w", err)
	}
	return n, nil
}

func (r *DBCommentRepository) UpdateBody(ctx context.Context, id model.CommentID, body string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE comments SET body = ?, updated_at = ? WHERE id = ?`, body, r.clock.now(), id)
	if err != nil {
		return fmt.Errorf("error updating comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DBCommentRepository) Delete(ctx context.Context, id model.CommentID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Owner returns the author of a comment.
func (r *DBCommentRepository) Owner(ctx context.Context, id model.CommentID) (model.UserID, error) {
	var owner model.UserID
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM comments WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error loading comment: %w", err)
	}
	return owner, nil
}
