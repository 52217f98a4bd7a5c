package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/util"
	"github.com/codu-code/codu/internal/util/compression"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortTop    SortOrder = "top"
)

func (s SortOrder) Valid() bool {
	return s == SortNewest || s == SortOldest || s == SortTop
}

// FeedQuery selects a page of published posts.
type FeedQuery struct {
	Offset int
	Limit  int
	Sort   SortOrder
	Tag    string
}

// MakeSlug builds the public slug of a post from its title and id.
func MakeSlug(title string, id model.PostID) string {
	s := slug.Make(title)
	if s == "" {
		s = "untitled"
	}
	return s + "-" + string(id)
}

type DBPostRepository struct { // implements PostRepository
	db         db.DB
	compressor compression.Compressor
	clock      Clock
}

var _ PostRepository = (*DBPostRepository)(nil)

func NewDBPostRepository(d db.DB, clock Clock) *DBPostRepository {
	return &DBPostRepository{
		db:         d,
		compressor: compression.ZstdCompressor{},
		clock:      clock,
	}
}

const postColumns = `p.id, p.title, p.slug, p.body, p.body_hash, p.excerpt, p.canonical_url,
	p.cover_image, p.show_comments, p.published, p.created_at, p.updated_at, p.user_id`

func (r *DBPostRepository) scanPost(row scanner) (*model.Post, error) {
	var (
		post       model.Post
		compressed []byte
		published  sql.NullTime
	)
	err := row.Scan(&post.ID, &post.Title, &post.Slug, &compressed, &post.BodyHash, &post.Excerpt,
		&post.CanonicalURL, &post.CoverImage, &post.ShowComments, &published,
		&post.CreatedAt, &post.UpdatedAt, &post.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning post: %w", err)
	}

	if published.Valid {
		t := published.Time.UTC()
		post.Published = &t
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()

	post.Body, err = r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing content: %w", err)
	}
	return &post, nil
}

func (r *DBPostRepository) compress(post *model.Post) ([]byte, error) {
	compressed, err := r.compressor.Compress(post.Body)
	if err != nil {
		return nil, fmt.Errorf("error compressing content: %w", err)
	}
	post.BodyHash = util.ContentHash(post.Body)
	return compressed, nil
}

// Create stores a new draft owned by owner.
func (r *DBPostRepository) Create(ctx context.Context, owner model.UserID, title, body string) (*model.Post, error) {
	now := r.clock.now()
	id := model.PostID(uuid.New().String())
	post := &model.Post{
		ID:           id,
		Title:        title,
		Slug:         MakeSlug(title, id),
		Body:         []byte(body),
		Tags:         []string{},
		ShowComments: true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Owner:        owner,
	}

	compressed, err := r.compress(post)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, slug, body, body_hash, excerpt, canonical_url, cover_image, show_comments, published, created_at, updated_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.Title, post.Slug, compressed, post.BodyHash, post.Excerpt, post.CanonicalURL,
		post.CoverImage, post.ShowComments, nil, post.CreatedAt, post.UpdatedAt, post.Owner,
	)
	if err != nil {
		return nil, fmt.Errorf("error saving post: %w", err)
	}

	repoLogger.Debug().Str("post_id", string(post.ID)).Str("owner", string(owner)).Msg("Post created")
	return post, nil
}

// Import stores a complete post as given, keeping its id and timestamps.
func (r *DBPostRepository) Import(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = model.PostID(uuid.New().String())
	}
	if post.Slug == "" {
		post.Slug = MakeSlug(post.Title, post.ID)
	}
	now := r.clock.now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}

	compressed, err := r.compress(post)
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(q db.Querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO posts (id, title, slug, body, body_hash, excerpt, canonical_url, cover_image, show_comments, published, created_at, updated_at, user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			post.ID, post.Title, post.Slug, compressed, post.BodyHash, post.Excerpt, post.CanonicalURL,
			post.CoverImage, post.ShowComments, nullTime(post.Published), post.CreatedAt.UTC(), post.UpdatedAt.UTC(), post.Owner,
		)
		if err != nil {
			return fmt.Errorf("error importing post: %w", err)
		}
		return setTags(ctx, q, post.ID, post.Tags)
	})
}

func (r *DBPostRepository) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	post, err := r.scanPost(r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id))
	if err != nil {
		return nil, err
	}
	if post.Tags, err = r.tags(ctx, post.ID); err != nil {
		return nil, err
	}
	return post, nil
}

func (r *DBPostRepository) GetBySlug(ctx context.Context, s string) (*model.Post, error) {
	post, err := r.scanPost(r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.slug = ?`, s))
	if err != nil {
		return nil, err
	}
	if post.Tags, err = r.tags(ctx, post.ID); err != nil {
		return nil, err
	}
	return post, nil
}

// Update writes every mutable field of post. While the post is a draft its
// slug follows the title; once published it is frozen.
func (r *DBPostRepository) Update(ctx context.Context, post *model.Post) error {
	if post.Published == nil {
		post.Slug = MakeSlug(post.Title, post.ID)
	}
	post.UpdatedAt = r.clock.now()
	if post.Tags == nil {
		post.Tags = []string{}
	}

	compressed, err := r.compress(post)
	if err != nil {
		return err
	}

	err = r.db.WithTx(ctx, func(q db.Querier) error {
		res, err := q.ExecContext(ctx,
			`UPDATE posts SET title = ?, slug = ?, body = ?, body_hash = ?, excerpt = ?, canonical_url = ?,
			cover_image = ?, show_comments = ?, published = ?, updated_at = ? WHERE id = ?`,
			post.Title, post.Slug, compressed, post.BodyHash, post.Excerpt, post.CanonicalURL,
			post.CoverImage, post.ShowComments, nullTime(post.Published), post.UpdatedAt, post.ID,
		)
		if err != nil {
			return fmt.Errorf("error saving post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return setTags(ctx, q, post.ID, post.Tags)
	})
	if err != nil {
		return err
	}

	repoLogger.Debug().Str("post_id", string(post.ID)).Str("slug", post.Slug).Msg("Post saved")
	return nil
}

func (r *DBPostRepository) Delete(ctx context.Context, id model.PostID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	repoLogger.Debug().Str("post_id", string(id)).Msg("Post deleted")
	return nil
}

func setTags(ctx context.Context, q db.Querier, id model.PostID, tags []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = ?`, id); err != nil {
		return fmt.Errorf("error clearing tags: %w", err)
	}
	for i, tag := range tags {
		if _, err := q.ExecContext(ctx, `INSERT INTO tags (title) VALUES (?) ON CONFLICT (title) DO NOTHING`, tag); err != nil {
			return fmt.Errorf("error saving tag %q: %w", tag, err)
		}
		var tagID int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM tags WHERE title = ?`, tag).Scan(&tagID); err != nil {
			return fmt.Errorf("error loading tag %q: %w", tag, err)
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO post_tags (post_id, tag_id, position) VALUES (?, ?, ?)`, id, tagID, i); err != nil {
			return fmt.Errorf("error linking tag %q: %w", tag, err)
		}
	}
	return nil
}

func (r *DBPostRepository) tags(ctx context.Context, id model.PostID) ([]string, error) {
	byPost, err := r.tagsFor(ctx, []model.PostID{id})
	if err != nil {
		return nil, err
	}
	if tags := byPost[id]; tags != nil {
		return tags, nil
	}
	return []string{}, nil
}

func (r *DBPostRepository) tagsFor(ctx context.Context, ids []model.PostID) (map[model.PostID][]string, error) {
	out := make(map[model.PostID][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT pt.post_id, t.title FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id IN (`+placeholders(len(ids))+`) ORDER BY pt.post_id, pt.position`, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id model.PostID
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("error scanning tag: %w", err)
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

const summaryColumns = `p.id, p.title, p.slug, p.excerpt, p.published, p.updated_at,
	u.id, u.username, u.name, u.image,
	(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS like_count`

func (r *DBPostRepository) querySummaries(ctx context.Context, query string, args ...any) ([]model.PostSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}

	now := r.clock.now()
	summaries := make([]model.PostSummary, 0)
	for rows.Next() {
		var (
			s         model.PostSummary
			author    model.User
			published sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Slug, &s.Excerpt, &published, &s.UpdatedAt,
			&author.ID, &author.Username, &author.Name, &author.Image, &s.Likes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		if published.Valid {
			t := published.Time.UTC()
			s.Published = &t
		}
		s.UpdatedAt = s.UpdatedAt.UTC()
		s.Status = model.StatusOf(s.Published, now)
		s.Author = &author
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	ids := make([]model.PostID, len(summaries))
	for i := range summaries {
		ids[i] = summaries[i].ID
	}
	tags, err := r.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].Tags = tags[summaries[i].ID]
		if summaries[i].Tags == nil {
			summaries[i].Tags = []string{}
		}
	}
	return summaries, nil
}

// ListByOwner returns owner's posts in one status: drafts by last edit,
// scheduled by soonest publication, published by most recent.
func (r *DBPostRepository) ListByOwner(ctx context.Context, owner model.UserID, status model.Status) ([]model.PostSummary, error) {
	now := r.clock.now()
	base := `SELECT ` + summaryColumns + ` FROM posts p JOIN users u ON u.id = p.user_id WHERE p.user_id = ? `

	switch status {
	case model.StatusDraft:
		return r.querySummaries(ctx, base+`AND p.published IS NULL ORDER BY p.updated_at DESC`, owner)
	case model.StatusScheduled:
		return r.querySummaries(ctx, base+`AND p.published > ? ORDER BY p.published ASC`, owner, now)
	case model.StatusPublished:
		return r.querySummaries(ctx, base+`AND p.published <= ? ORDER BY p.published DESC`, owner, now)
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
}

// Feed returns one page of published posts and the offset of the next page,
// nil when there is none.
func (r *DBPostRepository) Feed(ctx context.Context, q FeedQuery) ([]model.PostSummary, *int, error) {
	query := `SELECT ` + summaryColumns + ` FROM posts p JOIN users u ON u.id = p.user_id
		WHERE p.published <= ?
		AND NOT EXISTS (SELECT 1 FROM banned_users b WHERE b.user_id = p.user_id)`
	args := []any{r.clock.now()}

	if q.Tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id AND t.title = ?)`
		args = append(args, q.Tag)
	}

	switch q.Sort {
	case SortOldest:
		query += ` ORDER BY p.published ASC, p.id ASC`
	case SortTop:
		query += ` ORDER BY like_count DESC, p.published DESC, p.id DESC`
	default:
		query += ` ORDER BY p.published DESC, p.id DESC`
	}

	query += ` LIMIT ? OFFSET ?`
	args = append(args, q.Limit+1, q.Offset)

	posts, err := r.querySummaries(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	if len(posts) > q.Limit {
		next := q.Offset + q.Limit
		return posts[:q.Limit], &next, nil
	}
	return posts, nil, nil
}

// ByAuthor lists the published posts of one user, newest first.
func (r *DBPostRepository) ByAuthor(ctx context.Context, owner model.UserID) ([]model.PostSummary, error) {
	return r.querySummaries(ctx, `SELECT `+summaryColumns+` FROM posts p JOIN users u ON u.id = p.user_id
		WHERE p.user_id = ? AND p.published <= ? ORDER BY p.published DESC`, owner, r.clock.now())
}

// PublishedBetween returns posts whose publication time falls in (after, upTo].
func (r *DBPostRepository) PublishedBetween(ctx context.Context, after, upTo time.Time) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.title, p.slug, p.body_hash, p.published, p.user_id FROM posts p
		WHERE p.published > ? AND p.published <= ? ORDER BY p.published ASC`,
		after.UTC().Truncate(time.Microsecond), upTo.UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("error querying published posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		var p model.Post
		var published time.Time
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.BodyHash, &published, &p.Owner); err != nil {
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		published = published.UTC()
		p.Published = &published
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

type TagCount struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// PopularTags counts tags across published posts.
func (r *DBPostRepository) PopularTags(ctx context.Context, limit int) ([]TagCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.title, COUNT(*) AS n FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id
		JOIN posts p ON p.id = pt.post_id
		WHERE p.published <= ?
		GROUP BY t.title ORDER BY n DESC, t.title ASC LIMIT ?`, r.clock.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying tags: %w", err)
	}
	defer rows.Close()

	out := make([]TagCount, 0)
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Title, &tc.Count); err != nil {
			return nil, fmt.Errorf("error scanning tag: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
