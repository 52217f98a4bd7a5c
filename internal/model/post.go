// Package model defines core data structures and types for the platform.
package model

import (
	"time"
)

type PostID string

// Status is derived from a post's published timestamp, never stored.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusPublished Status = "PUBLISHED"
)

// StatusOf maps a nullable publish time to a post status relative to now.
func StatusOf(published *time.Time, now time.Time) Status {
	switch {
	case published == nil:
		return StatusDraft
	case published.After(now):
		return StatusScheduled
	default:
		return StatusPublished
	}
}

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusScheduled || s == StatusPublished
}

type Post struct {
	ID PostID `json:"id"`

	Title string `json:"title"`
	Slug  string `json:"slug"`

	Body []byte `json:"-"`
	// BodyHash is the sha256 of the markdown body, used for render cache keys.
	BodyHash string `json:"-"`

	Excerpt      string   `json:"excerpt"`
	Tags         []string `json:"tags"`
	CanonicalURL string   `json:"canonicalUrl,omitempty"`
	CoverImage   string   `json:"coverImage,omitempty"`
	ShowComments bool     `json:"showComments"`

	// Published is nil for drafts.
	Published *time.Time `json:"published"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Owner UserID `json:"userId"`
}

func (p *Post) Status(now time.Time) Status {
	return StatusOf(p.Published, now)
}

// ReadTimeMins estimates reading time at 225 words per minute.
func ReadTimeMins(wordCount int) int {
	mins := (wordCount + 224) / 225
	if mins < 1 {
		return 1
	}
	return mins
}

// PostView is the public projection of a post served to readers and editors.
type PostView struct {
	*Post
	Body         string `json:"body"`
	HTML         string `json:"html,omitempty"`
	Status       Status `json:"status"`
	ReadTimeMins int    `json:"readTimeMins"`
	Author       *User  `json:"author,omitempty"`
	Likes        int    `json:"likes"`
	Bookmarks    int    `json:"bookmarks"`
}

// PostSummary is the listing projection used by feeds and "my posts" tabs.
type PostSummary struct {
	ID        PostID     `json:"id"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	Excerpt   string     `json:"excerpt"`
	Tags      []string   `json:"tags"`
	Published *time.Time `json:"published"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Status    Status     `json:"status"`
	Likes     int        `json:"likes"`
	Author    *User      `json:"author,omitempty"`
}

func (p *Post) Summary(now time.Time) PostSummary {
	return PostSummary{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Excerpt:   p.Excerpt,
		Tags:      p.Tags,
		Published: p.Published,
		UpdatedAt: p.UpdatedAt,
		Status:    p.Status(now),
	}
}
