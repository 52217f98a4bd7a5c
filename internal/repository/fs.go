package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/util"
)

// ReadMarkdownDir loads every .md file in dir as a post owned by owner.
// Front matter supplies title, tags, excerpt, canonical URL and date; files
// without it take their name as title and their mtime as date. Posts are
// returned oldest first and marked published unless asDrafts is set.
func ReadMarkdownDir(dir string, owner model.UserID, asDrafts bool) ([]model.Post, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	posts := make([]model.Post, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		fileInfo, err := entry.Info()
		if err != nil {
			return nil, err
		}

		post := model.Post{
			Title:        name,
			Body:         content,
			Tags:         []string{},
			ShowComments: true,
			CreatedAt:    fileInfo.ModTime().UTC().Truncate(time.Microsecond),
			Owner:        owner,
		}

		info, err := util.GetFrontMatter(content)
		switch {
		case errors.Is(err, util.ErrNoFrontMatter):
		case err != nil:
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		default:
			if info.Title != "" {
				post.Title = info.Title
			}
			if !info.Date.IsZero() {
				post.CreatedAt = info.Date.UTC().Truncate(time.Microsecond)
			}
			post.Tags = info.Tags
			post.Excerpt = info.Excerpt
			post.CanonicalURL = info.CanonicalURL
			post.Body = util.StripFrontMatter(content)
		}

		if !asDrafts {
			published := post.CreatedAt
			post.Published = &published
		}

		repoLogger.Debug().Str("file", entry.Name()).Str("title", post.Title).Msg("Read markdown post")
		posts = append(posts, post)
	}

	slices.SortStableFunc(posts, func(a, b model.Post) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return posts, nil
}
