package rpc

import (
	"errors"
	"time"

	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/storage"
	"github.com/codu-code/codu/internal/validation"
)

func (r *Router) registerPosts() {
	r.mutation("post.create", r.postCreate)
	r.mutation("post.update", r.postUpdate)
	r.mutation("post.publish", r.postPublish)
	r.mutation("post.delete", r.postDelete)
	r.query("post.editDraft", r.postEditDraft)
	r.query("post.myDrafts", r.myPosts(model.StatusDraft))
	r.query("post.myScheduled", r.myPosts(model.StatusScheduled))
	r.query("post.myPublished", r.myPosts(model.StatusPublished))
	r.query("post.bySlug", r.postBySlug)
	r.query("post.all", r.postAll)
	r.mutation("post.like", r.postEngage(false))
	r.mutation("post.bookmark", r.postEngage(true))
	r.query("post.myBookmarks", r.postMyBookmarks)
	r.query("post.sidebarData", r.postSidebarData)
	r.mutation("post.getUploadUrl", r.uploadURL(storage.KindCover, storage.KindBody))
	r.query("tag.popular", r.tagPopular)
}

type idInput struct {
	ID model.PostID `json:"id"`
}

type slugResult struct {
	ID     model.PostID `json:"id"`
	Slug   string       `json:"slug"`
	Status model.Status `json:"status"`
}

// ownedPost loads id and checks the caller owns it.
func (r *Router) ownedPost(c *Call, id model.PostID) (*model.Post, error) {
	if id == "" {
		return nil, errBadInput
	}
	post, err := r.Repos.Posts.Get(c.ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Post")
	}
	if err != nil {
		return nil, err
	}
	if post.Owner != c.userID {
		return nil, errForbidden
	}
	return post, nil
}

// applySave copies a save payload onto post. Tags, cover image and
// showComments are kept when absent; published is never touched.
func applySave(post *model.Post, in *validation.SavePostInput) {
	post.Title = in.Title
	post.Body = []byte(in.Body)
	post.Excerpt = in.Excerpt
	post.CanonicalURL = in.CanonicalURL
	if in.CoverImage != nil {
		post.CoverImage = *in.CoverImage
	}
	if in.Tags != nil {
		post.Tags = in.Tags
	}
	if in.ShowComments != nil {
		post.ShowComments = *in.ShowComments
	}
}

func (r *Router) postCreate(c *Call) (any, error) {
	u, err := r.activeUser(c)
	if err != nil {
		return nil, err
	}

	var in validation.SavePostInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if err := validation.SavePost(&in); err != nil {
		return nil, err
	}

	post, err := r.Repos.Posts.Create(c.ctx, u.ID, in.Title, in.Body)
	if err != nil {
		return nil, err
	}

	if in.Excerpt != "" || in.CanonicalURL != "" || in.CoverImage != nil || len(in.Tags) > 0 || in.ShowComments != nil {
		applySave(post, &in)
		if err := r.Repos.Posts.Update(c.ctx, post); err != nil {
			return nil, err
		}
	}

	return slugResult{ID: post.ID, Slug: post.Slug, Status: post.Status(r.now())}, nil
}

func (r *Router) postUpdate(c *Call) (any, error) {
	if _, err := r.activeUser(c); err != nil {
		return nil, err
	}

	var in validation.SavePostInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if err := validation.SavePost(&in); err != nil {
		return nil, err
	}

	post, err := r.ownedPost(c, in.ID)
	if err != nil {
		return nil, err
	}

	oldHash := post.BodyHash
	applySave(post, &in)
	if post.Published != nil && post.Excerpt == "" {
		post.Excerpt = render.Excerpt(post.Body)
	}
	if err := r.Repos.Posts.Update(c.ctx, post); err != nil {
		return nil, err
	}
	r.invalidate(c, oldHash, post.BodyHash)

	return r.editorView(post), nil
}

type publishInput struct {
	ID           model.PostID `json:"id"`
	Published    bool         `json:"published"`
	PublishTime  *time.Time   `json:"publishTime,omitempty"`
	Excerpt      *string      `json:"excerpt,omitempty"`
	Tags         []string     `json:"tags"`
	CanonicalURL *string      `json:"canonicalUrl,omitempty"`
}

type publishResult struct {
	slugResult
	Published *time.Time `json:"published"`
}

// postPublish publishes, schedules or unpublishes a post. Title and body come
// from the stored post; the optional fields override what is stored.
func (r *Router) postPublish(c *Call) (any, error) {
	if _, err := r.activeUser(c); err != nil {
		return nil, err
	}

	var in publishInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}

	post, err := r.ownedPost(c, in.ID)
	if err != nil {
		return nil, err
	}
	now := r.now()

	if !in.Published {
		post.Published = nil
		if err := r.Repos.Posts.Update(c.ctx, post); err != nil {
			return nil, err
		}
		rpcLogger.Info().Str("post_id", string(post.ID)).Msg("Post unpublished")
		return publishResult{slugResult: slugResult{ID: post.ID, Slug: post.Slug, Status: model.StatusDraft}}, nil
	}

	if d, bad := render.FirstCritical(render.Validate(post.Body)); bad {
		return nil, &Error{Code: CodeBadRequest, Message: "Content has errors", FieldErrors: map[string]string{"body": d.Error()}}
	}

	confirm := validation.ConfirmPostInput{
		ID:           post.ID,
		Title:        post.Title,
		Body:         string(post.Body),
		Excerpt:      post.Excerpt,
		Tags:         post.Tags,
		CanonicalURL: post.CanonicalURL,
		Published:    true,
		PublishTime:  in.PublishTime,
	}
	if in.Excerpt != nil {
		confirm.Excerpt = *in.Excerpt
	}
	if in.Tags != nil {
		confirm.Tags = in.Tags
	}
	if in.CanonicalURL != nil {
		confirm.CanonicalURL = *in.CanonicalURL
	}

	confirm, err = validation.ConfirmPost(confirm, now)
	if err != nil {
		return nil, err
	}

	post.Excerpt = confirm.Excerpt
	post.Tags = confirm.Tags
	post.CanonicalURL = confirm.CanonicalURL

	switch {
	case confirm.PublishTime != nil:
		at := confirm.PublishTime.UTC().Truncate(time.Microsecond)
		post.Published = &at
	case post.Status(now) == model.StatusPublished:
		// republishing keeps the original date
	default:
		post.Published = &now
	}

	if err := r.Repos.Posts.Update(c.ctx, post); err != nil {
		return nil, err
	}

	status := post.Status(now)
	rpcLogger.Info().Str("post_id", string(post.ID)).Str("status", string(status)).Msg("Post published")
	return publishResult{
		slugResult: slugResult{ID: post.ID, Slug: post.Slug, Status: status},
		Published:  post.Published,
	}, nil
}

func (r *Router) postDelete(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}

	var in idInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, errBadInput
	}

	post, err := r.Repos.Posts.Get(c.ctx, in.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Post")
	}
	if err != nil {
		return nil, err
	}
	if post.Owner != u.ID && !u.IsAdmin() {
		return nil, errForbidden
	}

	if err := r.Repos.Posts.Delete(c.ctx, post.ID); err != nil {
		return nil, err
	}
	r.invalidate(c, post.BodyHash)

	rpcLogger.Info().Str("post_id", string(post.ID)).Str("by", string(u.ID)).Msg("Post deleted")
	return idInput{ID: post.ID}, nil
}

func (r *Router) invalidate(c *Call, hashes ...string) {
	if r.Renderer == nil {
		return
	}
	seen := map[string]bool{}
	for _, h := range hashes {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if err := r.Renderer.Invalidate(c.ctx, h); err != nil {
			rpcLogger.Warn().Err(err).Msg("Failed to invalidate rendered post")
		}
	}
}

func (r *Router) editorView(post *model.Post) *model.PostView {
	return &model.PostView{
		Post:         post,
		Body:         string(post.Body),
		Status:       post.Status(r.now()),
		ReadTimeMins: model.ReadTimeMins(render.WordCount(post.Body)),
	}
}

// postEditDraft returns a post for the editor. Other users get NOT_FOUND so
// drafts do not leak.
func (r *Router) postEditDraft(c *Call) (any, error) {
	if _, err := r.user(c); err != nil {
		return nil, err
	}

	var in idInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}

	post, err := r.ownedPost(c, in.ID)
	if errors.Is(err, errForbidden) {
		return nil, notFound("Post")
	}
	if err != nil {
		return nil, err
	}
	return r.editorView(post), nil
}

func (r *Router) myPosts(status model.Status) HandlerFunc {
	return func(c *Call) (any, error) {
		u, err := r.user(c)
		if err != nil {
			return nil, err
		}
		return r.Repos.Posts.ListByOwner(c.ctx, u.ID, status)
	}
}

type bySlugInput struct {
	Slug  string `json:"slug"`
	Theme string `json:"theme,omitempty"`
}

// postBySlug serves the reader view. Drafts and scheduled posts are visible
// to their owner only.
func (r *Router) postBySlug(c *Call) (any, error) {
	var in bySlugInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.Slug == "" {
		return nil, errBadInput
	}

	post, err := r.Repos.Posts.GetBySlug(c.ctx, in.Slug)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Post")
	}
	if err != nil {
		return nil, err
	}

	view := r.editorView(post)
	if view.Status != model.StatusPublished && post.Owner != c.userID {
		return nil, notFound("Post")
	}

	theme := r.SyntaxTheme
	if in.Theme != "" && render.ValidSyntaxTheme(in.Theme) {
		theme = in.Theme
	}
	if r.Renderer != nil {
		view.HTML = string(r.Renderer.Render(c.ctx, post.Body, post.BodyHash, theme))
	} else {
		view.HTML = string(render.RenderMarkdown(post.Body, theme))
	}

	view.Author, err = r.Repos.Users.Get(c.ctx, post.Owner)
	if err != nil {
		return nil, err
	}
	view.Likes, view.Bookmarks, err = r.Repos.Engagement.Counts(c.ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return view, nil
}

type feedInput struct {
	Cursor *int                 `json:"cursor,omitempty"`
	Limit  *int                 `json:"limit,omitempty"`
	Sort   repository.SortOrder `json:"sort,omitempty"`
	Tag    string               `json:"tag,omitempty"`
}

type feedResult struct {
	Posts      []model.PostSummary `json:"posts"`
	NextCursor *int                `json:"nextCursor"`
}

func (r *Router) postAll(c *Call) (any, error) {
	var in feedInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}

	var errs validation.Errors
	q := repository.FeedQuery{Limit: r.PageSize, Sort: repository.SortNewest}
	if in.Limit != nil {
		if *in.Limit < 1 || *in.Limit > r.MaxPageSize {
			errs.Add("limit", "Limit must be between 1 and 50.")
		}
		q.Limit = *in.Limit
	}
	if in.Cursor != nil {
		if *in.Cursor < 0 {
			errs.Add("cursor", "Invalid cursor.")
		}
		q.Offset = *in.Cursor
	}
	if in.Sort != "" {
		if !in.Sort.Valid() {
			errs.Add("sort", "Sort must be newest, oldest or top.")
		}
		q.Sort = in.Sort
	}
	if in.Tag != "" {
		q.Tag = validation.NormalizeTag(in.Tag)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	posts, next, err := r.Repos.Posts.Feed(c.ctx, q)
	if err != nil {
		return nil, err
	}
	return feedResult{Posts: posts, NextCursor: next}, nil
}

type engageInput struct {
	PostID model.PostID `json:"postId"`
	SetTo  bool         `json:"setTo"`
}

// publishedPost loads a post readers may interact with.
func (r *Router) publishedPost(c *Call, id model.PostID) (*model.Post, error) {
	if id == "" {
		return nil, errBadInput
	}
	post, err := r.Repos.Posts.Get(c.ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Post")
	}
	if err != nil {
		return nil, err
	}
	if post.Status(r.now()) != model.StatusPublished {
		return nil, notFound("Post")
	}
	return post, nil
}

func (r *Router) postEngage(bookmark bool) HandlerFunc {
	return func(c *Call) (any, error) {
		u, err := r.user(c)
		if err != nil {
			return nil, err
		}

		var in engageInput
		if err := c.Decode(&in); err != nil {
			return nil, err
		}
		if _, err := r.publishedPost(c, in.PostID); err != nil {
			return nil, err
		}

		if bookmark {
			err = r.Repos.Engagement.SetBookmark(c.ctx, u.ID, in.PostID, in.SetTo)
		} else {
			err = r.Repos.Engagement.SetLike(c.ctx, u.ID, in.PostID, in.SetTo)
		}
		if err != nil {
			return nil, err
		}
		return r.sidebar(c, in.PostID)
	}
}

func (r *Router) postMyBookmarks(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}
	return r.Repos.Engagement.Bookmarks(c.ctx, u.ID)
}

type sidebarResult struct {
	Likes      int  `json:"likes"`
	Bookmarks  int  `json:"bookmarks"`
	Liked      bool `json:"currentUserLiked"`
	Bookmarked bool `json:"currentUserBookmarked"`
}

func (r *Router) sidebar(c *Call, id model.PostID) (*sidebarResult, error) {
	var out sidebarResult
	var err error
	out.Likes, out.Bookmarks, err = r.Repos.Engagement.Counts(c.ctx, id)
	if err != nil {
		return nil, err
	}
	if c.userID != "" {
		out.Liked, out.Bookmarked, err = r.Repos.Engagement.Flags(c.ctx, c.userID, id)
		if err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func (r *Router) postSidebarData(c *Call) (any, error) {
	var in idInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if _, err := r.publishedPost(c, in.ID); err != nil {
		return nil, err
	}
	return r.sidebar(c, in.ID)
}

type uploadInput struct {
	Kind storage.Kind `json:"kind,omitempty"`
	Type string       `json:"type"`
	Size int64        `json:"size"`
}

// uploadURL presigns an image upload; the first allowed kind is the default.
func (r *Router) uploadURL(allowed ...storage.Kind) HandlerFunc {
	return func(c *Call) (any, error) {
		u, err := r.activeUser(c)
		if err != nil {
			return nil, err
		}

		var in uploadInput
		if err := c.Decode(&in); err != nil {
			return nil, err
		}
		if in.Kind == "" {
			in.Kind = allowed[0]
		}
		ok := false
		for _, k := range allowed {
			ok = ok || k == in.Kind
		}
		if !ok {
			return nil, storage.ErrInvalidUploadKind
		}

		return r.Uploader.PresignUpload(c.ctx, u.ID, storage.UploadRequest{
			Kind:        in.Kind,
			ContentType: in.Type,
			Size:        in.Size,
		})
	}
}

type tagInput struct {
	Limit int `json:"limit,omitempty"`
}

func (r *Router) tagPopular(c *Call) (any, error) {
	var in tagInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 || in.Limit > r.MaxPageSize {
		in.Limit = 10
	}
	return r.Repos.Posts.PopularTags(c.ctx, in.Limit)
}
