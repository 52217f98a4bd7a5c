package rpc

import (
	"errors"

	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/sse"
	"github.com/codu-code/codu/internal/validation"
)

func (r *Router) registerComments() {
	r.mutation("comment.create", r.commentCreate)
	r.query("comment.get", r.commentGet)
	r.mutation("comment.edit", r.commentEdit)
	r.mutation("comment.delete", r.commentDelete)
}

type commentCreateInput struct {
	PostID   model.PostID     `json:"postId"`
	Body     string           `json:"body"`
	ParentID *model.CommentID `json:"parentId,omitempty"`
}

func (r *Router) commentCreate(c *Call) (any, error) {
	u, err := r.activeUser(c)
	if err != nil {
		return nil, err
	}

	var in commentCreateInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	body, err := validation.CommentBody(in.Body)
	if err != nil {
		return nil, err
	}

	post, err := r.publishedPost(c, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.ShowComments {
		return nil, NewError(CodeForbidden, "Comments are disabled for this post")
	}

	comment := &model.Comment{PostID: post.ID, ParentID: in.ParentID, Body: body}
	if err := r.Repos.Comments.Create(c.ctx, u.ID, comment); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Parent comment")
		}
		return nil, err
	}

	r.notifyComment(c, u, post, comment)
	return comment, nil
}

// notifyComment tells the post owner about a new comment and the parent
// author about a reply. Nobody is notified about their own comment, and a
// post owner replied to directly gets the reply notification only.
func (r *Router) notifyComment(c *Call, author *model.User, post *model.Post, comment *model.Comment) {
	var replyTo model.UserID
	if comment.ParentID != nil {
		parent, err := r.Repos.Comments.Get(c.ctx, *comment.ParentID)
		if err != nil {
			rpcLogger.Warn().Err(err).Msg("Failed to load parent comment")
		} else if parent.Author != nil {
			replyTo = parent.Author.ID
		}
	}

	if replyTo != "" && replyTo != author.ID {
		r.notify(c, &model.Notification{
			Type:      model.NotificationReplyToComment,
			UserID:    replyTo,
			Notifier:  author,
			PostID:    post.ID,
			CommentID: comment.ID,
		}, post)
	}

	if post.Owner != author.ID && post.Owner != replyTo {
		r.notify(c, &model.Notification{
			Type:      model.NotificationCommentOnPost,
			UserID:    post.Owner,
			Notifier:  author,
			PostID:    post.ID,
			CommentID: comment.ID,
		}, post)
	}
}

// notify stores n and pushes it to the recipient's open streams. Failures are
// logged; the comment itself already succeeded.
func (r *Router) notify(c *Call, n *model.Notification, post *model.Post) {
	if err := r.Repos.Notifications.Create(c.ctx, n); err != nil {
		rpcLogger.Error().Err(err).Str("user_id", string(n.UserID)).Msg("Failed to create notification")
		return
	}
	n.PostTitle = post.Title
	n.PostSlug = post.Slug
	r.Metrics.RecordNotification(c.ctx, n.Type.String())

	if r.Clients != nil {
		r.Clients.Send(n.UserID, sse.Event{Name: sse.EventNotification, Data: n})
	}
}

type commentGetInput struct {
	PostID model.PostID `json:"postId"`
}

type commentList struct {
	Comments []model.Comment `json:"comments"`
	Count    int             `json:"count"`
}

func (r *Router) commentGet(c *Call) (any, error) {
	var in commentGetInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.PostID == "" {
		return nil, errBadInput
	}

	post, err := r.Repos.Posts.Get(c.ctx, in.PostID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Post")
	}
	if err != nil {
		return nil, err
	}
	if post.Status(r.now()) != model.StatusPublished && post.Owner != c.userID {
		return nil, notFound("Post")
	}

	comments, err := r.Repos.Comments.ListForPost(c.ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return commentList{Comments: comments, Count: len(comments)}, nil
}

type commentEditInput struct {
	ID   model.CommentID `json:"id"`
	Body string          `json:"body"`
}

// ownedComment checks the caller wrote id. Admins pass when allowAdmin.
func (r *Router) ownedComment(c *Call, u *model.User, id model.CommentID, allowAdmin bool) error {
	if id == "" {
		return errBadInput
	}
	owner, err := r.Repos.Comments.Owner(c.ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("Comment")
	}
	if err != nil {
		return err
	}
	if owner != u.ID && !(allowAdmin && u.IsAdmin()) {
		return errForbidden
	}
	return nil
}

func (r *Router) commentEdit(c *Call) (any, error) {
	u, err := r.activeUser(c)
	if err != nil {
		return nil, err
	}

	var in commentEditInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	body, err := validation.CommentBody(in.Body)
	if err != nil {
		return nil, err
	}
	if err := r.ownedComment(c, u, in.ID, false); err != nil {
		return nil, err
	}

	if err := r.Repos.Comments.UpdateBody(c.ctx, in.ID, body); err != nil {
		return nil, err
	}
	return r.Repos.Comments.Get(c.ctx, in.ID)
}

type commentIDInput struct {
	ID model.CommentID `json:"id"`
}

func (r *Router) commentDelete(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}

	var in commentIDInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if err := r.ownedComment(c, u, in.ID, true); err != nil {
		return nil, err
	}

	if err := r.Repos.Comments.Delete(c.ctx, in.ID); err != nil {
		return nil, err
	}
	return in, nil
}
