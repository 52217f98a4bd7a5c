package rpc

import (
	"errors"

	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/validation"
)

func (r *Router) registerAdmin() {
	r.mutation("admin.ban", r.adminBan)
	r.mutation("admin.unban", r.adminUnban)
	r.query("admin.banned", r.adminBanned)
	r.mutation("report.send", r.reportSend)
}

type banInput struct {
	UserID model.UserID `json:"userId"`
	Note   string       `json:"note"`
}

func (r *Router) adminBan(c *Call) (any, error) {
	admin, err := r.admin(c)
	if err != nil {
		return nil, err
	}

	var in banInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, errBadInput
	}

	target, err := r.Repos.Users.Get(c.ctx, in.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("User")
	}
	if err != nil {
		return nil, err
	}
	if target.IsAdmin() {
		return nil, NewError(CodeForbidden, "Admins cannot be banned")
	}

	if err := r.Repos.Moderation.Ban(c.ctx, target.ID, admin.ID, in.Note); err != nil {
		return nil, err
	}
	rpcLogger.Warn().Str("user_id", string(target.ID)).Str("by", string(admin.ID)).Str("note", in.Note).Msg("User banned")
	return in, nil
}

type userIDInput struct {
	UserID model.UserID `json:"userId"`
}

func (r *Router) adminUnban(c *Call) (any, error) {
	admin, err := r.admin(c)
	if err != nil {
		return nil, err
	}

	var in userIDInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, errBadInput
	}

	if err := r.Repos.Moderation.Unban(c.ctx, in.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Ban")
		}
		return nil, err
	}
	rpcLogger.Info().Str("user_id", string(in.UserID)).Str("by", string(admin.ID)).Msg("User unbanned")
	return in, nil
}

func (r *Router) adminBanned(c *Call) (any, error) {
	if _, err := r.admin(c); err != nil {
		return nil, err
	}
	return r.Repos.Moderation.Banned(c.ctx)
}

// reportSend stores a report about a post or comment. The target must exist.
func (r *Router) reportSend(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}

	var in validation.ReportInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if err := validation.Report(&in); err != nil {
		return nil, err
	}

	switch {
	case in.PostID != nil:
		if _, err := r.Repos.Posts.Get(c.ctx, *in.PostID); err != nil {
			return nil, err
		}
	case in.CommentID != nil:
		if _, err := r.Repos.Comments.Get(c.ctx, *in.CommentID); err != nil {
			return nil, err
		}
	}

	rep := &model.Report{ReporterID: u.ID, PostID: in.PostID, CommentID: in.CommentID, Reason: in.Reason}
	if err := r.Repos.Moderation.Report(c.ctx, rep); err != nil {
		return nil, err
	}

	ev := rpcLogger.Warn().Int64("report_id", rep.ID).Str("reporter", string(u.ID))
	if rep.PostID != nil {
		ev = ev.Str("post_id", string(*rep.PostID))
	}
	if rep.CommentID != nil {
		ev = ev.Str("comment_id", string(*rep.CommentID))
	}
	ev.Str("reason", rep.Reason).Msg("Content reported")

	return rep, nil
}
