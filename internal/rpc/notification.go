package rpc

import (
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/validation"
)

func (r *Router) registerNotifications() {
	r.query("notification.get", r.notificationGet)
	r.query("notification.getCount", r.notificationCount)
	r.mutation("notification.markAsRead", r.notificationMarkRead)
	r.mutation("notification.markAllAsRead", r.notificationMarkAllRead)
}

type notificationGetInput struct {
	Cursor *int64 `json:"cursor,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type notificationPage struct {
	Data       []model.Notification `json:"data"`
	NextCursor *int64               `json:"nextCursor"`
}

func (r *Router) notificationGet(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}

	var in notificationGetInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}

	limit := r.PageSize
	if in.Limit != nil {
		if *in.Limit < 1 || *in.Limit > r.MaxPageSize {
			var errs validation.Errors
			errs.Add("limit", "Limit must be between 1 and 50.")
			return nil, &errs
		}
		limit = *in.Limit
	}

	list, next, err := r.Repos.Notifications.List(c.ctx, u.ID, in.Cursor, limit)
	if err != nil {
		return nil, err
	}
	return notificationPage{Data: list, NextCursor: next}, nil
}

func (r *Router) notificationCount(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}
	return r.Repos.Notifications.UnreadCount(c.ctx, u.ID)
}

type notificationIDInput struct {
	ID int64 `json:"id"`
}

func (r *Router) notificationMarkRead(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}

	var in notificationIDInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.ID <= 0 {
		return nil, errBadInput
	}

	if err := r.Repos.Notifications.MarkRead(c.ctx, u.ID, in.ID); err != nil {
		return nil, err
	}
	return in, nil
}

type markAllResult struct {
	Count int64 `json:"count"`
}

func (r *Router) notificationMarkAllRead(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}
	n, err := r.Repos.Notifications.MarkAllRead(c.ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return markAllResult{Count: n}, nil
}
