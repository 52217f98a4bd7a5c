package model

import (
	"fmt"
	"time"
)

type NotificationType int

const (
	NotificationCommentOnPost  NotificationType = 0
	NotificationReplyToComment NotificationType = 1
)

func (t NotificationType) String() string {
	switch t {
	case NotificationCommentOnPost:
		return "COMMENT_ON_POST"
	case NotificationReplyToComment:
		return "REPLY_TO_COMMENT"
	default:
		return "UNKNOWN"
	}
}

func (t NotificationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *NotificationType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "COMMENT_ON_POST":
		*t = NotificationCommentOnPost
	case "REPLY_TO_COMMENT":
		*t = NotificationReplyToComment
	default:
		return fmt.Errorf("unknown notification type %q", b)
	}
	return nil
}

type Notification struct {
	ID        int64            `json:"id"`
	Type      NotificationType `json:"type"`
	UserID    UserID           `json:"userId"`
	Notifier  *User            `json:"notifier,omitempty"`
	PostID    PostID           `json:"postId,omitempty"`
	PostTitle string           `json:"postTitle,omitempty"`
	PostSlug  string           `json:"postSlug,omitempty"`
	CommentID CommentID        `json:"commentId,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	ReadAt    *time.Time       `json:"readAt"`
}

type CommentID string

type Comment struct {
	ID        CommentID  `json:"id"`
	PostID    PostID     `json:"postId"`
	ParentID  *CommentID `json:"parentId"`
	Body      string     `json:"body"`
	Author    *User      `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Report struct {
	ID         int64      `json:"id"`
	ReporterID UserID     `json:"reporterId"`
	PostID     *PostID    `json:"postId,omitempty"`
	CommentID  *CommentID `json:"commentId,omitempty"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"createdAt"`
}
