package rpc

import (
	"strings"
	"testing"

	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/sse"
	"github.com/codu-code/codu/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) livePost(as *model.User, title string) slugResult {
	f.t.Helper()
	p := f.createPost(as, title, longBody)
	require.Nil(f.t, f.publish(as, p.ID, nil).err)
	return p
}

func (f *fixture) comment(as *model.User, post model.PostID, body string, parent *model.CommentID) model.Comment {
	f.t.Helper()
	input := map[string]any{"postId": post, "body": body}
	if parent != nil {
		input["parentId"] = *parent
	}
	var out model.Comment
	f.call(as, "comment.create", input).decode(f.t, &out)
	return out
}

func (f *fixture) notifications(as *model.User) []model.Notification {
	f.t.Helper()
	var page struct {
		Data []model.Notification `json:"data"`
	}
	f.call(as, "notification.get", nil).decode(f.t, &page)
	return page.Data
}

func (f *fixture) unread(as *model.User) int {
	f.t.Helper()
	var n int
	f.call(as, "notification.getCount", nil).decode(f.t, &n)
	return n
}

func TestCommentNotifications(t *testing.T) {
	f := newFixture(t)
	ada := f.user("ada")
	bob := f.user("bob")
	cy := f.user("cy")
	post := f.livePost(ada, "Talk to me")

	stream := sse.NewClient(ada.ID)
	f.clients.Add(stream)
	defer f.clients.Delete(stream)

	top := f.comment(bob, post.ID, "  Nice post  ", nil)
	assert.Equal(t, "Nice post", top.Body)
	assert.Equal(t, "bob", top.Author.Username)

	t.Run("owner notified and pushed", func(t *testing.T) {
		list := f.notifications(ada)
		require.Len(t, list, 1)
		assert.Equal(t, model.NotificationCommentOnPost, list[0].Type)
		assert.Equal(t, "bob", list[0].Notifier.Username)
		assert.Equal(t, 1, f.unread(ada))

		select {
		case ev := <-stream.Msg:
			assert.Equal(t, sse.EventNotification, ev.Name)
			n, ok := ev.Data.(*model.Notification)
			require.True(t, ok)
			assert.Equal(t, post.Slug, n.PostSlug)
			assert.Equal(t, "Talk to me", n.PostTitle)
		default:
			t.Fatal("Expected a pushed notification")
		}
	})

	t.Run("own comment is silent", func(t *testing.T) {
		f.comment(ada, post.ID, "Thanks!", nil)
		assert.Equal(t, 1, f.unread(ada))
	})

	t.Run("reply notifies parent author and owner", func(t *testing.T) {
		f.comment(cy, post.ID, "Agreed", &top.ID)

		bobs := f.notifications(bob)
		require.Len(t, bobs, 1)
		assert.Equal(t, model.NotificationReplyToComment, bobs[0].Type)
		assert.Equal(t, 2, f.unread(ada))
	})

	t.Run("reply to owner gives one notification", func(t *testing.T) {
		mine := f.comment(ada, post.ID, "Follow up", nil)
		f.comment(bob, post.ID, "Sure", &mine.ID)

		list := f.notifications(ada)
		require.Len(t, list, 3)
		assert.Equal(t, model.NotificationReplyToComment, list[0].Type)
	})

	t.Run("mark read", func(t *testing.T) {
		list := f.notifications(ada)
		require.Nil(t, f.call(ada, "notification.markAsRead", map[string]any{"id": list[0].ID}).err)
		assert.Equal(t, 2, f.unread(ada))

		requireCode(t, f.call(bob, "notification.markAsRead", map[string]any{"id": list[1].ID}), CodeNotFound)

		var all struct {
			Count int64 `json:"count"`
		}
		f.call(ada, "notification.markAllAsRead", nil).decode(t, &all)
		assert.EqualValues(t, 2, all.Count)
		assert.Zero(t, f.unread(ada))
	})

	t.Run("listing", func(t *testing.T) {
		var list struct {
			Comments []model.Comment `json:"comments"`
			Count    int             `json:"count"`
		}
		f.call(nil, "comment.get", map[string]any{"postId": post.ID}).decode(t, &list)
		assert.Equal(t, 5, list.Count)
		assert.Len(t, list.Comments, 5)
	})

	requireCode(t, f.call(nil, "notification.get", nil), CodeUnauthorized)
}

func TestCommentRules(t *testing.T) {
	f := newFixture(t)
	root := f.admin("root")
	ada := f.user("ada")
	bob := f.user("bob")
	post := f.livePost(ada, "Rules")

	t.Run("empty body", func(t *testing.T) {
		r := f.call(bob, "comment.create", map[string]any{"postId": post.ID, "body": "   "})
		requireCode(t, r, CodeBadRequest)
		assert.Equal(t, validation.MsgCommentEmpty, r.err.FieldErrors["body"])
	})

	t.Run("draft post", func(t *testing.T) {
		draft := f.createPost(ada, "Draft", longBody)
		requireCode(t, f.call(bob, "comment.create", map[string]any{"postId": draft.ID, "body": "hi"}), CodeNotFound)
	})

	t.Run("unknown parent", func(t *testing.T) {
		r := f.call(bob, "comment.create", map[string]any{"postId": post.ID, "body": "hi", "parentId": "nope"})
		requireCode(t, r, CodeNotFound)
	})

	t.Run("comments disabled", func(t *testing.T) {
		closed := f.livePost(ada, "Closed")
		require.Nil(t, f.call(ada, "post.update", map[string]any{
			"id": closed.ID, "title": "Closed", "body": longBody, "showComments": false,
		}).err)
		requireCode(t, f.call(bob, "comment.create", map[string]any{"postId": closed.ID, "body": "hi"}), CodeForbidden)
	})

	c := f.comment(bob, post.ID, "first", nil)

	t.Run("edit", func(t *testing.T) {
		requireCode(t, f.call(ada, "comment.edit", map[string]any{"id": c.ID, "body": "hijack"}), CodeForbidden)

		var edited model.Comment
		f.call(bob, "comment.edit", map[string]any{"id": c.ID, "body": "second"}).decode(t, &edited)
		assert.Equal(t, "second", edited.Body)
	})

	t.Run("delete", func(t *testing.T) {
		requireCode(t, f.call(ada, "comment.delete", map[string]any{"id": c.ID}), CodeForbidden)
		require.Nil(t, f.call(root, "comment.delete", map[string]any{"id": c.ID}).err)
		requireCode(t, f.call(bob, "comment.delete", map[string]any{"id": c.ID}), CodeNotFound)
	})
}

func TestProfiles(t *testing.T) {
	f := newFixture(t)
	root := f.admin("root")
	ada := f.user("ada")
	f.livePost(ada, "Visible")
	f.createPost(ada, "Hidden", longBody)

	t.Run("public profile", func(t *testing.T) {
		var p struct {
			Username string              `json:"username"`
			Posts    []model.PostSummary `json:"posts"`
		}
		f.call(nil, "profile.get", map[string]string{"username": "ADA"}).decode(t, &p)
		assert.Equal(t, "ada", p.Username)
		require.Len(t, p.Posts, 1)
		assert.Equal(t, "Visible", p.Posts[0].Title)

		requireCode(t, f.call(nil, "profile.get", map[string]string{"username": "nobody"}), CodeNotFound)
	})

	t.Run("banned profile hides posts", func(t *testing.T) {
		require.Nil(t, f.call(root, "admin.ban", map[string]any{"userId": ada.ID}).err)
		defer f.call(root, "admin.unban", map[string]any{"userId": ada.ID})

		var p struct {
			Posts []model.PostSummary `json:"posts"`
		}
		f.call(nil, "profile.get", map[string]string{"username": "ada"}).decode(t, &p)
		assert.Empty(t, p.Posts)

		var me struct {
			Banned bool `json:"isBanned"`
		}
		f.call(ada, "profile.me", nil).decode(t, &me)
		assert.True(t, me.Banned)
	})

	t.Run("edit", func(t *testing.T) {
		var u model.User
		f.call(ada, "profile.edit", map[string]string{"name": " Ada L ", "bio": "Counts things"}).decode(t, &u)
		assert.Equal(t, "Ada L", u.Name)

		r := f.call(ada, "profile.edit", map[string]string{"name": strings.Repeat("n", 51)})
		requireCode(t, r, CodeBadRequest)
	})

	t.Run("image", func(t *testing.T) {
		requireCode(t, f.call(ada, "profile.updateImage", map[string]string{"url": "javascript:alert(1)"}), CodeBadRequest)

		var u model.User
		f.call(ada, "profile.updateImage", map[string]string{"url": "https://cdn.example.com/a.png"}).decode(t, &u)
		assert.Equal(t, "https://cdn.example.com/a.png", u.Image)
	})

	t.Run("public key", func(t *testing.T) {
		r := f.call(ada, "profile.setPublicKey", map[string]string{"publicKey": "not a key"})
		requireCode(t, r, CodeBadRequest)
		assert.Contains(t, r.err.FieldErrors, "publicKey")

		var me struct {
			HasPublicKey bool `json:"hasPublicKey"`
			Admin        bool `json:"isAdmin"`
		}
		f.call(root, "profile.me", nil).decode(t, &me)
		assert.False(t, me.HasPublicKey)
		assert.True(t, me.Admin)
	})
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	ada := f.user("ada")
	bob := f.user("bob")
	post := f.livePost(ada, "Reported")

	requireCode(t, f.call(nil, "report.send", map[string]any{"postId": post.ID, "reason": "spam"}), CodeUnauthorized)

	r := f.call(bob, "report.send", map[string]any{"reason": "spam"})
	requireCode(t, r, CodeBadRequest)
	assert.Equal(t, validation.MsgReportTarget, r.err.FieldErrors["target"])

	requireCode(t, f.call(bob, "report.send", map[string]any{"postId": "missing", "reason": "spam"}), CodeNotFound)

	var rep model.Report
	f.call(bob, "report.send", map[string]any{"postId": post.ID, "reason": " spam "}).decode(t, &rep)
	assert.NotZero(t, rep.ID)
	assert.Equal(t, "spam", rep.Reason)
	assert.Equal(t, bob.ID, rep.ReporterID)
}
