package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codu-code/codu/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *Errors
	require.True(t, errors.As(err, &verr), "expected *Errors, got %T", err)
	return verr.Fields
}

func TestNormalizeTag(t *testing.T) {
	tests := map[string]string{
		"go":          "GO",
		"Next.js":     "NEXTJS",
		"c++":         "C",
		"  web dev  ": "WEBDEV",
		"--":          "",
		"año2024":     "AÑO2024",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTag(in), "NormalizeTag(%q)", in)
	}
}

func TestNormalizeTags(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var errs Errors
		got := NormalizeTags([]string{"go", "Web Dev"}, &errs)
		assert.Equal(t, []string{"GO", "WEBDEV"}, got)
		assert.Zero(t, errs.Len())
	})

	t.Run("duplicates after normalization are rejected", func(t *testing.T) {
		var errs Errors
		NormalizeTags([]string{"next.js", "NEXTJS"}, &errs)
		assert.Equal(t, MsgDuplicateTags, errs.Fields["tags"])
	})

	t.Run("too many", func(t *testing.T) {
		var errs Errors
		NormalizeTags([]string{"a", "b", "c", "d", "e", "f"}, &errs)
		assert.Equal(t, MsgTooManyTags, errs.Fields["tags"])
	})

	t.Run("too long", func(t *testing.T) {
		var errs Errors
		NormalizeTags([]string{strings.Repeat("x", 21)}, &errs)
		assert.Equal(t, MsgTagTooLong, errs.Fields["tags"])
	})

	t.Run("empty after normalization", func(t *testing.T) {
		var errs Errors
		NormalizeTags([]string{"!!!"}, &errs)
		assert.Equal(t, MsgTagEmpty, errs.Fields["tags"])
	})
}

func TestConfirmPost(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	valid := ConfirmPostInput{
		ID:        "p1",
		Title:     "Lorem Ipsum",
		Body:      "Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
		Tags:      []string{"go", "backend"},
		Published: true,
	}

	tests := []struct {
		name   string
		mutate func(in *ConfirmPostInput)
		want   map[string]string
	}{
		{"valid", func(in *ConfirmPostInput) {}, nil},
		{"empty title", func(in *ConfirmPostInput) { in.Title = "   " }, map[string]string{"title": MsgTitleTooShort}},
		{"long title", func(in *ConfirmPostInput) { in.Title = strings.Repeat("a", 101) }, map[string]string{"title": MsgTitleTooLong}},
		{"short body", func(in *ConfirmPostInput) { in.Body = "too short" }, map[string]string{"body": MsgBodyTooShort}},
		{"long excerpt", func(in *ConfirmPostInput) { in.Excerpt = strings.Repeat("e", 157) }, map[string]string{"excerpt": MsgExcerptTooLong}},
		{"relative canonical", func(in *ConfirmPostInput) { in.CanonicalURL = "/articles/x" }, map[string]string{"canonicalUrl": MsgCanonicalURL}},
		{"ftp canonical", func(in *ConfirmPostInput) { in.CanonicalURL = "ftp://example.com/x" }, map[string]string{"canonicalUrl": MsgCanonicalURL}},
		{"duplicate tags", func(in *ConfirmPostInput) { in.Tags = []string{"Go", "go!"} }, map[string]string{"tags": MsgDuplicateTags}},
		{"past schedule", func(in *ConfirmPostInput) { in.PublishTime = &past }, map[string]string{"publishTime": MsgPublishTimePast}},
		{"future schedule", func(in *ConfirmPostInput) { in.PublishTime = &future }, nil},
		{"several fields", func(in *ConfirmPostInput) { in.Title = ""; in.Body = "" }, map[string]string{"title": MsgTitleTooShort, "body": MsgBodyTooShort}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			in.Tags = append([]string(nil), valid.Tags...)
			tt.mutate(&in)

			_, err := ConfirmPost(in, now)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, fieldErrors(t, err))
		})
	}
}

func TestConfirmPostDerivesExcerpt(t *testing.T) {
	now := time.Now()
	out, err := ConfirmPost(ConfirmPostInput{
		Title: "Hello",
		Body:  "# Heading\n\nThis is **the** body of the post.",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Heading This is the body of the post.", out.Excerpt)
	assert.Empty(t, out.Tags)

	out, err = ConfirmPost(ConfirmPostInput{
		Title: "Hello",
		Body:  strings.Repeat("long words here ", 40),
	}, now)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(out.Excerpt)), MaxExcerptLength)

	out, err = ConfirmPost(ConfirmPostInput{Title: "Hello", Body: "0123456789", Excerpt: " mine "}, now)
	require.NoError(t, err)
	assert.Equal(t, "mine", out.Excerpt)
}

func TestSavePost(t *testing.T) {
	in := SavePostInput{Title: "  Draft  ", Body: "x", Tags: []string{"go"}}
	require.NoError(t, SavePost(&in))
	assert.Equal(t, "Draft", in.Title)
	assert.Equal(t, []string{"GO"}, in.Tags)

	empty := SavePostInput{}
	assert.NoError(t, SavePost(&empty), "drafts may be empty")

	long := SavePostInput{Title: strings.Repeat("t", 101)}
	assert.Equal(t, map[string]string{"title": MsgTitleTooLong}, fieldErrors(t, SavePost(&long)))

	dup := SavePostInput{Title: "Draft", Tags: []string{"go", "Go", "!!", "web"}}
	require.NoError(t, SavePost(&dup), "duplicate tags do not block a save")
	assert.Equal(t, []string{"GO", "WEB"}, dup.Tags)

	cleared := SavePostInput{Tags: []string{}}
	require.NoError(t, SavePost(&cleared))
	assert.NotNil(t, cleared.Tags)
	assert.Empty(t, cleared.Tags)

	cover := "  https://img.example/c.png "
	withCover := SavePostInput{CoverImage: &cover}
	require.NoError(t, SavePost(&withCover))
	assert.Equal(t, "https://img.example/c.png", *withCover.CoverImage)
}

func TestErrors(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.Err())

	errs.Add("title", "first")
	errs.Add("title", "second")
	errs.Add("body", "bad")
	assert.Equal(t, "first", errs.Fields["title"])
	assert.True(t, errs.Has("body"))
	assert.Equal(t, "validation failed: body: bad; title: first", errs.Error())
}

func TestCommentBody(t *testing.T) {
	body, err := CommentBody("  nice post  ")
	require.NoError(t, err)
	assert.Equal(t, "nice post", body)

	_, err = CommentBody("   ")
	assert.Equal(t, map[string]string{"body": MsgCommentEmpty}, fieldErrors(t, err))

	_, err = CommentBody(strings.Repeat("c", MaxCommentLength+1))
	assert.Equal(t, map[string]string{"body": MsgCommentTooLong}, fieldErrors(t, err))
}

func TestProfileAndUsername(t *testing.T) {
	p := ProfileInput{Name: " Ada ", Bio: strings.Repeat("b", 201)}
	assert.Equal(t, map[string]string{"bio": MsgBioTooLong}, fieldErrors(t, Profile(&p)))
	assert.Equal(t, "Ada", p.Name)

	assert.NoError(t, Username("ada_lovelace-1"))
	assert.Error(t, Username("Ada"))
	assert.Error(t, Username("ab"))
}

func TestReport(t *testing.T) {
	pid := model.PostID("p1")
	cid := model.CommentID("c1")

	assert.NoError(t, Report(&ReportInput{PostID: &pid, Reason: "spam"}))
	assert.Equal(t, map[string]string{"target": MsgReportTarget},
		fieldErrors(t, Report(&ReportInput{PostID: &pid, CommentID: &cid, Reason: "spam"})))
	assert.Equal(t, map[string]string{"target": MsgReportTarget, "reason": MsgReasonEmpty},
		fieldErrors(t, Report(&ReportInput{})))
}
