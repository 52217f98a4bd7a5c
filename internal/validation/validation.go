// Package validation checks and normalizes user input before it reaches the
// repositories.
package validation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/render"
)

const (
	MaxTitleLength   = 100
	MinBodyLength    = 10
	MaxExcerptLength = render.ExcerptLength
	MaxTags          = 5
	MaxTagLength     = 20
	MaxCommentLength = 5000
	MaxNameLength    = 50
	MaxBioLength     = 200
	MaxReasonLength  = 1000
)

const (
	MsgTitleTooShort   = "Title is too short"
	MsgTitleTooLong    = "Max title length is 100 characters."
	MsgBodyTooShort    = "Content is too short. Minimum of 10 characters."
	MsgExcerptTooLong  = "Max excerpt length is 156 characters."
	MsgCanonicalURL    = "Canonical URL must be a valid http or https address."
	MsgTooManyTags     = "Max of 5 tags allowed."
	MsgTagEmpty        = "Tags must contain letters or numbers."
	MsgTagTooLong      = "Max tag length is 20 characters."
	MsgDuplicateTags   = "Duplicate tags are not allowed"
	MsgPublishTimePast = "Scheduled time must be in the future."
	MsgCommentEmpty    = "Comment can't be empty."
	MsgCommentTooLong  = "Max comment length is 5000 characters."
	MsgNameTooLong     = "Max name length is 50 characters."
	MsgBioTooLong      = "Max bio length is 200 characters."
	MsgReasonEmpty     = "Please give a reason for the report."
	MsgReasonTooLong   = "Max reason length is 1000 characters."
	MsgReportTarget    = "Report exactly one post or comment."
	MsgUsernameInvalid = "Usernames are 3 to 40 lowercase letters, numbers, dashes or underscores."
)

// Errors maps field names to the first problem found with each.
type Errors struct {
	Fields map[string]string `json:"fieldErrors"`
}

func (e *Errors) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *Errors) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

func (e *Errors) Len() int {
	return len(e.Fields)
}

func (e *Errors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil when no field failed.
func (e *Errors) Err() error {
	if e.Len() == 0 {
		return nil
	}
	return e
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}

// NormalizeTag keeps letters and digits and upper-cases them.
func NormalizeTag(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeTags normalizes each tag and records the first problem on errs
// under "tags". Duplicates after normalization are an error.
func NormalizeTags(tags []string, errs *Errors) []string {
	return normalizeTags(tags, errs, true)
}

// DraftTags normalizes tags for a save. Empty tags and duplicates are
// dropped instead of failing so a half-edited tag list never blocks a save.
func DraftTags(tags []string, errs *Errors) []string {
	return normalizeTags(tags, errs, false)
}

func normalizeTags(tags []string, errs *Errors, strict bool) []string {
	if len(tags) > MaxTags {
		errs.Add("tags", MsgTooManyTags)
	}

	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		switch {
		case n == "":
			if strict {
				errs.Add("tags", MsgTagEmpty)
			}
		case runes(n) > MaxTagLength:
			errs.Add("tags", MsgTagTooLong)
		case seen[n]:
			if strict {
				errs.Add("tags", MsgDuplicateTags)
			}
		default:
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func validCanonicalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SavePostInput is what the editor sends on create, update and autosave.
// It has no publish field: saving never changes a post's status.
// A null or missing tags field keeps the stored tags; an empty list clears
// them. A nil CoverImage keeps the stored cover.
type SavePostInput struct {
	ID           model.PostID `json:"id,omitempty"`
	Title        string       `json:"title"`
	Body         string       `json:"body"`
	Excerpt      string       `json:"excerpt,omitempty"`
	Tags         []string     `json:"tags"`
	CanonicalURL string       `json:"canonicalUrl,omitempty"`
	CoverImage   *string      `json:"coverImage,omitempty"`
	ShowComments *bool        `json:"showComments,omitempty"`
}

// SavePost trims and normalizes in place.
func SavePost(in *SavePostInput) error {
	var errs Errors

	in.Title = strings.TrimSpace(in.Title)
	if runes(in.Title) > MaxTitleLength {
		errs.Add("title", MsgTitleTooLong)
	}

	in.Excerpt = strings.TrimSpace(in.Excerpt)
	if runes(in.Excerpt) > MaxExcerptLength {
		errs.Add("excerpt", MsgExcerptTooLong)
	}

	in.CanonicalURL = strings.TrimSpace(in.CanonicalURL)
	if in.CanonicalURL != "" && !validCanonicalURL(in.CanonicalURL) {
		errs.Add("canonicalUrl", MsgCanonicalURL)
	}

	if in.Tags != nil {
		in.Tags = DraftTags(in.Tags, &errs)
	}

	if in.CoverImage != nil {
		cover := strings.TrimSpace(*in.CoverImage)
		in.CoverImage = &cover
	}

	return errs.Err()
}

// ConfirmPostInput is the full publish payload.
type ConfirmPostInput struct {
	ID           model.PostID `json:"id"`
	Title        string       `json:"title"`
	Body         string       `json:"body"`
	Excerpt      string       `json:"excerpt"`
	Tags         []string     `json:"tags"`
	CanonicalURL string       `json:"canonicalUrl,omitempty"`
	Published    bool         `json:"published"`
	PublishTime  *time.Time   `json:"publishTime,omitempty"`
}

// ConfirmPost validates a publish request. On success the returned input has
// normalized tags and an excerpt derived from the body when none was given.
func ConfirmPost(in ConfirmPostInput, now time.Time) (ConfirmPostInput, error) {
	var errs Errors

	in.Title = strings.TrimSpace(in.Title)
	switch n := runes(in.Title); {
	case n == 0:
		errs.Add("title", MsgTitleTooShort)
	case n > MaxTitleLength:
		errs.Add("title", MsgTitleTooLong)
	}

	if runes(strings.TrimSpace(in.Body)) < MinBodyLength {
		errs.Add("body", MsgBodyTooShort)
	}

	in.Excerpt = strings.TrimSpace(in.Excerpt)
	if runes(in.Excerpt) > MaxExcerptLength {
		errs.Add("excerpt", MsgExcerptTooLong)
	}

	in.CanonicalURL = strings.TrimSpace(in.CanonicalURL)
	if in.CanonicalURL != "" && !validCanonicalURL(in.CanonicalURL) {
		errs.Add("canonicalUrl", MsgCanonicalURL)
	}

	in.Tags = NormalizeTags(in.Tags, &errs)

	if in.PublishTime != nil && !in.PublishTime.After(now) {
		errs.Add("publishTime", MsgPublishTimePast)
	}

	if err := errs.Err(); err != nil {
		return in, err
	}

	if in.Excerpt == "" {
		in.Excerpt = render.Excerpt([]byte(in.Body))
	}
	return in, nil
}

func CommentBody(body string) (string, error) {
	var errs Errors
	body = strings.TrimSpace(body)
	switch n := runes(body); {
	case n == 0:
		errs.Add("body", MsgCommentEmpty)
	case n > MaxCommentLength:
		errs.Add("body", MsgCommentTooLong)
	}
	return body, errs.Err()
}

type ProfileInput struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

func Profile(in *ProfileInput) error {
	var errs Errors
	in.Name = strings.TrimSpace(in.Name)
	in.Bio = strings.TrimSpace(in.Bio)
	if runes(in.Name) > MaxNameLength {
		errs.Add("name", MsgNameTooLong)
	}
	if runes(in.Bio) > MaxBioLength {
		errs.Add("bio", MsgBioTooLong)
	}
	return errs.Err()
}

// Username accepts 3..40 of [a-z0-9_-].
func Username(name string) error {
	var errs Errors
	ok := len(name) >= 3 && len(name) <= 40
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			ok = false
			break
		}
	}
	if !ok {
		errs.Add("username", MsgUsernameInvalid)
	}
	return errs.Err()
}

type ReportInput struct {
	PostID    *model.PostID    `json:"postId,omitempty"`
	CommentID *model.CommentID `json:"commentId,omitempty"`
	Reason    string           `json:"reason"`
}

func Report(in *ReportInput) error {
	var errs Errors
	if (in.PostID == nil) == (in.CommentID == nil) {
		errs.Add("target", MsgReportTarget)
	}
	in.Reason = strings.TrimSpace(in.Reason)
	switch n := runes(in.Reason); {
	case n == 0:
		errs.Add("reason", MsgReasonEmpty)
	case n > MaxReasonLength:
		errs.Add("reason", MsgReasonTooLong)
	}
	return errs.Err()
}
