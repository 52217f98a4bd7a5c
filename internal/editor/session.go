// Package editor holds the client side of post authoring: the editing
// session, the debounced autosave and the publish flow.
package editor

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codu-code/codu/internal/client"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/validation"
)

// Session is the local state of one post being edited. It is safe for
// concurrent use; the autosaver reads it from its own goroutine.
type Session struct {
	mu sync.Mutex

	id           model.PostID
	title        string
	body         string
	tags         []string
	excerpt      string
	canonicalURL string

	scheduled bool
	publishAt time.Time

	unsaved   bool
	lastSaved time.Time

	// status is the server side status, empty until the post exists.
	status model.Status
	// savedTitle and savedBody are the last values the server confirmed.
	savedTitle string
	savedBody  string

	submitted bool

	onChange func()
}

// NewSession starts an empty session for a new post.
func NewSession() *Session {
	return &Session{}
}

// SessionFromPost starts a session from a post loaded for editing.
func SessionFromPost(p *client.EditablePost) *Session {
	s := &Session{
		id:           p.ID,
		title:        p.Title,
		body:         p.Body,
		tags:         append([]string(nil), p.Tags...),
		excerpt:      p.Excerpt,
		canonicalURL: p.CanonicalURL,
		status:       p.Status,
		savedTitle:   p.Title,
		savedBody:    p.Body,
		lastSaved:    p.UpdatedAt,
	}
	if p.Status == model.StatusScheduled && p.Published != nil {
		s.scheduled = true
		s.publishAt = *p.Published
	}
	return s
}

func (s *Session) observe(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// edit applies fn under the lock and notifies the observer when title or
// body changed.
func (s *Session) edit(fn func(), contentChanged bool) {
	s.mu.Lock()
	fn()
	s.unsaved = true
	notify := s.onChange
	s.mu.Unlock()

	if contentChanged && notify != nil {
		notify()
	}
}

func (s *Session) SetTitle(title string) {
	s.edit(func() { s.title = title }, true)
}

func (s *Session) SetBody(body string) {
	s.edit(func() { s.body = body }, true)
}

func (s *Session) SetExcerpt(excerpt string) {
	s.edit(func() { s.excerpt = excerpt }, false)
}

func (s *Session) SetCanonicalURL(u string) {
	s.edit(func() { s.canonicalURL = u }, false)
}

// AddTag appends tag unless the list is full. Duplicates are kept so the
// publish step can report them.
func (s *Session) AddTag(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tags) >= validation.MaxTags || tag == "" {
		return false
	}
	s.tags = append(s.tags, tag)
	s.unsaved = true
	return true
}

func (s *Session) RemoveTag(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.tags) {
		return
	}
	s.tags = append(s.tags[:i], s.tags[i+1:]...)
	s.unsaved = true
}

// TagInputDisabled reports whether the tag list is full.
func (s *Session) TagInputDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags) >= validation.MaxTags
}

// SetSchedule toggles scheduling. at is ignored when on is false.
func (s *Session) SetSchedule(on bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = on
	if on {
		s.publishAt = at
	} else {
		s.publishAt = time.Time{}
	}
}

func (s *Session) ID() model.PostID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

func (s *Session) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags...)
}

// Status is the server status; new posts count as drafts.
func (s *Session) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == "" {
		return model.StatusDraft
	}
	return s.status
}

func (s *Session) Unsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved
}

func (s *Session) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// snapshot is a consistent copy of what a save would send.
type snapshot struct {
	id        model.PostID
	status    model.Status
	submitted bool
	input     validation.SavePostInput
	// matchesServer is true when title and body equal the last saved values.
	matchesServer bool
	contentLength int

	scheduled bool
	publishAt time.Time
}

func (s *Session) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if status == "" {
		status = model.StatusDraft
	}
	return snapshot{
		id:        s.id,
		status:    status,
		submitted: s.submitted,
		input: validation.SavePostInput{
			ID:           s.id,
			Title:        s.title,
			Body:         s.body,
			Excerpt:      s.excerpt,
			Tags:         append([]string{}, s.tags...),
			CanonicalURL: s.canonicalURL,
		},
		matchesServer: s.id != "" && s.title == s.savedTitle && s.body == s.savedBody,
		contentLength: utf8.RuneCountInString(s.title + s.body),
		scheduled:     s.scheduled,
		publishAt:     s.publishAt,
	}
}

// saved records a successful save of in.
func (s *Session) saved(id model.PostID, status model.Status, in validation.SavePostInput, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	if status != "" {
		s.status = status
	}
	s.savedTitle = in.Title
	s.savedBody = in.Body
	s.lastSaved = at
	s.unsaved = s.title != in.Title || s.body != in.Body
}

// published marks the session terminal.
func (s *Session) published(res *client.PublishResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = res.ID
	s.status = res.Status
	s.submitted = true
	s.unsaved = false
}
