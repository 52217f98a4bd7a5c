package editor

import (
	"context"
	"fmt"

	"github.com/codu-code/codu/internal/client"
	"github.com/codu-code/codu/internal/model"
)

// Editor ties a session to its autosaver and the publish flow.
type Editor struct {
	api      API
	session  *Session
	autosave *Autosaver
	opts     options
}

// New opens an editor on an empty post.
func New(api API, opts ...Option) *Editor {
	return open(api, NewSession(), opts)
}

// Loader fetches a post for editing.
type Loader interface {
	EditDraft(ctx context.Context, id model.PostID) (*client.EditablePost, error)
}

// LoadingAPI can also fetch posts; *client.Client implements it.
type LoadingAPI interface {
	API
	Loader
}

// Open loads an existing post into a new editor.
func Open(ctx context.Context, api LoadingAPI, id model.PostID, opts ...Option) (*Editor, error) {
	post, err := api.EditDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load post %s: %w", id, err)
	}
	return open(api, SessionFromPost(post), opts), nil
}

func open(api API, s *Session, opts []Option) *Editor {
	o := newOptions(opts)
	return &Editor{
		api:      api,
		session:  s,
		autosave: NewAutosaver(api, s, opts...),
		opts:     o,
	}
}

func (e *Editor) Session() *Session {
	return e.session
}

// Save flushes the autosaver.
func (e *Editor) Save(ctx context.Context) error {
	return e.autosave.Flush(ctx)
}

// Close stops autosaving. Unsaved edits are dropped.
func (e *Editor) Close() {
	e.autosave.Stop()
}
