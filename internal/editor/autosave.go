package editor

import (
	"context"
	"sync"
	"time"

	"github.com/codu-code/codu/internal/client"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/validation"
)

const (
	DefaultAutosaveDelay     = 1500 * time.Millisecond
	DefaultMinAutosaveLength = 5

	msgAutosaveFailed = "Something went wrong auto-saving"
)

// API is the part of the RPC client the editor calls.
type API interface {
	CreatePost(ctx context.Context, in validation.SavePostInput) (*client.PostRef, error)
	UpdatePost(ctx context.Context, in validation.SavePostInput) (*client.EditablePost, error)
	PublishPost(ctx context.Context, in client.PublishInput) (*client.PublishResult, error)
}

type options struct {
	delay     time.Duration
	minLength int
	toaster   Toaster
	reporter  ErrorReporter
	now       func() time.Time
}

type Option func(*options)

func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

func WithMinLength(n int) Option {
	return func(o *options) { o.minLength = n }
}

// WithEditorConfig applies the editor section of the server config.
func WithEditorConfig(c config.EditorConfig) Option {
	return func(o *options) {
		if c.AutosaveDelay > 0 {
			o.delay = c.AutosaveDelay
		}
		if c.MinAutosave > 0 {
			o.minLength = c.MinAutosave
		}
	}
}

func WithToaster(t Toaster) Option {
	return func(o *options) { o.toaster = t }
}

func WithReporter(r ErrorReporter) Option {
	return func(o *options) { o.reporter = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		delay:     DefaultAutosaveDelay,
		minLength: DefaultMinAutosaveLength,
		toaster:   LogToaster{Logger: editorLogger},
		reporter:  LogReporter{Logger: editorLogger},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Autosaver saves a session's title and body after a quiet period.
type Autosaver struct {
	api     API
	session *Session
	opts    options

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	pending sync.WaitGroup

	// saveMu keeps a timer save and a flush from racing on create.
	saveMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAutosaver attaches an autosaver to s. Edits made through SetTitle and
// SetBody restart the quiet period.
func NewAutosaver(api API, s *Session, opts ...Option) *Autosaver {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Autosaver{
		api:     api,
		session: s,
		opts:    newOptions(opts),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.observe(a.Changed)
	return a
}

// Changed restarts the quiet period.
func (a *Autosaver) Changed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	a.cancelTimerLocked()
	a.pending.Add(1)
	a.timer = time.AfterFunc(a.opts.delay, func() {
		defer a.pending.Done()
		a.save(a.ctx)
	})
}

// cancelTimerLocked stops a pending timer. Must hold a.mu.
func (a *Autosaver) cancelTimerLocked() {
	if a.timer != nil && a.timer.Stop() {
		a.pending.Done()
	}
	a.timer = nil
}

// Cancel drops a pending save without stopping the autosaver.
func (a *Autosaver) Cancel() {
	a.mu.Lock()
	a.cancelTimerLocked()
	a.mu.Unlock()
}

// Flush cancels the quiet period and saves now with the same guards as a
// timed save.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.Cancel()
	return a.save(ctx)
}

// Stop cancels any pending save and waits for one in flight to finish.
// Later edits are ignored.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.cancelTimerLocked()
	a.mu.Unlock()

	a.pending.Wait()
	a.cancel()
	a.session.observe(nil)
}

// eligible reports whether snap should be sent to the server.
func (a *Autosaver) eligible(snap snapshot) bool {
	switch {
	case snap.submitted:
		return false
	case snap.status != model.StatusDraft:
		return false
	case snap.contentLength < a.opts.minLength:
		return false
	case snap.matchesServer:
		return false
	}
	return true
}

func (a *Autosaver) save(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	snap := a.session.snapshot()
	if !a.eligible(snap) {
		return nil
	}

	id, status, err := persist(ctx, a.api, snap)
	if err != nil {
		editorLogger.Debug().Err(err).Str("post_id", string(snap.id)).Msg("Autosave failed")
		a.opts.toaster.Error(msgAutosaveFailed)
		a.opts.reporter.Report(ctx, err, map[string]string{"op": "autosave", "post_id": string(snap.id)})
		return err
	}

	a.session.saved(id, status, snap.input, a.opts.now())
	editorLogger.Debug().Str("post_id", string(id)).Msg("Autosaved")
	return nil
}

// persist creates the post when it has no id yet, otherwise updates it.
func persist(ctx context.Context, api API, snap snapshot) (model.PostID, model.Status, error) {
	if snap.id == "" {
		ref, err := api.CreatePost(ctx, snap.input)
		if err != nil {
			return "", "", err
		}
		return ref.ID, ref.Status, nil
	}

	post, err := api.UpdatePost(ctx, snap.input)
	if err != nil {
		return "", "", err
	}
	return post.ID, post.Status, nil
}
