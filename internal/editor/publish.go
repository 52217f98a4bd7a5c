package editor

import (
	"context"
	"errors"
	"time"

	"github.com/codu-code/codu/internal/client"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/render"
	"github.com/codu-code/codu/internal/routes"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/validation"
)

const (
	msgPublishFailed = "Something went wrong publishing, please try again"
	msgPublished     = "Post published"
	msgScheduled     = "Post scheduled"
)

// ErrSubmitted is returned when publishing a session that already finished.
var ErrSubmitted = errors.New("post already submitted")

// Outcome is where the author goes after a successful publish.
type Outcome struct {
	Redirect  string
	ID        model.PostID
	Slug      string
	Status    model.Status
	Published *time.Time
}

// Publish validates the session, saves it and publishes it, either now or
// at the scheduled time. Field problems come back as *validation.Errors;
// markdown problems as a render.Diagnostic.
func (e *Editor) Publish(ctx context.Context) (*Outcome, error) {
	e.autosave.Cancel()
	e.autosave.saveMu.Lock()
	defer e.autosave.saveMu.Unlock()

	snap := e.session.snapshot()
	if snap.submitted {
		return nil, ErrSubmitted
	}

	if d, ok := render.FirstCritical(render.Validate([]byte(snap.input.Body))); ok {
		e.opts.toaster.Error(d.Error())
		return nil, d
	}

	var publishTime *time.Time
	if snap.scheduled {
		t := snap.publishAt
		publishTime = &t
	}

	confirmed, err := validation.ConfirmPost(validation.ConfirmPostInput{
		ID:           snap.id,
		Title:        snap.input.Title,
		Body:         snap.input.Body,
		Excerpt:      snap.input.Excerpt,
		Tags:         snap.input.Tags,
		CanonicalURL: snap.input.CanonicalURL,
		Published:    true,
		PublishTime:  publishTime,
	}, e.opts.now())
	if err != nil {
		return nil, err
	}

	snap.input = validation.SavePostInput{
		ID:           snap.id,
		Title:        confirmed.Title,
		Body:         confirmed.Body,
		Excerpt:      confirmed.Excerpt,
		Tags:         confirmed.Tags,
		CanonicalURL: confirmed.CanonicalURL,
	}
	id, status, err := persist(ctx, e.api, snap)
	if err != nil {
		return nil, e.publishFailed(ctx, snap.id, err)
	}
	e.session.saved(id, status, snap.input, e.opts.now())

	res, err := e.api.PublishPost(ctx, client.PublishInput{
		ID:          id,
		Published:   true,
		PublishTime: publishTime,
		Tags:        confirmed.Tags,
	})
	if err != nil {
		return nil, e.publishFailed(ctx, id, err)
	}
	e.session.published(res)

	out := &Outcome{
		ID:        res.ID,
		Slug:      res.Slug,
		Status:    res.Status,
		Published: res.Published,
	}
	if res.Status == model.StatusScheduled {
		out.Redirect = routes.MyPostsScheduled
		e.opts.toaster.Success(msgScheduled)
	} else {
		out.Redirect = routes.Article(res.Slug)
		e.opts.toaster.Success(msgPublished)
	}

	editorLogger.Info().Str("post_id", string(res.ID)).Str("status", string(res.Status)).Msg("Post submitted")
	return out, nil
}

// publishFailed turns a save or publish failure into what the author sees.
// Server field errors are returned as *validation.Errors; other server
// errors are toasted; anything else is also reported.
func (e *Editor) publishFailed(ctx context.Context, id model.PostID, err error) error {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		if len(rpcErr.FieldErrors) > 0 {
			return &validation.Errors{Fields: rpcErr.FieldErrors}
		}
		e.opts.toaster.Error(rpcErr.Message)
		return err
	}

	e.opts.toaster.Error(msgPublishFailed)
	e.opts.reporter.Report(ctx, err, map[string]string{"op": "publish", "post_id": string(id)})
	return err
}
