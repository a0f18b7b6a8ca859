package resources

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/ff-monheim/ams-console/internal/audit"
	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/notify"
	"github.com/ff-monheim/ams-console/internal/query"
	"github.com/ff-monheim/ams-console/internal/table"
	"github.com/ff-monheim/ams-console/pkg/client"
)

// binding is what an entity type provides on top of its form schema.
type binding[D any, R any] interface {
	forms.Schema[D, R]

	Decode(form url.Values) D
	Encode(draft D) url.Values
	Columns() []table.Column[R]
	Label(record R) string

	List(ctx context.Context, api API) ([]R, error)
	Get(ctx context.Context, api API, id string) (*R, error)
	Create(ctx context.Context, api API, draft D) (string, error)
	Update(ctx context.Context, api API, id string, draft D) error
	Delete(ctx context.Context, api API, id string) error
}

// resource implements Entity for one binding.
type resource[D any, R any] struct {
	meta    Meta
	binding binding[D, R]
	deps    Deps
	logger  zerolog.Logger
	forms   *forms.Registry[*forms.Controller[D, R]]
}

func newResource[D any, R any](meta Meta, b binding[D, R], deps Deps) *resource[D, R] {
	deps = checkDeps(deps)
	r := &resource[D, R]{
		meta:    meta,
		binding: b,
		deps:    deps,
		logger:  deps.Logger.With().Str("resource", meta.Name).Logger(),
	}

	formDeps := forms.Deps{
		Validator: deps.Validator,
		Cache:     deps.Cache,
		Notifier:  deps.Notifier,
		Logger:    r.logger,
	}
	r.forms = forms.NewRegistry(deps.FormIdleTTL, func() *forms.Controller[D, R] {
		return forms.NewController[D, R](b, mutator[D, R]{r: r}, formDeps)
	})

	deps.Cache.Register(meta.Name, func(ctx context.Context, _ query.Key) (any, error) {
		return b.List(ctx, deps.API)
	})
	return r
}

func (r *resource[D, R]) Meta() Meta { return r.meta }

func (r *resource[D, R]) key() query.Key { return query.ResourceKey(r.meta.Name) }

// List renders the collection from the cache, waiting for the first load
// until ctx ends.
func (r *resource[D, R]) List(ctx context.Context, params url.Values, canWrite bool) ListView {
	view := ListView{Meta: r.meta, CanWrite: canWrite}

	res, err := r.deps.Cache.Await(ctx, r.key())
	if err != nil {
		r.logger.Debug().Err(err).Msg("list not loaded before deadline")
	}
	if res.IsError {
		view.Error = ErrorMessage(res.Error)
	}
	if !res.HasData {
		view.Loading = !res.IsError
		return view
	}

	view.HasData = true
	columns := r.binding.Columns()
	spec := table.Spec[R]{
		BasePath: r.meta.Path,
		Columns:  columns,
		ID:       r.binding.RecordID,
	}
	if canWrite {
		spec.EditURL = func(rec R) string { return r.meta.EditURL(r.binding.RecordID(rec)) }
		spec.DeleteURL = func(rec R) string { return r.meta.DeleteURL(r.binding.RecordID(rec)) }
	}
	view.Table = table.Build(spec, query.Data[[]R](res), table.ParseSort(params, columns))
	return view
}

// Count returns the number of records, loading them when necessary.
func (r *resource[D, R]) Count(ctx context.Context) (int, error) {
	res, err := r.deps.Cache.Await(ctx, r.key())
	if !res.HasData {
		if res.IsError {
			return 0, res.Error
		}
		if err == nil {
			err = errors.New("no data")
		}
		return 0, fmt.Errorf("counting %s: %w", r.meta.Name, err)
	}
	return len(query.Data[[]R](res)), nil
}

// Label returns the display name of record id.
func (r *resource[D, R]) Label(ctx context.Context, id string) (string, error) {
	rec, err := r.find(ctx, id)
	if err != nil {
		return "", err
	}
	return r.binding.Label(*rec), nil
}

// find looks id up in the cached collection first and asks the API otherwise.
func (r *resource[D, R]) find(ctx context.Context, id string) (*R, error) {
	res, _ := r.deps.Cache.Await(ctx, r.key())
	for _, rec := range query.Data[[]R](res) {
		if r.binding.RecordID(rec) == id {
			return &rec, nil
		}
	}

	rec, err := r.binding.Get(ctx, r.deps.API, id)
	if client.IsNotFound(err) {
		return nil, fmt.Errorf("%s %q: %w", r.meta.Name, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s %q: %w", r.meta.Name, id, err)
	}
	return rec, nil
}

func (r *resource[D, R]) Form(sessionID string) FormView {
	return r.formView(r.forms.Get(sessionID).View())
}

func (r *resource[D, R]) OpenCreate(sessionID string) error {
	if err := r.deps.Guard.AuthorizeMutation(r.meta.Name, audit.ActionCreate); err != nil {
		return err
	}
	return r.forms.Get(sessionID).Open(nil)
}

func (r *resource[D, R]) OpenEdit(ctx context.Context, sessionID, id string) error {
	if err := r.deps.Guard.AuthorizeMutation(r.meta.Name, audit.ActionUpdate); err != nil {
		return err
	}
	rec, err := r.find(ctx, id)
	if err != nil {
		return err
	}
	return r.forms.Get(sessionID).Open(rec)
}

// Submit decodes the posted form and submits it. The returned view reflects
// the form afterwards: closed on success, open with the draft otherwise.
func (r *resource[D, R]) Submit(ctx context.Context, sessionID string, form url.Values) (FormView, error) {
	ctrl := r.forms.Get(sessionID)
	_, err := ctrl.Submit(ctx, r.binding.Decode(form))
	return r.formView(ctrl.View()), err
}

func (r *resource[D, R]) CloseForm(sessionID string) error {
	return r.forms.Get(sessionID).Close()
}

func (r *resource[D, R]) DropSession(sessionID string) {
	r.forms.Drop(sessionID)
}

// Delete removes record id, then reloads the collection.
func (r *resource[D, R]) Delete(ctx context.Context, id string) error {
	err := r.mutate(ctx, audit.ActionDelete, id, func(ctx context.Context) (string, error) {
		return id, r.binding.Delete(ctx, r.deps.API, id)
	})
	if err != nil {
		r.deps.Notifier.Notify(ctx, notify.Error("Fehler beim Löschen: "+ErrorMessage(err)))
		return err
	}

	r.deps.Cache.InvalidateResource(r.meta.Name)
	if err := r.deps.Cache.RefetchResource(ctx, r.meta.Name); err != nil {
		r.logger.Warn().Err(err).Msg("refetch after delete failed")
	}
	r.deps.Notifier.Notify(ctx, notify.Success(r.meta.Deleted))
	return nil
}

func (r *resource[D, R]) Close() {
	r.forms.Close()
}

func (r *resource[D, R]) formView(v forms.View[D]) FormView {
	out := FormView{
		Open:       v.State.IsOpen() || v.State == forms.StateSubmitting,
		Editing:    v.EditID != "",
		Submitting: v.State == forms.StateSubmitting,
		Action:     r.meta.SubmitURL(),
		CancelURL:  r.meta.CloseURL(),
	}
	if out.Editing {
		out.Title, out.Hint = r.meta.EditTitle, r.meta.EditHint
	} else {
		out.Title, out.Hint = r.meta.CreateTitle, r.meta.CreateHint
	}

	values := r.binding.Encode(v.Draft)
	out.Fields = make([]FieldView, 0, len(r.meta.Fields))
	for _, f := range r.meta.Fields {
		out.Fields = append(out.Fields, FieldView{
			Field: f,
			Value: values.Get(f.Name),
			Error: v.Errors.Get(f.Name),
		})
	}
	return out
}

// mutator adapts a resource to forms.Mutator.
type mutator[D any, R any] struct {
	r *resource[D, R]
}

func (m mutator[D, R]) Create(ctx context.Context, draft D) error {
	return m.r.mutate(ctx, audit.ActionCreate, "", func(ctx context.Context) (string, error) {
		return m.r.binding.Create(ctx, m.r.deps.API, draft)
	})
}

func (m mutator[D, R]) Update(ctx context.Context, id string, draft D) error {
	return m.r.mutate(ctx, audit.ActionUpdate, id, func(ctx context.Context) (string, error) {
		return id, m.r.binding.Update(ctx, m.r.deps.API, id, draft)
	})
}
