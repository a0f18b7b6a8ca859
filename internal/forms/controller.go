// Package forms drives create and edit forms for AMS resources.
//
// A Controller is a small state machine (Closed, OpenCreate, OpenEdit,
// Submitting) around one draft. It validates drafts, calls the API through a
// Mutator and, on success, tells the cache to reload the resource.
package forms

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ff-monheim/ams-console/internal/notify"
)

// State is the lifecycle state of a form.
type State int

const (
	StateClosed State = iota
	StateOpenCreate
	StateOpenEdit
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpenCreate:
		return "open_create"
	case StateOpenEdit:
		return "open_edit"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsOpen reports whether the form is shown and editable.
func (s State) IsOpen() bool {
	return s == StateOpenCreate || s == StateOpenEdit
}

var (
	// ErrInvalidTransition is returned for operations the current state does not allow.
	ErrInvalidTransition = errors.New("invalid form state transition")
	// ErrValidation is returned by Submit when the draft has field errors.
	ErrValidation = errors.New("draft failed validation")
)

// Notices are the user-facing texts shown after a submit.
type Notices struct {
	Created      string
	Updated      string
	CreateFailed string
	UpdateFailed string
}

// Schema describes one resource's draft.
type Schema[D any, R any] interface {
	Resource() string
	Defaults() D
	FromRecord(record R) D
	RecordID(record R) string
	Messages() Messages
	Notices() Notices
}

// Mutator performs the API calls behind a submit.
type Mutator[D any] interface {
	Create(ctx context.Context, draft D) error
	Update(ctx context.Context, id string, draft D) error
}

// Cache is the part of the resource cache a form needs after a successful submit.
type Cache interface {
	InvalidateResource(resource string)
	RefetchResource(ctx context.Context, resource string) error
}

// Deps are shared by every controller.
type Deps struct {
	Validator *Validator
	Cache     Cache
	Notifier  notify.Notifier
	Logger    zerolog.Logger
}

// View is a consistent snapshot of a controller for rendering.
type View[D any] struct {
	State  State
	Draft  D
	EditID string
	Errors ValidationResult
}

// Controller owns the form of one resource in one browser session.
type Controller[D any, R any] struct {
	schema  Schema[D, R]
	mutator Mutator[D]
	deps    Deps

	mu     sync.Mutex
	state  State
	draft  D
	editID string
	errors ValidationResult
}

// NewController returns a closed controller.
func NewController[D any, R any](schema Schema[D, R], mutator Mutator[D], deps Deps) *Controller[D, R] {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	return &Controller[D, R]{
		schema:  schema,
		mutator: mutator,
		deps:    deps,
		draft:   schema.Defaults(),
	}
}

// Open shows the form. With a record the form edits it, otherwise it creates
// a new one from defaults. Opening an open form starts over.
func (c *Controller[D, R]) Open(initial *R) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return fmt.Errorf("open from %s: %w", c.state, ErrInvalidTransition)
	}

	c.errors = ValidationResult{}
	if initial != nil {
		c.state = StateOpenEdit
		c.draft = c.schema.FromRecord(*initial)
		c.editID = c.schema.RecordID(*initial)
		return nil
	}
	c.state = StateOpenCreate
	c.draft = c.schema.Defaults()
	c.editID = ""
	return nil
}

// Close discards the draft. Closing a closed form is a no-op.
func (c *Controller[D, R]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return fmt.Errorf("close from %s: %w", c.state, ErrInvalidTransition)
	}
	c.resetLocked()
	return nil
}

// Validate checks draft against the schema's rules. It has no side effects.
func (c *Controller[D, R]) Validate(draft D) ValidationResult {
	return c.deps.Validator.Validate(draft, c.schema.Messages())
}

// Submit validates draft and, when valid, creates or updates the record
// depending on how the form was opened. An invalid draft never reaches the
// API: the form stays open with the draft and its errors.
func (c *Controller[D, R]) Submit(ctx context.Context, draft D) (ValidationResult, error) {
	c.mu.Lock()
	if !c.state.IsOpen() {
		state := c.state
		c.mu.Unlock()
		return ValidationResult{}, fmt.Errorf("submit from %s: %w", state, ErrInvalidTransition)
	}

	c.draft = draft
	result := c.Validate(draft)
	c.errors = result
	if !result.Valid() {
		c.mu.Unlock()
		return result, ErrValidation
	}

	mode := c.state
	editID := c.editID
	c.state = StateSubmitting
	c.mu.Unlock()

	resource := c.schema.Resource()
	notices := c.schema.Notices()
	logger := c.deps.Logger.With().Str("resource", resource).Str("mode", mode.String()).Logger()

	var err error
	if mode == StateOpenEdit {
		err = c.mutator.Update(ctx, editID, draft)
	} else {
		err = c.mutator.Create(ctx, draft)
	}

	if err != nil {
		c.mu.Lock()
		c.state = mode
		c.mu.Unlock()

		logger.Warn().Err(err).Str("id", editID).Msg("submit failed")
		if mode == StateOpenEdit {
			c.deps.Notifier.Notify(ctx, notify.Error(notices.UpdateFailed))
			return result, fmt.Errorf("updating %s %q: %w", resource, editID, err)
		}
		c.deps.Notifier.Notify(ctx, notify.Error(notices.CreateFailed))
		return result, fmt.Errorf("creating %s: %w", resource, err)
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if c.deps.Cache != nil {
		c.deps.Cache.InvalidateResource(resource)
		if err := c.deps.Cache.RefetchResource(ctx, resource); err != nil {
			logger.Warn().Err(err).Msg("refetch after submit failed")
		}
	}

	if mode == StateOpenEdit {
		c.deps.Notifier.Notify(ctx, notify.Success(notices.Updated))
	} else {
		c.deps.Notifier.Notify(ctx, notify.Success(notices.Created))
	}
	logger.Debug().Str("id", editID).Msg("submit succeeded")
	return result, nil
}

// View returns a snapshot for rendering.
func (c *Controller[D, R]) View() View[D] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View[D]{
		State:  c.state,
		Draft:  c.draft,
		EditID: c.editID,
		Errors: c.errors,
	}
}

// State returns the current state.
func (c *Controller[D, R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller[D, R]) resetLocked() {
	c.state = StateClosed
	c.draft = c.schema.Defaults()
	c.editID = ""
	c.errors = ValidationResult{}
}
