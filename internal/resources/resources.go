// Package resources binds the AMS entities (locations, courses, ranks) to the
// console: their drafts and validation messages, the table columns, the
// cache fetchers and the audited create, update and delete calls.
//
// Each entity is exposed to the web layer as an Entity, so page handlers are
// written once for all three.
package resources

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/ff-monheim/ams-console/internal/audit"
	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/notify"
	"github.com/ff-monheim/ams-console/internal/policy"
	"github.com/ff-monheim/ams-console/internal/query"
	"github.com/ff-monheim/ams-console/internal/table"
	"github.com/ff-monheim/ams-console/pkg/client"
	"github.com/ff-monheim/ams-console/pkg/types"
)

// Resource names, used as cache keys, metric labels and audit fields.
const (
	Locations = "locations"
	Courses   = "courses"
	Ranks     = "ranks"
)

const unknownError = "Unbekannter Fehler"

// ErrNotFound is returned when a record id is not known to the API.
var ErrNotFound = errors.New("record not found")

// API is the part of the AMS client the console uses.
type API interface {
	ListCourses(ctx context.Context) ([]types.Course, error)
	GetCourse(ctx context.Context, id string) (*types.Course, error)
	CreateCourse(ctx context.Context, req types.CreateCourseRequest) (*types.Course, error)
	UpdateCourse(ctx context.Context, id string, req types.UpdateCourseRequest) (*types.Course, error)
	DeleteCourse(ctx context.Context, id string) error

	ListLocations(ctx context.Context) ([]types.Location, error)
	GetLocation(ctx context.Context, id string) (*types.Location, error)
	CreateLocation(ctx context.Context, req types.CreateLocationRequest) (*types.Location, error)
	UpdateLocation(ctx context.Context, id string, req types.UpdateLocationRequest) (*types.Location, error)
	DeleteLocation(ctx context.Context, id string) error

	ListRanks(ctx context.Context) ([]types.Rank, error)
	GetRank(ctx context.Context, id string) (*types.Rank, error)
	CreateRank(ctx context.Context, req types.CreateRankRequest) (*types.Rank, error)
	UpdateRank(ctx context.Context, id string, req types.UpdateRankRequest) (*types.Rank, error)
	DeleteRank(ctx context.Context, id string) error
}

var _ API = (*client.Client)(nil)

// MutationCounter counts create, update and delete outcomes.
type MutationCounter interface {
	Mutation(resource, action, result string)
}

// Deps are shared by every entity.
type Deps struct {
	API       API
	Cache     *query.Coordinator
	Validator *forms.Validator
	Notifier  notify.Notifier
	Guard     *policy.Guard
	Audit     *audit.Logger
	Metrics   MutationCounter
	Logger    zerolog.Logger

	// FormIdleTTL drops a session's open form after this long without use.
	FormIdleTTL time.Duration
	Now         func() time.Time
}

// Field describes one form input.
type Field struct {
	// Name is the form key and validation path, for example "address.zipCode".
	Name        string
	Label       string
	Placeholder string
	Numeric     bool
}

// Meta holds an entity's routes and German page texts.
type Meta struct {
	Name        string
	Path        string
	Title       string
	Description string
	Singular    string
	// Article prefixes the singular in sentences ("Der Lehrgang").
	Article string

	CreateTitle string
	EditTitle   string
	CreateHint  string
	EditHint    string
	AddLabel    string
	EmptyText   string
	EmptyAction string

	DeleteQuestion string
	Deleted        string

	Fields []Field
}

// NewURL opens the create form.
func (m Meta) NewURL() string { return m.Path + "/neu" }

// EditURL opens the edit form for id.
func (m Meta) EditURL(id string) string { return m.Path + "/" + url.PathEscape(id) + "/bearbeiten" }

// DeleteURL shows and confirms the delete dialog for id.
func (m Meta) DeleteURL(id string) string { return m.Path + "/" + url.PathEscape(id) + "/loeschen" }

// SubmitURL receives form posts.
func (m Meta) SubmitURL() string { return m.Path + "/formular" }

// CloseURL cancels the form.
func (m Meta) CloseURL() string { return m.Path + "/formular/schliessen" }

// ListView is everything a list page renders.
type ListView struct {
	Meta     Meta
	CanWrite bool
	// Loading is set when no data arrived before the render deadline.
	Loading bool
	// Error is set when the last load failed. Previously loaded rows are
	// still in Table.
	Error   string
	HasData bool
	Table   table.View
}

// FieldView is a rendered form input.
type FieldView struct {
	Field
	Value string
	Error string
}

// FormView is the form sheet of one session.
type FormView struct {
	Open       bool
	Editing    bool
	Submitting bool
	Title      string
	Hint       string
	Action     string
	CancelURL  string
	Fields     []FieldView
}

// Entity is one resource as seen by the page handlers.
type Entity interface {
	Meta() Meta
	List(ctx context.Context, params url.Values, canWrite bool) ListView
	Count(ctx context.Context) (int, error)
	Label(ctx context.Context, id string) (string, error)

	Form(sessionID string) FormView
	OpenCreate(sessionID string) error
	OpenEdit(ctx context.Context, sessionID, id string) error
	Submit(ctx context.Context, sessionID string, form url.Values) (FormView, error)
	CloseForm(sessionID string) error
	DropSession(sessionID string)

	Delete(ctx context.Context, id string) error
	Close()
}

// All returns the entities in navigation order.
func All(deps Deps) []Entity {
	return []Entity{
		NewLocations(deps),
		NewCourses(deps),
		NewRanks(deps),
	}
}

// ErrorMessage turns an error into text for a notification. API problem
// details are shown as the server wrote them.
func ErrorMessage(err error) string {
	var apiErr *client.APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message()
	case errors.Is(err, policy.ErrReadOnly):
		return "Die Konsole ist schreibgeschützt"
	case errors.Is(err, ErrNotFound):
		return "Eintrag nicht gefunden"
	case errors.Is(err, context.DeadlineExceeded):
		return "Zeitüberschreitung bei der Anfrage"
	default:
		return unknownError
	}
}

func checkDeps(deps Deps) Deps {
	if deps.Cache == nil {
		panic("resources: cache is required")
	}
	if deps.Validator == nil {
		deps.Validator = forms.NewValidator()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return deps
}
