package resources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ff-monheim/ams-console/internal/audit"
	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/notify"
	"github.com/ff-monheim/ams-console/internal/policy"
	"github.com/ff-monheim/ams-console/internal/query"
	"github.com/ff-monheim/ams-console/pkg/client"
	"github.com/ff-monheim/ams-console/pkg/types"
)

type mutationCounter struct {
	mu    sync.Mutex
	calls []string
}

func (c *mutationCounter) Mutation(resource, action, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, resource+"/"+action+"/"+result)
}

func (c *mutationCounter) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fixture struct {
	api      *fakeAPI
	cache    *query.Coordinator
	notes    *notify.Recorder
	auditLog *bytes.Buffer
	counter  *mutationCounter
	deps     Deps
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()

	guard, err := policy.NewGuard(mode)
	require.NoError(t, err)

	cache := query.New(query.Options{Logger: zerolog.Nop()})
	t.Cleanup(cache.Close)

	f := &fixture{
		api:      newFakeAPI(),
		cache:    cache,
		notes:    &notify.Recorder{},
		auditLog: &bytes.Buffer{},
		counter:  &mutationCounter{},
	}
	f.deps = Deps{
		API:      f.api,
		Cache:    cache,
		Notifier: f.notes,
		Guard:    guard,
		Audit:    audit.NewLogger(zerolog.New(f.auditLog)),
		Metrics:  f.counter,
		Logger:   zerolog.Nop(),
	}
	return f
}

func (f *fixture) entity(t *testing.T, build func(Deps) Entity) Entity {
	t.Helper()
	e := build(f.deps)
	t.Cleanup(e.Close)
	return e
}

func (f *fixture) lastNote(t *testing.T) notify.Notification {
	t.Helper()
	n, ok := f.notes.Last()
	require.True(t, ok, "expected a notification")
	return n
}

func field(view FormView, name string) FieldView {
	for _, f := range view.Fields {
		if f.Name == name {
			return f
		}
	}
	return FieldView{}
}

func locationForm(zip string) url.Values {
	return url.Values{
		"name":                {"Feuerwache Monheim"},
		"address.street":      {"Hauptstraße"},
		"address.houseNumber": {"12"},
		"address.zipCode":     {zip},
		"address.city":        {"Monheim"},
		"address.country":     {"Deutschland"},
	}
}

func TestLocation_ShortZipCodeIsRejectedBeforeTheAPI(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	locations := f.entity(t, NewLocations)
	ctx := context.Background()

	require.NoError(t, locations.OpenCreate("s1"))
	view, err := locations.Submit(ctx, "s1", locationForm("5000"))

	require.ErrorIs(t, err, forms.ErrValidation)
	assert.True(t, view.Open)
	assert.Equal(t, "PLZ muss 5-stellig sein", field(view, "address.zipCode").Error)
	assert.Equal(t, "5000", field(view, "address.zipCode").Value, "entered value is kept")
	assert.Empty(t, field(view, "name").Error)
	assert.Zero(t, f.api.count(f.api.creates, Locations))

	view, err = locations.Submit(ctx, "s1", locationForm("40789"))
	require.NoError(t, err)
	assert.False(t, view.Open)
	assert.Equal(t, 1, f.api.count(f.api.creates, Locations))
	assert.Equal(t, types.CreateLocationRequest{
		Name: "Feuerwache Monheim",
		Address: types.Address{
			Street:      "Hauptstraße",
			HouseNumber: 12,
			ZipCode:     40789,
			City:        "Monheim",
			Country:     "Deutschland",
		},
	}, f.api.lastLocation)
	assert.Equal(t, notify.Success("Standort erfolgreich erstellt"), f.lastNote(t))
}

func TestLocation_FormDefaultsAndFieldMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	locations := f.entity(t, NewLocations)

	assert.False(t, locations.Form("s1").Open)
	require.NoError(t, locations.OpenCreate("s1"))

	view := locations.Form("s1")
	assert.True(t, view.Open)
	assert.False(t, view.Editing)
	assert.Equal(t, "Neuer Standort", view.Title)
	assert.Equal(t, "/standorte/formular", view.Action)
	assert.Equal(t, "/standorte/formular/schliessen", view.CancelURL)
	assert.Equal(t, "Deutschland", field(view, "address.country").Value)
	assert.Empty(t, field(view, "address.zipCode").Value)
	assert.True(t, field(view, "address.zipCode").Numeric)

	view, err := locations.Submit(context.Background(), "s1", url.Values{
		"name":                {""},
		"address.street":      {"   "},
		"address.houseNumber": {"12a"},
		"address.zipCode":     {""},
		"address.city":        {"Monheim"},
		"address.country":     {"Deutschland"},
	})
	require.ErrorIs(t, err, forms.ErrValidation)

	assert.Equal(t, "Name ist erforderlich", field(view, "name").Error)
	assert.Equal(t, "Straße ist erforderlich", field(view, "address.street").Error)
	assert.Equal(t, "Bitte geben Sie eine gültige Nummer ein", field(view, "address.houseNumber").Error)
	assert.Equal(t, "Bitte geben Sie eine gültige PLZ ein", field(view, "address.zipCode").Error)
	assert.Empty(t, field(view, "address.city").Error)
	assert.Equal(t, "12a", field(view, "address.houseNumber").Value)
}

func TestCourse_CreateReloadsTheList(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	courses := f.entity(t, NewCourses)
	ctx := context.Background()

	list := courses.List(ctx, nil, true)
	require.True(t, list.HasData)
	assert.True(t, list.Table.Empty())

	require.NoError(t, courses.OpenCreate("s1"))
	form, err := courses.Submit(ctx, "s1", url.Values{"name": {"Truppmann Modul 1"}, "abbreviation": {"TM-M1"}})
	require.NoError(t, err)
	assert.False(t, form.Open)

	list = courses.List(ctx, nil, true)
	require.Len(t, list.Table.Rows, 1)
	row := list.Table.Rows[0]
	assert.Equal(t, []string{"Truppmann Modul 1", "TM-M1"}, row.Cells)
	assert.Equal(t, "/lehrgänge/id-1/bearbeiten", row.EditURL)
	assert.Equal(t, "/lehrgänge/id-1/loeschen", row.DeleteURL)

	assert.Equal(t, notify.Success("Lehrgang erfolgreich erstellt"), f.lastNote(t))
	assert.Equal(t, []string{"courses/create/success"}, f.counter.all())

	logged := f.auditLog.String()
	assert.Contains(t, logged, `"event":"ams.mutation.completed"`)
	assert.Contains(t, logged, `"action":"create"`)
	assert.Contains(t, logged, `"record_id":"id-1"`)
	assert.Contains(t, logged, `"result":"success"`)
}

func TestCourse_CreateFailureKeepsTheDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.createErr = &client.APIError{StatusCode: http.StatusConflict, Problem: types.ProblemDetail{Detail: "Kürzel existiert bereits"}}
	courses := f.entity(t, NewCourses)

	require.NoError(t, courses.OpenCreate("s1"))
	form, err := courses.Submit(context.Background(), "s1", url.Values{"name": {"Truppmann Modul 1"}, "abbreviation": {"TM-M1"}})

	require.Error(t, err)
	assert.True(t, form.Open)
	assert.Equal(t, "TM-M1", field(form, "abbreviation").Value)
	assert.Equal(t, notify.Error("Fehler beim Erstellen des Lehrgangs"), f.lastNote(t))
	assert.Equal(t, []string{"courses/create/error"}, f.counter.all())
	assert.Contains(t, f.auditLog.String(), `"status_code":409`)
}

func TestCourse_EditPrefillsAndCancelLeavesServerUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.courses = []types.Course{{ID: "c1", Name: "Truppmann Modul 1", Abbreviation: "TM-M1"}}
	courses := f.entity(t, NewCourses)
	ctx := context.Background()

	require.NoError(t, courses.OpenEdit(ctx, "s1", "c1"))
	form := courses.Form("s1")
	assert.True(t, form.Editing)
	assert.Equal(t, "Lehrgang bearbeiten", form.Title)
	assert.Equal(t, "Truppmann Modul 1", field(form, "name").Value)
	assert.Equal(t, "TM-M1", field(form, "abbreviation").Value)

	require.NoError(t, courses.CloseForm("s1"))
	assert.False(t, courses.Form("s1").Open)
	assert.Zero(t, f.api.count(f.api.updates, Courses))

	require.NoError(t, courses.OpenEdit(ctx, "s1", "c1"))
	_, err := courses.Submit(ctx, "s1", url.Values{"name": {"Truppmann Modul 2"}, "abbreviation": {"TM-M2"}})
	require.NoError(t, err)

	assert.Equal(t, 1, f.api.count(f.api.updates, Courses))
	label, err := courses.Label(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Truppmann Modul 2", label)
	assert.Equal(t, notify.Success("Lehrgang erfolgreich aktualisiert"), f.lastNote(t))
}

func TestCourse_FormsAreScopedToTheSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	courses := f.entity(t, NewCourses)

	require.NoError(t, courses.OpenCreate("s1"))
	assert.True(t, courses.Form("s1").Open)
	assert.False(t, courses.Form("s2").Open)

	courses.DropSession("s1")
	assert.False(t, courses.Form("s1").Open)
}

func TestCourse_UnknownRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	courses := f.entity(t, NewCourses)

	err := courses.OpenEdit(context.Background(), "s1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, courses.Form("s1").Open)

	_, err = courses.Label(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCourse_DeleteRemovesTheRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.courses = []types.Course{
		{ID: "c1", Name: "Truppmann Modul 1", Abbreviation: "TM-M1"},
		{ID: "c2", Name: "Sprechfunker", Abbreviation: "SPF"},
	}
	courses := f.entity(t, NewCourses)
	ctx := context.Background()

	require.Len(t, courses.List(ctx, nil, true).Table.Rows, 2)

	require.NoError(t, courses.Delete(ctx, "c1"))

	rows := courses.List(ctx, nil, true).Table.Rows
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].ID)
	assert.Equal(t, notify.Success("Kurs erfolgreich gelöscht"), f.lastNote(t))
	assert.Equal(t, []string{"courses/delete/success"}, f.counter.all())
	assert.Contains(t, f.auditLog.String(), `"record_id":"c1"`)
}

func TestCourse_DeleteFailureNotifiesWithServerMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.courses = []types.Course{{ID: "c1", Name: "Truppmann Modul 1", Abbreviation: "TM-M1"}}
	f.api.deleteErr = &client.APIError{StatusCode: http.StatusConflict, Problem: types.ProblemDetail{Detail: "Lehrgang wird noch verwendet"}}
	courses := f.entity(t, NewCourses)

	err := courses.Delete(context.Background(), "c1")

	require.Error(t, err)
	assert.Equal(t, notify.Error("Fehler beim Löschen: Lehrgang wird noch verwendet"), f.lastNote(t))
	assert.Equal(t, []string{"courses/delete/error"}, f.counter.all())
	assert.Contains(t, f.auditLog.String(), `"result":"error"`)
}

func TestReadOnlyModeBlocksMutations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadOnly)
	f.api.ranks = []types.Rank{{ID: "r1", Name: "Brandoberinspektor", Abbreviation: "BOI"}}
	ranks := f.entity(t, NewRanks)
	ctx := context.Background()

	require.ErrorIs(t, ranks.OpenCreate("s1"), policy.ErrReadOnly)
	require.ErrorIs(t, ranks.OpenEdit(ctx, "s1", "r1"), policy.ErrReadOnly)
	assert.False(t, ranks.Form("s1").Open)

	require.ErrorIs(t, ranks.Delete(ctx, "r1"), policy.ErrReadOnly)
	assert.Zero(t, f.api.count(f.api.deletes, Ranks))
	assert.Equal(t, []string{"ranks/delete/denied"}, f.counter.all())
	assert.Equal(t, notify.Error("Fehler beim Löschen: Die Konsole ist schreibgeschützt"), f.lastNote(t))

	list := ranks.List(ctx, nil, false)
	require.Len(t, list.Table.Rows, 1)
	assert.Empty(t, list.Table.Rows[0].EditURL)
	assert.Empty(t, list.Table.Rows[0].DeleteURL)
	assert.False(t, list.CanWrite)
}

func TestList_FailedRefetchKeepsRowsAlongsideTheError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.ranks = []types.Rank{{ID: "r1", Name: "Brandmeister", Abbreviation: "BM"}}
	ranks := f.entity(t, NewRanks)
	ctx := context.Background()

	require.Len(t, ranks.List(ctx, nil, true).Table.Rows, 1)

	f.api.mu.Lock()
	f.api.listErr = &client.APIError{StatusCode: http.StatusBadGateway, Problem: types.ProblemDetail{Detail: "AMS nicht erreichbar"}}
	f.api.mu.Unlock()
	require.Error(t, f.cache.RefetchResource(ctx, Ranks))

	list := ranks.List(ctx, nil, true)
	assert.True(t, list.HasData)
	assert.Equal(t, "AMS nicht erreichbar", list.Error)
	require.Len(t, list.Table.Rows, 1)
	assert.Equal(t, "r1", list.Table.Rows[0].ID)
}

func TestList_FirstLoadFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.listErr = &client.APIError{StatusCode: http.StatusInternalServerError}
	locations := f.entity(t, NewLocations)

	list := locations.List(context.Background(), nil, true)
	assert.False(t, list.HasData)
	assert.False(t, list.Loading)
	assert.Equal(t, "Internal Server Error", list.Error)

	_, err := locations.Count(context.Background())
	require.Error(t, err)
}

func TestList_SortsFromQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	f.api.ranks = []types.Rank{
		{ID: "1", Name: "brandmeister", Abbreviation: "BM"},
		{ID: "2", Name: "Anwärter", Abbreviation: "AW"},
		{ID: "3", Name: "Oberbrandmeister", Abbreviation: "OBM"},
	}
	ranks := f.entity(t, NewRanks)

	list := ranks.List(context.Background(), url.Values{"sort": {"name"}, "dir": {"desc"}}, true)

	var ids []string
	for _, row := range list.Table.Rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []string{"3", "1", "2"}, ids)
	require.Len(t, list.Table.Headers, 2)
	assert.True(t, list.Table.Headers[0].Active)
	assert.False(t, list.Table.Headers[1].Sortable)

	count, err := ranks.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAll_NavigationOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, policy.ModeReadWrite)
	var paths []string
	for _, e := range All(f.deps) {
		t.Cleanup(e.Close)
		paths = append(paths, e.Meta().Path)
	}
	assert.Equal(t, []string{"/standorte", "/lehrgänge", "/dienstgrade"}, paths)
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "problem detail", err: fmt.Errorf("x: %w", &client.APIError{StatusCode: 400, Problem: types.ProblemDetail{Detail: "Name fehlt"}}), want: "Name fehlt"},
		{name: "read only", err: fmt.Errorf("x: %w", policy.ErrReadOnly), want: "Die Konsole ist schreibgeschützt"},
		{name: "not found", err: ErrNotFound, want: "Eintrag nicht gefunden"},
		{name: "timeout", err: context.DeadlineExceeded, want: "Zeitüberschreitung bei der Anfrage"},
		{name: "other", err: fmt.Errorf("boom"), want: "Unbekannter Fehler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ErrorMessage(tt.err))
		})
	}
}
