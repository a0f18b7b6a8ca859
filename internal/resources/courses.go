package resources

import (
	"context"
	"net/url"
	"strings"

	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/table"
	"github.com/ff-monheim/ams-console/pkg/types"
)

// CourseDraft is the course form.
type CourseDraft struct {
	Name         string `form:"name" validate:"notblank,min=3,max=100"`
	Abbreviation string `form:"abbreviation" validate:"notblank,min=2,max=10"`
}

var courseMeta = Meta{
	Name:           Courses,
	Path:           "/lehrgänge",
	Title:          "Lehrgänge",
	Description:    "Verwalten Sie Ihre Lehrgänge und deren Informationen.",
	Singular:       "Lehrgang",
	Article:        "Der Lehrgang",
	CreateTitle:    "Neuer Lehrgang",
	EditTitle:      "Lehrgang bearbeiten",
	CreateHint:     "Erstellen Sie einen neuen Lehrgang. Füllen Sie alle Pflichtfelder aus.",
	EditHint:       "Bearbeiten Sie die Lehrgangsdaten. Ändern Sie die gewünschten Felder.",
	AddLabel:       "Lehrgang anlegen",
	EmptyText:      "Noch keine Kurse vorhanden.",
	EmptyAction:    "Ersten Lehrgang anlegen",
	DeleteQuestion: "Möchten Sie diesen Lehrgang wirklich löschen?",
	Deleted:        "Kurs erfolgreich gelöscht",
	Fields: []Field{
		{Name: "name", Label: "Bezeichnung", Placeholder: "z.B. Truppmann Modul 1"},
		{Name: "abbreviation", Label: "Kürzel", Placeholder: "z.B. TM-M1"},
	},
}

var courseMessages = forms.Messages{
	"name.notblank":         "Bezeichnung ist erforderlich",
	"name.min":              "Bezeichnung muss mindestens 3 Zeichen lang sein",
	"name.max":              "Bezeichnung darf maximal 100 Zeichen lang sein",
	"abbreviation.notblank": "Kürzel ist erforderlich",
	"abbreviation.min":      "Kürzel muss mindestens 2 Zeichen lang sein",
	"abbreviation.max":      "Kürzel darf maximal 10 Zeichen lang sein",
}

// NewCourses returns the course entity.
func NewCourses(deps Deps) Entity {
	return newResource[CourseDraft, types.Course](courseMeta, courseBinding{}, deps)
}

type courseBinding struct{}

func (courseBinding) Resource() string { return Courses }
func (courseBinding) Defaults() CourseDraft { return CourseDraft{} }
func (courseBinding) RecordID(c types.Course) string { return c.ID }
func (courseBinding) Label(c types.Course) string { return c.Name }
func (courseBinding) Messages() forms.Messages { return courseMessages }

func (courseBinding) FromRecord(c types.Course) CourseDraft {
	return CourseDraft{Name: c.Name, Abbreviation: c.Abbreviation}
}

func (courseBinding) Notices() forms.Notices {
	return forms.Notices{
		Created:      "Lehrgang erfolgreich erstellt",
		Updated:      "Lehrgang erfolgreich aktualisiert",
		CreateFailed: "Fehler beim Erstellen des Lehrgangs",
		UpdateFailed: "Fehler beim Aktualisieren des Lehrgangs",
	}
}

func (courseBinding) Decode(form url.Values) CourseDraft {
	return CourseDraft{Name: form.Get("name"), Abbreviation: form.Get("abbreviation")}
}

func (courseBinding) Encode(d CourseDraft) url.Values {
	return url.Values{"name": {d.Name}, "abbreviation": {d.Abbreviation}}
}

func (courseBinding) Columns() []table.Column[types.Course] {
	return []table.Column[types.Course]{
		{Key: "name", Header: "Bezeichnung", Sortable: true, Value: func(c types.Course) string { return c.Name }},
		{Key: "abbreviation", Header: "Kürzel", Value: func(c types.Course) string { return c.Abbreviation }},
	}
}

func (courseBinding) List(ctx context.Context, api API) ([]types.Course, error) {
	return api.ListCourses(ctx)
}

func (courseBinding) Get(ctx context.Context, api API, id string) (*types.Course, error) {
	return api.GetCourse(ctx, id)
}

func (courseBinding) Create(ctx context.Context, api API, d CourseDraft) (string, error) {
	created, err := api.CreateCourse(ctx, types.CreateCourseRequest{
		Name:         strings.TrimSpace(d.Name),
		Abbreviation: strings.TrimSpace(d.Abbreviation),
	})
	if err != nil || created == nil {
		return "", err
	}
	return created.ID, nil
}

func (courseBinding) Update(ctx context.Context, api API, id string, d CourseDraft) error {
	_, err := api.UpdateCourse(ctx, id, types.UpdateCourseRequest{
		Name:         strings.TrimSpace(d.Name),
		Abbreviation: strings.TrimSpace(d.Abbreviation),
	})
	return err
}

func (courseBinding) Delete(ctx context.Context, api API, id string) error {
	return api.DeleteCourse(ctx, id)
}
