package resources

import (
	"context"
	"net/url"
	"strings"

	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/table"
	"github.com/ff-monheim/ams-console/pkg/types"
)

// RankDraft is the rank form.
type RankDraft struct {
	Name         string `form:"name" validate:"notblank,min=3,max=100"`
	Abbreviation string `form:"abbreviation" validate:"notblank,min=2,max=10"`
}

var rankMeta = Meta{
	Name:           Ranks,
	Path:           "/dienstgrade",
	Title:          "Dienstgrade",
	Description:    "Verwalten Sie Ihre Dienstgrade und deren Informationen.",
	Singular:       "Dienstgrad",
	Article:        "Der Dienstgrad",
	CreateTitle:    "Neuer Dienstgrad",
	EditTitle:      "Dienstgrad bearbeiten",
	CreateHint:     "Erstellen Sie einen neuen Dienstgrad. Füllen Sie alle Pflichtfelder aus.",
	EditHint:       "Bearbeiten Sie die Dienstgrad-Daten. Ändern Sie die gewünschten Felder.",
	AddLabel:       "Dienstgrad anlegen",
	EmptyText:      "Noch keine Dienstgrade vorhanden.",
	EmptyAction:    "Ersten Dienstgrad anlegen",
	DeleteQuestion: "Möchten Sie diesen Dienstgrad wirklich löschen?",
	Deleted:        "Dienstgrad erfolgreich gelöscht",
	Fields: []Field{
		{Name: "name", Label: "Bezeichnung", Placeholder: "z.B. Brandoberinspektor"},
		{Name: "abbreviation", Label: "Kürzel", Placeholder: "z.B. BOI"},
	},
}

// Ranks share the course rules and texts.
var rankMessages = courseMessages

// NewRanks returns the rank entity.
func NewRanks(deps Deps) Entity {
	return newResource[RankDraft, types.Rank](rankMeta, rankBinding{}, deps)
}

type rankBinding struct{}

func (rankBinding) Resource() string { return Ranks }
func (rankBinding) Defaults() RankDraft { return RankDraft{} }
func (rankBinding) RecordID(r types.Rank) string { return r.ID }
func (rankBinding) Label(r types.Rank) string { return r.Name }
func (rankBinding) Messages() forms.Messages { return rankMessages }

func (rankBinding) FromRecord(r types.Rank) RankDraft {
	return RankDraft{Name: r.Name, Abbreviation: r.Abbreviation}
}

func (rankBinding) Notices() forms.Notices {
	return forms.Notices{
		Created:      "Dienstgrad erfolgreich erstellt",
		Updated:      "Dienstgrad erfolgreich aktualisiert",
		CreateFailed: "Fehler beim Erstellen des Dienstgrades",
		UpdateFailed: "Fehler beim Aktualisieren des Dienstgrades",
	}
}

func (rankBinding) Decode(form url.Values) RankDraft {
	return RankDraft{Name: form.Get("name"), Abbreviation: form.Get("abbreviation")}
}

func (rankBinding) Encode(d RankDraft) url.Values {
	return url.Values{"name": {d.Name}, "abbreviation": {d.Abbreviation}}
}

func (rankBinding) Columns() []table.Column[types.Rank] {
	return []table.Column[types.Rank]{
		{Key: "name", Header: "Bezeichnung", Sortable: true, Value: func(r types.Rank) string { return r.Name }},
		{Key: "abbreviation", Header: "Kürzel", Value: func(r types.Rank) string { return r.Abbreviation }},
	}
}

func (rankBinding) List(ctx context.Context, api API) ([]types.Rank, error) {
	return api.ListRanks(ctx)
}

func (rankBinding) Get(ctx context.Context, api API, id string) (*types.Rank, error) {
	return api.GetRank(ctx, id)
}

func (rankBinding) Create(ctx context.Context, api API, d RankDraft) (string, error) {
	created, err := api.CreateRank(ctx, types.CreateRankRequest{
		Name:         strings.TrimSpace(d.Name),
		Abbreviation: strings.TrimSpace(d.Abbreviation),
	})
	if err != nil || created == nil {
		return "", err
	}
	return created.ID, nil
}

func (rankBinding) Update(ctx context.Context, api API, id string, d RankDraft) error {
	_, err := api.UpdateRank(ctx, id, types.UpdateRankRequest{
		Name:         strings.TrimSpace(d.Name),
		Abbreviation: strings.TrimSpace(d.Abbreviation),
	})
	return err
}

func (rankBinding) Delete(ctx context.Context, api API, id string) error {
	return api.DeleteRank(ctx, id)
}
