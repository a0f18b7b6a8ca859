package resources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/table"
	"github.com/ff-monheim/ams-console/pkg/types"
)

const defaultCountry = "Deutschland"

// LocationDraft is the location form.
type LocationDraft struct {
	Name    string       `form:"name" validate:"notblank,min=3,max=100"`
	Address AddressDraft `form:"address"`
}

// AddressDraft keeps house number and zip code as raw input until they parse.
type AddressDraft struct {
	Street      string       `form:"street" validate:"notblank,max=100"`
	HouseNumber forms.Number `form:"houseNumber" validate:"wholenumber,min=1,max=9999"`
	ZipCode     forms.Number `form:"zipCode" validate:"wholenumber,min=10000,max=99999"`
	City        string       `form:"city" validate:"notblank,max=100"`
	Country     string       `form:"country" validate:"notblank,max=100"`
}

var locationMeta = Meta{
	Name:           Locations,
	Path:           "/standorte",
	Title:          "Standorte",
	Description:    "Verwalten Sie Ihre Standorte und deren Informationen.",
	Singular:       "Standort",
	Article:        "Der Standort",
	CreateTitle:    "Neuer Standort",
	EditTitle:      "Standort bearbeiten",
	CreateHint:     "Erstellen Sie einen neuen Standort. Füllen Sie alle Pflichtfelder aus.",
	EditHint:       "Bearbeiten Sie die Standortdaten. Ändern Sie die gewünschten Felder.",
	AddLabel:       "Standort anlegen",
	EmptyText:      "Noch keine Standorte vorhanden.",
	EmptyAction:    "Ersten Standort anlegen",
	DeleteQuestion: "Möchten Sie diesen Standort wirklich löschen?",
	Deleted:        "Standort erfolgreich gelöscht",
	Fields: []Field{
		{Name: "name", Label: "Name", Placeholder: "z.B. Feuerwache Monheim"},
		{Name: "address.street", Label: "Straße", Placeholder: "z.B. Hauptstraße"},
		{Name: "address.houseNumber", Label: "Hausnummer", Placeholder: "z.B. 123", Numeric: true},
		{Name: "address.zipCode", Label: "PLZ", Placeholder: "z.B. 40789", Numeric: true},
		{Name: "address.city", Label: "Stadt", Placeholder: "z.B. Monheim"},
		{Name: "address.country", Label: "Land", Placeholder: "z.B. Deutschland"},
	},
}

var locationMessages = forms.Messages{
	"name.notblank":                   "Name ist erforderlich",
	"name.min":                        "Name muss mindestens 3 Zeichen lang sein",
	"name.max":                        "Name darf maximal 100 Zeichen lang sein",
	"address.street.notblank":         "Straße ist erforderlich",
	"address.street.max":              "Straße darf maximal 100 Zeichen lang sein",
	"address.houseNumber.wholenumber": "Bitte geben Sie eine gültige Nummer ein",
	"address.houseNumber.min":         "Hausnummer muss mindestens 1 sein",
	"address.houseNumber.max":         "Hausnummer darf maximal 9999 sein",
	"address.zipCode.wholenumber":     "Bitte geben Sie eine gültige PLZ ein",
	"address.zipCode.min":             "PLZ muss 5-stellig sein",
	"address.zipCode.max":             "PLZ muss 5-stellig sein",
	"address.city.notblank":           "Stadt ist erforderlich",
	"address.city.max":                "Stadt darf maximal 100 Zeichen lang sein",
	"address.country.notblank":        "Land ist erforderlich",
	"address.country.max":             "Land darf maximal 100 Zeichen lang sein",
}

// NewLocations returns the location entity.
func NewLocations(deps Deps) Entity {
	return newResource[LocationDraft, types.Location](locationMeta, locationBinding{}, deps)
}

type locationBinding struct{}

func (locationBinding) Resource() string { return Locations }
func (locationBinding) RecordID(l types.Location) string { return l.ID }
func (locationBinding) Label(l types.Location) string { return l.Name }
func (locationBinding) Messages() forms.Messages { return locationMessages }

func (locationBinding) Defaults() LocationDraft {
	return LocationDraft{Address: AddressDraft{Country: defaultCountry}}
}

func (locationBinding) FromRecord(l types.Location) LocationDraft {
	return LocationDraft{
		Name: l.Name,
		Address: AddressDraft{
			Street:      l.Address.Street,
			HouseNumber: forms.NumberOf(l.Address.HouseNumber),
			ZipCode:     forms.NumberOf(l.Address.ZipCode),
			City:        l.Address.City,
			Country:     l.Address.Country,
		},
	}
}

func (locationBinding) Notices() forms.Notices {
	return forms.Notices{
		Created:      "Standort erfolgreich erstellt",
		Updated:      "Standort erfolgreich aktualisiert",
		CreateFailed: "Fehler beim Erstellen des Standortes",
		UpdateFailed: "Fehler beim Aktualisieren des Standortes",
	}
}

func (locationBinding) Decode(form url.Values) LocationDraft {
	return LocationDraft{
		Name: form.Get("name"),
		Address: AddressDraft{
			Street:      form.Get("address.street"),
			HouseNumber: forms.ParseNumber(form.Get("address.houseNumber")),
			ZipCode:     forms.ParseNumber(form.Get("address.zipCode")),
			City:        form.Get("address.city"),
			Country:     form.Get("address.country"),
		},
	}
}

func (locationBinding) Encode(d LocationDraft) url.Values {
	return url.Values{
		"name":                {d.Name},
		"address.street":      {d.Address.Street},
		"address.houseNumber": {d.Address.HouseNumber.String()},
		"address.zipCode":     {d.Address.ZipCode.String()},
		"address.city":        {d.Address.City},
		"address.country":     {d.Address.Country},
	}
}

func (locationBinding) Columns() []table.Column[types.Location] {
	return []table.Column[types.Location]{
		{Key: "name", Header: "Name", Sortable: true, Value: func(l types.Location) string { return l.Name }},
		{Key: "street", Header: "Straße", Value: func(l types.Location) string { return l.Address.Street }},
		{Key: "houseNumber", Header: "Hausnummer", Value: func(l types.Location) string { return strconv.Itoa(l.Address.HouseNumber) }},
		{Key: "zipCode", Header: "PLZ", Value: func(l types.Location) string { return strconv.Itoa(l.Address.ZipCode) }},
		{Key: "city", Header: "Stadt", Sortable: true, Value: func(l types.Location) string { return l.Address.City }},
		{Key: "country", Header: "Land", Value: func(l types.Location) string { return l.Address.Country }},
	}
}

func (locationBinding) List(ctx context.Context, api API) ([]types.Location, error) {
	return api.ListLocations(ctx)
}

func (locationBinding) Get(ctx context.Context, api API, id string) (*types.Location, error) {
	return api.GetLocation(ctx, id)
}

func (locationBinding) Create(ctx context.Context, api API, d LocationDraft) (string, error) {
	created, err := api.CreateLocation(ctx, types.CreateLocationRequest{
		Name:    strings.TrimSpace(d.Name),
		Address: toAddress(d.Address),
	})
	if err != nil || created == nil {
		return "", err
	}
	return created.ID, nil
}

func (locationBinding) Update(ctx context.Context, api API, id string, d LocationDraft) error {
	_, err := api.UpdateLocation(ctx, id, types.UpdateLocationRequest{
		Name:    strings.TrimSpace(d.Name),
		Address: toAddress(d.Address),
	})
	return err
}

func (locationBinding) Delete(ctx context.Context, api API, id string) error {
	return api.DeleteLocation(ctx, id)
}

func toAddress(d AddressDraft) types.Address {
	return types.Address{
		Street:      strings.TrimSpace(d.Street),
		HouseNumber: d.HouseNumber.Value,
		ZipCode:     d.ZipCode.Value,
		City:        strings.TrimSpace(d.City),
		Country:     strings.TrimSpace(d.Country),
	}
}
