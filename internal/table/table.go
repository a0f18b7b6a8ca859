// Package table turns a resource collection into a sortable table model for
// the page templates. It holds no state: sorting comes from the request's
// query string and row actions are plain URLs supplied by the page.
package table

import (
	"net/url"
	"slices"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Column describes one table column.
type Column[R any] struct {
	Key      string
	Header   string
	Sortable bool
	Value    func(R) string
}

// Sort is the active ordering. An empty Key keeps the server's order.
type Sort struct {
	Key string
	Dir Direction
}

// Spec is a page's table definition.
type Spec[R any] struct {
	// BasePath is the page URL that header links point back to.
	BasePath string
	Columns  []Column[R]
	ID       func(R) string
	// EditURL and DeleteURL are optional; nil hides the action.
	EditURL   func(R) string
	DeleteURL func(R) string
}

// HeaderCell is a rendered column header.
type HeaderCell struct {
	Label    string
	Sortable bool
	// Active is set on the column the rows are sorted by.
	Active bool
	Dir    Direction
	// URL toggles the ordering when the header is clicked.
	URL string
}

// Row is one rendered record.
type Row struct {
	ID        string
	Cells     []string
	EditURL   string
	DeleteURL string
}

// View is the complete render model of one table.
type View struct {
	Headers []HeaderCell
	Rows    []Row
}

// Empty reports whether the table has no rows.
func (v View) Empty() bool {
	return len(v.Rows) == 0
}

// ParseSort reads ?sort=<key>&dir=<asc|desc>. Unknown or unsortable keys are ignored.
func ParseSort[R any](query url.Values, columns []Column[R]) Sort {
	key := strings.TrimSpace(query.Get("sort"))
	if key == "" {
		return Sort{}
	}
	idx := slices.IndexFunc(columns, func(c Column[R]) bool { return c.Key == key && c.Sortable })
	if idx < 0 {
		return Sort{}
	}
	dir := Asc
	if strings.EqualFold(query.Get("dir"), string(Desc)) {
		dir = Desc
	}
	return Sort{Key: key, Dir: dir}
}

// Toggle returns the ordering a click on key's header selects: ascending
// becomes descending, anything else becomes ascending.
func (s Sort) Toggle(key string) Sort {
	if s.Key == key && s.Dir == Asc {
		return Sort{Key: key, Dir: Desc}
	}
	return Sort{Key: key, Dir: Asc}
}

// SortRows returns a sorted copy of rows. Comparison is case-insensitive and
// stable, so equal values keep the server's order.
func SortRows[R any](rows []R, columns []Column[R], s Sort) []R {
	out := slices.Clone(rows)
	if s.Key == "" {
		return out
	}
	idx := slices.IndexFunc(columns, func(c Column[R]) bool { return c.Key == s.Key })
	if idx < 0 || columns[idx].Value == nil {
		return out
	}
	value := columns[idx].Value

	slices.SortStableFunc(out, func(a, b R) int {
		cmp := strings.Compare(strings.ToLower(value(a)), strings.ToLower(value(b)))
		if s.Dir == Desc {
			return -cmp
		}
		return cmp
	})
	return out
}

// Build renders rows with spec under the given ordering.
func Build[R any](spec Spec[R], rows []R, s Sort) View {
	view := View{
		Headers: make([]HeaderCell, 0, len(spec.Columns)),
		Rows:    make([]Row, 0, len(rows)),
	}

	for _, col := range spec.Columns {
		cell := HeaderCell{Label: col.Header, Sortable: col.Sortable}
		if col.Sortable {
			next := s.Toggle(col.Key)
			cell.URL = sortURL(spec.BasePath, next)
			if s.Key == col.Key {
				cell.Active = true
				cell.Dir = s.Dir
			}
		}
		view.Headers = append(view.Headers, cell)
	}

	for _, record := range SortRows(rows, spec.Columns, s) {
		row := Row{Cells: make([]string, 0, len(spec.Columns))}
		if spec.ID != nil {
			row.ID = spec.ID(record)
		}
		for _, col := range spec.Columns {
			if col.Value == nil {
				row.Cells = append(row.Cells, "")
				continue
			}
			row.Cells = append(row.Cells, col.Value(record))
		}
		if spec.EditURL != nil {
			row.EditURL = spec.EditURL(record)
		}
		if spec.DeleteURL != nil {
			row.DeleteURL = spec.DeleteURL(record)
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

func sortURL(base string, s Sort) string {
	q := url.Values{}
	q.Set("sort", s.Key)
	q.Set("dir", string(s.Dir))
	return base + "?" + q.Encode()
}
