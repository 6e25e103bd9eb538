package sheets

import (
	"context"

	"cagnotte/internal/core"
)

// Column headers of the contributions export, in order.
const (
	HeaderGivenName = "Prénom"
	HeaderSurname   = "Nom"
	HeaderPhone     = "Téléphone"
	HeaderAmount    = "Montant (€)"

	ContributionsSheetName = "Contributions"
)

type (
	// Record is one row keyed by column header.
	Record map[string]any

	// Sheet is a named table with ordered headers.
	Sheet struct {
		Name    string   `json:"name"`
		Headers []string `json:"headers"`
		Rows    []Record `json:"rows"`
	}

	// SheetWriter stores a whole sheet and returns a reference to it.
	SheetWriter interface {
		WriteSheet(ctx context.Context, s Sheet) (ref string, err error)
	}
)

// ContributionsSheet flattens contributions, in display order, into a sheet.
func ContributionsSheet(cs []core.Contribution) Sheet {
	rows := make([]Record, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, Record{
			HeaderGivenName: c.GivenName,
			HeaderSurname:   c.Surname,
			HeaderPhone:     c.Phone,
			HeaderAmount:    c.Amount.Euros(),
		})
	}
	return Sheet{
		Name:    ContributionsSheetName,
		Headers: []string{HeaderGivenName, HeaderSurname, HeaderPhone, HeaderAmount},
		Rows:    rows,
	}
}

// Values returns the header row followed by one row per record, cells in
// header order. Missing cells are empty strings.
func (s Sheet) Values() [][]any {
	out := make([][]any, 0, len(s.Rows)+1)
	header := make([]any, len(s.Headers))
	for i, h := range s.Headers {
		header[i] = h
	}
	out = append(out, header)
	for _, r := range s.Rows {
		row := make([]any, len(s.Headers))
		for i, h := range s.Headers {
			if v, ok := r[h]; ok && v != nil {
				row[i] = v
			} else {
				row[i] = ""
			}
		}
		out = append(out, row)
	}
	return out
}
