package sheets

import (
	"testing"

	"cagnotte/internal/core"
)

func TestContributionsSheet(t *testing.T) {
	cs := []core.Contribution{
		{ID: "2", Surname: "Martin", GivenName: "Alice", Phone: "07 11 22 33 44", Amount: core.Money{Cents: 1250}},
		{ID: "1", Surname: "Dupont", GivenName: "Jean", Phone: "06 12 34 56 78", Amount: core.Money{Cents: 3000}},
	}
	s := ContributionsSheet(cs)
	if s.Name != "Contributions" {
		t.Fatalf("name = %q", s.Name)
	}
	want := []string{"Prénom", "Nom", "Téléphone", "Montant (€)"}
	if len(s.Headers) != len(want) {
		t.Fatalf("headers = %v", s.Headers)
	}
	for i := range want {
		if s.Headers[i] != want[i] {
			t.Fatalf("header %d = %q, want %q", i, s.Headers[i], want[i])
		}
	}

	values := s.Values()
	if len(values) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(values))
	}
	first := values[1]
	if first[0] != "Alice" || first[1] != "Martin" || first[2] != "07 11 22 33 44" || first[3] != 12.5 {
		t.Fatalf("first row = %v", first)
	}
	if values[2][0] != "Jean" {
		t.Fatalf("rows not in display order: %v", values[2])
	}
}

func TestContributionsSheetEmpty(t *testing.T) {
	values := ContributionsSheet(nil).Values()
	if len(values) != 1 || len(values[0]) != 4 {
		t.Fatalf("empty ledger should export only the header row, got %v", values)
	}
}

func TestValuesFillsMissingCells(t *testing.T) {
	s := Sheet{Headers: []string{"a", "b"}, Rows: []Record{{"a": 1}}}
	row := s.Values()[1]
	if row[0] != 1 || row[1] != "" {
		t.Fatalf("row = %v", row)
	}
}
