package core

import "testing"

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0612345678", "06 12 34 56 78"},
		{"06 12 34 56 78", "06 12 34 56 78"},
		{"06.12.34.56.78", "06 12 34 56 78"},
		{"06-12-34-56-78", "06 12 34 56 78"},
		{"06 12", "06 12"},
		{"061234567", "061234567"},
		{"06123456789", "06123456789"},
		{"", ""},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.in); got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPhoneIdempotent(t *testing.T) {
	once := FormatPhone("0612345678")
	if twice := FormatPhone(once); twice != once {
		t.Fatalf("formatting is not idempotent: %q -> %q", once, twice)
	}
}
