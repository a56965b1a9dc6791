package roster

import (
	"fmt"
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// Parse Tests
// ----------------------------------------------------------------------------

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		input      string
		wantData   []UserRecord
		wantErrors []string
	}{
		// Valid: basic shapes
		{
			name:     "csv with header",
			fileName: "users.csv",
			input:    "firstname,lastname,email,role\nAda,Lovelace,ada@example.com,member\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member"}},
			},
		},
		{
			name:     "csv without header",
			fileName: "users.csv",
			input:    "Ada,Lovelace,ada@example.com,member\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member"}},
			},
		},
		{
			name:     "tsv by extension",
			fileName: "users.tsv",
			input:    "firstname\tlastname\temail\nAda\tLovelace\tada@example.com\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
			},
		},
		{
			name:     "tab detection without extension",
			fileName: "",
			input:    "Ada\tLovelace\tada@example.com\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
			},
		},
		{
			name:     "multiple role columns",
			fileName: "users.csv",
			input:    "Ada,Lovelace,ada@example.com,member,curator\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member", "curator"}},
			},
		},
		{
			name:     "duplicate roles within a row collapsed",
			fileName: "users.csv",
			input:    "Ada,Lovelace,ada@example.com,member,Member,member\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member"}},
			},
		},
		{
			name:     "no role columns",
			fileName: "users.csv",
			input:    "Ada,Lovelace,ada@example.com\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
			},
		},

		// Valid: normalization
		{
			name:     "email trimmed and lower-cased",
			fileName: "users.csv",
			input:    "Ada,Lovelace,  ADA@Example.COM  ,member\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member"}},
			},
		},
		{
			name:     "excel formula artifacts stripped",
			fileName: "users.csv",
			input:    `="Ada",="Lovelace",="ada@example.com",member` + "\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member"}},
			},
		},
		{
			name:     "empty rows skipped",
			fileName: "users.csv",
			input:    "firstname,lastname,email\n\nAda,Lovelace,ada@example.com\n,,\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
			},
		},
		{
			name:     "empty file",
			fileName: "users.csv",
			input:    "",
		},
		{
			name:     "header only",
			fileName: "users.csv",
			input:    "firstname,lastname,email\n",
		},

		// Invalid: row errors with 1-based attribution
		{
			name:       "missing email on second line",
			fileName:   "users.csv",
			input:      "firstname,lastname,email\nAda,Lovelace,\n",
			wantErrors: []string{"Row 2: missing email"},
		},
		{
			name:       "malformed email",
			fileName:   "users.csv",
			input:      "firstname,lastname,email\nAda,Lovelace,not-an-email\n",
			wantErrors: []string{`Row 2: malformed email "not-an-email"`},
		},
		{
			name:     "duplicate email reports both rows",
			fileName: "users.csv",
			input: "firstname,lastname,email\n" +
				"Ada,Lovelace,ada@example.com\n" +
				"Ada,Again,ADA@example.com\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
			},
			wantErrors: []string{`Row 3: duplicate email "ada@example.com" (first seen on row 2)`},
		},
		{
			name:       "too few columns",
			fileName:   "users.csv",
			input:      "firstname,lastname,email\nAda,Lovelace\n",
			wantErrors: []string{"Row 2: expected at least 3 columns, got 2"},
		},
		{
			name:     "bad row does not take down good rows",
			fileName: "users.csv",
			input: "firstname,lastname,email\n" +
				"Ada,Lovelace,ada@example.com\n" +
				"Grace,Hopper,broken\n" +
				"Katherine,Johnson,katherine@example.com\n",
			wantData: []UserRecord{
				{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
				{Firstname: "Katherine", Lastname: "Johnson", Email: "katherine@example.com"},
			},
			wantErrors: []string{`Row 3: malformed email "broken"`},
		},
		{
			name:       "blank line does not shift row numbers",
			fileName:   "users.csv",
			input:      "firstname,lastname,email\n\nAda,Lovelace,not-an-email\n",
			wantErrors: []string{`Row 3: malformed email "not-an-email"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse([]byte(tt.input), tt.fileName)

			if len(got.Errors) != len(tt.wantErrors) {
				t.Fatalf("Errors = %v, want %v", got.Errors, tt.wantErrors)
			}
			for i := range tt.wantErrors {
				if got.Errors[i] != tt.wantErrors[i] {
					t.Errorf("Errors[%d] = %q, want %q", i, got.Errors[i], tt.wantErrors[i])
				}
			}

			if len(got.Data) != len(tt.wantData) {
				t.Fatalf("Data = %+v, want %+v", got.Data, tt.wantData)
			}
			for i, want := range tt.wantData {
				gotRec := got.Data[i]
				if gotRec.Firstname != want.Firstname || gotRec.Lastname != want.Lastname || gotRec.Email != want.Email {
					t.Errorf("Data[%d] = %+v, want %+v", i, gotRec, want)
				}
				if !equalStrings(gotRec.Roles, want.Roles) {
					t.Errorf("Data[%d].Roles = %v, want %v", i, gotRec.Roles, want.Roles)
				}
			}

			if got.Ok() != (len(tt.wantErrors) == 0) {
				t.Errorf("Ok() = %v with %d errors", got.Ok(), len(got.Errors))
			}
		})
	}
}

func TestParseFileTooLarge(t *testing.T) {
	data := []byte(strings.Repeat("a", int(MaxFileSize)+1))
	got := Parse(data, "users.csv")

	if got.Ok() {
		t.Fatal("oversized file must not parse")
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], "file exceeds") {
		t.Errorf("Errors = %v", got.Errors)
	}
}

func TestParseInvalidUTF8(t *testing.T) {
	// Latin-1 é in the name column must not break the csv reader
	input := []byte("Ad\xe9,Lovelace,ada@example.com,member\n")
	got := Parse(input, "users.csv")

	if !got.Ok() {
		t.Fatalf("Errors = %v", got.Errors)
	}
	if len(got.Data) != 1 {
		t.Fatalf("Data = %+v", got.Data)
	}
	if !strings.Contains(got.Data[0].Firstname, "�") {
		t.Errorf("Firstname = %q, want replacement character", got.Data[0].Firstname)
	}
}

// Every record that survives the parse carries a distinct, well-formed,
// normalized email.
func TestParseEmailsDistinctAndNormalized(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("firstname,lastname,email\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "User,Number%d,USER%d@Example.com\n", i, i%25) // every email appears twice
	}

	got := Parse([]byte(sb.String()), "users.csv")

	seen := make(map[string]bool)
	for _, rec := range got.Data {
		if rec.Email != strings.ToLower(strings.TrimSpace(rec.Email)) {
			t.Errorf("email %q not normalized", rec.Email)
		}
		if seen[rec.Email] {
			t.Errorf("email %q appears twice in parsed data", rec.Email)
		}
		seen[rec.Email] = true
	}
	if len(got.Data) != 25 {
		t.Errorf("got %d records, want 25", len(got.Data))
	}
	if len(got.Errors) != 25 {
		t.Errorf("got %d errors, want 25", len(got.Errors))
	}
}

// ----------------------------------------------------------------------------
// Helper Tests
// ----------------------------------------------------------------------------

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     string
		want     rune
	}{
		{"csv extension", "users.csv", "a\tb\tc", ','},
		{"tsv extension", "users.tsv", "a,b,c", '\t'},
		{"tab extension", "users.tab", "a,b,c", '\t'},
		{"extension case insensitive", "USERS.TSV", "", '\t'},
		{"no extension tabs win", "", "a\tb\tc\nd,e", '\t'},
		{"no extension commas win", "", "a,b,c", ','},
		{"no extension tie goes comma", "", "abc", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectDelimiter([]byte(tt.data), tt.fileName); got != tt.want {
				t.Errorf("detectDelimiter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Ada", "Ada"},
		{"surrounding whitespace", "  Ada  ", "Ada"},
		{"excel formula quoted", `="Ada"`, "Ada"},
		{"excel formula bare", "=Ada", "Ada"},
		{"double quotes", `"Ada"`, "Ada"},
		{"single quotes", "'Ada'", "Ada"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanCell(tt.input); got != tt.want {
				t.Errorf("cleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{"standard header", []string{"firstname", "lastname", "email"}, true},
		{"capitalized", []string{"Firstname", "Lastname", "Email"}, true},
		{"data row", []string{"Ada", "Lovelace", "ada@example.com"}, false},
		{"empty row", []string{"", "", ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHeaderRow(tt.row); got != tt.want {
				t.Errorf("isHeaderRow(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
