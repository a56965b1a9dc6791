package roster

// parse.go turns an uploaded delimited-text file (CSV or TSV) into
// UserRecords. Expected column order is firstname, lastname, email followed
// by zero or more role columns. Individual bad rows never fail the whole
// parse: each contributes a "Row N: reason" error and is dropped.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the maximum allowed upload file size (10MB). A roster is
// small; anything bigger is almost certainly the wrong file.
var MaxFileSize int64 = 10 * 1024 * 1024

// emailRegex accepts the practical shape of an address: something@domain
// with at least one dot in the domain. Full RFC 5322 validation is the
// mail server's problem.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// minColumns is firstname, lastname, email. Role columns are optional.
const minColumns = 3

// Parse converts raw file bytes into user records. The file name is used
// only for delimiter selection by extension; pass "" to auto-detect.
func Parse(data []byte, fileName string) ParseResult {
	var result ParseResult

	if int64(len(data)) > MaxFileSize {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file exceeds %dMB limit", MaxFileSize/(1024*1024)))
		return result
	}

	data = sanitizeUTF8(data)
	rows, err := parseDelimited(data, detectDelimiter(data, fileName))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("parse file: %v", err))
		return result
	}
	if len(rows) == 0 {
		return result
	}

	start := 0
	if isHeaderRow(rows[0].cells) {
		start = 1
	}

	seen := make(map[string]int) // normalized email -> first row number
	for i := start; i < len(rows); i++ {
		row := rows[i].cells
		lineNum := rows[i].line // physical 1-based file line

		if isEmptyRow(row) {
			continue
		}
		if len(row) < minColumns {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Row %d: expected at least %d columns, got %d", lineNum, minColumns, len(row)))
			continue
		}

		rec := UserRecord{
			Firstname: cleanCell(row[0]),
			Lastname:  cleanCell(row[1]),
			Email:     NormalizeEmail(row[2]),
		}

		if rec.Email == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: missing email", lineNum))
			continue
		}
		if !emailRegex.MatchString(rec.Email) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Row %d: malformed email %q", lineNum, rec.Email))
			continue
		}
		if first, dup := seen[rec.Email]; dup {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Row %d: duplicate email %q (first seen on row %d)", lineNum, rec.Email, first))
			continue
		}
		seen[rec.Email] = lineNum

		rec.Roles = collectRoles(row[minColumns:])
		result.Data = append(result.Data, rec)
	}

	return result
}

// NormalizeEmail trims and lower-cases an address. This is the matching key
// at every stage of the import.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(cleanCell(s)))
}

// collectRoles cleans trailing role columns: empties dropped, duplicates
// within the row removed preserving first occurrence.
func collectRoles(cells []string) []string {
	var roles []string
	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		role := strings.ToLower(cleanCell(c))
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles
}

// detectDelimiter picks tab or comma. Extension wins when recognized;
// otherwise the first line votes.
func detectDelimiter(data []byte, fileName string) rune {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".tsv", ".tab":
		return '\t'
	case ".csv":
		return ','
	}

	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}

// isHeaderRow reports whether a row looks like the expected header. Any
// cell equal to "email" is taken as the tell; real addresses always
// contain an @.
func isHeaderRow(row []string) bool {
	for _, c := range row {
		if strings.EqualFold(cleanCell(c), "email") {
			return true
		}
	}
	return false
}

// parsedRow pairs a record with the physical file line it started on. The
// csv reader silently skips blank lines, so "Row N" errors must carry the
// line the reader reports rather than a slice index.
type parsedRow struct {
	cells []string
	line  int
}

func parseDelimited(data []byte, delim rune) ([]parsedRow, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []parsedRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, parsedRow{cells: rec, line: line})
	}
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// cleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, Excel formula prefix (="..."), stray quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD so the csv
// reader never sees broken encoding.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
