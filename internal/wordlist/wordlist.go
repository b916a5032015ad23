// Package wordlist turns user input (typed text, CSV or Excel files) into
// the uppercase word lists the generator expects.
package wordlist

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinLength is the shortest word kept after normalization.
const MinLength = 2

var separators = regexp.MustCompile(`[\n\r,]+`)

// Normalize folds accents, uppercases s and keeps only the letters A-Z.
// It returns "" when fewer than MinLength letters remain.
func Normalize(s string) string {
	folded, _, err := transform.String(foldAccents(), s)
	if err != nil {
		folded = s
	}

	var sb strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() < MinLength {
		return ""
	}
	return sb.String()
}

// foldAccents strips combining marks: "é" becomes "e". A transformer holds
// state, so each call gets its own.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Parse splits text on newlines and commas and normalizes every token.
// Tokens that normalize to nothing are dropped; order is preserved.
func Parse(text string) []string {
	return normalizeAll(separators.Split(text, -1))
}

// FromCSV reads every field of every record as a word. The delimiter is
// detected from the content.
func FromCSV(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = DetectDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return normalizeAll(flatten(records)), nil
}

// FromExcel reads every non-empty cell of the first sheet as a word.
func FromExcel(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return normalizeAll(flatten(rows)), nil
}

// FromFile loads a word list, choosing the reader from the file extension:
// .xlsx for Excel, .csv for CSV, anything else as plain text.
func FromFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FromExcel(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return FromCSV(f)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// DetectDelimiter picks the delimiter among comma, semicolon, tab and pipe
// that splits the most lines into the most consistent column count.
// Single-column data defaults to comma.
func DetectDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	best := ','
	bestScore := 0

	for _, delim := range candidates {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		records, err := reader.ReadAll()
		if err != nil || len(records) == 0 {
			continue
		}

		cols := len(records[0])
		if cols < 2 {
			continue
		}

		score := 0
		for _, rec := range records {
			if len(rec) == cols {
				score++
			}
		}
		if weighted := score*10 + cols; weighted > bestScore {
			bestScore = weighted
			best = delim
		}
	}
	return best
}

func flatten(rows [][]string) []string {
	var cells []string
	for _, row := range rows {
		cells = append(cells, row...)
	}
	return cells
}

func normalizeAll(tokens []string) []string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if w := Normalize(tok); w != "" {
			words = append(words, w)
		}
	}
	return words
}
