// Package export renders generated word search puzzles as printable PDF,
// Excel workbooks and styled terminal text.
package export

import (
	"slices"

	"github.com/bodul/wordsearch/internal/wordsearch"
)

// Document is a puzzle ready to be rendered.
type Document struct {
	Title  string
	Result *wordsearch.Result
	// URL, when set, is printed as a QR code so the puzzle can be solved online.
	URL string
	// Answers adds the solution to the output.
	Answers bool
}

// sortedWords returns the placed words in alphabetical order, as printed
// under the grid.
func (d Document) sortedWords() []string {
	words := d.Result.Words()
	slices.Sort(words)
	return words
}

func (d Document) title() string {
	if d.Title == "" {
		return "Mots mêlés"
	}
	return d.Title
}
