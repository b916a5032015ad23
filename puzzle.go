package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/bodul/wordsearch/internal/wordsearch"
)

// Puzzle is a generated word search and the request that produced it.
type Puzzle struct {
	ID        string
	Title     string
	Size      int
	Seed      int64
	Requested []string
	Result    *wordsearch.Result
	CreatedAt time.Time
}

// PuzzleView is the JSON form of a puzzle. Placement paths and the seed are
// only filled in when answers are requested.
type PuzzleView struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Size      int                    `json:"size"`
	Grid      wordsearch.Grid        `json:"grid"`
	Words     []string               `json:"words"`
	Requested int                    `json:"requested"`
	Notice    string                 `json:"notice,omitempty"`
	Seed      int64                  `json:"seed,omitempty"`
	Placed    []wordsearch.Placement `json:"placed,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewPuzzle runs the generator over words. A zero seed picks one from the
// clock; the seed actually used is recorded so the grid can be rebuilt.
func NewPuzzle(title string, words []string, size int, seed int64) *Puzzle {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Puzzle{
		Title:     title,
		Size:      size,
		Seed:      seed,
		Requested: words,
		Result:    wordsearch.New(&wordsearch.Options{Seed: seed}).Generate(words, size),
	}
}

// Notice explains a partial placement, or returns "" when every word fit.
func (p *Puzzle) Notice() string {
	if p.Result.Complete(len(p.Requested)) {
		return ""
	}
	return fmt.Sprintf("Impossible de placer tous les mots : %d placés sur %d. Essayez moins de mots ou des mots plus courts.",
		len(p.Result.Placed), len(p.Requested))
}

// View returns the JSON form of the puzzle.
func (p *Puzzle) View(answers bool) PuzzleView {
	words := p.Result.Words()
	slices.Sort(words)

	v := PuzzleView{
		ID:        p.ID,
		Title:     p.Title,
		Size:      p.Size,
		Grid:      p.Result.Grid,
		Words:     words,
		Requested: len(p.Requested),
		Notice:    p.Notice(),
		CreatedAt: p.CreatedAt,
	}
	if answers {
		v.Seed = p.Seed
		v.Placed = p.Result.Placed
	}
	return v
}

// Match returns the index of the placement whose path equals path, read in
// either direction, skipping indexes for which skip returns true.
func (p *Puzzle) Match(path []wordsearch.Coord, skip func(int) bool) (int, bool) {
	reversed := slices.Clone(path)
	slices.Reverse(reversed)

	for i, pl := range p.Result.Placed {
		if skip != nil && skip(i) {
			continue
		}
		if slices.Equal(pl.Path, path) || slices.Equal(pl.Path, reversed) {
			return i, true
		}
	}
	return -1, false
}
