// Package wordsearch places words into a square letter grid and fills the
// remaining cells with random letters.
package wordsearch

import (
	"math/rand"
	"slices"
	"time"
	"unicode/utf8"
)

const (
	// RetryBudget is the number of random placement attempts per word.
	RetryBudget = 100

	// Alphabet is the set filler letters are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Source is the randomness the generator draws from. *rand.Rand satisfies it.
type Source interface {
	// Intn returns a uniform value in [0, n). n is always > 0.
	Intn(n int) int
}

// Placement is a placed word and the cells it occupies, in reading order.
type Placement struct {
	Word      string    `json:"word"`
	Direction Direction `json:"direction"`
	Path      []Coord   `json:"path"`
}

// Start returns the first cell of the placement.
func (p Placement) Start() Coord {
	return p.Path[0]
}

// Result is a filled grid and the words that made it in.
type Result struct {
	Grid   Grid        `json:"grid"`
	Placed []Placement `json:"placed"`
}

// Complete reports whether every one of the requested words was placed.
func (r *Result) Complete(requested int) bool {
	return len(r.Placed) >= requested
}

// Missing returns the words that were requested but not placed, in input
// order. Duplicates are matched one for one.
func (r *Result) Missing(words []string) []string {
	placed := make(map[string]int, len(r.Placed))
	for _, p := range r.Placed {
		placed[p.Word]++
	}
	var missing []string
	for _, w := range words {
		if placed[w] > 0 {
			placed[w]--
			continue
		}
		missing = append(missing, w)
	}
	return missing
}

// Words returns the placed words in placement order.
func (r *Result) Words() []string {
	words := make([]string, len(r.Placed))
	for i, p := range r.Placed {
		words[i] = p.Word
	}
	return words
}

// AnswerMask marks every cell covered by a placement.
func (r *Result) AnswerMask() [][]bool {
	mask := make([][]bool, r.Grid.Size())
	for i := range mask {
		mask[i] = make([]bool, r.Grid.Size())
	}
	for _, p := range r.Placed {
		for _, c := range p.Path {
			mask[c.Row][c.Col] = true
		}
	}
	return mask
}

// Options configures a Generator.
type Options struct {
	Seed int64 // Seed for reproducible grids (0 = random)
}

// Generator produces word search grids from its own random source.
// A Generator is not safe for concurrent use; use one per goroutine or the
// package-level Generate.
type Generator struct {
	rng Source
}

// New creates a generator with the given options.
func New(options *Options) *Generator {
	var seed int64
	if options != nil {
		seed = options.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate places words into a size x size grid. size must be positive.
func (g *Generator) Generate(words []string, size int) *Result {
	return GenerateWith(g.rng, words, size)
}

// Generate places words into a fresh size x size grid using a time-seeded
// source. Each call owns its state, so calls may run concurrently.
func Generate(words []string, size int) *Result {
	return New(nil).Generate(words, size)
}

// GenerateWith places words into a size x size grid drawing every random
// choice from src. Longer words go first. Words that cannot be placed within
// RetryBudget attempts are left out of Result.Placed.
func GenerateWith(src Source, words []string, size int) *Result {
	grid := NewGrid(size)

	sorted := slices.Clone(words)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})

	placed := make([]Placement, 0, len(sorted))
	for _, word := range sorted {
		if p, ok := place(src, grid, word); ok {
			placed = append(placed, p)
		}
	}

	fill(src, grid)

	return &Result{Grid: grid, Placed: placed}
}

// place tries RetryBudget random positions for word and writes it into grid
// at the first one that fits.
func place(src Source, grid Grid, word string) (Placement, bool) {
	letters := []rune(word)
	n := len(letters)
	if n == 0 {
		return Placement{}, false
	}
	size := grid.Size()

	for attempt := 0; attempt < RetryBudget; attempt++ {
		dir := Directions[src.Intn(len(Directions))]

		rowSpan, colSpan := span(size, n, dir.DRow), span(size, n, dir.DCol)
		if rowSpan <= 0 || colSpan <= 0 {
			continue
		}

		start := Coord{Row: src.Intn(rowSpan), Col: src.Intn(colSpan)}
		if !Fits(grid, word, start, dir) {
			continue
		}

		path := make([]Coord, n)
		for i, ch := range letters {
			c := start.Step(dir, i)
			grid[c.Row][c.Col] = ch
			path[i] = c
		}
		return Placement{Word: word, Direction: dir, Path: path}, true
	}
	return Placement{}, false
}

// span is the number of valid start values on one axis: size-n+1 when the
// word advances along it, size otherwise.
func span(size, n, delta int) int {
	if delta == 0 {
		return size
	}
	return size - n + 1
}

// fill replaces every Empty cell with a random letter from Alphabet.
func fill(src Source, grid Grid) {
	for r := range grid {
		for c := range grid[r] {
			if grid[r][c] == Empty {
				grid[r][c] = rune(Alphabet[src.Intn(len(Alphabet))])
			}
		}
	}
}
