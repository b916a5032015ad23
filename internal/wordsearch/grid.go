package wordsearch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Empty marks a cell that no word has claimed yet.
const Empty rune = 0

// Direction is a unit step over (row, col).
type Direction struct {
	DRow int `json:"dr"`
	DCol int `json:"dc"`
}

var (
	Horizontal = Direction{DRow: 0, DCol: 1}
	Vertical   = Direction{DRow: 1, DCol: 0}
	Diagonal   = Direction{DRow: 1, DCol: 1}
)

// Directions is the closed set of reading directions a word may take.
var Directions = [...]Direction{Horizontal, Vertical, Diagonal}

func (d Direction) String() string {
	switch d {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	case Diagonal:
		return "diagonal"
	}
	return fmt.Sprintf("(%d,%d)", d.DRow, d.DCol)
}

// Coord is a cell position in the grid.
type Coord struct {
	Row int `json:"r"`
	Col int `json:"c"`
}

// Step returns the coordinate n steps away from c along d.
func (c Coord) Step(d Direction, n int) Coord {
	return Coord{Row: c.Row + n*d.DRow, Col: c.Col + n*d.DCol}
}

// Grid is a square board of letters indexed [row][col].
type Grid [][]rune

// NewGrid returns a size x size grid with every cell Empty.
func NewGrid(size int) Grid {
	g := make(Grid, size)
	for i := range g {
		g[i] = make([]rune, size)
	}
	return g
}

// Size returns the grid dimension.
func (g Grid) Size() int {
	return len(g)
}

// At returns the letter at c.
func (g Grid) At(c Coord) rune {
	return g[c.Row][c.Col]
}

// Contains reports whether c lies inside the grid.
func (g Grid) Contains(c Coord) bool {
	return c.Row >= 0 && c.Row < len(g) && c.Col >= 0 && c.Col < len(g[c.Row])
}

// String renders the grid one row per line, cells separated by a space.
func (g Grid) String() string {
	var sb strings.Builder
	for r, row := range g {
		if r > 0 {
			sb.WriteByte('\n')
		}
		for c, ch := range row {
			if c > 0 {
				sb.WriteByte(' ')
			}
			if ch == Empty {
				sb.WriteByte('.')
			} else {
				sb.WriteRune(ch)
			}
		}
	}
	return sb.String()
}

// MarshalJSON encodes the grid as rows of one-letter strings.
func (g Grid) MarshalJSON() ([]byte, error) {
	rows := make([][]string, len(g))
	for r, row := range g {
		rows[r] = make([]string, len(row))
		for c, ch := range row {
			if ch != Empty {
				rows[r][c] = string(ch)
			}
		}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes rows of one-letter strings.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	out := make(Grid, len(rows))
	for r, row := range rows {
		out[r] = make([]rune, len(row))
		for c, s := range row {
			letters := []rune(s)
			switch len(letters) {
			case 0:
				out[r][c] = Empty
			case 1:
				out[r][c] = letters[0]
			default:
				return fmt.Errorf("cell (%d,%d): expected one letter, got %q", r, c, s)
			}
		}
	}
	*g = out
	return nil
}

// Fits reports whether word can be written from start along d: every
// target cell must be inside the grid and either Empty or already holding
// the same letter.
func Fits(g Grid, word string, start Coord, d Direction) bool {
	for i, ch := range []rune(word) {
		c := start.Step(d, i)
		if !g.Contains(c) {
			return false
		}
		if cell := g.At(c); cell != Empty && cell != ch {
			return false
		}
	}
	return true
}
