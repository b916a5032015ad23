package main

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/bodul/wordsearch/internal/wordsearch"
)

var (
	ErrAlreadyFound = errors.New("word already found")
	ErrNoMatch      = errors.New("selection does not match any word")
)

// Player represents a connected player.
type Player struct {
	Pseudo   string    `json:"pseudo"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joined_at"`
}

// FoundWord is a word one of the players has located in the grid.
type FoundWord struct {
	Word    string             `json:"word"`
	Pseudo  string             `json:"pseudo"`
	Color   string             `json:"color"`
	Path    []wordsearch.Coord `json:"path"`
	FoundAt time.Time          `json:"found_at"`
}

// GameSession is a puzzle solved together by several players.
type GameSession struct {
	ID        string
	PuzzleID  string
	CreatedAt time.Time

	mu      sync.Mutex
	puzzle  *Puzzle
	players map[string]*Player
	found   map[int]*FoundWord // placement index -> finder
}

// GameSnapshot is a consistent copy of a session's state.
type GameSnapshot struct {
	ID        string             `json:"id"`
	PuzzleID  string             `json:"puzzle_id"`
	Players   map[string]*Player `json:"players"`
	Found     []FoundWord        `json:"found"`
	Remaining int                `json:"remaining"`
	CreatedAt time.Time          `json:"created_at"`
}

// playerColors is the palette assigned to players in order.
var playerColors = []string{
	"#2563eb", "#dc2626", "#16a34a", "#9333ea",
	"#ea580c", "#0891b2", "#c026d3", "#ca8a04",
}

func newGameSession(id string, puzzle *Puzzle) *GameSession {
	return &GameSession{
		ID:        id,
		PuzzleID:  puzzle.ID,
		CreatedAt: time.Now(),
		puzzle:    puzzle,
		players:   make(map[string]*Player),
		found:     make(map[int]*FoundWord),
	}
}

// AddPlayer adds a player to the session and returns the player.
// Joining twice with the same pseudo returns the existing player.
func (g *GameSession) AddPlayer(pseudo string) *Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.players[pseudo]; ok {
		return p
	}

	p := &Player{
		Pseudo:   pseudo,
		Color:    playerColors[len(g.players)%len(playerColors)],
		JoinedAt: time.Now(),
	}
	g.players[pseudo] = p
	return p
}

// RemovePlayer removes a player from the session. Words the player found
// stay credited to them.
func (g *GameSession) RemovePlayer(pseudo string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players, pseudo)
}

// Find credits pseudo with the word whose path matches the selection and
// reports whether that was the last word. It returns ErrAlreadyFound when
// the word was already claimed and ErrNoMatch when the selection is not a
// placed word.
func (g *GameSession) Find(pseudo string, path []wordsearch.Coord) (FoundWord, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	claimed := func(i int) bool { return g.found[i] != nil }

	idx, ok := g.puzzle.Match(path, claimed)
	if !ok {
		if _, exists := g.puzzle.Match(path, nil); exists {
			return FoundWord{}, false, ErrAlreadyFound
		}
		return FoundWord{}, false, ErrNoMatch
	}

	color := "#64748b"
	if p, ok := g.players[pseudo]; ok {
		color = p.Color
	}

	pl := g.puzzle.Result.Placed[idx]
	fw := &FoundWord{
		Word:    pl.Word,
		Pseudo:  pseudo,
		Color:   color,
		Path:    pl.Path,
		FoundAt: time.Now(),
	}
	g.found[idx] = fw
	return *fw, len(g.found) == len(g.puzzle.Result.Placed), nil
}

// Snapshot returns a copy of the session state, found words in the order
// they were found.
func (g *GameSession) Snapshot() GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	players := make(map[string]*Player, len(g.players))
	for k, p := range g.players {
		cp := *p
		players[k] = &cp
	}

	found := make([]FoundWord, 0, len(g.found))
	for _, fw := range g.found {
		found = append(found, *fw)
	}
	slices.SortFunc(found, func(a, b FoundWord) int {
		return a.FoundAt.Compare(b.FoundAt)
	})

	return GameSnapshot{
		ID:        g.ID,
		PuzzleID:  g.PuzzleID,
		Players:   players,
		Found:     found,
		Remaining: len(g.puzzle.Result.Placed) - len(g.found),
		CreatedAt: g.CreatedAt,
	}
}
