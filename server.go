package main

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bodul/wordsearch/internal/config"
	"github.com/bodul/wordsearch/internal/export"
	"github.com/bodul/wordsearch/internal/wordlist"
	"github.com/bodul/wordsearch/internal/wordsearch"
)

//go:embed frontend
var frontendFS embed.FS

const (
	maxUploadSize  = 10 << 20 // 10 Mo
	maxSuggestions = 40
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// rateLimiter is a simple per-IP token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval

	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup drops stale entries every minute until stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.visitors {
				if time.Since(b.lastSeen) > 5*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: time.Now()}
		return true
	}

	// Refill tokens based on elapsed time.
	elapsed := time.Since(b.lastSeen)
	refill := int(elapsed / rl.interval)
	if refill > 0 {
		b.tokens += refill * rl.rate
		if b.tokens > rl.rate {
			b.tokens = rl.rate
		}
		b.lastSeen = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Server is the main HTTP server.
type Server struct {
	mux        *http.ServeMux
	cfg        config.Config
	log        *slog.Logger
	store      *Store
	words      WordAssistant
	sse        *Broadcaster
	generateRL *rateLimiter
	uploadRL   *rateLimiter
	moveRL     *rateLimiter
}

// NewServer creates a configured HTTP server. words may be nil, which
// disables the photo and suggestion endpoints.
func NewServer(cfg config.Config, store *Store, words WordAssistant, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		log:        logger,
		store:      store,
		words:      words,
		sse:        NewBroadcaster(),
		generateRL: newRateLimiter(cfg.Limits.GeneratePerMinute, time.Minute),
		uploadRL:   newRateLimiter(5, time.Minute), // 5 uploads/min per IP
		moveRL:     newRateLimiter(cfg.Limits.MovesPerSecond, time.Second),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Puzzle API
	s.mux.HandleFunc("POST /api/puzzles", s.handleCreatePuzzle)
	s.mux.HandleFunc("GET /api/puzzles", s.handleListPuzzles)
	s.mux.HandleFunc("GET /api/puzzles/{id}", s.handleGetPuzzle)
	s.mux.HandleFunc("GET /api/puzzles/{id}/pdf", s.handleExportPDF)
	s.mux.HandleFunc("GET /api/puzzles/{id}/xlsx", s.handleExportXLSX)

	// Word list helpers
	s.mux.HandleFunc("POST /api/words/scan", s.handleScanWords)
	s.mux.HandleFunc("POST /api/words/suggest", s.handleSuggestWords)

	// Game API
	s.mux.HandleFunc("POST /api/games", s.handleCreateGame)
	s.mux.HandleFunc("GET /api/games", s.handleListGames)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleGetGame)
	s.mux.HandleFunc("POST /api/games/{id}/join", s.handleJoinGame)
	s.mux.HandleFunc("POST /api/games/{id}/find", s.handleFind)
	s.mux.HandleFunc("GET /api/games/{id}/events", s.handleGameEvents)

	// Frontend static files
	frontendDir, _ := fs.Sub(frontendFS, "frontend")
	fileServer := http.FileServer(http.FS(frontendDir))
	s.mux.HandleFunc("GET /game/{id}", s.handleGamePage)
	s.mux.Handle("GET /", fileServer)
}

// Close stops the server's background goroutines.
func (s *Server) Close() {
	s.generateRL.stop()
	s.uploadRL.stop()
	s.moveRL.stop()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
	s.mux.ServeHTTP(w, r)
}

// --- Puzzle handlers ---

// POST /api/puzzles: normalize the word list, generate and save a puzzle.
func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	if !s.generateRL.allow(clientIP(r)) {
		jsonError(w, "Trop de requêtes, réessayez plus tard", http.StatusTooManyRequests)
		return
	}

	var req struct {
		Title string          `json:"title"`
		Words json.RawMessage `json:"words"`
		Size  int             `json:"size"`
		Seed  int64           `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Requête invalide", http.StatusBadRequest)
		return
	}

	words, err := decodeWords(req.Words)
	if err != nil {
		jsonError(w, "Champ 'words' : texte ou liste de mots attendu", http.StatusBadRequest)
		return
	}
	if len(words) == 0 {
		jsonError(w, "Veuillez saisir des mots.", http.StatusBadRequest)
		return
	}
	if len(words) > s.cfg.Puzzle.MaxWords {
		jsonError(w, fmt.Sprintf("Trop de mots (max %d)", s.cfg.Puzzle.MaxWords), http.StatusBadRequest)
		return
	}

	size := req.Size
	if size == 0 {
		size = s.cfg.Puzzle.DefaultSize
	}
	if size < 1 || size > s.cfg.Puzzle.MaxSize {
		jsonError(w, fmt.Sprintf("Taille de grille invalide : entre 1 et %d", s.cfg.Puzzle.MaxSize), http.StatusBadRequest)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Mes mots mêlés"
	}

	puzzle := s.store.SavePuzzle(NewPuzzle(title, words, size, req.Seed))
	s.log.Info("puzzle generated",
		"id", puzzle.ID,
		"size", size,
		"requested", len(words),
		"placed", len(puzzle.Result.Placed))

	writeJSON(w, http.StatusCreated, puzzle.View(true))
}

// GET /api/puzzles: list all puzzles, without answers.
func (s *Server) handleListPuzzles(w http.ResponseWriter, _ *http.Request) {
	puzzles := s.store.ListPuzzles()
	views := make([]PuzzleView, len(puzzles))
	for i, p := range puzzles {
		views[i] = p.View(false)
	}
	writeJSON(w, http.StatusOK, views)
}

// GET /api/puzzles/{id}: get a single puzzle; ?answers=1 adds the paths.
func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	puzzle := s.store.GetPuzzle(r.PathValue("id"))
	if puzzle == nil {
		jsonError(w, "Grille introuvable", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, puzzle.View(wantAnswers(r)))
}

// GET /api/puzzles/{id}/pdf: printable puzzle.
func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s.handleExport(w, r, "application/pdf", "pdf", export.PDF)
}

// GET /api/puzzles/{id}/xlsx: puzzle workbook.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.handleExport(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", export.Workbook)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, contentType, ext string, render func(io.Writer, export.Document) error) {
	puzzle := s.store.GetPuzzle(r.PathValue("id"))
	if puzzle == nil {
		jsonError(w, "Grille introuvable", http.StatusNotFound)
		return
	}

	doc := export.Document{
		Title:   puzzle.Title,
		Result:  puzzle.Result,
		URL:     s.puzzleURL(puzzle.ID),
		Answers: wantAnswers(r),
	}

	// Render fully before writing so a failure can still produce an error status.
	var buf bytes.Buffer
	if err := render(&buf, doc); err != nil {
		s.log.Error("export failed", "id", puzzle.ID, "format", ext, "err", err)
		jsonError(w, "Erreur lors de l'export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="mots-meles-%s.%s"`, puzzle.ID, ext))
	w.Write(buf.Bytes())
}

// puzzleURL is the public page of a puzzle, or "" without a base URL.
func (s *Server) puzzleURL(id string) string {
	if s.cfg.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/?puzzle=" + url.QueryEscape(id)
}

// --- Word list handlers ---

// POST /api/words/scan: read a word list from a photo with Gemini.
func (s *Server) handleScanWords(w http.ResponseWriter, r *http.Request) {
	if !s.uploadRL.allow(clientIP(r)) {
		jsonError(w, "Trop de requêtes, réessayez plus tard", http.StatusTooManyRequests)
		return
	}

	if s.words == nil {
		jsonError(w, "Analyse d'image non configurée", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, "Image trop volumineuse (max 10 Mo)", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, "Champ 'image' requis", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !allowedMIME[mimeType] {
		jsonError(w, "Format accepté : JPEG ou PNG", http.StatusBadRequest)
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "Erreur de lecture de l'image", http.StatusInternalServerError)
		return
	}

	words, err := s.words.ExtractWords(r.Context(), imageData, mimeType)
	if err != nil {
		s.log.Error("gemini extract failed", "err", err)
		jsonError(w, "Erreur lors de l'analyse de l'image", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"words": words})
}

// POST /api/words/suggest: themed word list from Gemini.
func (s *Server) handleSuggestWords(w http.ResponseWriter, r *http.Request) {
	if !s.uploadRL.allow(clientIP(r)) {
		jsonError(w, "Trop de requêtes, réessayez plus tard", http.StatusTooManyRequests)
		return
	}

	if s.words == nil {
		jsonError(w, "Suggestions non configurées", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Theme string `json:"theme"`
		Count int    `json:"count"`
		Size  int    `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Theme) == "" {
		jsonError(w, "Champ 'theme' requis", http.StatusBadRequest)
		return
	}
	if req.Count <= 0 || req.Count > maxSuggestions {
		req.Count = 12
	}
	if req.Size <= 0 || req.Size > s.cfg.Puzzle.MaxSize {
		req.Size = s.cfg.Puzzle.DefaultSize
	}

	theme := req.Theme
	if utf8.RuneCountInString(theme) > 60 {
		theme = string([]rune(theme)[:60])
	}

	words, err := s.words.SuggestWords(r.Context(), theme, req.Count, req.Size)
	if err != nil {
		s.log.Error("gemini suggest failed", "theme", theme, "err", err)
		jsonError(w, "Erreur lors de la suggestion de mots", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"words": words})
}

// --- Game handlers ---

// POST /api/games: create a game from a puzzle.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PuzzleID string `json:"puzzle_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PuzzleID == "" {
		jsonError(w, "Champ 'puzzle_id' requis", http.StatusBadRequest)
		return
	}

	game, err := s.store.CreateGame(req.PuzzleID)
	if err != nil {
		jsonError(w, "Grille introuvable", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, game.Snapshot())
}

// GET /api/games: list game sessions, most recent first.
func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	games := s.store.ListGames()
	snaps := make([]GameSnapshot, len(games))
	for i, g := range games {
		snaps[i] = g.Snapshot()
	}
	writeJSON(w, http.StatusOK, snaps)
}

// GET /api/games/{id}: current game state with its puzzle, answers hidden.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	game := s.store.GetGame(r.PathValue("id"))
	if game == nil {
		jsonError(w, "Partie introuvable", http.StatusNotFound)
		return
	}

	resp := struct {
		GameSnapshot
		Puzzle PuzzleView `json:"puzzle"`
	}{
		GameSnapshot: game.Snapshot(),
		Puzzle:       game.puzzle.View(false),
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/games/{id}/join: join a game with a pseudo.
func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	game := s.store.GetGame(r.PathValue("id"))
	if game == nil {
		jsonError(w, "Partie introuvable", http.StatusNotFound)
		return
	}

	var req struct {
		Pseudo string `json:"pseudo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pseudo == "" {
		jsonError(w, "Champ 'pseudo' requis", http.StatusBadRequest)
		return
	}

	pseudo := sanitizePseudo(req.Pseudo)
	if pseudo == "" {
		jsonError(w, "Pseudo invalide", http.StatusBadRequest)
		return
	}

	player := game.AddPlayer(pseudo)

	s.publish(game.ID, map[string]string{
		"type":   "player_joined",
		"pseudo": player.Pseudo,
		"color":  player.Color,
	})

	writeJSON(w, http.StatusOK, player)
}

// POST /api/games/{id}/find: claim a word by selecting its cells.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if !s.moveRL.allow(clientIP(r)) {
		jsonError(w, "Trop de requêtes, réessayez plus tard", http.StatusTooManyRequests)
		return
	}

	game := s.store.GetGame(r.PathValue("id"))
	if game == nil {
		jsonError(w, "Partie introuvable", http.StatusNotFound)
		return
	}

	var req struct {
		Pseudo string             `json:"pseudo"`
		Path   []wordsearch.Coord `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Requête invalide", http.StatusBadRequest)
		return
	}

	pseudo := sanitizePseudo(req.Pseudo)
	if pseudo == "" {
		jsonError(w, "Champ 'pseudo' requis", http.StatusBadRequest)
		return
	}
	if len(req.Path) == 0 {
		jsonError(w, "Champ 'path' requis", http.StatusBadRequest)
		return
	}

	found, done, err := game.Find(pseudo, req.Path)
	switch {
	case errors.Is(err, ErrAlreadyFound):
		jsonError(w, "Mot déjà trouvé", http.StatusConflict)
		return
	case errors.Is(err, ErrNoMatch):
		jsonError(w, "Aucun mot à cet endroit", http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.log.Error("find failed", "game", game.ID, "err", err)
		jsonError(w, "Erreur interne", http.StatusInternalServerError)
		return
	}

	s.publish(game.ID, map[string]any{
		"type":   "word_found",
		"word":   found.Word,
		"pseudo": found.Pseudo,
		"color":  found.Color,
		"path":   found.Path,
	})
	if done {
		s.publish(game.ID, map[string]any{
			"type":  "game_over",
			"found": game.Snapshot().Found,
		})
	}

	writeJSON(w, http.StatusOK, found)
}

// GET /api/games/{id}/events: SSE stream.
func (s *Server) handleGameEvents(w http.ResponseWriter, r *http.Request) {
	game := s.store.GetGame(r.PathValue("id"))
	if game == nil {
		jsonError(w, "Partie introuvable", http.StatusNotFound)
		return
	}

	playerPseudo := sanitizePseudo(r.URL.Query().Get("pseudo"))

	s.sse.ServeSSE(w, r, game.ID, func(sub *subscriber) {
		// Send initial game state on connect.
		snap := game.Snapshot()
		evt, err := json.Marshal(map[string]any{
			"type":      "game_state",
			"players":   snap.Players,
			"found":     snap.Found,
			"remaining": snap.Remaining,
		})
		if err != nil {
			s.log.Error("encode game state", "game", game.ID, "err", err)
			return
		}
		sub.ch <- evt
	}, func() {
		// On disconnect: broadcast player_left if pseudo was provided.
		if playerPseudo != "" {
			game.RemovePlayer(playerPseudo)
			s.publish(game.ID, map[string]string{
				"type":   "player_left",
				"pseudo": playerPseudo,
			})
		}
	})
}

// --- Frontend page handlers ---

// GET /game/{id}: serve the game page.
func (s *Server) handleGamePage(w http.ResponseWriter, _ *http.Request) {
	data, _ := frontendFS.ReadFile("frontend/game.html")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// --- Helpers ---

func (s *Server) publish(gameID string, evt any) {
	if err := s.sse.Publish(gameID, evt); err != nil {
		s.log.Error("publish event", "game", gameID, "err", err)
	}
}

// decodeWords accepts either a raw text blob or a list of strings and
// returns the normalized word list.
func decodeWords(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return wordlist.Parse(text), nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return wordlist.Parse(strings.Join(list, "\n")), nil
}

func wantAnswers(r *http.Request) bool {
	switch r.URL.Query().Get("answers") {
	case "1", "true", "yes":
		return true
	}
	return false
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizePseudo(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > 20 {
		s = string([]rune(s)[:20])
	}
	return s
}
