package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bodul/wordsearch/internal/config"
	"github.com/bodul/wordsearch/internal/wordsearch"
)

type fakeAssistant struct {
	words []string
	err   error
	theme string
}

func (f *fakeAssistant) ExtractWords(_ context.Context, _ []byte, _ string) ([]string, error) {
	return f.words, f.err
}

func (f *fakeAssistant) SuggestWords(_ context.Context, theme string, _, _ int) ([]string, error) {
	f.theme = theme
	return f.words, f.err
}

func newTestServer(t *testing.T) *Server {
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, words WordAssistant) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(config.Default(), NewStore(), words, logger)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func createPuzzle(t *testing.T, srv *Server, body string) PuzzleView {
	t.Helper()
	w := do(t, srv, "POST", "/api/puzzles", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create puzzle: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var view PuzzleView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode puzzle: %v", err)
	}
	return view
}

func TestCreatePuzzle(t *testing.T) {
	srv := newTestServer(t)

	view := createPuzzle(t, srv, `{"title":"Animaux","words":"chat, chien\nlapin","size":10,"seed":42}`)

	if view.ID == "" {
		t.Fatal("puzzle ID is empty")
	}
	if view.Title != "Animaux" || view.Size != 10 || view.Seed != 42 {
		t.Fatalf("unexpected puzzle: %+v", view)
	}
	if len(view.Grid) != 10 || len(view.Grid[0]) != 10 {
		t.Fatalf("expected 10x10 grid, got %dx%d", len(view.Grid), len(view.Grid[0]))
	}
	for r, row := range view.Grid {
		for c, ch := range row {
			if ch < 'A' || ch > 'Z' {
				t.Fatalf("cell (%d,%d) = %q is not A-Z", r, c, ch)
			}
		}
	}
	if view.Requested != 3 || len(view.Placed) != 3 {
		t.Fatalf("expected 3 words placed, got requested=%d placed=%d", view.Requested, len(view.Placed))
	}
	if view.Notice != "" {
		t.Fatalf("unexpected notice: %s", view.Notice)
	}
	for _, pl := range view.Placed {
		for i, c := range pl.Path {
			if got := view.Grid.At(c); got != []rune(pl.Word)[i] {
				t.Fatalf("%s: cell %v = %q", pl.Word, c, got)
			}
		}
	}
}

func TestCreatePuzzleWordList(t *testing.T) {
	srv := newTestServer(t)

	view := createPuzzle(t, srv, `{"words":["Zèbre","lion"]}`)
	if view.Size != config.Default().Puzzle.DefaultSize {
		t.Fatalf("expected default size, got %d", view.Size)
	}
	if view.Title != "Mes mots mêlés" {
		t.Fatalf("expected default title, got %q", view.Title)
	}
	if len(view.Words) != 2 || view.Words[0] != "LION" || view.Words[1] != "ZEBRE" {
		t.Fatalf("expected [LION ZEBRE], got %v", view.Words)
	}
}

func TestCreatePuzzlePartial(t *testing.T) {
	srv := newTestServer(t)

	view := createPuzzle(t, srv, `{"words":"elephant, chat","size":5}`)
	if view.Requested != 2 || len(view.Placed) != 1 {
		t.Fatalf("expected 1 of 2 placed, got %d of %d", len(view.Placed), view.Requested)
	}
	if !strings.Contains(view.Notice, "1 placés sur 2") {
		t.Fatalf("unexpected notice: %q", view.Notice)
	}
}

func TestCreatePuzzleValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]string{
		"bad json":   `{`,
		"no words":   `{"words":""}`,
		"only junk":  `{"words":"1, 2, !"}`,
		"bad words":  `{"words":42}`,
		"negative":   `{"words":"chat","size":-1}`,
		"too large":  `{"words":"chat","size":1000}`,
		"many words": `{"words":"` + strings.Repeat("mot,", 100) + `"}`,
	}
	for name, body := range cases {
		if w := do(t, srv, "POST", "/api/puzzles", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestGetPuzzleHidesAnswers(t *testing.T) {
	srv := newTestServer(t)
	created := createPuzzle(t, srv, `{"words":"chat,chien","size":8}`)

	w := do(t, srv, "GET", "/api/puzzles/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get puzzle: expected 200, got %d", w.Code)
	}
	var view PuzzleView
	json.NewDecoder(w.Body).Decode(&view)
	if len(view.Placed) != 0 || view.Seed != 0 {
		t.Fatal("answers should be hidden by default")
	}
	if view.Grid.String() != created.Grid.String() {
		t.Fatal("stored grid differs from created grid")
	}

	w = do(t, srv, "GET", "/api/puzzles/"+created.ID+"?answers=1", "")
	json.NewDecoder(w.Body).Decode(&view)
	if len(view.Placed) != 2 {
		t.Fatalf("expected answers with ?answers=1, got %d", len(view.Placed))
	}

	if w := do(t, srv, "GET", "/api/puzzles/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListPuzzles(t *testing.T) {
	srv := newTestServer(t)
	createPuzzle(t, srv, `{"words":"chat"}`)
	createPuzzle(t, srv, `{"words":"chien"}`)

	w := do(t, srv, "GET", "/api/puzzles", "")
	var views []PuzzleView
	json.NewDecoder(w.Body).Decode(&views)
	if len(views) != 2 {
		t.Fatalf("expected 2 puzzles, got %d", len(views))
	}
	for _, v := range views {
		if len(v.Placed) != 0 {
			t.Fatal("list should not reveal answers")
		}
	}
}

func TestExportPDF(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.BaseURL = "https://example.test"
	view := createPuzzle(t, srv, `{"words":"soleil,lune,etoile","size":10}`)

	w := do(t, srv, "GET", "/api/puzzles/"+view.ID+"/pdf?answers=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("pdf: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("response is not a PDF")
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, view.ID+".pdf") {
		t.Fatalf("unexpected Content-Disposition: %s", cd)
	}

	if w := do(t, srv, "GET", "/api/puzzles/nonexistent/pdf", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestExportXLSX(t *testing.T) {
	srv := newTestServer(t)
	view := createPuzzle(t, srv, `{"words":"soleil,lune","size":8}`)

	w := do(t, srv, "GET", "/api/puzzles/"+view.ID+"/xlsx", "")
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Puzzle", "A3")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if want := string(view.Grid[0][0]); got != want {
		t.Fatalf("A3 = %q, want %q", got, want)
	}
	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Puzzle" {
		t.Fatalf("plain workbook should only hold the puzzle, got sheets %v", sheets)
	}

	w = do(t, srv, "GET", "/api/puzzles/"+view.ID+"/xlsx?answers=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx with answers: expected 200, got %d", w.Code)
	}
	withAnswers, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer withAnswers.Close()
	if sheets := withAnswers.GetSheetList(); len(sheets) != 2 || sheets[1] != "Answers" {
		t.Fatalf("expected an Answers sheet with ?answers=1, got %v", sheets)
	}
}

func TestPuzzleURL(t *testing.T) {
	srv := newTestServer(t)
	if got := srv.puzzleURL("abc"); got != "" {
		t.Fatalf("expected no URL without base, got %q", got)
	}
	srv.cfg.BaseURL = "https://example.test/"
	if got := srv.puzzleURL("abc"); got != "https://example.test/?puzzle=abc" {
		t.Fatalf("unexpected URL %q", got)
	}
}

func TestFullGameFlow(t *testing.T) {
	srv := newTestServer(t)
	view := createPuzzle(t, srv, `{"words":"chat,chien","size":8,"seed":3}`)

	// Create game.
	w := do(t, srv, "POST", "/api/games", `{"puzzle_id":"`+view.ID+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create game: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var game GameSnapshot
	json.NewDecoder(w.Body).Decode(&game)
	if game.ID == "" || game.PuzzleID != view.ID {
		t.Fatalf("unexpected game: %+v", game)
	}
	if game.Remaining != 2 {
		t.Fatalf("expected 2 words remaining, got %d", game.Remaining)
	}

	// Join game.
	w = do(t, srv, "POST", "/api/games/"+game.ID+"/join", `{"pseudo":"Alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("join game: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var player Player
	json.NewDecoder(w.Body).Decode(&player)
	if player.Pseudo != "Alice" {
		t.Fatalf("expected pseudo Alice, got %s", player.Pseudo)
	}

	sub := srv.sse.Subscribe(game.ID)
	defer srv.sse.Unsubscribe(sub)

	find := func(path []wordsearch.Coord) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]any{"pseudo": "Alice", "path": path})
		return do(t, srv, "POST", "/api/games/"+game.ID+"/find", string(body))
	}

	// Not a word.
	if w := find([]wordsearch.Coord{{Row: 0, Col: 0}}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bogus find: expected 422, got %d", w.Code)
	}

	// First word, selected backwards.
	first := view.Placed[0]
	reversed := make([]wordsearch.Coord, len(first.Path))
	for i, c := range first.Path {
		reversed[len(reversed)-1-i] = c
	}
	w = find(reversed)
	if w.Code != http.StatusOK {
		t.Fatalf("find: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var found FoundWord
	json.NewDecoder(w.Body).Decode(&found)
	if found.Word != first.Word || found.Pseudo != "Alice" {
		t.Fatalf("unexpected found word: %+v", found)
	}
	expectEvent(t, sub, "word_found")

	// Same word again.
	if w := find(first.Path); w.Code != http.StatusConflict {
		t.Fatalf("duplicate find: expected 409, got %d", w.Code)
	}

	// Last word ends the game.
	if w := find(view.Placed[1].Path); w.Code != http.StatusOK {
		t.Fatalf("find last: expected 200, got %d", w.Code)
	}
	expectEvent(t, sub, "word_found")
	expectEvent(t, sub, "game_over")

	// Game state includes the puzzle without answers.
	w = do(t, srv, "GET", "/api/games/"+game.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get game: expected 200, got %d", w.Code)
	}
	var resp struct {
		Found     []FoundWord `json:"found"`
		Remaining int         `json:"remaining"`
		Puzzle    PuzzleView  `json:"puzzle"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Remaining != 0 || len(resp.Found) != 2 {
		t.Fatalf("expected finished game, got remaining=%d found=%d", resp.Remaining, len(resp.Found))
	}
	if resp.Puzzle.ID != view.ID || len(resp.Puzzle.Placed) != 0 {
		t.Fatal("game should include the puzzle without answers")
	}
}

func expectEvent(t *testing.T, sub *subscriber, typ string) {
	t.Helper()
	select {
	case msg := <-sub.ch:
		var evt struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("invalid event %q: %v", msg, err)
		}
		if evt.Type != typ {
			t.Fatalf("expected %s event, got %s", typ, evt.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("no %s event", typ)
	}
}

func TestGameValidation(t *testing.T) {
	srv := newTestServer(t)

	if w := do(t, srv, "POST", "/api/games", `{"puzzle_id":"nonexistent"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/games", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/games/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	view := createPuzzle(t, srv, `{"words":"chat"}`)
	w := do(t, srv, "POST", "/api/games", `{"puzzle_id":"`+view.ID+`"}`)
	var game GameSnapshot
	json.NewDecoder(w.Body).Decode(&game)

	if w := do(t, srv, "POST", "/api/games/"+game.ID+"/join", `{"pseudo":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank pseudo: expected 400, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/games/"+game.ID+"/find", `{"pseudo":"Bob"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing path: expected 400, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/games/"+game.ID+"/find", `{"path":[{"r":0,"c":0}]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing pseudo: expected 400, got %d", w.Code)
	}
}

func TestGameEventsInitialState(t *testing.T) {
	srv := newTestServer(t)
	view := createPuzzle(t, srv, `{"words":"chat"}`)
	w := do(t, srv, "POST", "/api/games", `{"puzzle_id":"`+view.ID+`"}`)
	var game GameSnapshot
	json.NewDecoder(w.Body).Decode(&game)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/games/"+game.ID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), `"type":"game_state"`) {
		t.Fatalf("expected initial game_state event, got %q", rec.Body.String())
	}
	if n := srv.sse.SubscriberCount(game.ID); n != 0 {
		t.Fatalf("subscriber should be removed on disconnect, got %d", n)
	}
}

func TestGamePageRoute(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, "GET", "/game/abc123", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected text/html, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "Mots mêlés") {
		t.Fatal("game page does not contain expected title")
	}
}

func TestWordHelpersDisabled(t *testing.T) {
	srv := newTestServer(t)

	if w := do(t, srv, "POST", "/api/words/suggest", `{"theme":"la mer"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("suggest: expected 503, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/words/scan", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("scan: expected 503, got %d", w.Code)
	}
}

func TestSuggestWordsHandler(t *testing.T) {
	assistant := &fakeAssistant{words: []string{"VAGUE", "SABLE"}}
	srv := newTestServerWith(t, assistant)

	w := do(t, srv, "POST", "/api/words/suggest", `{"theme":"la mer","count":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Words []string `json:"words"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Words) != 2 || assistant.theme != "la mer" {
		t.Fatalf("unexpected suggestion: %v (theme %q)", resp.Words, assistant.theme)
	}

	if w := do(t, srv, "POST", "/api/words/suggest", `{"theme":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty theme: expected 400, got %d", w.Code)
	}

	assistant.err = errors.New("quota")
	if w := do(t, srv, "POST", "/api/words/suggest", `{"theme":"la mer"}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("assistant error: expected 500, got %d", w.Code)
	}
}

func scanRequest(t *testing.T, mimeType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="liste.png"`)
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake image"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/words/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestScanWords(t *testing.T) {
	srv := newTestServerWith(t, &fakeAssistant{words: []string{"CHAT", "CHIEN"}})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, scanRequest(t, "image/png"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "CHIEN") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, scanRequest(t, "image/gif"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("gif: expected 400, got %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, "GET", "/", "")

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}

	for key, expected := range headers {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("header %s: expected %q, got %q", key, expected, got)
		}
	}

	csp := w.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

func TestGenerateRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.GeneratePerMinute = 2
	srv := NewServer(cfg, NewStore(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer srv.Close()

	for i := range 2 {
		if w := do(t, srv, "POST", "/api/puzzles", `{"words":"chat"}`); w.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i+1, w.Code)
		}
	}
	if w := do(t, srv, "POST", "/api/puzzles", `{"words":"chat"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Second)

	// First 3 should pass.
	for i := range 3 {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	// 4th should be blocked.
	if rl.allow("1.2.3.4") {
		t.Fatal("4th request should be rate limited")
	}

	// Different IP should still be allowed.
	if !rl.allow("5.6.7.8") {
		t.Fatal("different IP should be allowed")
	}
}

func TestRateLimiterStop(t *testing.T) {
	rl := newRateLimiter(1, time.Second)
	rl.stop()
	rl.stop() // should not panic

	select {
	case <-rl.done:
	default:
		t.Fatal("stop should close the done channel")
	}
	if !rl.allow("1.2.3.4") {
		t.Fatal("a stopped limiter still answers")
	}
}

func TestListGames(t *testing.T) {
	srv := newTestServer(t)
	view := createPuzzle(t, srv, `{"words":"chat"}`)
	for range 2 {
		if w := do(t, srv, "POST", "/api/games", `{"puzzle_id":"`+view.ID+`"}`); w.Code != http.StatusCreated {
			t.Fatalf("create game: expected 201, got %d", w.Code)
		}
	}

	w := do(t, srv, "GET", "/api/games", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list games: expected 200, got %d", w.Code)
	}
	var games []GameSnapshot
	json.NewDecoder(w.Body).Decode(&games)
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[0].CreatedAt.Before(games[1].CreatedAt) {
		t.Fatal("expected games sorted by descending creation time")
	}
}

func TestDecodeWords(t *testing.T) {
	words, err := decodeWords(json.RawMessage(`"chat\nchien"`))
	if err != nil || len(words) != 2 {
		t.Fatalf("text: %v %v", words, err)
	}
	words, err = decodeWords(json.RawMessage(`["chat","chien, lapin"]`))
	if err != nil || len(words) != 3 {
		t.Fatalf("list: %v %v", words, err)
	}
	if words, err := decodeWords(nil); err != nil || words != nil {
		t.Fatalf("empty: %v %v", words, err)
	}
	if _, err := decodeWords(json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for an object")
	}
}
