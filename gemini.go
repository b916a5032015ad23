package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/bodul/wordsearch/internal/wordlist"
)

const extractPrompt = `Voici la photo d'une liste de mots (fiche de vocabulaire, liste manuscrite, tableau...).

Extrais chaque mot au format JSON suivant :
{"words": ["MOT1", "MOT2", ...]}

Règles :
- Un mot par entrée, dans l'ordre de lecture.
- Ignore les titres, numéros, consignes et définitions.
- Réponds UNIQUEMENT avec le JSON, sans commentaire ni markdown.`

const suggestPrompt = `Propose %d mots en français sur le thème : %q.

Règles :
- Des noms communs simples, sans espace ni trait d'union.
- Entre 3 et %d lettres.
- Réponds UNIQUEMENT avec le JSON {"words": ["MOT1", ...]}, sans commentaire ni markdown.`

// WordAssistant produces word lists with a language model.
type WordAssistant interface {
	ExtractWords(ctx context.Context, imageData []byte, mimeType string) ([]string, error)
	SuggestWords(ctx context.Context, theme string, count, maxLen int) ([]string, error)
}

// ExtractWords sends a photo of a word list to Gemini and returns the
// normalized words it reads.
func (g *GeminiClient) ExtractWords(ctx context.Context, imageData []byte, mimeType string) ([]string, error) {
	return g.generateWords(ctx, []*genai.Part{
		{Text: extractPrompt},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageData}},
	}, 0.1)
}

// SuggestWords asks Gemini for count words about theme, each at most
// maxLen letters long.
func (g *GeminiClient) SuggestWords(ctx context.Context, theme string, count, maxLen int) ([]string, error) {
	return g.generateWords(ctx, []*genai.Part{
		{Text: fmt.Sprintf(suggestPrompt, count, theme, maxLen)},
	}, 0.7)
}

func (g *GeminiClient) generateWords(ctx context.Context, parts []*genai.Part, temperature float32) ([]string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(temperature),
			TopP:             genai.Ptr(float32(1)),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	return parseWordsResponse(resp.Text())
}

// parseWordsResponse decodes {"words": [...]} and normalizes every entry.
func parseWordsResponse(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty gemini response")
	}

	var payload struct {
		Words []string `json:"words"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("parse words JSON: %w\nraw response: %s", err, text)
	}

	words := wordlist.Parse(strings.Join(payload.Words, "\n"))
	if len(words) == 0 {
		return nil, fmt.Errorf("no usable words in gemini response")
	}
	return words, nil
}
