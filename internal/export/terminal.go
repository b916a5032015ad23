package export

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	letterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	answerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	wordStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// Terminal renders the puzzle for a terminal: title, framed grid and the
// word list beside it. Answer letters are highlighted when doc.Answers is set.
func Terminal(doc Document) string {
	if doc.Result == nil {
		return ""
	}

	var mask [][]bool
	if doc.Answers {
		mask = doc.Result.AnswerMask()
	}

	var grid strings.Builder
	for r, row := range doc.Result.Grid {
		if r > 0 {
			grid.WriteByte('\n')
		}
		for c, ch := range row {
			if c > 0 {
				grid.WriteByte(' ')
			}
			style := letterStyle
			if mask != nil && mask[r][c] {
				style = answerStyle
			}
			grid.WriteString(style.Render(string(ch)))
		}
	}

	words := doc.sortedWords()
	list := make([]string, 0, len(words)+1)
	list = append(list, titleStyle.Render(fmt.Sprintf("%d mots", len(words))))
	for _, w := range words {
		list = append(list, wordStyle.Render(w))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		frameStyle.Render(grid.String()),
		"  ",
		lipgloss.JoinVertical(lipgloss.Left, list...),
	)
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(doc.title()), body)
}
