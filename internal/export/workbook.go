package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	puzzleSheet  = "Puzzle"
	answersSheet = "Answers"
)

// Workbook writes the puzzle as an Excel workbook: the grid and word list on
// the "Puzzle" sheet. When doc.Answers is set, an "Answers" sheet holds the
// grid reduced to answer letters.
func Workbook(w io.Writer, doc Document) error {
	if doc.Result == nil || doc.Result.Grid.Size() == 0 {
		return errors.New("no grid to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), puzzleSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Family: "Courier New", Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "A0A0A0", Style: 1},
			{Type: "right", Color: "A0A0A0", Style: 1},
			{Type: "top", Color: "A0A0A0", Style: 1},
			{Type: "bottom", Color: "A0A0A0", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := writeGrid(f, puzzleSheet, doc, nil, style); err != nil {
		return err
	}
	if doc.Answers {
		if _, err := f.NewSheet(answersSheet); err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		if err := writeGrid(f, answersSheet, doc, doc.Result.AnswerMask(), style); err != nil {
			return err
		}
	}
	if err := writeWords(f, doc); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeGrid puts the title in A1 and the grid from A3. With a mask, only
// masked cells keep their letter.
func writeGrid(f *excelize.File, sheet string, doc Document, mask [][]bool, style int) error {
	if err := f.SetCellValue(sheet, "A1", doc.title()); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	grid := doc.Result.Grid
	size := grid.Size()
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			ref, err := excelize.CoordinatesToCellName(c+1, r+3)
			if err != nil {
				return fmt.Errorf("cell (%d,%d): %w", r, c, err)
			}
			value := string(grid[r][c])
			if mask != nil && !mask[r][c] {
				value = ""
			}
			if err := f.SetCellValue(sheet, ref, value); err != nil {
				return fmt.Errorf("write %s!%s: %w", sheet, ref, err)
			}
		}
	}

	first, _ := excelize.CoordinatesToCellName(1, 3)
	last, _ := excelize.CoordinatesToCellName(size, size+2)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("style %s: %w", sheet, err)
	}

	lastCol, _ := excelize.ColumnNumberToName(size)
	if err := f.SetColWidth(sheet, "A", lastCol, 4); err != nil {
		return fmt.Errorf("column width %s: %w", sheet, err)
	}
	return nil
}

// writeWords lists the words to find in the column right of the grid,
// leaving one blank column.
func writeWords(f *excelize.File, doc Document) error {
	col := doc.Result.Grid.Size() + 2
	for i, word := range doc.sortedWords() {
		ref, err := excelize.CoordinatesToCellName(col, i+3)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(puzzleSheet, ref, word); err != nil {
			return fmt.Errorf("write word %s: %w", word, err)
		}
	}
	return nil
}
