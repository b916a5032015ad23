package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// Page layout constants (A4 portrait in mm).
const (
	pageWidth    = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	headerHeight = 12.0
	gridTop      = marginTop + headerHeight + 8.0
	maxCellSize  = 12.0
	wordColumns  = 3
	wordLineH    = 6.0
	pdfQRSize    = 24.0
)

// answerFill is the shading of answer cells on the solution page.
var answerFill = struct{ R, G, B int }{R: 187, G: 247, B: 208}

// PDF writes a printable puzzle: the grid and word list on the first page,
// and the solution on a second page when doc.Answers is set.
func PDF(w io.Writer, doc Document) error {
	if doc.Result == nil || doc.Result.Grid.Size() == 0 {
		return errors.New("no grid to export")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	bottom := renderGridPage(pdf, tr, doc.title(), doc, nil)
	renderWordList(pdf, tr, doc.sortedWords(), bottom+8)

	if doc.URL != "" {
		if err := renderQR(pdf, doc.URL); err != nil {
			return err
		}
	}

	if doc.Answers {
		pdf.AddPage()
		renderGridPage(pdf, tr, doc.title()+" - Solution", doc, doc.Result.AnswerMask())
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// renderGridPage draws the title and the letter grid, shading cells set in
// mask. It returns the y coordinate just below the grid.
func renderGridPage(pdf *fpdf.Fpdf, tr func(string) string, title string, doc Document, mask [][]bool) float64 {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(pageWidth-marginLeft-marginRight-pdfQRSize, headerHeight, tr(title), "", 0, "L", false, 0, "")

	grid := doc.Result.Grid
	size := grid.Size()
	cell := math.Min((pageWidth-marginLeft-marginRight)/float64(size), maxCellSize)
	offsetX := marginLeft + (pageWidth-marginLeft-marginRight-cell*float64(size))/2

	pdf.SetFont("Courier", "B", cellFontSize(cell))
	pdf.SetDrawColor(160, 160, 160)
	pdf.SetLineWidth(0.2)

	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			x := offsetX + float64(c)*cell
			y := gridTop + float64(r)*cell
			fill := mask != nil && mask[r][c]
			if fill {
				pdf.SetFillColor(answerFill.R, answerFill.G, answerFill.B)
			}
			pdf.SetXY(x, y)
			pdf.CellFormat(cell, cell, string(grid[r][c]), "1", 0, "C", fill, 0, "")
		}
	}

	// Outer frame
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.6)
	pdf.Rect(offsetX, gridTop, cell*float64(size), cell*float64(size), "D")

	return gridTop + cell*float64(size)
}

// renderWordList prints the words to find in columns starting at y.
func renderWordList(pdf *fpdf.Fpdf, tr func(string) string, words []string, y float64) {
	if len(words) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(0, 7, tr("Mots à trouver"), "", 1, "L", false, 0, "")

	colWidth := (pageWidth - marginLeft - marginRight) / wordColumns
	rows := (len(words) + wordColumns - 1) / wordColumns

	pdf.SetFont("Helvetica", "", 11)
	for i, word := range words {
		col := i / rows
		row := i % rows
		pdf.SetXY(marginLeft+float64(col)*colWidth, y+8+float64(row)*wordLineH)
		pdf.CellFormat(colWidth, wordLineH, tr(word), "", 0, "L", false, 0, "")
	}
}

// renderQR prints a QR code of url in the top right corner.
func renderQR(pdf *fpdf.Fpdf, url string) error {
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr_puzzle", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr_puzzle", pageWidth-marginRight-pdfQRSize, marginTop-5, pdfQRSize, pdfQRSize, false, opts, 0, url)
	return nil
}

// cellFontSize scales the letter size with the cell, in points.
func cellFontSize(cell float64) float64 {
	// 1 mm is about 2.83 pt; letters take roughly 60% of the cell.
	return math.Max(6, math.Min(20, cell*2.83*0.6))
}
