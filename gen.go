package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bodul/wordsearch/internal/export"
	"github.com/bodul/wordsearch/internal/wordlist"
)

type genOptions struct {
	words   string
	file    string
	size    int
	seed    int64
	title   string
	answers bool
	pdf     string
	xlsx    string
	url     string
	json    bool
}

func newGenCmd() *cobra.Command {
	opts := &genOptions{}

	genCmd := &cobra.Command{
		Use:   "gen [MOT...]",
		Short: "Génère une grille de mots mêlés",
		Long: `Génère une grille à partir de mots passés en arguments, avec --words
(séparés par des virgules) ou lus depuis un fichier texte, CSV ou Excel.

Examples:
  wordsearch gen chat chien oiseau
  wordsearch gen --words "lion,tigre,zèbre" --size 10 --answers
  wordsearch gen --file mots.xlsx --pdf grille.pdf --xlsx grille.xlsx
  wordsearch gen --seed 42 --json soleil lune`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(cmd.OutOrStdout(), opts, args)
		},
	}

	genCmd.Flags().StringVarP(&opts.words, "words", "w", "", "Comma or newline separated words")
	genCmd.Flags().StringVarP(&opts.file, "file", "f", "", "Word list file (.txt, .csv or .xlsx)")
	genCmd.Flags().IntVarP(&opts.size, "size", "s", 15, "Grid size")
	genCmd.Flags().Int64Var(&opts.seed, "seed", 0, "Seed for a reproducible grid (0 = random)")
	genCmd.Flags().StringVarP(&opts.title, "title", "t", "Mes mots mêlés", "Puzzle title")
	genCmd.Flags().BoolVarP(&opts.answers, "answers", "a", false, "Show the solution")
	genCmd.Flags().StringVar(&opts.pdf, "pdf", "", "Write a printable PDF to this file")
	genCmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "Write an Excel workbook to this file")
	genCmd.Flags().StringVar(&opts.url, "url", "", "URL printed as a QR code on the PDF")
	genCmd.Flags().BoolVar(&opts.json, "json", false, "Print the puzzle as JSON")

	return genCmd
}

func runGen(out io.Writer, opts *genOptions, args []string) error {
	words, err := collectWords(opts, args)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return errors.New("aucun mot fourni (arguments, --words ou --file)")
	}
	if opts.size <= 0 {
		return fmt.Errorf("taille de grille invalide : %d", opts.size)
	}

	puzzle := NewPuzzle(opts.title, words, opts.size, opts.seed)
	doc := export.Document{
		Title:   puzzle.Title,
		Result:  puzzle.Result,
		URL:     opts.url,
		Answers: opts.answers,
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(puzzle.View(opts.answers)); err != nil {
			return fmt.Errorf("encode puzzle: %w", err)
		}
	} else {
		fmt.Fprintln(out, export.Terminal(doc))
		if notice := puzzle.Notice(); notice != "" {
			fmt.Fprintln(out, notice)
			fmt.Fprintf(out, "Mots non placés : %s\n", strings.Join(puzzle.Result.Missing(puzzle.Requested), ", "))
		}
		fmt.Fprintf(out, "Graine : %d\n", puzzle.Seed)
	}

	if opts.pdf != "" {
		path := withExt(opts.pdf, ".pdf")
		if err := writeFile(path, func(w io.Writer) error { return export.PDF(w, doc) }); err != nil {
			return fmt.Errorf("failed to write PDF file: %w", err)
		}
		fmt.Fprintf(out, "PDF écrit dans %s\n", path)
	}

	if opts.xlsx != "" {
		path := withExt(opts.xlsx, ".xlsx")
		if err := writeFile(path, func(w io.Writer) error { return export.Workbook(w, doc) }); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		fmt.Fprintf(out, "Classeur écrit dans %s\n", path)
	}

	return nil
}

// collectWords merges words from --words, --file and positional arguments,
// in that order.
func collectWords(opts *genOptions, args []string) ([]string, error) {
	words := wordlist.Parse(opts.words)

	if opts.file != "" {
		fromFile, err := wordlist.FromFile(opts.file)
		if err != nil {
			return nil, err
		}
		words = append(words, fromFile...)
	}

	return append(words, wordlist.Parse(strings.Join(args, "\n"))...), nil
}

// withExt appends ext unless the filename already ends with it.
func withExt(filename, ext string) string {
	if strings.EqualFold(filepath.Ext(filename), ext) {
		return filename
	}
	return filename + ext
}

func writeFile(path string, render func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
