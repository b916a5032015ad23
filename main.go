package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	// Use a minimal logger until the configuration is loaded.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wordsearch",
		Short: "Générateur de mots mêlés",
		Long: `Génère des grilles de mots mêlés à partir d'une liste de mots,
en ligne de commande ou via un serveur web collaboratif.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd(), newGenCmd())
	return rootCmd
}
