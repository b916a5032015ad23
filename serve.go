package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bodul/wordsearch/internal/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		listen      string
		printConfig bool
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Démarre le serveur web",
		Long: `Démarre le serveur HTTP : création de grilles, export PDF/Excel et
parties collaboratives en temps réel.

Examples:
  wordsearch serve
  wordsearch serve --config wordsearch.yaml
  PORT=9000 wordsearch serve
  wordsearch serve --print-config > wordsearch.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printConfig {
				_, err := io.WriteString(cmd.OutOrStdout(), config.DefaultYAML)
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	serveCmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the default configuration file and exit")
	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address, overrides the configuration (e.g. :8080)")
	return serveCmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var words WordAssistant
	if cfg.Gemini.ProjectID != "" {
		gemini, err := NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return fmt.Errorf("impossible d'initialiser Gemini : %w", err)
		}
		defer gemini.Close()
		words = gemini
		logger.Info("client Gemini initialisé", "project", cfg.Gemini.ProjectID, "model", cfg.Gemini.Model)
	} else {
		logger.Info("GCP_PROJECT_ID non défini, analyse d'image et suggestions désactivées")
	}

	handler := NewServer(cfg, NewStore(), words, logger)
	defer handler.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE streams end with the server context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serveur démarré", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("arrêt du serveur")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
