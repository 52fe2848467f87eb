// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rigmatch/services/rigmatch"
	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
	"github.com/AleutianAI/rigmatch/services/rigmatch/journal"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort      int
	serveJournal   string
	serveRateLimit float64
	serveBurst     int
	serveAccessLog bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolver over HTTP",
	Long: `Serve exposes resolve, transfer and slot matching under /v1/rigmatch and
Prometheus metrics on /metrics. With --config the file is watched and
valid edits are applied to new requests without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveJournal, "journal", "", "Journal directory for transfer reports (disabled if empty)")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit", 0, "Sustained requests per second (0 disables)")
	serveCmd.Flags().IntVar(&serveBurst, "burst", 0, "Rate limiter burst (defaults to the rate)")
	serveCmd.Flags().BoolVar(&serveAccessLog, "access-log", false, "Log every request")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := slog.Default()

	opts := []rigmatch.HandlerOption{
		rigmatch.WithConfig(cfg),
		rigmatch.WithLogger(logger),
	}

	// The server runs without a journal when the directory can't be opened.
	if serveJournal != "" {
		store, err := journal.Open(serveJournal, logger)
		if err != nil {
			logger.Warn("Journal unavailable, batch history disabled",
				slog.String("path", serveJournal),
				slog.String("error", err.Error()),
			)
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("Failed to close journal", slog.String("error", err.Error()))
				}
			}()
			opts = append(opts, rigmatch.WithStore(store))
		}
	}

	handlers := rigmatch.NewHandlers(opts...)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.ResolverConfig) {
				handlers.SetConfig(next)
				logger.Info("Resolver config reloaded",
					slog.String("policy", next.DecisionPolicy),
					slog.Float64("safe_confidence", next.SafeConfidence),
				)
			})
			if err != nil {
				logger.Warn("Config watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	router := rigmatch.NewRouter(handlers, rigmatch.RouterConfig{
		ServiceName: "rigmatch",
		RateLimit:   serveRateLimit,
		Burst:       serveBurst,
		AccessLog:   serveAccessLog,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", servePort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting rigmatch server", slog.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()
	printBanner(cmd, servePort, serveJournal != "")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down rigmatch server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func printBanner(cmd *cobra.Command, port int, journaled bool) {
	if jsonOutput {
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, boldStyle.Render("rigmatch "+version))
	fmt.Fprintf(w, "  listening on %s\n", passStyle.Render(fmt.Sprintf("http://localhost:%d/v1/rigmatch", port)))
	if !journaled {
		fmt.Fprintln(w, mutedStyle.Render("  journal disabled"))
	}
	if _, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		fmt.Fprintln(w, mutedStyle.Render("  exporting traces over OTLP"))
	}
}
