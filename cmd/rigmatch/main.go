// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command rigmatch resolves node correspondences between rigs, transfers
// components across them and serves the same operations over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rigmatch/services/rigmatch/config"
	"github.com/AleutianAI/rigmatch/services/rigmatch/telemetry"
)

const version = "0.1.0"

// Global flags
var (
	configPath string
	logLevel   string
	jsonOutput bool
)

var shutdownTelemetry telemetry.ShutdownFunc

var rootCmd = &cobra.Command{
	Use:   "rigmatch",
	Short: "Resolve node correspondences between rigs",
	Long: `rigmatch maps nodes of a source rig onto nodes of one or more target rigs
by path, name and fuzzy similarity, asking for a decision when a match is
ambiguous.

Examples:
  rigmatch resolve source.yaml avatar.yaml
  rigmatch transfer source.yaml a.yaml b.yaml --out-dir out/ --journal ~/.rigmatch/journal
  rigmatch slots Hair_Main --index 0 Body Hair_Mains
  rigmatch serve --port 8080`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		setupLogging(logLevel)
		shutdown, err := telemetry.Init(cmd.Context(), telemetry.FromEnv("rigmatch", version))
		if err != nil {
			return err
		}
		shutdownTelemetry = shutdown
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if shutdownTelemetry == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Resolver config YAML (embedded defaults if empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// loadConfig reads --config, falling back to the embedded defaults.
func loadConfig(ctx context.Context) (*config.ResolverConfig, error) {
	if configPath == "" {
		return config.GetResolverConfig(ctx)
	}
	return config.LoadResolverConfigFile(ctx, configPath)
}
