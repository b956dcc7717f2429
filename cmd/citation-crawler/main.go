// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the citation-crawler CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/citation-crawler/internal/config"
	"github.com/pdiddy/citation-crawler/internal/secrets"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// appViper holds the merged configuration sources, set before any
// subcommand runs.
var appViper *viper.Viper

var rootCmd = &cobra.Command{
	Use:   "citation-crawler",
	Short: "Build a dataset by crawling the citation graph",
	Long: `citation-crawler grows a dataset of research papers by breadth-first
traversal of the OpenAlex citation graph. Each paper is fetched, downloaded,
checked for relevance and mined for structured data; relevant papers enqueue
their references, related works and citing works.

A project directory holds the settings (project.yaml), the traversal state
(bfs_queue.json), downloaded content and the extracted dataset (dataset.db).
Runs can be interrupted at any time and resume where they stopped.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./citation-crawler.yaml or ~/.config/citation-crawler/citation-crawler.yaml)")
	rootCmd.PersistentFlags().StringP("project", "p", ".", "project directory")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
}

func setup(cmd *cobra.Command, args []string) error {
	levelName, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(levelName))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfgFile, _ := cmd.Flags().GetString("config")
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("using config file", "path", used)
	}

	s, err := secrets.Load(secrets.Dir, slog.Default())
	if err != nil {
		return err
	}
	if len(s) > 0 {
		slog.Debug("loaded secrets", "keys", secrets.Names(s))
	}
	config.ApplySecrets(v, s)

	appViper = v
	return nil
}

// loadConfig returns the validated configuration.
func loadConfig() (types.Config, error) {
	return config.Load(appViper)
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("project")
	if dir == "" {
		return "."
	}
	return dir
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
