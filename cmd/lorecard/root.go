package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lorecard/lorecard/internal/config"
	"github.com/lorecard/lorecard/internal/pipeline"
	"github.com/lorecard/lorecard/internal/providers"
	"github.com/lorecard/lorecard/version"
)

var (
	cfgFile      string
	workdir      string
	outputFormat string
	forceRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "lorecard",
	Short: "Convert a novel into merged character cards and a worldbook",
	Long: `Lorecard converts a raw novel text file into merged character profiles
and world-book entries using LLM extraction.

The pipeline stages:
  - segment: split the text into chapter-aware chunks
  - extract: pull entity records out of each chunk via an LLM
  - merge:   reconcile records into deduplicated entities
  - filter:  keep the most significant entities
  - render:  write character cards and a worldbook

Every stage persists its output under the work directory and can be
re-run independently; completed work is skipped unless --force is set.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.lorecard/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&workdir, "workdir", "", "work directory (default from config)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads configuration, applying the --workdir override.
func loadConfig() (*config.Config, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	if workdir != "" {
		cfg.Workdir = workdir
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient builds the chat client, or nil when no API key is configured.
// Stages that never call the LLM work without one.
func newClient(cfg *config.Config, logger *slog.Logger) providers.LLMClient {
	if cfg.API.Key == "" {
		return nil
	}
	return providers.NewOpenAIChatClient(providers.OpenAIChatConfig{
		APIKey:            cfg.API.Key,
		BaseURL:           cfg.API.BaseURL,
		Model:             cfg.Model.ExtractionModel,
		RequestsPerMinute: cfg.Extract.RequestsPerMinute,
		RetryLimit:        cfg.Extract.RetryLimit,
		RetryDelay:        time.Duration(cfg.Extract.RetryDelaySeconds) * time.Second,
		Timeout:           time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		Logger:            logger,
	})
}

func newPipeline() (*pipeline.Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	p, err := pipeline.New(cfg, newClient(cfg, logger), logger)
	if err != nil {
		return nil, err
	}
	p.Force = forceRun
	return p, nil
}

// printResult renders a value in the selected output format.
func printResult(v any) error {
	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	default:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	return nil
}
