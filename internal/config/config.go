// Package config handles loading, validating, and hot-reloading the pipeline
// configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full pipeline configuration.
type Config struct {
	Workdir string `mapstructure:"workdir"`

	API        APIConfig        `mapstructure:"api"`
	Model      ModelConfig      `mapstructure:"model"`
	Segment    SegmentConfig    `mapstructure:"segment"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Validation ValidationConfig `mapstructure:"validation"`
	Merge      MergeConfig      `mapstructure:"merge"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Card       CardConfig       `mapstructure:"card"`
	Log        LogConfig        `mapstructure:"log"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
}

// APIConfig locates the OpenAI-compatible endpoint.
type APIConfig struct {
	Key            string `mapstructure:"key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ModelConfig selects the extraction model and generation parameters.
type ModelConfig struct {
	ExtractionModel string  `mapstructure:"extraction_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

// SegmentConfig shapes the chunking stage.
type SegmentConfig struct {
	MaxChunkChars       int      `mapstructure:"max_chunk_chars"`
	OverlapChars        int      `mapstructure:"overlap_chars"`
	ForcedCutMultiplier int      `mapstructure:"forced_cut_multiplier"`
	BoundaryPatterns    []string `mapstructure:"boundary_patterns"`
	SkipPatterns        []string `mapstructure:"skip_patterns"`
}

// ExtractConfig shapes the extraction stage.
type ExtractConfig struct {
	MaxConcurrent     int      `mapstructure:"max_concurrent"`
	RetryLimit        int      `mapstructure:"retry_limit"`
	RetryDelaySeconds int      `mapstructure:"retry_delay_seconds"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute"`
	Kinds             []string `mapstructure:"kinds"`
}

// CacheConfig controls the extraction response cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	ExpiryDays int  `mapstructure:"expiry_days"`
}

// SimilarityConfig holds the merge thresholds.
type SimilarityConfig struct {
	MergeThreshold      float64 `mapstructure:"merge_threshold"`
	NameThreshold       float64 `mapstructure:"name_threshold"`
	NameBoostThreshold  float64 `mapstructure:"name_boost_threshold"`
	ContentThreshold    float64 `mapstructure:"content_threshold"`
	MinContainmentRunes int     `mapstructure:"min_containment_runes"`
}

// ValidationConfig holds the record quality rules.
type ValidationConfig struct {
	MinNameLength    int      `mapstructure:"min_name_length"`
	MinContentLength int      `mapstructure:"min_content_length"`
	InvalidNames     []string `mapstructure:"invalid_names"`
}

// MergeConfig shapes the merge stage beyond the thresholds.
type MergeConfig struct {
	MaxListItems int               `mapstructure:"max_list_items"`
	NameMappings map[string]string `mapstructure:"name_mappings"`
}

// FilterConfig shapes the rank-and-select stage.
type FilterConfig struct {
	KeepCount      int  `mapstructure:"keep_count"`
	ArchiveDropped bool `mapstructure:"archive_dropped"`
}

// CardConfig stamps rendered artifacts.
type CardConfig struct {
	Creator string `mapstructure:"creator"`
	Version string `mapstructure:"version"`
	MaxTags int    `mapstructure:"max_tags"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PromptConfig overrides the built-in extraction prompts.
type PromptConfig struct {
	Character string `mapstructure:"character"`
	World     string `mapstructure:"world"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config. A missing
// config file is fine; defaults and environment variables still apply.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LORECARD")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.lorecard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cm := &Manager{v: v}
	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.API.Key = ResolveEnvVars(cfg.API.Key)
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Reloads that fail to
// parse or validate keep the previous config.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil || cfg.Validate() != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate rejects configurations no stage could run with.
func (c *Config) Validate() error {
	if c.Segment.MaxChunkChars <= 0 {
		return fmt.Errorf("segment.max_chunk_chars must be positive")
	}
	if c.Segment.OverlapChars < 0 || c.Segment.OverlapChars >= c.Segment.MaxChunkChars {
		return fmt.Errorf("segment.overlap_chars must be in [0, max_chunk_chars)")
	}
	if c.Segment.ForcedCutMultiplier < 1 {
		return fmt.Errorf("segment.forced_cut_multiplier must be at least 1")
	}
	if c.Extract.MaxConcurrent < 1 {
		return fmt.Errorf("extract.max_concurrent must be at least 1")
	}
	if c.Extract.RetryLimit < 1 {
		return fmt.Errorf("extract.retry_limit must be at least 1")
	}
	for _, kind := range c.Extract.Kinds {
		if kind != "character" && kind != "world" {
			return fmt.Errorf("extract.kinds: unknown kind %q", kind)
		}
	}
	for key, v := range map[string]float64{
		"similarity.merge_threshold":      c.Similarity.MergeThreshold,
		"similarity.name_threshold":       c.Similarity.NameThreshold,
		"similarity.name_boost_threshold": c.Similarity.NameBoostThreshold,
		"similarity.content_threshold":    c.Similarity.ContentThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1]", key)
		}
	}
	if c.Filter.KeepCount < 0 {
		return fmt.Errorf("filter.keep_count must not be negative")
	}
	return nil
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
