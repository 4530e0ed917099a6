package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Workdir: "workdir",
		API: APIConfig{
			Key:            "${LORECARD_API_KEY}",
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 300,
		},
		Model: ModelConfig{
			ExtractionModel: "gemini-2.5-flash",
			Temperature:     0.3,
			MaxTokens:       60000,
		},
		Segment: SegmentConfig{
			MaxChunkChars:       30000,
			OverlapChars:        200,
			ForcedCutMultiplier: 2,
		},
		Extract: ExtractConfig{
			MaxConcurrent:     4,
			RetryLimit:        5,
			RetryDelaySeconds: 10,
			RequestsPerMinute: 60,
			Kinds:             []string{"character", "world"},
		},
		Cache: CacheConfig{
			Enabled:    true,
			ExpiryDays: 7,
		},
		Similarity: SimilarityConfig{
			MergeThreshold:      0.9,
			NameThreshold:       0.95,
			NameBoostThreshold:  0.92,
			ContentThreshold:    0.8,
			MinContainmentRunes: 3,
		},
		Validation: ValidationConfig{
			MinNameLength:    2,
			MinContentLength: 20,
			InvalidNames:     []string{"主角", "某人", "路人", "不详", "未知"},
		},
		Merge: MergeConfig{
			MaxListItems: 10,
		},
		Filter: FilterConfig{
			KeepCount:      50,
			ArchiveDropped: true,
		},
		Card: CardConfig{
			Creator: "lorecard",
			Version: "1.0",
			MaxTags: 5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// setDefaults seeds viper with every default so partial config files work.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("workdir", d.Workdir)
	v.SetDefault("api.key", d.API.Key)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_seconds", d.API.TimeoutSeconds)
	v.SetDefault("model.extraction_model", d.Model.ExtractionModel)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("segment.max_chunk_chars", d.Segment.MaxChunkChars)
	v.SetDefault("segment.overlap_chars", d.Segment.OverlapChars)
	v.SetDefault("segment.forced_cut_multiplier", d.Segment.ForcedCutMultiplier)
	v.SetDefault("segment.boundary_patterns", d.Segment.BoundaryPatterns)
	v.SetDefault("segment.skip_patterns", d.Segment.SkipPatterns)
	v.SetDefault("extract.max_concurrent", d.Extract.MaxConcurrent)
	v.SetDefault("extract.retry_limit", d.Extract.RetryLimit)
	v.SetDefault("extract.retry_delay_seconds", d.Extract.RetryDelaySeconds)
	v.SetDefault("extract.requests_per_minute", d.Extract.RequestsPerMinute)
	v.SetDefault("extract.kinds", d.Extract.Kinds)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.expiry_days", d.Cache.ExpiryDays)
	v.SetDefault("similarity.merge_threshold", d.Similarity.MergeThreshold)
	v.SetDefault("similarity.name_threshold", d.Similarity.NameThreshold)
	v.SetDefault("similarity.name_boost_threshold", d.Similarity.NameBoostThreshold)
	v.SetDefault("similarity.content_threshold", d.Similarity.ContentThreshold)
	v.SetDefault("similarity.min_containment_runes", d.Similarity.MinContainmentRunes)
	v.SetDefault("validation.min_name_length", d.Validation.MinNameLength)
	v.SetDefault("validation.min_content_length", d.Validation.MinContentLength)
	v.SetDefault("validation.invalid_names", d.Validation.InvalidNames)
	v.SetDefault("merge.max_list_items", d.Merge.MaxListItems)
	v.SetDefault("merge.name_mappings", d.Merge.NameMappings)
	v.SetDefault("filter.keep_count", d.Filter.KeepCount)
	v.SetDefault("filter.archive_dropped", d.Filter.ArchiveDropped)
	v.SetDefault("card.creator", d.Card.Creator)
	v.SetDefault("card.version", d.Card.Version)
	v.SetDefault("card.max_tags", d.Card.MaxTags)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("prompt.character", "")
	v.SetDefault("prompt.world", "")
}

// WriteDefault writes a starter configuration file to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(map[string]any{
		"workdir":    cfg.Workdir,
		"api":        map[string]any{"key": cfg.API.Key, "base_url": cfg.API.BaseURL, "timeout_seconds": cfg.API.TimeoutSeconds},
		"model":      map[string]any{"extraction_model": cfg.Model.ExtractionModel, "temperature": cfg.Model.Temperature, "max_tokens": cfg.Model.MaxTokens},
		"segment":    map[string]any{"max_chunk_chars": cfg.Segment.MaxChunkChars, "overlap_chars": cfg.Segment.OverlapChars},
		"extract":    map[string]any{"max_concurrent": cfg.Extract.MaxConcurrent, "retry_limit": cfg.Extract.RetryLimit, "kinds": cfg.Extract.Kinds},
		"cache":      map[string]any{"enabled": cfg.Cache.Enabled, "expiry_days": cfg.Cache.ExpiryDays},
		"similarity": map[string]any{"merge_threshold": cfg.Similarity.MergeThreshold, "name_threshold": cfg.Similarity.NameThreshold},
		"validation": map[string]any{"min_name_length": cfg.Validation.MinNameLength, "min_content_length": cfg.Validation.MinContentLength},
		"filter":     map[string]any{"keep_count": cfg.Filter.KeepCount, "archive_dropped": cfg.Filter.ArchiveDropped},
		"log":        map[string]any{"level": cfg.Log.Level},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# lorecard configuration
# The API key uses ${ENV_VAR} syntax to reference environment variables.
# Set it in your shell: export LORECARD_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
