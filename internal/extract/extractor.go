// Package extract runs the per-chunk LLM extraction stage: bounded-concurrency
// chat calls, response parsing and validation, quarantine routing, and a
// content-addressed response cache.
package extract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lorecard/lorecard/internal/prompts"
	"github.com/lorecard/lorecard/internal/providers"
	"github.com/lorecard/lorecard/internal/store"
	"github.com/lorecard/lorecard/internal/types"
)

// Options configure an Extractor.
type Options struct {
	Client providers.LLMClient
	Store  *store.Store
	Logger *slog.Logger

	// Kinds to extract; defaults to character and world.
	Kinds []types.EntityKind

	// MaxConcurrent bounds in-flight chat calls (default 4).
	MaxConcurrent int

	// Force re-extracts chunks that already have validated output.
	Force bool

	Model       string
	Temperature float64
	MaxTokens   int

	// CacheExpiry > 0 enables the fingerprint cache.
	CacheExpiry time.Duration

	// Prompts override the built-in prompt per kind.
	Prompts map[types.EntityKind]prompts.Prompt

	Validation ValidationConfig
}

// Stats summarize one extraction run. Total counts chunk×kind tasks.
type Stats struct {
	Total       int `json:"total"`
	Skipped     int `json:"skipped"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Quarantined int `json:"quarantined"`
	Entities    int `json:"entities"`
}

// Extractor drives the extraction stage against a segmented store.
type Extractor struct {
	opts      Options
	validator *Validator
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates an Extractor.
func New(opts Options) (*Extractor, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("extract: client not set")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("extract: store not set")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = []types.EntityKind{types.KindCharacter, types.KindWorld}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	validator, err := NewValidator(opts.Validation)
	if err != nil {
		return nil, err
	}
	return &Extractor{opts: opts, validator: validator, logger: opts.Logger}, nil
}

// Run extracts every pending chunk for every configured kind. A chunk that
// exhausts its retries is counted as failed and left without a response file
// so a later run can pick it up; the rest of the run proceeds.
func (e *Extractor) Run(ctx context.Context) (Stats, error) {
	mapping, err := e.opts.Store.ReadMapping()
	if err != nil {
		return Stats{}, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrent)

	for _, kind := range e.opts.Kinds {
		kind := kind
		for _, mc := range mapping.Chunks {
			idx := mc.Order
			e.bump(func(s *Stats) { s.Total++ })
			if !e.opts.Force && e.opts.Store.HasResponse(kind, idx) {
				e.bump(func(s *Stats) { s.Skipped++ })
				continue
			}
			g.Go(func() error {
				return e.processChunk(ctx, kind, idx)
			})
		}
	}

	err = g.Wait()
	e.mu.Lock()
	stats := e.stats
	e.mu.Unlock()

	e.logger.Info("extraction finished",
		"total", stats.Total, "skipped", stats.Skipped, "succeeded", stats.Succeeded,
		"failed", stats.Failed, "quarantined", stats.Quarantined, "entities", stats.Entities)
	return stats, err
}

func (e *Extractor) processChunk(ctx context.Context, kind types.EntityKind, idx int) error {
	text, err := e.opts.Store.ReadChunk(idx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		// Nothing to extract; record an empty batch so the chunk counts done.
		if err := e.opts.Store.WriteResponse(kind, idx, nil); err != nil {
			return err
		}
		e.bump(func(s *Stats) { s.Succeeded++ })
		return nil
	}

	prompt := e.promptFor(kind)
	raw, attempts, ok, err := e.fetch(ctx, kind, idx, prompt, text)
	if err != nil {
		return err
	}
	if !ok {
		e.bump(func(s *Stats) { s.Failed++ })
		return nil
	}

	if err := e.opts.Store.WriteRaw(kind, idx, raw); err != nil {
		return err
	}

	arr, perr := ParseArray(raw)
	if perr != nil {
		return e.quarantine(kind, idx, types.StatusMalformed, perr.Error(), raw)
	}
	if verr := e.validator.Validate(arr); verr != nil {
		return e.quarantine(kind, idx, types.StatusMalformed, verr.Error(), raw)
	}

	valid := e.validator.Filter(RecordsFromArray(kind, arr))
	if len(valid) == 0 {
		return e.quarantine(kind, idx, types.StatusEmpty, "no valid records in response", raw)
	}
	for i := range valid {
		valid[i].Provenance = []int{idx}
	}

	if err := e.opts.Store.WriteResponse(kind, idx, valid); err != nil {
		return err
	}
	e.bump(func(s *Stats) {
		s.Succeeded++
		s.Entities += len(valid)
	})
	e.logger.Info("chunk extracted", "kind", kind, "chunk", idx,
		"records", len(valid), "attempts", attempts)
	return nil
}

func (e *Extractor) quarantine(kind types.EntityKind, idx int, status types.ResponseStatus, reason, raw string) error {
	e.logger.Warn("quarantining response", "kind", kind, "chunk", idx,
		"status", status, "reason", reason)
	if err := e.opts.Store.Quarantine(kind, idx, fmt.Sprintf("%s: %s", status, reason), raw); err != nil {
		return err
	}
	e.bump(func(s *Stats) { s.Quarantined++ })
	return nil
}

// fetch returns the raw response text, from the cache when a fresh entry
// exists, otherwise from the client. ok is false when the call failed after
// exhausting its retries.
func (e *Extractor) fetch(ctx context.Context, kind types.EntityKind, idx int, prompt prompts.Prompt, text string) (raw string, attempts int, ok bool, err error) {
	fp := fingerprint(kind, e.opts.Model, e.opts.Temperature, prompt.User, text)
	if e.opts.CacheExpiry > 0 {
		if cached, hit := e.opts.Store.CacheGet(fp, e.opts.CacheExpiry); hit {
			e.logger.Debug("cache hit", "kind", kind, "chunk", idx)
			return cached, 0, true, nil
		}
	}

	result, err := e.opts.Client.Chat(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User + text},
		},
		Model:       e.opts.Model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		RequestID:   uuid.NewString(),
	})
	if err != nil {
		return "", 0, false, err
	}
	if !result.Success {
		e.logger.Error("chunk extraction failed", "kind", kind, "chunk", idx,
			"error_type", result.ErrorType, "error", result.ErrorMessage,
			"attempts", result.Attempts)
		return "", result.Attempts, false, nil
	}

	if e.opts.CacheExpiry > 0 {
		if err := e.opts.Store.CachePut(fp, result.Content); err != nil {
			return "", 0, false, err
		}
	}
	return result.Content, result.Attempts, true, nil
}

func (e *Extractor) promptFor(kind types.EntityKind) prompts.Prompt {
	if p, ok := e.opts.Prompts[kind]; ok && p.User != "" {
		return p
	}
	return prompts.ForKind(kind)
}

func (e *Extractor) bump(fn func(*Stats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

// fingerprint addresses a cache entry by everything that shapes the response.
func fingerprint(kind types.EntityKind, model string, temperature float64, prompt, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.3f\x00%s\x00%s", kind, model, temperature, prompt, text)
	return fmt.Sprintf("%x", h.Sum(nil))
}
