// Package pipeline wires the five conversion stages into a dependency-ordered
// registry and runs them against one work directory.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lorecard/lorecard/internal/config"
	"github.com/lorecard/lorecard/internal/merge"
	"github.com/lorecard/lorecard/internal/providers"
	"github.com/lorecard/lorecard/internal/store"
	"github.com/lorecard/lorecard/internal/types"
)

// RunSummary is the user-visible report of a full pipeline run.
type RunSummary struct {
	Chunks         int `json:"chunks" yaml:"chunks"`
	Extracted      int `json:"extracted" yaml:"extracted"`
	Failed         int `json:"failed" yaml:"failed"`
	Quarantined    int `json:"quarantined" yaml:"quarantined"`
	MergedEntities int `json:"merged_entities" yaml:"merged_entities"`
	Kept           int `json:"kept" yaml:"kept"`
	Dropped        int `json:"dropped" yaml:"dropped"`
	Artifacts      int `json:"artifacts" yaml:"artifacts"`
}

// Pipeline holds everything a stage needs to run.
type Pipeline struct {
	cfg      *config.Config
	store    *store.Store
	client   providers.LLMClient
	logger   *slog.Logger
	registry *Registry

	// SourceFile is the novel text file; required by the segment stage.
	SourceFile string
	// Force re-runs work that already has output.
	Force bool

	mu      sync.Mutex
	summary RunSummary
}

// New creates a Pipeline over the configured work directory. client may be
// nil for runs that never reach the extract stage.
func New(cfg *config.Config, client providers.LLMClient, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.New(cfg.Workdir)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		store:    s,
		client:   client,
		logger:   logger,
		registry: NewRegistry(),
	}
	for _, stage := range []Stage{
		&segmentStage{},
		&extractStage{},
		&mergeStage{},
		&filterStage{},
		&renderStage{},
	} {
		if err := p.registry.Register(stage); err != nil {
			return nil, err
		}
	}
	if err := p.registry.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Store exposes the underlying file store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Registry exposes the stage registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Run executes every stage in dependency order and returns the summary.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	ordered, err := p.registry.GetOrdered()
	if err != nil {
		return RunSummary{}, err
	}
	for _, stage := range ordered {
		start := time.Now()
		p.logger.Info("stage starting", "stage", stage.Name())
		if err := stage.Run(ctx, p); err != nil {
			return p.Summary(), fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		p.logger.Info("stage finished", "stage", stage.Name(),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	return p.Summary(), nil
}

// RunStage executes a single stage by name without touching its dependencies.
func (p *Pipeline) RunStage(ctx context.Context, name string) error {
	stage, ok := p.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	return stage.Run(ctx, p)
}

// Summary returns the accumulated run summary.
func (p *Pipeline) Summary() RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

func (p *Pipeline) update(fn func(*RunSummary)) {
	p.mu.Lock()
	fn(&p.summary)
	p.mu.Unlock()
}

// kinds returns the configured entity kinds, defaulting to both.
func (p *Pipeline) kinds() []types.EntityKind {
	if len(p.cfg.Extract.Kinds) == 0 {
		return []types.EntityKind{types.KindCharacter, types.KindWorld}
	}
	out := make([]types.EntityKind, 0, len(p.cfg.Extract.Kinds))
	for _, k := range p.cfg.Extract.Kinds {
		out = append(out, types.ParseEntityKind(k))
	}
	return out
}

func (p *Pipeline) thresholds() merge.Thresholds {
	return merge.Thresholds{
		Merge:               p.cfg.Similarity.MergeThreshold,
		Name:                p.cfg.Similarity.NameThreshold,
		NameBoost:           p.cfg.Similarity.NameBoostThreshold,
		Content:             p.cfg.Similarity.ContentThreshold,
		MinContainmentRunes: p.cfg.Similarity.MinContainmentRunes,
	}
}
