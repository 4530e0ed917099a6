package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lorecard/lorecard/internal/extract"
	"github.com/lorecard/lorecard/internal/filter"
	"github.com/lorecard/lorecard/internal/merge"
	"github.com/lorecard/lorecard/internal/prompts"
	"github.com/lorecard/lorecard/internal/render"
	"github.com/lorecard/lorecard/internal/segment"
	"github.com/lorecard/lorecard/internal/store"
	"github.com/lorecard/lorecard/internal/types"
)

// segmentStage splits the source text into chapter-aware chunks.
type segmentStage struct{}

func (s *segmentStage) Name() string           { return "segment" }
func (s *segmentStage) Dependencies() []string { return nil }
func (s *segmentStage) Description() string    { return "split the novel into chapter-aware chunks" }

func (s *segmentStage) Status(p *Pipeline) StageStatus {
	counts := p.store.StageCounts()
	return StageStatus{
		Complete: counts["chunks"] > 0,
		Counts:   map[string]int{"chunks": counts["chunks"]},
	}
}

func (s *segmentStage) Run(ctx context.Context, p *Pipeline) error {
	if !p.Force {
		if mapping, err := p.store.ReadMapping(); err == nil {
			p.logger.Info("segmentation exists, skipping", "chunks", mapping.TotalChunks)
			p.update(func(r *RunSummary) { r.Chunks = mapping.TotalChunks })
			return nil
		}
	}
	if p.SourceFile == "" {
		return fmt.Errorf("no source file given and no existing segmentation")
	}

	data, err := os.ReadFile(p.SourceFile)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	seg, err := segment.New(segment.Config{
		MaxChars:          p.cfg.Segment.MaxChunkChars,
		OverlapChars:      p.cfg.Segment.OverlapChars,
		ForcedCutMultiple: p.cfg.Segment.ForcedCutMultiplier,
		BoundaryPatterns:  p.cfg.Segment.BoundaryPatterns,
		SkipPatterns:      p.cfg.Segment.SkipPatterns,
	})
	if err != nil {
		return err
	}

	chunks := seg.Split(seg.Clean(string(data)), p.SourceFile)
	mapping := store.Mapping{
		SourceFile:  p.SourceFile,
		MaxChars:    p.cfg.Segment.MaxChunkChars,
		Overlap:     p.cfg.Segment.OverlapChars,
		TotalChunks: len(chunks),
		GeneratedAt: time.Now(),
		Chunks:      make([]store.MappedChunk, len(chunks)),
	}
	for i, ch := range chunks {
		mapping.Chunks[i] = store.MappedChunk{
			ID:           fmt.Sprintf("chunk_%03d", ch.Index),
			Order:        ch.Index,
			Length:       utf8.RuneCountInString(ch.Text),
			Start:        ch.Start,
			End:          ch.End,
			ChapterTitle: ch.ChapterTitle,
			Preview:      preview(ch.Text),
		}
	}
	if err := p.store.WriteChunks(chunks, mapping); err != nil {
		return err
	}
	p.update(func(r *RunSummary) { r.Chunks = len(chunks) })
	p.logger.Info("segmented source", "chunks", len(chunks), "source", p.SourceFile)
	return nil
}

// preview returns the first few dozen runes of a chunk on one line.
func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > 60 {
		runes = runes[:60]
	}
	return string(runes)
}

// extractStage calls the LLM for every pending chunk.
type extractStage struct{}

func (s *extractStage) Name() string           { return "extract" }
func (s *extractStage) Dependencies() []string { return []string{"segment"} }
func (s *extractStage) Description() string    { return "extract entity records from each chunk" }

func (s *extractStage) Status(p *Pipeline) StageStatus {
	counts := p.store.StageCounts()
	chunks := counts["chunks"]
	status := StageStatus{Complete: chunks > 0, Counts: map[string]int{}}
	for _, kind := range p.kinds() {
		done := counts["responses_"+string(kind)] + counts["quarantine_"+string(kind)]
		status.Counts["responses_"+string(kind)] = counts["responses_"+string(kind)]
		status.Counts["quarantine_"+string(kind)] = counts["quarantine_"+string(kind)]
		if done < chunks {
			status.Complete = false
		}
	}
	return status
}

func (s *extractStage) Run(ctx context.Context, p *Pipeline) error {
	if p.client == nil {
		return fmt.Errorf("no LLM client configured (set api.key)")
	}

	var cacheExpiry time.Duration
	if p.cfg.Cache.Enabled {
		days := p.cfg.Cache.ExpiryDays
		if days <= 0 {
			days = 7
		}
		cacheExpiry = time.Duration(days) * 24 * time.Hour
	}

	promptOverrides := map[types.EntityKind]prompts.Prompt{}
	if p.cfg.Prompt.Character != "" {
		promptOverrides[types.KindCharacter] = prompts.Prompt{
			System: prompts.ForKind(types.KindCharacter).System,
			User:   p.cfg.Prompt.Character,
		}
	}
	if p.cfg.Prompt.World != "" {
		promptOverrides[types.KindWorld] = prompts.Prompt{
			System: prompts.ForKind(types.KindWorld).System,
			User:   p.cfg.Prompt.World,
		}
	}

	ex, err := extract.New(extract.Options{
		Client:        p.client,
		Store:         p.store,
		Logger:        p.logger,
		Kinds:         p.kinds(),
		MaxConcurrent: p.cfg.Extract.MaxConcurrent,
		Force:         p.Force,
		Model:         p.cfg.Model.ExtractionModel,
		Temperature:   p.cfg.Model.Temperature,
		MaxTokens:     p.cfg.Model.MaxTokens,
		CacheExpiry:   cacheExpiry,
		Prompts:       promptOverrides,
		Validation: extract.ValidationConfig{
			MinNameRunes:    p.cfg.Validation.MinNameLength,
			MinContentRunes: p.cfg.Validation.MinContentLength,
			InvalidNames:    p.cfg.Validation.InvalidNames,
		},
	})
	if err != nil {
		return err
	}

	stats, err := ex.Run(ctx)
	p.update(func(r *RunSummary) {
		r.Extracted = stats.Succeeded
		r.Failed = stats.Failed
		r.Quarantined = stats.Quarantined
	})
	return err
}

// mergeStage reconciles per-chunk records into deduplicated entities.
type mergeStage struct{}

func (s *mergeStage) Name() string           { return "merge" }
func (s *mergeStage) Dependencies() []string { return []string{"extract"} }
func (s *mergeStage) Description() string    { return "merge per-chunk records into entities" }

func (s *mergeStage) Status(p *Pipeline) StageStatus {
	counts := p.store.StageCounts()
	total := 0
	status := StageStatus{Counts: map[string]int{}}
	for _, kind := range p.kinds() {
		n := counts["merged_"+string(kind)]
		status.Counts["merged_"+string(kind)] = n
		total += n
	}
	status.Complete = total > 0
	return status
}

func (s *mergeStage) Run(ctx context.Context, p *Pipeline) error {
	merger := merge.New(merge.Options{
		Thresholds:   p.thresholds(),
		MaxListItems: p.cfg.Merge.MaxListItems,
		NameMappings: p.cfg.Merge.NameMappings,
		Logger:       p.logger,
	})

	for _, kind := range p.kinds() {
		batches, err := p.store.ReadResponses(kind)
		if err != nil {
			return err
		}
		entities := merger.Merge(batches)
		if err := p.store.WriteMerged(kind, entities); err != nil {
			return err
		}
		p.update(func(r *RunSummary) { r.MergedEntities += len(entities) })
		p.logger.Info("merged records", "kind", kind,
			"batches", len(batches), "entities", len(entities))
	}
	return nil
}

// filterStage keeps the most significant entities and archives the rest.
type filterStage struct{}

func (s *filterStage) Name() string           { return "filter" }
func (s *filterStage) Dependencies() []string { return []string{"merge"} }
func (s *filterStage) Description() string    { return "keep the most significant entities" }

func (s *filterStage) Status(p *Pipeline) StageStatus {
	counts := p.store.StageCounts()
	keep := p.cfg.Filter.KeepCount
	status := StageStatus{Complete: true, Counts: map[string]int{}}
	for _, kind := range p.kinds() {
		n := counts["merged_"+string(kind)]
		status.Counts["merged_"+string(kind)] = n
		if n == 0 || (keep > 0 && n > keep) {
			status.Complete = false
		}
	}
	return status
}

func (s *filterStage) Run(ctx context.Context, p *Pipeline) error {
	for _, kind := range p.kinds() {
		entities, err := p.store.ReadMerged(kind)
		if err != nil {
			return err
		}
		kept, dropped := filter.Select(entities, p.cfg.Filter.KeepCount)
		if len(dropped) > 0 && p.cfg.Filter.ArchiveDropped {
			if err := p.store.ArchiveDropped(kind, dropped); err != nil {
				return err
			}
		}
		if err := p.store.WriteMerged(kind, kept); err != nil {
			return err
		}
		p.update(func(r *RunSummary) {
			r.Kept += len(kept)
			r.Dropped += len(dropped)
		})
		p.logger.Info("filtered entities", "kind", kind,
			"kept", len(kept), "dropped", len(dropped))
	}
	return nil
}

// renderStage writes the final artifacts.
type renderStage struct{}

func (s *renderStage) Name() string           { return "render" }
func (s *renderStage) Dependencies() []string { return []string{"filter"} }
func (s *renderStage) Description() string    { return "render character cards and the worldbook" }

func (s *renderStage) Status(p *Pipeline) StageStatus {
	counts := p.store.StageCounts()
	return StageStatus{
		Complete: counts["cards"] > 0,
		Counts:   map[string]int{"cards": counts["cards"]},
	}
}

func (s *renderStage) Run(ctx context.Context, p *Pipeline) error {
	var characters, worlds []types.MergedEntity
	for _, kind := range p.kinds() {
		entities, err := p.store.ReadMerged(kind)
		if err != nil {
			return err
		}
		if kind == types.KindWorld {
			worlds = append(worlds, entities...)
		} else {
			characters = append(characters, entities...)
		}
	}

	r := render.New(render.Options{
		Creator: p.cfg.Card.Creator,
		Version: p.cfg.Card.Version,
		MaxTags: p.cfg.Card.MaxTags,
		Logger:  p.logger,
	})
	written, err := r.RenderAll(p.store, characters, worlds)
	if err != nil {
		return err
	}
	p.update(func(r *RunSummary) { r.Artifacts = written })
	return nil
}
