// Package render turns the kept entity sets into importable artifacts: one
// SillyTavern-style character card per character and a single worldbook file.
package render

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lorecard/lorecard/internal/store"
	"github.com/lorecard/lorecard/internal/types"
)

// Options configure a Renderer.
type Options struct {
	// Creator and Version stamp the card metadata.
	Creator string
	Version string
	// MaxTags caps per-card tags (default 5).
	MaxTags int
	Logger  *slog.Logger
}

// Renderer writes output artifacts into the store's cards directory.
type Renderer struct {
	opts Options
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	if opts.MaxTags <= 0 {
		opts.MaxTags = 5
	}
	if opts.Creator == "" {
		opts.Creator = "lorecard"
	}
	if opts.Version == "" {
		opts.Version = "1.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Renderer{opts: opts}
}

// characterCard is the card_v2 wire format.
type characterCard struct {
	Spec        string   `json:"spec"`
	SpecVersion string   `json:"spec_version"`
	Data        cardData `json:"data"`
}

type cardData struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Personality      string   `json:"personality"`
	Scenario         string   `json:"scenario"`
	FirstMes         string   `json:"first_mes"`
	MesExample       string   `json:"mes_example"`
	Creator          string   `json:"creator"`
	CharacterVersion string   `json:"character_version"`
	CreatorNotes     string   `json:"creator_notes"`
	Tags             []string `json:"tags"`
}

// CharacterCard renders one character entity as a card.
func (r *Renderer) CharacterCard(e types.MergedEntity) ([]byte, error) {
	card := characterCard{
		Spec:        "chara_card_v2",
		SpecVersion: "2.0",
		Data: cardData{
			Name:             e.Name,
			Description:      joinSections(e.Features, e.Notes),
			Personality:      e.Personality,
			Scenario:         scenario(e),
			FirstMes:         e.Quote,
			Creator:          r.opts.Creator,
			CharacterVersion: r.opts.Version,
			CreatorNotes:     fmt.Sprintf("合并自 %d 个条目", e.EntryCount),
			Tags:             tags(e, r.opts.MaxTags),
		},
	}
	return json.MarshalIndent(card, "", "  ")
}

// scenario assembles the contextual lines the card formats have no dedicated
// field for: aliases, motivation, and relationships.
func scenario(e types.MergedEntity) string {
	var lines []string
	if len(e.Aliases) > 0 {
		lines = append(lines, "别名："+strings.Join(e.Aliases, "、"))
	}
	if e.Motivation != "" {
		lines = append(lines, "动机："+e.Motivation)
	}
	if len(e.Relationships) > 0 {
		lines = append(lines, "人际关系："+strings.Join(e.Relationships, "；"))
	}
	return strings.Join(lines, "\n")
}

var tagSplitter = strings.NewReplacer("，", "\n", "、", "\n", "；", "\n", ",", "\n", ";", "\n")

// tags derives up to max short tags from the personality text.
func tags(e types.MergedEntity, max int) []string {
	var out []string
	for _, part := range strings.Split(tagSplitter.Replace(e.Personality), "\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
		if len(out) == max {
			break
		}
	}
	return out
}

// worldbook is the importable lorebook format: entries keyed by ordinal.
type worldbook struct {
	Entries map[string]worldbookEntry `json:"entries"`
}

type worldbookEntry struct {
	UID            int      `json:"uid"`
	Keys           []string `json:"key"`
	Content        string   `json:"content"`
	Comment        string   `json:"comment"`
	Enabled        bool     `json:"enabled"`
	InsertionOrder int      `json:"insertion_order"`
}

// Worldbook renders the kept world entities as one worldbook file.
func (r *Renderer) Worldbook(entities []types.MergedEntity) ([]byte, error) {
	book := worldbook{Entries: make(map[string]worldbookEntry, len(entities))}
	for i, e := range entities {
		keys := append([]string{e.Name}, e.Aliases...)
		book.Entries[fmt.Sprintf("%d", i)] = worldbookEntry{
			UID:            i,
			Keys:           keys,
			Content:        joinSections(e.Features, e.Notes),
			Comment:        e.Name,
			Enabled:        true,
			InsertionOrder: i,
		}
	}
	return json.MarshalIndent(book, "", "  ")
}

// RenderAll writes every character card plus the worldbook and returns the
// artifact count.
func (r *Renderer) RenderAll(s *store.Store, characters, worlds []types.MergedEntity) (int, error) {
	written := 0
	for _, e := range characters {
		data, err := r.CharacterCard(e)
		if err != nil {
			return written, fmt.Errorf("rendering card for %q: %w", e.Name, err)
		}
		if err := s.WriteCard(e.Name+".json", data); err != nil {
			return written, err
		}
		written++
	}

	if len(worlds) > 0 {
		data, err := r.Worldbook(worlds)
		if err != nil {
			return written, fmt.Errorf("rendering worldbook: %w", err)
		}
		if err := s.WriteCard("worldbook.json", data); err != nil {
			return written, err
		}
		written++
	}

	r.opts.Logger.Info("artifacts rendered", "cards", len(characters), "world_entries", len(worlds))
	return written, nil
}

func joinSections(sections ...string) string {
	var parts []string
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
