package merge

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lorecard/lorecard/internal/types"
)

// descriptivePatterns mark relationship-style names ("林三酒的师父") that
// should never win canonical-name selection over a real name.
var descriptivePatterns = []string{
	"的父亲", "的母亲", "的儿子", "的女儿", "的妻子", "的丈夫",
	"的师父", "的师兄", "的师弟", "的师姐", "的师妹", "的徒弟",
	"的朋友", "的同伴", "的手下", "的属下", "的部下",
	"（假）", "（真）", "（幻觉）", "（现实）",
}

// Options configure a Merger.
type Options struct {
	Thresholds   Thresholds
	MaxListItems int               // per-field cap on list attributes (default 10)
	NameMappings map[string]string // per-book canonical name overrides
	Logger       *slog.Logger
}

// Merger collapses ordered per-chunk record batches into one deduplicated
// entity set. Merge is deterministic for a given batch order and idempotent:
// re-merging its own output changes nothing.
type Merger struct {
	th      Thresholds
	maxList int
	norm    *Normalizer
	logger  *slog.Logger
}

// New creates a Merger.
func New(opts Options) *Merger {
	if opts.MaxListItems <= 0 {
		opts.MaxListItems = 10
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		th:      opts.Thresholds,
		maxList: opts.MaxListItems,
		norm:    NewNormalizer(opts.NameMappings),
		logger:  logger,
	}
}

// entity is a MergedEntity plus its precomputed comparison state.
type entity struct {
	rec      types.MergedEntity
	keys     []string // normalized canonical name + aliases, first-seen order
	features map[string]struct{}
}

// Merge processes batches in ascending chunk order, record by record,
// merging each record into the best-matching existing entity or starting a
// new one. A final consolidation pass restores the invariant that no two
// result entities score above the merge threshold against each other.
func (m *Merger) Merge(batches map[int][]types.EntityRecord) []types.MergedEntity {
	indices := make([]int, 0, len(batches))
	for idx := range batches {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var entities []*entity
	for _, idx := range indices {
		for _, rec := range batches[idx] {
			if strings.TrimSpace(rec.Name) == "" {
				continue
			}
			if len(rec.Provenance) == 0 {
				rec.Provenance = []int{idx}
			}
			m.place(&entities, rec)
		}
	}

	entities = m.consolidate(entities)

	out := make([]types.MergedEntity, len(entities))
	for i, e := range entities {
		out[i] = e.rec
	}
	return out
}

// place merges rec into the best candidate above threshold, else appends a
// new entity. Candidates are scanned in creation order so equal scores break
// toward the earliest entity.
func (m *Merger) place(entities *[]*entity, rec types.EntityRecord) {
	keys := m.recordKeys(rec)
	feats := m.norm.FeatureSet(rec.Features, rec.Personality)

	var best *entity
	bestScore, bestContained := 0.0, false
	for _, e := range *entities {
		if e.rec.Kind != rec.Kind {
			continue
		}
		score, contained := m.bestPair(keys, e.keys)
		if score > bestScore {
			best, bestScore, bestContained = e, score, contained
		}
	}

	if best != nil && m.decide(bestScore, bestContained, feats, best.features) {
		m.logNearThreshold(rec.Name, best.rec.Name, bestScore, true)
		m.mergeInto(best, rec)
		return
	}
	if best != nil {
		m.logNearThreshold(rec.Name, best.rec.Name, bestScore, false)
	}
	*entities = append(*entities, m.newEntity(rec))
}

// decide applies the merge rule: containment matches clear the merge
// threshold, plain matches clear the stricter name threshold, and a
// name+content blend can rescue a near miss with strongly overlapping
// features.
func (m *Merger) decide(score float64, contained bool, a, b map[string]struct{}) bool {
	if contained {
		return score >= m.th.Merge
	}
	if score >= m.th.Name {
		return true
	}
	combined := 0.8*score + 0.2*jaccard(a, b)
	return combined >= m.th.Name
}

// bestPair scores two key sets against each other.
func (m *Merger) bestPair(a, b []string) (float64, bool) {
	bestScore, bestContained := 0.0, false
	for _, ka := range a {
		for _, kb := range b {
			score, contained := m.th.NameScore(ka, kb)
			if score > bestScore {
				bestScore, bestContained = score, contained
			}
		}
	}
	return bestScore, bestContained
}

func (m *Merger) logNearThreshold(name, target string, score float64, merged bool) {
	const margin = 0.05
	near := func(threshold float64) bool {
		d := score - threshold
		return d >= -margin && d <= margin
	}
	if near(m.th.Merge) || near(m.th.Name) {
		m.logger.Info("merge decision near threshold",
			"record", name, "candidate", target, "score", score, "merged", merged)
	}
}

func (m *Merger) recordKeys(rec types.EntityRecord) []string {
	keys := []string{m.norm.Name(rec.Name)}
	for _, a := range rec.Aliases {
		keys = appendKey(keys, m.norm.Name(a))
	}
	return keys
}

func (m *Merger) newEntity(rec types.EntityRecord) *entity {
	e := &entity{
		rec: types.MergedEntity{
			EntityRecord: types.EntityRecord{
				Kind:          rec.Kind,
				Name:          rec.Name,
				Features:      rec.Features,
				Personality:   rec.Personality,
				Quote:         rec.Quote,
				Motivation:    rec.Motivation,
				Notes:         rec.Notes,
				Relationships: capList(uniqueStrings(rec.Relationships), m.maxList),
				Provenance:    sortedUnique(rec.Provenance),
			},
			MergedFrom: []string{rec.Name},
			EntryCount: 1,
		},
		features: m.norm.FeatureSet(rec.Features, rec.Personality),
	}
	canonicalKey := m.norm.Name(rec.Name)
	e.keys = []string{canonicalKey}
	for _, a := range rec.Aliases {
		if key := m.norm.Name(a); key != canonicalKey {
			e.rec.Aliases = append(e.rec.Aliases, a)
			e.keys = appendKey(e.keys, key)
		}
	}
	return e
}

// mergeInto folds rec into e per the field merge rules: aliases union,
// longer scalar wins, capped list union preferring recent entries,
// provenance union.
func (m *Merger) mergeInto(e *entity, rec types.EntityRecord) {
	if !containsString(e.rec.MergedFrom, rec.Name) {
		e.rec.MergedFrom = append(e.rec.MergedFrom, rec.Name)
	}

	// Canonical name may change as better (shorter, non-descriptive) forms
	// arrive; everything else becomes an alias.
	e.rec.Name = selectBestName(e.rec.MergedFrom)
	canonicalKey := m.norm.Name(e.rec.Name)

	candidates := make([]string, 0, len(e.rec.MergedFrom)+len(e.rec.Aliases)+len(rec.Aliases))
	candidates = append(candidates, e.rec.MergedFrom...)
	candidates = append(candidates, e.rec.Aliases...)
	candidates = append(candidates, rec.Aliases...)
	e.rec.Aliases = e.rec.Aliases[:0]
	e.keys = []string{canonicalKey}
	seen := map[string]bool{canonicalKey: true}
	for _, c := range candidates {
		key := m.norm.Name(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		e.rec.Aliases = append(e.rec.Aliases, c)
		e.keys = append(e.keys, key)
	}

	e.rec.Features = keepLonger(e.rec.Features, rec.Features)
	e.rec.Personality = keepLonger(e.rec.Personality, rec.Personality)
	e.rec.Quote = keepLonger(e.rec.Quote, rec.Quote)
	e.rec.Motivation = keepLonger(e.rec.Motivation, rec.Motivation)
	e.rec.Notes = keepLonger(e.rec.Notes, rec.Notes)

	merged := e.rec.Relationships
	for _, r := range rec.Relationships {
		if r != "" && !containsString(merged, r) {
			merged = append(merged, r)
		}
	}
	e.rec.Relationships = capList(merged, m.maxList)

	e.rec.Provenance = sortedUnique(append(e.rec.Provenance, rec.Provenance...))
	e.rec.EntryCount++

	for kw := range m.norm.FeatureSet(rec.Features, rec.Personality) {
		e.features[kw] = struct{}{}
	}
}

// consolidate merges entity pairs whose accumulated alias sets crossed the
// threshold only after both were created. Runs to a fixpoint so the result
// set holds the no-two-entities-above-threshold invariant.
func (m *Merger) consolidate(entities []*entity) []*entity {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(entities) && !changed; i++ {
			for j := i + 1; j < len(entities); j++ {
				if entities[i].rec.Kind != entities[j].rec.Kind {
					continue
				}
				score, contained := m.bestPair(entities[i].keys, entities[j].keys)
				if !m.decide(score, contained, entities[i].features, entities[j].features) {
					continue
				}
				m.absorb(entities[i], entities[j])
				entities = append(entities[:j], entities[j+1:]...)
				changed = true
				break
			}
		}
	}
	return entities
}

// absorb folds entity b into a, keeping a's position in document order.
func (m *Merger) absorb(a, b *entity) {
	count := a.rec.EntryCount
	m.mergeInto(a, b.rec.EntityRecord)
	for _, name := range b.rec.MergedFrom {
		if !containsString(a.rec.MergedFrom, name) {
			a.rec.MergedFrom = append(a.rec.MergedFrom, name)
		}
	}
	a.rec.EntryCount = count + b.rec.EntryCount
}

// selectBestName picks the canonical name: the shortest clean (non-
// relationship-descriptive) name, falling back to the shortest descriptive
// one. Ties keep the earliest-seen name for determinism.
func selectBestName(names []string) string {
	var bestClean, bestAny string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if bestAny == "" || runeLen(name) < runeLen(bestAny) {
			bestAny = name
		}
		if isDescriptiveName(name) {
			continue
		}
		if bestClean == "" || runeLen(name) < runeLen(bestClean) {
			bestClean = name
		}
	}
	if bestClean != "" {
		return bestClean
	}
	return bestAny
}

func isDescriptiveName(name string) bool {
	for _, p := range descriptivePatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func keepLonger(existing, candidate string) string {
	if len(candidate) > len(existing) {
		return candidate
	}
	return existing
}

func appendKey(keys []string, key string) []string {
	if key == "" || containsString(keys, key) {
		return keys
	}
	return append(keys, key)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func uniqueStrings(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != "" && !containsString(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// capList keeps at most n items, preferring the most recently added.
func capList(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}

func sortedUnique(list []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(list))
	for _, v := range list {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
