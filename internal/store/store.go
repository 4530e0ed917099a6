// Package store persists all pipeline state as plain files under a work
// directory, addressed by chunk index or content fingerprint so every stage
// is independently re-runnable and resumable.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lorecard/lorecard/internal/types"
)

// Layout under the work directory:
//
//	chunks/chunk_001.txt        chunk bodies (with overlap prefix)
//	chunks/mapping.json         chunk metadata and canonical offsets
//	raw/<kind>/chunk_001.txt    verbatim LLM responses (audit)
//	responses/<kind>/chunk_001.json  validated record batches
//	quarantine/<kind>/chunk_001.txt  malformed/empty responses with reason
//	merged/<kind>/*.json        one file per merged entity, plus index.json
//	archive/filtered_out/<kind>/*.json  entities dropped by the filter
//	cards/                      rendered output artifacts
//	cache/<fingerprint>.json    extraction cache entries
type Store struct {
	root string
}

// New creates (or reopens) a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("work directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the work directory path.
func (s *Store) Root() string { return s.root }

func (s *Store) dir(parts ...string) (string, error) {
	d := filepath.Join(append([]string{s.root}, parts...)...)
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", d, err)
	}
	return d, nil
}

func chunkFile(idx int, ext string) string {
	return fmt.Sprintf("chunk_%03d%s", idx, ext)
}

// Mapping records how the source text was segmented.
type Mapping struct {
	SourceFile  string       `json:"source_file"`
	MaxChars    int          `json:"max_chars"`
	Overlap     int          `json:"overlap"`
	TotalChunks int          `json:"total_chunks"`
	GeneratedAt time.Time    `json:"generated_at"`
	Chunks      []MappedChunk `json:"chunks"`
}

// MappedChunk is one chunk's metadata inside the mapping file.
type MappedChunk struct {
	ID           string `json:"id"`
	Order        int    `json:"order"`
	Length       int    `json:"length"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	ChapterTitle string `json:"chapter_title,omitempty"`
	Preview      string `json:"preview"`
}

// WriteChunks replaces any previous segmentation with the given chunks and
// writes the mapping file.
func (s *Store) WriteChunks(chunks []types.Chunk, mapping Mapping) error {
	dir, err := s.dir("chunks")
	if err != nil {
		return err
	}

	// Stale chunk files from a previous, differently-sized segmentation
	// would corrupt resumption; clear them first.
	old, _ := filepath.Glob(filepath.Join(dir, "chunk_*.txt"))
	for _, f := range old {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("removing stale %s: %w", f, err)
		}
	}

	for _, ch := range chunks {
		path := filepath.Join(dir, chunkFile(ch.Index, ".txt"))
		if err := os.WriteFile(path, []byte(ch.Text), 0o644); err != nil {
			return fmt.Errorf("writing chunk %d: %w", ch.Index, err)
		}
	}

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "mapping.json"), data, 0o644)
}

// ReadMapping loads the chunk mapping. Missing mapping means the segment
// stage has not run.
func (s *Store) ReadMapping() (*Mapping, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "chunks", "mapping.json"))
	if err != nil {
		return nil, fmt.Errorf("reading mapping (run segment first): %w", err)
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	return &m, nil
}

// ReadChunk returns the body of one chunk.
func (s *Store) ReadChunk(idx int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "chunks", chunkFile(idx, ".txt")))
	if err != nil {
		return "", fmt.Errorf("reading chunk %d: %w", idx, err)
	}
	return string(data), nil
}

// WriteRaw persists a verbatim LLM response for audit.
func (s *Store) WriteRaw(kind types.EntityKind, idx int, text string) error {
	dir, err := s.dir("raw", string(kind))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, chunkFile(idx, ".txt")), []byte(text), 0o644)
}

// WriteResponse persists one chunk's validated record batch.
func (s *Store) WriteResponse(kind types.EntityKind, idx int, records []types.EntityRecord) error {
	dir, err := s.dir("responses", string(kind))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling records for chunk %d: %w", idx, err)
	}
	return os.WriteFile(filepath.Join(dir, chunkFile(idx, ".json")), data, 0o644)
}

// HasResponse reports whether a validated batch already exists; the extract
// stage skips such chunks unless forced.
func (s *Store) HasResponse(kind types.EntityKind, idx int) bool {
	_, err := os.Stat(filepath.Join(s.root, "responses", string(kind), chunkFile(idx, ".json")))
	return err == nil
}

// ReadResponses loads all validated batches for a kind, keyed by chunk index.
func (s *Store) ReadResponses(kind types.EntityKind) (map[int][]types.EntityRecord, error) {
	dir := filepath.Join(s.root, "responses", string(kind))
	files, err := filepath.Glob(filepath.Join(dir, "chunk_*.json"))
	if err != nil {
		return nil, err
	}
	out := make(map[int][]types.EntityRecord, len(files))
	for _, f := range files {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(f), "chunk_%03d.json", &idx); err != nil {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		var records []types.EntityRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f, err)
		}
		out[idx] = records
	}
	return out, nil
}

// Quarantine stores a malformed or empty response with its failure reason for
// offline inspection. Quarantined chunks are excluded from merge input.
func (s *Store) Quarantine(kind types.EntityKind, idx int, reason, raw string) error {
	dir, err := s.dir("quarantine", string(kind))
	if err != nil {
		return err
	}
	body := fmt.Sprintf("reason: %s\n\n%s", reason, raw)
	return os.WriteFile(filepath.Join(dir, chunkFile(idx, ".txt")), []byte(body), 0o644)
}

var unsafeNameChars = regexp.MustCompile(`[\\/*?:"<>|\s]`)

// safeName converts an entity name to a usable file name.
func safeName(name string) string {
	out := unsafeNameChars.ReplaceAllString(name, "")
	if out == "" {
		out = "unnamed"
	}
	return out
}

// WriteMerged replaces the merged entity set for a kind: one file per entity
// plus an index preserving order.
func (s *Store) WriteMerged(kind types.EntityKind, entities []types.MergedEntity) error {
	dir, err := s.dir("merged", string(kind))
	if err != nil {
		return err
	}
	old, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	for _, f := range old {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("removing stale %s: %w", f, err)
		}
	}

	index := make([]string, 0, len(entities))
	for _, e := range entities {
		name := safeName(e.Name)
		// Two distinct entities can sanitize to the same file name.
		for i := 2; contains(index, name); i++ {
			name = fmt.Sprintf("%s_%d", safeName(e.Name), i)
		}
		index = append(index, name)
		data, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling entity %q: %w", e.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			return fmt.Errorf("writing entity %q: %w", e.Name, err)
		}
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "index.json"), data, 0o644)
}

// ReadMerged loads the merged entity set for a kind in index order.
func (s *Store) ReadMerged(kind types.EntityKind) ([]types.MergedEntity, error) {
	dir := filepath.Join(s.root, "merged", string(kind))
	data, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("reading merged index (run merge first): %w", err)
	}
	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing merged index: %w", err)
	}
	out := make([]types.MergedEntity, 0, len(index))
	for _, name := range index {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if err != nil {
			return nil, fmt.Errorf("reading entity %q: %w", name, err)
		}
		var e types.MergedEntity
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parsing entity %q: %w", name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ArchiveDropped moves filtered-out entities to the archive instead of
// deleting them, so they can be recovered or audited later.
func (s *Store) ArchiveDropped(kind types.EntityKind, entities []types.MergedEntity) error {
	dir, err := s.dir("archive", "filtered_out", string(kind))
	if err != nil {
		return err
	}
	for _, e := range entities {
		data, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling entity %q: %w", e.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, safeName(e.Name)+".json"), data, 0o644); err != nil {
			return fmt.Errorf("archiving entity %q: %w", e.Name, err)
		}
	}
	return nil
}

// WriteCard writes a rendered output artifact.
func (s *Store) WriteCard(fileName string, data []byte) error {
	dir, err := s.dir("cards")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, safeName(strings.TrimSuffix(fileName, ".json"))+".json"), data, 0o644)
}

type cacheEntry struct {
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`
}

// CacheGet returns a cached raw response for the fingerprint if present and
// younger than expiry.
func (s *Store) CacheGet(fingerprint string, expiry time.Duration) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.root, "cache", fingerprint+".json"))
	if err != nil {
		return "", false
	}
	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", false
	}
	if expiry > 0 && time.Since(e.CreatedAt) > expiry {
		return "", false
	}
	return e.Content, true
}

// CachePut stores a raw response under its fingerprint.
func (s *Store) CachePut(fingerprint, content string) error {
	dir, err := s.dir("cache")
	if err != nil {
		return err
	}
	data, err := json.Marshal(cacheEntry{CreatedAt: time.Now(), Content: content})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fingerprint+".json"), data, 0o644)
}

// StageCounts reports per-stage file counts for the status command.
func (s *Store) StageCounts() map[string]int {
	counts := map[string]int{}
	count := func(key string, pattern ...string) {
		files, _ := filepath.Glob(filepath.Join(append([]string{s.root}, pattern...)...))
		n := 0
		for _, f := range files {
			if filepath.Base(f) != "mapping.json" && filepath.Base(f) != "index.json" {
				n++
			}
		}
		counts[key] = n
	}
	count("chunks", "chunks", "chunk_*.txt")
	for _, kind := range []types.EntityKind{types.KindCharacter, types.KindWorld} {
		count("responses_"+string(kind), "responses", string(kind), "chunk_*.json")
		count("quarantine_"+string(kind), "quarantine", string(kind), "chunk_*.txt")
		count("merged_"+string(kind), "merged", string(kind), "*.json")
	}
	count("cards", "cards", "*.json")
	return counts
}

// SortedIndices returns the keys of a response map in ascending chunk order.
// Merge correctness depends on document order, not arrival order.
func SortedIndices[T any](m map[int]T) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
