package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lorecard/lorecard/internal/providers"
	"github.com/lorecard/lorecard/internal/store"
	"github.com/lorecard/lorecard/internal/types"
)

func seedStore(t *testing.T, n int) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	chunks := make([]types.Chunk, 0, n)
	mapped := make([]store.MappedChunk, 0, n)
	for i := 1; i <= n; i++ {
		text := fmt.Sprintf("第%d章\n这是第%d块的正文内容。", i, i)
		chunks = append(chunks, types.Chunk{Index: i, Text: text})
		mapped = append(mapped, store.MappedChunk{
			ID:     fmt.Sprintf("chunk_%03d", i),
			Order:  i,
			Length: len(text),
		})
	}
	if err := s.WriteChunks(chunks, store.Mapping{TotalChunks: n, Chunks: mapped}); err != nil {
		t.Fatal(err)
	}
	return s
}

func okResult(content string) *providers.ChatResult {
	return &providers.ChatResult{Success: true, Content: content, Attempts: 1}
}

const oneRecord = `[{"name": "林三酒", "features": "黑发青年，身材修长"}]`

func TestExtractorRun(t *testing.T) {
	s := seedStore(t, 3)
	client := &providers.MockClient{Responses: []*providers.ChatResult{okResult(oneRecord)}}

	ex, err := New(Options{
		Client: client,
		Store:  s,
		Kinds:  []types.EntityKind{types.KindCharacter},
	})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Total: 3, Succeeded: 3, Entities: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	for i := 1; i <= 3; i++ {
		if !s.HasResponse(types.KindCharacter, i) {
			t.Errorf("missing response for chunk %d", i)
		}
	}
	// Raw responses are kept for audit.
	raw, err := os.ReadFile(filepath.Join(s.Root(), "raw", "character", "chunk_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != oneRecord {
		t.Errorf("raw = %q", raw)
	}
}

func TestExtractorResume(t *testing.T) {
	s := seedStore(t, 3)
	client := &providers.MockClient{Responses: []*providers.ChatResult{okResult(oneRecord)}}
	opts := Options{Client: client, Store: s, Kinds: []types.EntityKind{types.KindCharacter}}

	ex, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := client.Calls()

	ex2, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex2.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 3 || stats.Succeeded != 0 {
		t.Errorf("resumed stats = %+v", stats)
	}
	if client.Calls() != calls {
		t.Errorf("resumed run made %d extra calls", client.Calls()-calls)
	}
}

func TestExtractorPartialFailure(t *testing.T) {
	s := seedStore(t, 10)
	client := &providers.MockClient{
		RespondFunc: func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
			if strings.Contains(req.Messages[1].Content, "第5章") {
				return &providers.ChatResult{
					Success:      false,
					ErrorType:    providers.ErrorTransient,
					ErrorMessage: "server melted",
					Attempts:     5,
				}, nil
			}
			return okResult(oneRecord), nil
		},
	}

	ex, err := New(Options{
		Client:        client,
		Store:         s,
		Kinds:         []types.EntityKind{types.KindCharacter},
		MaxConcurrent: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 || stats.Succeeded != 9 {
		t.Errorf("stats = %+v", stats)
	}
	// The failed chunk stays pending; the rest are usable downstream.
	if s.HasResponse(types.KindCharacter, 5) {
		t.Error("failed chunk must not have a response file")
	}
	responses, err := s.ReadResponses(types.KindCharacter)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 9 {
		t.Errorf("got %d response batches", len(responses))
	}
}

func TestExtractorQuarantine(t *testing.T) {
	s := seedStore(t, 1)
	client := &providers.MockClient{Responses: []*providers.ChatResult{
		okResult("抱歉，我无法处理这段文本。"),
	}}

	ex, err := New(Options{Client: client, Store: s, Kinds: []types.EntityKind{types.KindCharacter}})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Quarantined != 1 || stats.Succeeded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	body, err := os.ReadFile(filepath.Join(s.Root(), "quarantine", "character", "chunk_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(body), "reason: "+string(types.StatusMalformed)) {
		t.Errorf("quarantine body = %q", body)
	}
}

func TestExtractorQuarantinesWrongShape(t *testing.T) {
	// A parseable array whose items break the record schema (numeric name)
	// must land in quarantine as malformed, not pass as an empty batch.
	s := seedStore(t, 1)
	client := &providers.MockClient{Responses: []*providers.ChatResult{
		okResult(`[{"name": 123, "features": "黑发青年"}]`),
	}}

	ex, err := New(Options{Client: client, Store: s, Kinds: []types.EntityKind{types.KindCharacter}})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Quarantined != 1 || stats.Succeeded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	body, err := os.ReadFile(filepath.Join(s.Root(), "quarantine", "character", "chunk_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(body), "reason: "+string(types.StatusMalformed)) {
		t.Errorf("quarantine body = %q", body)
	}
}

func TestExtractorEmptyBatchQuarantined(t *testing.T) {
	s := seedStore(t, 1)
	client := &providers.MockClient{Responses: []*providers.ChatResult{okResult("[]")}}

	ex, err := New(Options{Client: client, Store: s, Kinds: []types.EntityKind{types.KindCharacter}})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Quarantined != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExtractorCache(t *testing.T) {
	s := seedStore(t, 2)
	client := &providers.MockClient{Responses: []*providers.ChatResult{okResult(oneRecord)}}
	opts := Options{
		Client:      client,
		Store:       s,
		Kinds:       []types.EntityKind{types.KindCharacter},
		CacheExpiry: 24 * time.Hour,
	}

	ex, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := client.Calls()
	if calls != 2 {
		t.Fatalf("first run made %d calls", calls)
	}

	// Forced re-extraction hits the cache instead of the client.
	opts.Force = true
	ex2, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex2.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Succeeded != 2 {
		t.Errorf("forced stats = %+v", stats)
	}
	if client.Calls() != calls {
		t.Errorf("forced run bypassed the cache: %d calls", client.Calls())
	}
}

func TestExtractorBothKinds(t *testing.T) {
	s := seedStore(t, 2)
	client := &providers.MockClient{Responses: []*providers.ChatResult{okResult(oneRecord)}}

	ex, err := New(Options{Client: client, Store: s})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Succeeded != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if !s.HasResponse(types.KindWorld, 1) || !s.HasResponse(types.KindCharacter, 2) {
		t.Error("responses missing for a kind")
	}
}
