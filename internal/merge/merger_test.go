package merge

import (
	"reflect"
	"testing"

	"github.com/lorecard/lorecard/internal/types"
)

func char(name string, opts ...func(*types.EntityRecord)) types.EntityRecord {
	rec := types.EntityRecord{Kind: types.KindCharacter, Name: name}
	for _, o := range opts {
		o(&rec)
	}
	return rec
}

func withAliases(aliases ...string) func(*types.EntityRecord) {
	return func(r *types.EntityRecord) { r.Aliases = aliases }
}

func withFeatures(f string) func(*types.EntityRecord) {
	return func(r *types.EntityRecord) { r.Features = f }
}

func TestMergeThresholdBoundary(t *testing.T) {
	m := New(Options{})

	t.Run("similar but distinct names stay distinct", func(t *testing.T) {
		// 张三 is contained in 张三丰 but the contained side is only two
		// runes, so no containment boost applies and 0.8 < name threshold.
		out := m.Merge(map[int][]types.EntityRecord{
			1: {char("张三")},
			2: {char("张三丰")},
		})
		if len(out) != 2 {
			t.Fatalf("expected 2 entities, got %d: %+v", len(out), out)
		}
	})

	t.Run("whitespace variant merges after normalization", func(t *testing.T) {
		out := m.Merge(map[int][]types.EntityRecord{
			1: {char("张三")},
			2: {char("张 三")},
		})
		if len(out) != 1 {
			t.Fatalf("expected 1 entity, got %d", len(out))
		}
	})

	t.Run("traditional variant merges", func(t *testing.T) {
		out := m.Merge(map[int][]types.EntityRecord{
			1: {char("张三")},
			2: {char("張三")},
		})
		if len(out) != 1 {
			t.Fatalf("expected 1 entity, got %d", len(out))
		}
	})

	t.Run("long containment merges via boost", func(t *testing.T) {
		out := m.Merge(map[int][]types.EntityRecord{
			1: {char("夜无疆")},
			2: {char("夜无疆上仙")},
		})
		if len(out) != 1 {
			t.Fatalf("expected 1 entity, got %d", len(out))
		}
		if out[0].Name != "夜无疆" {
			t.Errorf("canonical name = %q", out[0].Name)
		}
	})
}

func TestMergeAliasResolution(t *testing.T) {
	m := New(Options{})

	// Chunk 1 introduces 李雷 with alias 队长; chunk 2 only says 队长.
	out := m.Merge(map[int][]types.EntityRecord{
		1: {char("李雷", withAliases("队长"), withFeatures("黑发青年"))},
		2: {char("队长", withFeatures("黑发青年，身材修长，眼神锐利"))},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 entity, got %d: %+v", len(out), out)
	}
	e := out[0]
	if e.Name != "李雷" {
		t.Errorf("canonical name = %q", e.Name)
	}
	if !reflect.DeepEqual(e.Aliases, []string{"队长"}) {
		t.Errorf("aliases = %v", e.Aliases)
	}
	if e.Features != "黑发青年，身材修长，眼神锐利" {
		t.Errorf("features not merged to longer value: %q", e.Features)
	}
	if !reflect.DeepEqual(e.Provenance, []int{1, 2}) {
		t.Errorf("provenance = %v", e.Provenance)
	}
	if e.EntryCount != 2 {
		t.Errorf("entry count = %d", e.EntryCount)
	}
}

func TestMergeDeterminism(t *testing.T) {
	m := New(Options{})
	batches := map[int][]types.EntityRecord{
		3: {char("季山青", withFeatures("温和的外表"))},
		1: {char("林三酒"), char("老林")},
		2: {char("林三酒", withAliases("三酒"))},
	}

	first := m.Merge(batches)
	second := m.Merge(batches)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("merge output differs between runs on identical input")
	}
}

func TestMergeIdempotence(t *testing.T) {
	m := New(Options{})
	batches := map[int][]types.EntityRecord{
		1: {char("林三酒", withAliases("三酒"), withFeatures("黑发青年")), char("季山青")},
		2: {char("林三酒", withFeatures("黑发青年，身材修长")), char("张三")},
		3: {char("季山青", withAliases("季先生"))},
	}

	once := m.Merge(batches)

	refed := make([]types.EntityRecord, len(once))
	for i, e := range once {
		refed[i] = e.EntityRecord
	}
	twice := m.Merge(map[int][]types.EntityRecord{1: refed})

	if len(twice) != len(once) {
		t.Fatalf("entity count changed: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		a, b := once[i].EntityRecord, twice[i].EntityRecord
		if a.Name != b.Name || !reflect.DeepEqual(a.Aliases, b.Aliases) ||
			a.Features != b.Features || a.Personality != b.Personality ||
			!reflect.DeepEqual(a.Relationships, b.Relationships) ||
			!reflect.DeepEqual(a.Provenance, b.Provenance) {
			t.Errorf("entity %d changed on re-merge:\n first: %+v\nsecond: %+v", i, a, b)
		}
	}
}

func TestMergeKindsStaySeparate(t *testing.T) {
	m := New(Options{})
	out := m.Merge(map[int][]types.EntityRecord{
		1: {
			{Kind: types.KindCharacter, Name: "明月"},
			{Kind: types.KindWorld, Name: "明月"},
		},
	})
	if len(out) != 2 {
		t.Fatalf("character and world entities merged: %+v", out)
	}
}

func TestMergeFieldRules(t *testing.T) {
	m := New(Options{MaxListItems: 3})

	rec1 := char("林三酒")
	rec1.Relationships = []string{"季山青: 挚友", "张三: 对手"}
	rec1.Quote = "短句"
	rec2 := char("林三酒")
	rec2.Relationships = []string{"季山青: 挚友", "李雷: 下属", "王五: 旧识"}
	rec2.Quote = "语调平静，用词精准"

	out := m.Merge(map[int][]types.EntityRecord{1: {rec1}, 2: {rec2}})
	if len(out) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(out))
	}
	e := out[0]
	if e.Quote != "语调平静，用词精准" {
		t.Errorf("quote = %q", e.Quote)
	}
	if len(e.Relationships) != 3 {
		t.Fatalf("relationships not capped: %v", e.Relationships)
	}
	// Cap keeps the most recently merged entries.
	want := []string{"张三: 对手", "李雷: 下属", "王五: 旧识"}
	if !reflect.DeepEqual(e.Relationships, want) {
		t.Errorf("relationships = %v, want %v", e.Relationships, want)
	}
}

func TestSelectBestName(t *testing.T) {
	cases := []struct {
		names []string
		want  string
	}{
		{[]string{"林三酒"}, "林三酒"},
		{[]string{"林三酒的师父", "玄清子"}, "玄清子"},
		{[]string{"玄清子道长", "玄清子"}, "玄清子"},
		{[]string{"李雷", "队长"}, "李雷"},
		{[]string{"林三酒的师父"}, "林三酒的师父"},
	}
	for _, tc := range cases {
		if got := selectBestName(tc.names); got != tc.want {
			t.Errorf("selectBestName(%v) = %q, want %q", tc.names, got, tc.want)
		}
	}
}

func TestMergeNameMappings(t *testing.T) {
	m := New(Options{NameMappings: map[string]string{"老板": "林三酒"}})
	out := m.Merge(map[int][]types.EntityRecord{
		1: {char("林三酒")},
		2: {char("老板")},
	})
	if len(out) != 1 {
		t.Fatalf("mapping not applied, got %d entities", len(out))
	}
}
