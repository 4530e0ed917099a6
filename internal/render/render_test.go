package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lorecard/lorecard/internal/store"
	"github.com/lorecard/lorecard/internal/types"
)

func sampleCharacter() types.MergedEntity {
	return types.MergedEntity{
		EntityRecord: types.EntityRecord{
			Kind:          types.KindCharacter,
			Name:          "林三酒",
			Aliases:       []string{"三酒"},
			Features:      "黑发青年，身材修长",
			Personality:   "冷静理智，善于分析，有强烈的正义感",
			Quote:         "你确定要这么做吗？",
			Motivation:    "查明真相",
			Relationships: []string{"季山青: 挚友"},
			Provenance:    []int{1, 2},
		},
		MergedFrom: []string{"林三酒", "三酒"},
		EntryCount: 2,
	}
}

func TestCharacterCard(t *testing.T) {
	r := New(Options{Creator: "tester", Version: "0.1", MaxTags: 2})
	data, err := r.CharacterCard(sampleCharacter())
	if err != nil {
		t.Fatal(err)
	}

	var card characterCard
	if err := json.Unmarshal(data, &card); err != nil {
		t.Fatal(err)
	}
	if card.Spec != "chara_card_v2" {
		t.Errorf("spec = %q", card.Spec)
	}
	d := card.Data
	if d.Name != "林三酒" || d.Creator != "tester" || d.CharacterVersion != "0.1" {
		t.Errorf("metadata = %+v", d)
	}
	if d.FirstMes != "你确定要这么做吗？" {
		t.Errorf("first_mes = %q", d.FirstMes)
	}
	if !strings.Contains(d.Scenario, "别名：三酒") || !strings.Contains(d.Scenario, "动机：查明真相") {
		t.Errorf("scenario = %q", d.Scenario)
	}
	if !reflect.DeepEqual(d.Tags, []string{"冷静理智", "善于分析"}) {
		t.Errorf("tags = %v", d.Tags)
	}
}

func TestWorldbook(t *testing.T) {
	r := New(Options{})
	entities := []types.MergedEntity{
		{EntityRecord: types.EntityRecord{
			Kind:     types.KindWorld,
			Name:     "红月之森",
			Aliases:  []string{"红森"},
			Features: "一片永远被红色月光笼罩的森林",
			Notes:    "地点",
		}},
		{EntityRecord: types.EntityRecord{Kind: types.KindWorld, Name: "暗影兄弟会"}},
	}
	data, err := r.Worldbook(entities)
	if err != nil {
		t.Fatal(err)
	}
	var book worldbook
	if err := json.Unmarshal(data, &book); err != nil {
		t.Fatal(err)
	}
	if len(book.Entries) != 2 {
		t.Fatalf("entries = %d", len(book.Entries))
	}
	first := book.Entries["0"]
	if !reflect.DeepEqual(first.Keys, []string{"红月之森", "红森"}) {
		t.Errorf("keys = %v", first.Keys)
	}
	if !strings.Contains(first.Content, "红色月光") || !strings.Contains(first.Content, "地点") {
		t.Errorf("content = %q", first.Content)
	}
	if !first.Enabled {
		t.Error("entries should be enabled")
	}
}

func TestRenderAll(t *testing.T) {
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := New(Options{})

	worlds := []types.MergedEntity{
		{EntityRecord: types.EntityRecord{Kind: types.KindWorld, Name: "红月之森"}},
	}
	n, err := r.RenderAll(s, []types.MergedEntity{sampleCharacter()}, worlds)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("written = %d", n)
	}
	for _, name := range []string{"林三酒.json", "worldbook.json"} {
		if _, err := os.Stat(filepath.Join(s.Root(), "cards", name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
}
