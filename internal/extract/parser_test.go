package extract

import (
	"reflect"
	"testing"

	"github.com/lorecard/lorecard/internal/types"
)

func TestParseRecordsDirect(t *testing.T) {
	records, err := ParseRecords(types.KindCharacter, `[
		{"name": "林三酒", "aliases": ["三酒"], "features": "黑发青年", "personality": "冷静理智"}
	]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	r := records[0]
	if r.Name != "林三酒" || r.Features != "黑发青年" || r.Personality != "冷静理智" {
		t.Errorf("record = %+v", r)
	}
	if !reflect.DeepEqual(r.Aliases, []string{"三酒"}) {
		t.Errorf("aliases = %v", r.Aliases)
	}
	if r.Kind != types.KindCharacter {
		t.Errorf("kind = %q", r.Kind)
	}
}

func TestParseRecordsCodeFence(t *testing.T) {
	text := "好的，以下是提取结果：\n```json\n[{\"name\": \"季山青\"}]\n```\n希望对你有帮助。"
	records, err := ParseRecords(types.KindCharacter, text)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != "季山青" {
		t.Errorf("records = %+v", records)
	}
}

func TestParseRecordsBracketSlice(t *testing.T) {
	text := `提取到以下角色 [{"name": "张三"}, {"name": "李四"}] 共两名。`
	records, err := ParseRecords(types.KindCharacter, text)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("records = %+v", records)
	}
}

func TestParseRecordsObjectWrapper(t *testing.T) {
	// json_object response formats wrap the array in a single-key object.
	records, err := ParseRecords(types.KindWorld, `{"entries": [{"name": "红月之森", "type": "地点", "description": "精灵族的圣地"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Name != "红月之森" || r.Kind != types.KindWorld {
		t.Errorf("record = %+v", r)
	}
	if r.Features != "精灵族的圣地" {
		t.Errorf("description not mapped: %+v", r)
	}
	if r.Notes != "地点" {
		t.Errorf("type not mapped: %+v", r)
	}
}

func TestParseRecordsObjectWrapperDeterministic(t *testing.T) {
	// A wrapper with several array-valued fields must always resolve to the
	// same one: the lexicographically first key ("entries" before "results").
	text := `{"results": [{"name": "乙乙"}], "entries": [{"name": "甲甲"}]}`
	for i := 0; i < 20; i++ {
		records, err := ParseRecords(types.KindCharacter, text)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 || records[0].Name != "甲甲" {
			t.Fatalf("records = %+v", records)
		}
	}
}

func TestParseRecordsChineseFields(t *testing.T) {
	records, err := ParseRecords(types.KindCharacter, `[
		{"名字": "玄清子", "特徵": "白须老者", "性格": "沉稳", "說話習慣": "言简意赅", "別名": "道长、老道"}
	]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Name != "玄清子" || r.Features != "白须老者" || r.Quote != "言简意赅" {
		t.Errorf("record = %+v", r)
	}
	if !reflect.DeepEqual(r.Aliases, []string{"道长", "老道"}) {
		t.Errorf("delimited alias string not split: %v", r.Aliases)
	}
}

func TestParseRecordsSkipsNameless(t *testing.T) {
	records, err := ParseRecords(types.KindCharacter, `[{"features": "无名者"}, {"name": "张三"}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != "张三" {
		t.Errorf("records = %+v", records)
	}
}

func TestParseRecordsRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "抱歉，我无法处理这段文本。", "{\"name\": \"not an array\"}"} {
		if _, err := ParseRecords(types.KindCharacter, text); err == nil {
			t.Errorf("ParseRecords(%q) should fail", text)
		}
	}
}
