package extract

import (
	"testing"

	"github.com/lorecard/lorecard/internal/types"
)

func mustValidator(t *testing.T, cfg ValidationConfig) *Validator {
	t.Helper()
	v, err := NewValidator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func mustParseArray(t *testing.T, text string) []any {
	t.Helper()
	arr, err := ParseArray(text)
	if err != nil {
		t.Fatalf("ParseArray: %v", err)
	}
	return arr
}

// The schema runs against the raw parsed array, so wrong-typed fields are
// rejected as malformed rather than silently dropped during mapping.
func TestValidatorSchema(t *testing.T) {
	v := mustValidator(t, ValidationConfig{})

	valid := []string{
		`[{"name": "林三酒", "aliases": ["三酒"], "features": "黑发青年"}]`,
		`[{"名字": "玄清子", "別名": "道长、老道", "性格": "沉稳"}]`,
		`[{"name": "红月之森", "type": "地点", "description": "精灵族的圣地"}]`,
	}
	for _, text := range valid {
		if err := v.Validate(mustParseArray(t, text)); err != nil {
			t.Errorf("Validate(%s) = %v", text, err)
		}
	}

	invalid := []string{
		`[{"name": 123}]`,
		`[{"name": ""}]`,
		`[{"features": "无名者"}]`,
		`[{"name": "林三酒", "aliases": {"别名": "三酒"}}]`,
		`[{"name": "林三酒", "relationships": [42]}]`,
		`["林三酒"]`,
	}
	for _, text := range invalid {
		if err := v.Validate(mustParseArray(t, text)); err == nil {
			t.Errorf("Validate(%s) should fail", text)
		}
	}
}

func TestValidatorQualityRules(t *testing.T) {
	v := mustValidator(t, ValidationConfig{
		MinNameRunes: 2,
		InvalidNames: []string{"主角", "某人"},
	})

	records := []types.EntityRecord{
		{Kind: types.KindCharacter, Name: "林三酒"},
		{Kind: types.KindCharacter, Name: "某人"},  // blacklisted
		{Kind: types.KindCharacter, Name: "王"},   // too short
		{Kind: types.KindCharacter, Name: "123"}, // digits only
	}
	out := v.Filter(records)
	if len(out) != 1 || out[0].Name != "林三酒" {
		t.Errorf("valid records = %+v", out)
	}
}

func TestValidatorMinContent(t *testing.T) {
	v := mustValidator(t, ValidationConfig{MinContentRunes: 10})

	records := []types.EntityRecord{
		{Kind: types.KindCharacter, Name: "林三酒", Features: "黑发青年，身材修长，眼神锐利"},
		{Kind: types.KindCharacter, Name: "季山青", Features: "温和"},
	}
	out := v.Filter(records)
	if len(out) != 1 || out[0].Name != "林三酒" {
		t.Errorf("valid records = %+v", out)
	}
}
