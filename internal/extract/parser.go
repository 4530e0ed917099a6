package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lorecard/lorecard/internal/types"
)

// Field name aliases accepted from model output. Models frequently echo the
// example keys from the prompt, but some reply with Chinese field names (or a
// mix), so every record field accepts both.
var fieldAliases = map[string][]string{
	"name":          {"name", "名字", "名称"},
	"aliases":       {"aliases", "别名", "別名", "称呼"},
	"features":      {"features", "特徵", "特征", "外貌", "description", "描述"},
	"personality":   {"personality", "性格"},
	"quote":         {"quote", "說話習慣", "说话习惯", "语录"},
	"motivation":    {"motivation", "動機", "动机"},
	"notes":         {"notes", "備註", "备注", "type", "类别", "類別"},
	"relationships": {"relationships", "人际关系", "人際關係", "关系"},
}

// ParseRecords parses an LLM response into entity records, trying direct
// parse, bracket slicing, and code-fence extraction in turn.
func ParseRecords(kind types.EntityKind, text string) ([]types.EntityRecord, error) {
	raw, err := ParseArray(text)
	if err != nil {
		return nil, err
	}
	return RecordsFromArray(kind, raw), nil
}

// ParseArray recovers a JSON array from model output that may be wrapped in
// markdown fences or commentary.
func ParseArray(text string) ([]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	candidates := []string{text}
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			candidates = append(candidates, text[start:end+1])
		}
	}
	for _, fence := range []string{"```json", "```"} {
		if idx := strings.Index(text, fence); idx >= 0 {
			after := text[idx+len(fence):]
			if end := strings.Index(after, "```"); end >= 0 {
				candidates = append(candidates, strings.TrimSpace(after[:end]))
			}
		}
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var arr []any
		if err := json.Unmarshal([]byte(candidate), &arr); err == nil {
			return arr, nil
		}
		// Some providers force a json_object response; accept the first
		// array-valued field inside it, in sorted key order so a wrapper
		// with several array fields parses the same way every time.
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if arr, ok := obj[k].([]any); ok {
					return arr, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("no JSON array found in response (%.120s...)", text)
}

// RecordsFromArray maps parsed JSON objects onto entity records, resolving
// field name aliases. Items without a usable name are dropped.
func RecordsFromArray(kind types.EntityKind, raw []any) []types.EntityRecord {
	records := make([]types.EntityRecord, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := recordFromObject(kind, obj)
		if rec.Name != "" {
			records = append(records, rec)
		}
	}
	return records
}

func recordFromObject(kind types.EntityKind, obj map[string]any) types.EntityRecord {
	rec := types.EntityRecord{
		Kind:          kind,
		Name:          strings.TrimSpace(stringField(obj, "name")),
		Aliases:       listField(obj, "aliases"),
		Features:      stringField(obj, "features"),
		Personality:   stringField(obj, "personality"),
		Quote:         stringField(obj, "quote"),
		Motivation:    stringField(obj, "motivation"),
		Notes:         stringField(obj, "notes"),
		Relationships: listField(obj, "relationships"),
	}
	return rec
}

func stringField(obj map[string]any, field string) string {
	for _, key := range fieldAliases[field] {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// listField accepts a JSON array of strings or a single delimited string.
func listField(obj map[string]any, field string) []string {
	for _, key := range fieldAliases[field] {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case []any:
			out := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, s := range strings.FieldsFunc(val, func(r rune) bool {
				return r == '、' || r == ',' || r == '，' || r == ';' || r == '；'
			}) {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
