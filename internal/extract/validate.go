package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lorecard/lorecard/internal/types"
)

// recordSchema builds the JSON schema every raw response array must satisfy
// before field mapping. It is generated from the parser's field aliases so
// Chinese and English keys validate alike: every item must be an object
// carrying a non-empty name under one of its accepted keys, and any present
// field must have the right shape. Validating the raw array means a
// wrong-typed field ({"name": 123}) is reported as malformed instead of
// being silently dropped during mapping.
func recordSchema() (string, error) {
	stringSpec := map[string]any{"type": "string"}
	nameSpec := map[string]any{"type": "string", "minLength": 1}
	listSpec := map[string]any{"anyOf": []any{
		map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		map[string]any{"type": "string"},
	}}

	props := map[string]any{}
	var nameRequired []any
	for field, keys := range fieldAliases {
		spec := stringSpec
		switch field {
		case "name":
			spec = nameSpec
		case "aliases", "relationships":
			spec = listSpec
		}
		for _, key := range keys {
			props[key] = spec
			if field == "name" {
				nameRequired = append(nameRequired, map[string]any{"required": []any{key}})
			}
		}
	}

	data, err := json.Marshal(map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
			"anyOf":      nameRequired,
		},
	})
	return string(data), err
}

// ValidationConfig holds the record-quality rules.
type ValidationConfig struct {
	// MinNameRunes rejects names shorter than this (default 2).
	MinNameRunes int
	// MinContentRunes rejects records whose combined descriptive text is
	// shorter than this (0 disables the check).
	MinContentRunes int
	// InvalidNames is an exact-match blacklist ("主角", "某人", ...).
	InvalidNames []string
}

// Validator checks raw response arrays against the schema and filters mapped
// records by the configured quality rules.
type Validator struct {
	cfg     ValidationConfig
	schema  *jsonschema.Schema
	invalid map[string]bool
}

// NewValidator compiles the record schema once.
func NewValidator(cfg ValidationConfig) (*Validator, error) {
	if cfg.MinNameRunes <= 0 {
		cfg.MinNameRunes = 2
	}
	schemaJSON, err := recordSchema()
	if err != nil {
		return nil, fmt.Errorf("building record schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("records.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("loading record schema: %w", err)
	}
	schema, err := compiler.Compile("records.json")
	if err != nil {
		return nil, fmt.Errorf("compiling record schema: %w", err)
	}
	invalid := make(map[string]bool, len(cfg.InvalidNames))
	for _, name := range cfg.InvalidNames {
		invalid[name] = true
	}
	return &Validator{cfg: cfg, schema: schema, invalid: invalid}, nil
}

// Validate checks a raw parsed response array against the record schema.
// A shape violation rejects the whole batch.
func (v *Validator) Validate(raw []any) error {
	if err := v.schema.Validate(raw); err != nil {
		return fmt.Errorf("records do not match schema: %w", err)
	}
	return nil
}

// Filter applies the quality rules record by record, dropping names that are
// too short, blacklisted, or digits-only, and records without enough
// descriptive content.
func (v *Validator) Filter(records []types.EntityRecord) []types.EntityRecord {
	out := make([]types.EntityRecord, 0, len(records))
	for _, rec := range records {
		if v.acceptable(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (v *Validator) acceptable(rec types.EntityRecord) bool {
	name := strings.TrimSpace(rec.Name)
	if utf8.RuneCountInString(name) < v.cfg.MinNameRunes {
		return false
	}
	if v.invalid[name] || isDigits(name) {
		return false
	}
	if v.cfg.MinContentRunes > 0 {
		content := rec.Features + rec.Personality + rec.Quote + rec.Motivation + rec.Notes
		if utf8.RuneCountInString(content) < v.cfg.MinContentRunes {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
