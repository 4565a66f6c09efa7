package structured

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var nullableString = map[string]any{"type": []any{"string", "null"}}
var nullableNumber = map[string]any{"type": []any{"number", "null"}}

var extractionSchemaDoc = map[string]any{
	"type":     "object",
	"required": []any{"fields"},
	"properties": map[string]any{
		"title":    nullableString,
		"category": nullableString,
		"fields": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"key"},
				"properties": map[string]any{
					"key":           map[string]any{"type": "string"},
					"valueText":     nullableString,
					"valueNumber":   nullableNumber,
					"valueDate":     nullableString,
					"confidence":    nullableNumber,
					"sourceSnippet": nullableString,
					"sourcePage":    map[string]any{"type": []any{"integer", "null"}},
				},
			},
		},
	},
}

var categorizationSchemaDoc = map[string]any{
	"type":     "object",
	"required": []any{"categoryName"},
	"properties": map[string]any{
		"categoryName":  map[string]any{"type": "string", "minLength": 1, "pattern": `\S`},
		"confidence":    nullableNumber,
		"rationale":     nullableString,
		"reuseExisting": map[string]any{"type": []any{"boolean", "null"}},
	},
}

var (
	extractionSchema     = mustCompileSchema("extraction.json", extractionSchemaDoc)
	categorizationSchema = mustCompileSchema("categorization.json", categorizationSchemaDoc)
)

func compileSchema(name string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

func mustCompileSchema(name string, doc map[string]any) *jsonschema.Schema {
	schema, err := compileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return schema
}
