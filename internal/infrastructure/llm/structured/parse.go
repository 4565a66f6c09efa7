package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Retry reasons reported to logs and metrics.
const (
	ReasonInvalidJSON    = "invalid_json"
	ReasonSchemaMismatch = "schema_mismatch"
)

// ResponseError describes a model response that could not be turned into the
// expected typed shape.
type ResponseError struct {
	Reason string
	Err    error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// decodeResponse finds the first JSON object in raw that satisfies schema and
// decodes it into out. Brace scanning only proposes candidates; the schema
// decides which one is accepted.
func decodeResponse(raw string, schema *jsonschema.Schema, out any) error {
	candidates := candidateObjects(raw)
	var schemaErr error
	for _, candidate := range candidates {
		var generic any
		if err := json.Unmarshal([]byte(candidate), &generic); err != nil {
			continue
		}
		if err := schema.Validate(generic); err != nil {
			if schemaErr == nil {
				schemaErr = err
			}
			continue
		}
		if err := json.Unmarshal([]byte(candidate), out); err != nil {
			if schemaErr == nil {
				schemaErr = err
			}
			continue
		}
		return nil
	}
	if schemaErr != nil {
		return &ResponseError{Reason: ReasonSchemaMismatch, Err: schemaErr}
	}
	return &ResponseError{Reason: ReasonInvalidJSON, Err: fmt.Errorf("no JSON object in response of %d bytes", len(raw))}
}

// candidateObjects lists substrings that may hold the response object, in
// preference order: the whole trimmed text, the span from the first '{' to the
// last '}', then every balanced top-level object.
func candidateObjects(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		add(trimmed)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		add(raw[start : end+1])
	}
	for _, obj := range balancedObjects(raw) {
		add(obj)
	}
	return out
}

func balancedObjects(raw string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, raw[start:i+1])
				start = -1
			}
		}
	}
	return out
}
