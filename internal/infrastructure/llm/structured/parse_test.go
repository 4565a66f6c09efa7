package structured

import (
	"errors"
	"testing"
)

func TestDecodeResponseToleratesProse(t *testing.T) {
	var out categorizationResponse
	raw := "Sure! Here is the answer:\n{\"categoryName\":\"Energy\",\"confidence\":0.7}\nHope it helps."
	if err := decodeResponse(raw, categorizationSchema, &out); err != nil {
		t.Fatalf("decodeResponse() error = %v", err)
	}
	if out.CategoryName != "Energy" {
		t.Fatalf("unexpected decode %+v", out)
	}
}

func TestDecodeResponsePicksValidFragment(t *testing.T) {
	// The first-to-last brace span is not valid JSON here; the schema-valid
	// fragment must still be found.
	raw := `Example: {"note": "ignore me"} Answer: {"categoryName": "Banking", "confidence": 0.9}`
	var out categorizationResponse
	if err := decodeResponse(raw, categorizationSchema, &out); err != nil {
		t.Fatalf("decodeResponse() error = %v", err)
	}
	if out.CategoryName != "Banking" {
		t.Fatalf("expected the schema-valid fragment, got %+v", out)
	}
}

func TestDecodeResponseHandlesBracesInsideStrings(t *testing.T) {
	raw := `{"categoryName": "Legal {draft}", "rationale": "contains } brace"}`
	var out categorizationResponse
	if err := decodeResponse(raw, categorizationSchema, &out); err != nil {
		t.Fatalf("decodeResponse() error = %v", err)
	}
	if out.CategoryName != "Legal {draft}" {
		t.Fatalf("unexpected decode %+v", out)
	}
}

func TestDecodeResponseReasons(t *testing.T) {
	cases := []struct {
		raw    string
		reason string
	}{
		{raw: "no json here", reason: ReasonInvalidJSON},
		{raw: `{"categoryName": "Energy",}`, reason: ReasonInvalidJSON},
		{raw: `{"category": "Energy"}`, reason: ReasonSchemaMismatch},
		{raw: `{"categoryName": "Energy", "confidence": "high"}`, reason: ReasonSchemaMismatch},
		{raw: `{"categoryName": ""}`, reason: ReasonSchemaMismatch},
		{raw: `{"categoryName": "   "}`, reason: ReasonSchemaMismatch},
	}
	for _, tc := range cases {
		var out categorizationResponse
		err := decodeResponse(tc.raw, categorizationSchema, &out)
		var respErr *ResponseError
		if !errors.As(err, &respErr) {
			t.Fatalf("%q: expected ResponseError, got %v", tc.raw, err)
		}
		if respErr.Reason != tc.reason {
			t.Fatalf("%q: expected reason %s, got %s", tc.raw, tc.reason, respErr.Reason)
		}
	}
}

func TestBalancedObjects(t *testing.T) {
	got := balancedObjects(`a {"x": {"y": 1}} b {"z": "}"} c }`)
	if len(got) != 2 || got[0] != `{"x": {"y": 1}}` || got[1] != `{"z": "}"}` {
		t.Fatalf("unexpected objects %q", got)
	}
}
