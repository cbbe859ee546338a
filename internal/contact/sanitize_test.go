package contact

import (
	"reflect"
	"testing"
)

func TestSanitizeFormDataStripsAngleBrackets(t *testing.T) {
	got := SanitizeFormData(map[string]any{
		"name":    "  Alice  ",
		"message": "<script>alert(1)</script> hello",
	})

	if got["name"] != "Alice" {
		t.Fatalf("name = %q, want %q", got["name"], "Alice")
	}
	if got["message"] != "scriptalert(1)/script hello" {
		t.Fatalf("message = %q", got["message"])
	}
}

func TestSanitizeFormDataRecursesNestedValues(t *testing.T) {
	got := SanitizeFormData(map[string]any{
		"meta": map[string]any{
			"subject": " <b>hi</b> ",
		},
		"tags":  []any{" <x> ", 42, true},
		"count": 7,
	})

	meta := got["meta"].(map[string]any)
	if meta["subject"] != "bhi/b" {
		t.Fatalf("nested subject = %q", meta["subject"])
	}
	if !reflect.DeepEqual(got["tags"], []any{"x", 42, true}) {
		t.Fatalf("tags = %v", got["tags"])
	}
	if got["count"] != 7 {
		t.Fatalf("non-string value changed: %v", got["count"])
	}
}

func TestSanitizeFormDataDoesNotMutateInput(t *testing.T) {
	in := map[string]any{"message": "<b>hi</b>"}
	_ = SanitizeFormData(in)
	if in["message"] != "<b>hi</b>" {
		t.Fatalf("input mutated: %q", in["message"])
	}
}
