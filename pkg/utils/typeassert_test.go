package utils

import "testing"

func TestGetMapField(t *testing.T) {
	payload := map[string]any{"prompt": "hi", "count": 3}

	prompt, err := GetMapField[string](payload, "prompt")
	if err != nil || prompt != "hi" {
		t.Errorf("expected prompt 'hi', got %q (%v)", prompt, err)
	}

	if _, err := GetMapField[string](payload, "count"); err == nil {
		t.Error("expected type mismatch error")
	}

	if _, err := GetMapField[string](payload, "missing"); err == nil {
		t.Error("expected missing field error")
	}
}

func TestGetMapFieldOr(t *testing.T) {
	payload := map[string]any{"prompt": 42}

	if got := GetMapFieldOr(payload, "prompt", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := GetMapFieldOr(map[string]any{"prompt": "x"}, "prompt", "fallback"); got != "x" {
		t.Errorf("expected x, got %q", got)
	}
	if got := GetMapFieldOr[string](nil, "prompt", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for nil map, got %q", got)
	}
}

func TestSafeAssert(t *testing.T) {
	if v, ok := SafeAssert[int](7); !ok || v != 7 {
		t.Errorf("expected 7, got %v (%v)", v, ok)
	}
	if _, ok := SafeAssert[string](7); ok {
		t.Error("expected failed assertion")
	}
}
