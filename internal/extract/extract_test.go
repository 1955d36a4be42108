package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"palmreader/internal/domain"
)

func TestExtractFencedRoundTrip(t *testing.T) {
	t.Parallel()
	objects := []map[string]any{
		{"a": float64(1)},
		{"palm_lines": map[string]any{"fate_line": map[string]any{"strength": "Absent"}}},
		{"text": "braces } inside { strings", "list": []any{"x", float64(2), true, nil}},
		{},
	}
	fences := []string{"```json\n%s\n```", "```\n%s\n```", "Here you go:\n```JSON\n%s\n```\nThanks!"}
	for _, obj := range objects {
		encoded, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		for _, fence := range fences {
			raw := fmt.Sprintf(fence, encoded)
			got, err := Extract(raw)
			if err != nil {
				t.Fatalf("Extract(%q) error: %v", raw, err)
			}
			if !reflect.DeepEqual(got, obj) {
				t.Fatalf("Extract(%q) = %#v, want %#v", raw, got, obj)
			}
		}
	}
}

func TestExtractStrategies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "direct json",
			raw:  `{"a": 1}`,
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "trailing comma repair",
			raw:  `{"a": 1, "b": 2,}`,
			want: map[string]any{"a": float64(1), "b": float64(2)},
		},
		{
			name: "nested trailing commas",
			raw:  "{\"list\": [1, 2, ],\n \"obj\": {\"k\": \"v\",\n},}",
			want: map[string]any{"list": []any{float64(1), float64(2)}, "obj": map[string]any{"k": "v"}},
		},
		{
			name: "surrounding prose",
			raw:  `Sure! Here is the analysis: {"score": 72, "note": "a } brace"} Let me know if you need more.`,
			want: map[string]any{"score": float64(72), "note": "a } brace"},
		},
		{
			name: "first balanced object wins",
			raw:  `first {"a": {"b": 1}} then {"c": 2}`,
			want: map[string]any{"a": map[string]any{"b": float64(1)}},
		},
		{
			name: "comma inside string kept",
			raw:  `{"a": "x,}",}`,
			want: map[string]any{"a": "x,}"},
		},
		{
			name: "null error key ignored",
			raw:  `{"error": null, "a": 1}`,
			want: map[string]any{"error": nil, "a": float64(1)},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestExtractFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		raw         string
		kind        error
		refusal     bool
		wantMessage string
	}{
		{name: "empty", raw: "   ", kind: domain.ErrUnparseable},
		{name: "garbage", raw: "the palm shows {unbalanced", kind: domain.ErrUnparseable},
		{name: "refusal", raw: "I'm sorry, but I cannot analyze this image because it is not a palm.", kind: domain.ErrUnparseable, refusal: true, wantMessage: refusalMessage},
		{name: "refusal with braces is generic", raw: "I cannot analyze {this", kind: domain.ErrUnparseable, wantMessage: genericMessage},
		{name: "error key", raw: `{"error": "not a valid palm image"}`, kind: domain.ErrModelRejected, wantMessage: rejectedMessage},
		{name: "fenced error key", raw: "```json\n{\"error\": true}\n```", kind: domain.ErrModelRejected},
		{name: "array is not an object", raw: `[1, 2, 3]`, kind: domain.ErrUnparseable},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tc.raw)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if errors.Is(err, ErrRefusal) != tc.refusal {
				t.Fatalf("refusal = %v, want %v (err %v)", errors.Is(err, ErrRefusal), tc.refusal, err)
			}
			if tc.wantMessage != "" {
				if got := domain.UserMessage(err); got != tc.wantMessage {
					t.Fatalf("UserMessage = %q, want %q", got, tc.wantMessage)
				}
			}
		})
	}
}

func TestIsRefusalOnlyChecksOpening(t *testing.T) {
	t.Parallel()
	long := make([]byte, 250)
	for i := range long {
		long[i] = 'a'
	}
	if IsRefusal(string(long) + " i cannot") {
		t.Fatal("indicator beyond the opening window should be ignored")
	}
	if !IsRefusal("Unable to analyze: NOT A HAND") {
		t.Fatal("expected case-insensitive match")
	}
}
