package activity

import (
	"reflect"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exact limit", "hello", 5, "hello"},
		{"truncated", "hello world", 5, "hello"},
		{"zero limit", "hello", 0, ""},
		{"multibyte preserved", "héllo wörld", 7, "héllo w"},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.n); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" rag ", "#llm", "", "  ", "#", "go"})
	want := []string{"rag", "llm", "go"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestUpdateEmpty(t *testing.T) {
	if !(Update{}).Empty() {
		t.Error("zero Update should be empty")
	}

	title := "new title"
	if (Update{Title: &title}).Empty() {
		t.Error("Update with Title should not be empty")
	}

	tags := []string{"a"}
	if (Update{Tags: &tags}).Empty() {
		t.Error("Update with Tags should not be empty")
	}
}
