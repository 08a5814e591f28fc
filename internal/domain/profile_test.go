package domain

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestProfileMergePartial(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	p.Merge(ProfileUpdate{Name: strPtr("Alex")})
	if p.Name != "Alex" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Age != 0 {
		t.Errorf("Age = %d, want untouched 0", p.Age)
	}
	if p.Language != "Spanish" {
		t.Errorf("Language = %q, want untouched default", p.Language)
	}

	p.Merge(ProfileUpdate{Age: intPtr(6)})
	if p.Name != "Alex" || p.Age != 6 {
		t.Errorf("after second merge: name=%q age=%d", p.Name, p.Age)
	}
}

func TestProfileMergeVocabularyOverwrites(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	p.Merge(ProfileUpdate{Vocabulary: map[string]VocabularyEntry{
		"gato": {Translation: "cat", Timestamp: time.Now()},
	}})
	p.Merge(ProfileUpdate{Vocabulary: map[string]VocabularyEntry{
		"gato": {Translation: "cat (updated)", Timestamp: time.Now()},
	}})
	if len(p.Vocabulary) != 1 {
		t.Fatalf("vocabulary size = %d, want 1", len(p.Vocabulary))
	}
	if got := p.Vocabulary["gato"].Translation; got != "cat (updated)" {
		t.Errorf("translation = %q, want last write", got)
	}
}

func TestProfileField(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	p.Name = "Alex"
	p.Age = 6

	tests := []struct {
		field string
		want  string
		ok    bool
	}{
		{"name", "Alex", true},
		{"age", "6", true},
		{"language", "Spanish", true},
		{"proficiency", "Beginner", true},
		{"favorite_color", "", false},
	}
	for _, tt := range tests {
		got, ok := p.Field(tt.field)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Field(%q) = (%q, %v), want (%q, %v)", tt.field, got, ok, tt.want, tt.ok)
		}
	}

	empty := DefaultProfile()
	if _, ok := empty.Field("name"); ok {
		t.Error("unset name should report not ok")
	}
}

func TestHasUserInfo(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	if p.HasUserInfo() {
		t.Error("empty profile should not have user info")
	}
	p.Name = "Alex"
	if p.HasUserInfo() {
		t.Error("name alone is not enough")
	}
	p.Age = 6
	if !p.HasUserInfo() {
		t.Error("name and age should satisfy HasUserInfo")
	}
}
