package domain

import (
	"strconv"
	"time"
)

// Profile is the user profile snapshot carried on a session. The durable
// copy lives in the profile store; the snapshot is refreshed on session
// init and mutated by tool calls.
type Profile struct {
	Name        string                     `json:"name,omitempty"`
	Age         int                        `json:"age,omitempty"`
	Language    string                     `json:"language"`
	Proficiency string                     `json:"proficiency"`
	Vocabulary  map[string]VocabularyEntry `json:"vocabulary"`
}

// VocabularyEntry records one taught word. Entries are keyed by the literal
// word string; writing the same word again overwrites the entry.
type VocabularyEntry struct {
	Translation string    `json:"translation"`
	Context     string    `json:"context,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProfileUpdate is a partial profile for merge writes. Nil fields are left
// untouched; vocabulary entries are merged by word.
type ProfileUpdate struct {
	Name        *string
	Age         *int
	Language    *string
	Proficiency *string
	Vocabulary  map[string]VocabularyEntry
}

// DefaultProfile returns the profile used when a user has no stored record.
func DefaultProfile() Profile {
	return Profile{
		Language:    "Spanish",
		Proficiency: "Beginner",
		Vocabulary:  make(map[string]VocabularyEntry),
	}
}

// Merge applies a partial update to the profile in place.
func (p *Profile) Merge(u ProfileUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.Proficiency != nil {
		p.Proficiency = *u.Proficiency
	}
	if len(u.Vocabulary) > 0 {
		if p.Vocabulary == nil {
			p.Vocabulary = make(map[string]VocabularyEntry, len(u.Vocabulary))
		}
		for word, entry := range u.Vocabulary {
			p.Vocabulary[word] = entry
		}
	}
}

// Field returns the string form of a named profile field for prompt
// template substitution. The second return is false for unknown or unset
// fields.
func (p *Profile) Field(name string) (string, bool) {
	switch name {
	case "name":
		if p.Name == "" {
			return "", false
		}
		return p.Name, true
	case "age":
		if p.Age == 0 {
			return "", false
		}
		return strconv.Itoa(p.Age), true
	case "language":
		if p.Language == "" {
			return "", false
		}
		return p.Language, true
	case "proficiency":
		if p.Proficiency == "" {
			return "", false
		}
		return p.Proficiency, true
	}
	return "", false
}

// HasUserInfo reports whether both name and age have been recorded.
func (p *Profile) HasUserInfo() bool {
	return p.Name != "" && p.Age > 0
}
