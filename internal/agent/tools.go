package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/inference"
	"github.com/amigo-labs/amigo-server/internal/profile"
)

// Tool names the model may call.
const (
	ToolSaveUserInfo    = "save_user_info"
	ToolTrackVocabulary = "track_vocabulary"
	ToolGetChildName    = "get_child_name"
	ToolGetChildAge     = "get_child_age"
)

var (
	saveUserInfoDef = inference.ToolDefinition{
		Name:        ToolSaveUserInfo,
		Description: "Save the child's name and age once they have shared them.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "The child's first name"},
				"age": {"type": "integer", "description": "The child's age in years"}
			},
			"required": ["name", "age"]
		}`),
	}

	trackVocabularyDef = inference.ToolDefinition{
		Name:        ToolTrackVocabulary,
		Description: "Record a Spanish word the child just practiced, with its translation.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"word": {"type": "string", "description": "The Spanish word"},
				"translation": {"type": "string", "description": "The English translation"},
				"context": {"type": "string", "description": "The sentence or game moment it appeared in"}
			},
			"required": ["word", "translation"]
		}`),
	}

	getChildNameDef = inference.ToolDefinition{
		Name:        ToolGetChildName,
		Description: "Look up the child's saved name.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}

	getChildAgeDef = inference.ToolDefinition{
		Name:        ToolGetChildAge,
		Description: "Look up the child's saved age.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
)

// toolsForPhase returns the tool set exposed to the model in a given phase.
// Info collection gets the save tool; the menu and games get vocabulary
// tracking. Lookups are available everywhere.
func toolsForPhase(phase domain.Phase) []inference.ToolDefinition {
	switch phase {
	case domain.PhaseCollectingUserInfo:
		return []inference.ToolDefinition{saveUserInfoDef, getChildNameDef, getChildAgeDef}
	default:
		return []inference.ToolDefinition{trackVocabularyDef, getChildNameDef, getChildAgeDef}
	}
}

// toolExecutor applies tool calls against the session's profile snapshot
// and writes durable updates through the profile store.
type toolExecutor struct {
	profiles profile.Store
}

// Execute runs one tool call and returns the result text handed back to the
// model. Unknown tools return an error result rather than failing the turn.
func (e *toolExecutor) Execute(ctx context.Context, sess *domain.Session, call inference.ToolCall) string {
	switch call.Name {
	case ToolSaveUserInfo:
		return e.saveUserInfo(ctx, sess, call.Arguments)
	case ToolTrackVocabulary:
		return e.trackVocabulary(ctx, sess, call.Arguments)
	case ToolGetChildName:
		if sess.Profile.Name == "" {
			return "The child's name is not known yet."
		}
		return fmt.Sprintf("The child's name is %s.", sess.Profile.Name)
	case ToolGetChildAge:
		if sess.Profile.Age == 0 {
			return "The child's age is not known yet."
		}
		return fmt.Sprintf("The child is %d years old.", sess.Profile.Age)
	default:
		slog.Warn("Model requested unknown tool", "tool", call.Name, "session_id", sess.ID)
		return fmt.Sprintf("Error: unknown tool %q.", call.Name)
	}
}

func (e *toolExecutor) saveUserInfo(ctx context.Context, sess *domain.Session, args json.RawMessage) string {
	var in struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return fmt.Sprintf("Error: invalid save_user_info arguments: %v.", err)
	}
	if in.Name == "" || in.Age <= 0 {
		return "Error: both name and a positive age are required."
	}

	sess.Profile.Merge(domain.ProfileUpdate{Name: &in.Name, Age: &in.Age})
	if err := e.profiles.Merge(ctx, sess.UserID, domain.ProfileUpdate{Name: &in.Name, Age: &in.Age}); err != nil {
		// The session snapshot carries the info for the rest of the
		// conversation even when the durable write fails.
		slog.Error("Failed to persist user info", "user_id", sess.UserID, "error", err)
	}
	slog.Info("Saved user info", "session_id", sess.ID, "name", in.Name, "age", in.Age)
	return fmt.Sprintf("Saved: the child is %s, age %d.", in.Name, in.Age)
}

func (e *toolExecutor) trackVocabulary(ctx context.Context, sess *domain.Session, args json.RawMessage) string {
	var in struct {
		Word        string `json:"word"`
		Translation string `json:"translation"`
		Context     string `json:"context"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return fmt.Sprintf("Error: invalid track_vocabulary arguments: %v.", err)
	}
	if in.Word == "" || in.Translation == "" {
		return "Error: word and translation are required."
	}

	entry := domain.VocabularyEntry{
		Translation: in.Translation,
		Context:     in.Context,
		Timestamp:   time.Now(),
	}
	update := domain.ProfileUpdate{Vocabulary: map[string]domain.VocabularyEntry{in.Word: entry}}
	sess.Profile.Merge(update)
	if err := e.profiles.Merge(ctx, sess.UserID, update); err != nil {
		slog.Error("Failed to persist vocabulary", "user_id", sess.UserID, "word", in.Word, "error", err)
	}
	slog.Debug("Tracked vocabulary", "session_id", sess.ID, "word", in.Word)
	return fmt.Sprintf("Tracked %q (%s).", in.Word, in.Translation)
}
