// Package syllabus holds the prompt template registry: one system prompt
// per conversation phase plus one per game, sourced from the content store.
package syllabus

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/amigo-labs/amigo-server/internal/domain"
)

const (
	// PromptUserInfo is the system prompt for the info-collection phase.
	PromptUserInfo = "USER_INFO_PROMPT"
	// PromptChoiceLayer is the system prompt for the activity menu.
	PromptChoiceLayer = "CHOICE_LAYER_PROMPT"
	// gamePromptSuffix marks prompts that define a game.
	gamePromptSuffix = "_GAME_PROMPT"
)

var (
	gamePromptPattern = regexp.MustCompile(`^(.+)_GAME_PROMPT$`)
	calledPattern     = regexp.MustCompile(`"([^"]+)"`)
	calledTailPattern = regexp.MustCompile(`called\s+(.+?)[.\s]`)
	userFieldPattern  = regexp.MustCompile(`\$\{user\.([a-zA-Z]+)\}`)
)

// Game is the metadata derived from a game prompt.
type Game struct {
	ID          string
	Name        string
	Description string
	PromptID    string
}

// Syllabus is an immutable prompt registry built from the content store's
// prompt table.
type Syllabus struct {
	prompts map[string]string
	games   map[string]Game
}

// New builds a syllabus from the raw prompt mapping. It fails when either
// essential phase prompt is missing or no game prompt exists.
func New(prompts map[string]string) (*Syllabus, error) {
	s := &Syllabus{
		prompts: make(map[string]string, len(prompts)),
		games:   make(map[string]Game),
	}
	for id, content := range prompts {
		s.prompts[id] = content
	}
	s.detectGames()

	for _, essential := range []string{PromptUserInfo, PromptChoiceLayer} {
		if _, ok := s.prompts[essential]; !ok {
			return nil, fmt.Errorf("missing essential prompt %s", essential)
		}
	}
	if len(s.games) == 0 {
		return nil, fmt.Errorf("no game prompts detected")
	}

	slog.Info("Syllabus initialized", "prompts", len(s.prompts), "games", len(s.games))
	return s, nil
}

// detectGames finds <GAME_ID>_GAME_PROMPT entries and derives display
// metadata from the prompt body.
func (s *Syllabus) detectGames() {
	for promptID, content := range s.prompts {
		m := gamePromptPattern.FindStringSubmatch(promptID)
		if m == nil {
			continue
		}
		gameID := m[1]
		game := Game{
			ID:          gameID,
			Name:        strings.ReplaceAll(gameID, "_", " "),
			Description: fmt.Sprintf("Learn Spanish through a fun %s game!", strings.ToLower(gameID)),
			PromptID:    promptID,
		}
		if name := extractGameName(content); name != "" {
			game.Name = name
		}
		s.games[gameID] = game
		slog.Debug("Detected game", "game_id", gameID, "name", game.Name)
	}
}

// extractGameName looks for a `game is called "…"` phrase in the prompt
// body.
func extractGameName(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(strings.ToLower(line), "game is called") {
			continue
		}
		if m := calledPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
		if m := calledTailPattern.FindStringSubmatch(line); m != nil {
			return strings.Trim(m[1], `" `)
		}
	}
	return ""
}

// Prompt returns a prompt by id, empty when absent.
func (s *Syllabus) Prompt(promptID string) string {
	return s.prompts[promptID]
}

// GamePrompt returns the prompt body for a game id, empty when unknown.
func (s *Syllabus) GamePrompt(gameID string) string {
	game, ok := s.games[gameID]
	if !ok {
		return ""
	}
	return s.prompts[game.PromptID]
}

// Game looks up a game by id.
func (s *Syllabus) Game(gameID string) (Game, bool) {
	game, ok := s.games[gameID]
	return game, ok
}

// Games returns all games sorted by id.
func (s *Syllabus) Games() []Game {
	out := make([]Game, 0, len(s.games))
	for _, game := range s.games {
		out = append(out, game)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChoicePrompt returns the activity-menu prompt with the available games
// listing appended.
func (s *Syllabus) ChoicePrompt() string {
	var b strings.Builder
	b.WriteString(s.prompts[PromptChoiceLayer])
	b.WriteString("\n\nAVAILABLE_GAMES:\n")
	for _, game := range s.Games() {
		fmt.Fprintf(&b, "- %s: %s - %s\n", game.ID, game.Name, game.Description)
	}
	return b.String()
}

// ReplaceUserTemplates substitutes ${user.<field>} tokens with profile
// fields, or a `[unknown <field>]` placeholder when the field is unset.
func ReplaceUserTemplates(text string, profile *domain.Profile) string {
	if text == "" {
		return text
	}
	return userFieldPattern.ReplaceAllStringFunc(text, func(match string) string {
		field := userFieldPattern.FindStringSubmatch(match)[1]
		if value, ok := profile.Field(field); ok {
			return value
		}
		return fmt.Sprintf("[unknown %s]", field)
	})
}
