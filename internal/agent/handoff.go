package agent

import (
	"strings"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/syllabus"
)

// TransitionKind is the outcome of classifying an assistant reply.
type TransitionKind int

const (
	// TransitionNone keeps the current phase.
	TransitionNone TransitionKind = iota
	// TransitionToMenu moves the session to the activity menu.
	TransitionToMenu
	// TransitionToGame moves the session into the game named by GameID.
	TransitionToGame
)

// Transition is a classified phase change.
type Transition struct {
	Kind   TransitionKind
	GameID string
}

// TransitionClassifier decides whether an assistant reply implies a phase
// change. The phrase heuristic is the default; a model-scored classifier
// can be swapped in without touching the engine.
type TransitionClassifier interface {
	Classify(sess *domain.Session, reply string) Transition
}

// PhraseClassifier detects phase handoffs from signal phrases in the
// assistant's reply, the approach the phase prompts are written around.
type PhraseClassifier struct {
	syllabus *syllabus.Syllabus
}

// NewPhraseClassifier creates a classifier over the game registry.
func NewPhraseClassifier(s *syllabus.Syllabus) *PhraseClassifier {
	return &PhraseClassifier{syllabus: s}
}

// Phrases the info-collection prompt instructs the model to use when both
// name and age are in hand.
var menuHandoffPhrases = []string{
	"what would you like to play",
	"which game would you like",
	"pick a game",
	"choose a game",
	"ready to play",
	"let's pick",
}

// Phrases that signal leaving a game for the menu.
var returnToMenuPhrases = []string{
	"back to the menu",
	"play something else",
	"pick a different game",
	"choose another game",
	"what else would you like to play",
}

// Classify inspects the reply against the session's current phase.
func (c *PhraseClassifier) Classify(sess *domain.Session, reply string) Transition {
	lower := strings.ToLower(reply)

	switch sess.Phase {
	case domain.PhaseCollectingUserInfo:
		// No handoff until both name and age are recorded, whatever the
		// reply says.
		if !sess.Profile.HasUserInfo() {
			return Transition{Kind: TransitionNone}
		}
		if containsAny(lower, menuHandoffPhrases) {
			return Transition{Kind: TransitionToMenu}
		}

	case domain.PhaseChoosingActivity:
		if gameID := c.matchGame(lower); gameID != "" && announcesStart(lower) {
			return Transition{Kind: TransitionToGame, GameID: gameID}
		}

	case domain.PhaseInGame:
		if containsAny(lower, returnToMenuPhrases) {
			return Transition{Kind: TransitionToMenu}
		}
		if gameID := c.matchGame(lower); gameID != "" && gameID != sess.CurrentGame && announcesStart(lower) {
			return Transition{Kind: TransitionToGame, GameID: gameID}
		}
	}
	return Transition{Kind: TransitionNone}
}

// MatchGameSwitch checks the child's own utterance for an explicit game
// request ("let's play word safari"). It powers the direct-switch shortcut
// that skips the model round-trip.
func (c *PhraseClassifier) MatchGameSwitch(userText string) string {
	lower := strings.ToLower(userText)
	if !strings.Contains(lower, "play") && !strings.Contains(lower, "game") {
		return ""
	}
	return c.matchGame(lower)
}

// matchGame returns the id of the first game whose name or id appears in
// the text.
func (c *PhraseClassifier) matchGame(lower string) string {
	for _, game := range c.syllabus.Games() {
		if strings.Contains(lower, strings.ToLower(game.Name)) {
			return game.ID
		}
		if strings.Contains(lower, strings.ToLower(strings.ReplaceAll(game.ID, "_", " "))) {
			return game.ID
		}
	}
	return ""
}

var startPhrases = []string{"welcome to", "let's play", "let's start", "here we go", "starting", "we'll play"}

// announcesStart requires a start phrase together with the "get ready" cue,
// so a game merely being described or offered is not mistaken for its
// launch.
func announcesStart(lower string) bool {
	return containsAny(lower, startPhrases) && strings.Contains(lower, "get ready")
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
