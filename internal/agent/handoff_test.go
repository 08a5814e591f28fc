package agent

import (
	"testing"

	"github.com/amigo-labs/amigo-server/internal/domain"
)

func TestClassifyMenuHandoffNeedsUserInfo(t *testing.T) {
	t.Parallel()
	c := NewPhraseClassifier(testSyllabus(t))
	sess := domain.NewSession("s1", "d1", "")

	reply := "Nice to meet you! What would you like to play?"
	if got := c.Classify(sess, reply); got.Kind != TransitionNone {
		t.Errorf("transition = %+v, want none without saved user info", got)
	}

	sess.Profile.Name, sess.Profile.Age = "Alex", 6
	if got := c.Classify(sess, reply); got.Kind != TransitionToMenu {
		t.Errorf("transition = %+v, want menu handoff", got)
	}
}

func TestClassifyGameSelection(t *testing.T) {
	t.Parallel()
	c := NewPhraseClassifier(testSyllabus(t))
	sess := domain.NewSession("s1", "d1", "")
	sess.Profile.Name, sess.Profile.Age = "Alex", 6
	sess.Phase = domain.PhaseChoosingActivity

	got := c.Classify(sess, "¡Excelente! Let's play Zoo Adventure! Get ready to meet the animals!")
	if got.Kind != TransitionToGame || got.GameID != "ZOO" {
		t.Errorf("transition = %+v", got)
	}

	got = c.Classify(sess, "Welcome to Zoo Adventure! Get ready for some amazing animals!")
	if got.Kind != TransitionToGame || got.GameID != "ZOO" {
		t.Errorf("transition = %+v, want the welcome form to launch too", got)
	}

	// Mentioning a game without announcing a start is not a selection.
	got = c.Classify(sess, "Zoo Adventure teaches animals. Which game do you want?")
	if got.Kind != TransitionNone {
		t.Errorf("transition = %+v, want none without a start phrase", got)
	}

	// A start phrase without the get-ready cue is still just talk about the
	// game, not its launch.
	got = c.Classify(sess, "Let's play Zoo Adventure. First, tell me your favorite animal.")
	if got.Kind != TransitionNone {
		t.Errorf("transition = %+v, want none without the get-ready cue", got)
	}
}

func TestClassifyInGameTransitions(t *testing.T) {
	t.Parallel()
	c := NewPhraseClassifier(testSyllabus(t))
	sess := domain.NewSession("s1", "d1", "")
	sess.Profile.Name, sess.Profile.Age = "Alex", 6
	sess.Phase = domain.PhaseInGame
	sess.CurrentGame = "ZOO"

	got := c.Classify(sess, "Okay, back to the menu we go!")
	if got.Kind != TransitionToMenu {
		t.Errorf("transition = %+v, want menu", got)
	}

	got = c.Classify(sess, "¡Vamos! Let's play Spanish Road Trip instead! Get ready to drive!")
	if got.Kind != TransitionToGame || got.GameID != "CAR" {
		t.Errorf("transition = %+v, want CAR", got)
	}

	// The current game announcing itself again is not a transition.
	got = c.Classify(sess, "Let's play Zoo Adventure round two! Get ready!")
	if got.Kind != TransitionNone {
		t.Errorf("transition = %+v, want none for the same game", got)
	}
}

func TestMatchGameSwitch(t *testing.T) {
	t.Parallel()
	c := NewPhraseClassifier(testSyllabus(t))

	tests := []struct {
		text string
		want string
	}{
		{"I want to play zoo adventure", "ZOO"},
		{"can we play spanish road trip", "CAR"},
		{"let's do the zoo game", "ZOO"},
		{"tell me about elephants", ""},
		{"I like adventures", ""},
	}
	for _, tt := range tests {
		if got := c.MatchGameSwitch(tt.text); got != tt.want {
			t.Errorf("MatchGameSwitch(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
