// Package agent runs the conversational tutor: phase prompts, tool calls,
// and phase transitions over a session's history.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/inference"
	"github.com/amigo-labs/amigo-server/internal/profile"
	"github.com/amigo-labs/amigo-server/internal/syllabus"
)

// maxToolRounds bounds the completion/tool-execution loop in one turn.
const maxToolRounds = 3

// apologyText is the fallback reply when the model cannot be reached. The
// turn still completes so the child hears something instead of silence.
const apologyText = "I'm sorry, I had a little trouble hearing you. Could you say that again?"

// fallbackGreeting opens the conversation when the greeting completion
// fails.
const fallbackGreeting = "Hi there! I'm so happy you're here. What's your name, and how old are you?"

// SwitchMatcher checks the child's utterance for an explicit game request.
type SwitchMatcher interface {
	MatchGameSwitch(userText string) string
}

// Engine drives conversation turns. It is stateless between calls; all
// conversational state lives on the session record.
type Engine struct {
	inference  inference.Service
	syllabus   *syllabus.Syllabus
	classifier TransitionClassifier
	switcher   SwitchMatcher
	tools      *toolExecutor
}

// NewEngine creates an engine. When classifier or switcher are nil the
// phrase heuristic is used.
func NewEngine(svc inference.Service, syl *syllabus.Syllabus, profiles profile.Store,
	classifier TransitionClassifier, switcher SwitchMatcher) *Engine {

	phrase := NewPhraseClassifier(syl)
	if classifier == nil {
		classifier = phrase
	}
	if switcher == nil {
		switcher = phrase
	}
	return &Engine{
		inference:  svc,
		syllabus:   syl,
		classifier: classifier,
		switcher:   switcher,
		tools:      &toolExecutor{profiles: profiles},
	}
}

// systemPrompt builds the phase's system prompt with profile fields
// substituted.
func (e *Engine) systemPrompt(sess *domain.Session) string {
	var raw string
	switch sess.Phase {
	case domain.PhaseCollectingUserInfo:
		raw = e.syllabus.Prompt(syllabus.PromptUserInfo)
	case domain.PhaseChoosingActivity:
		raw = e.syllabus.ChoicePrompt()
	case domain.PhaseInGame:
		raw = e.syllabus.GamePrompt(sess.CurrentGame)
		if raw == "" {
			// The game was removed from the catalog under us; fall back
			// to the menu rather than running without a prompt.
			slog.Warn("Unknown game on session, returning to menu",
				"session_id", sess.ID, "game_id", sess.CurrentGame)
			sess.ReturnToMenu()
			raw = e.syllabus.ChoicePrompt()
		}
	}
	return syllabus.ReplaceUserTemplates(raw, &sess.Profile)
}

// buildMessages assembles the completion request: the current phase's
// system prompt followed by the session history.
func (e *Engine) buildMessages(sess *domain.Session) []inference.ChatMessage {
	messages := make([]inference.ChatMessage, 0, len(sess.History)+1)
	messages = append(messages, inference.ChatMessage{
		Role:    string(domain.RoleSystem),
		Content: e.systemPrompt(sess),
	})
	for _, m := range sess.History {
		if m.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, inference.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

// Init produces the opening greeting for a fresh session and records it in
// the history. The greeting is streamed; onDelta receives each text delta
// as it arrives and may be nil.
func (e *Engine) Init(ctx context.Context, sess *domain.Session, onDelta func(string)) (string, error) {
	// A returning child with a saved name and age skips info collection and
	// gets greeted straight into the activity menu.
	if sess.Phase == domain.PhaseCollectingUserInfo && sess.Profile.HasUserInfo() {
		sess.ReturnToMenu()
		slog.Info("Returning user, starting at the activity menu",
			"session_id", sess.ID, "user_id", sess.UserID)
	}

	messages := e.buildMessages(sess)
	messages = append(messages, inference.ChatMessage{
		Role:    string(domain.RoleUser),
		Content: "The child just connected. Greet them warmly and start the conversation.",
	})

	var b strings.Builder
	for delta, err := range e.inference.StreamComplete(ctx, messages, nil) {
		if err != nil {
			slog.Error("Greeting stream failed, using fallback",
				"session_id", sess.ID, "error", err)
			b.Reset()
			break
		}
		b.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	reply := b.String()
	if reply == "" {
		reply = fallbackGreeting
		if onDelta != nil {
			onDelta(reply)
		}
	}

	sess.Append(domain.RoleAssistant, reply)
	sess.Touch()
	return reply, nil
}

// Turn runs one conversation turn from the child's utterance and returns
// the assistant's reply. Reply fragments are streamed to emit as they
// arrive (emit may be nil). Model failures degrade to an apology rather
// than erroring the turn.
func (e *Engine) Turn(ctx context.Context, sess *domain.Session, userText string, emit func(string)) (string, error) {
	sess.Append(domain.RoleUser, userText)
	sess.Touch()

	// An explicit game request flips the phase immediately: the switch
	// notice goes out first, then the model reply is generated under the
	// new game's prompt. Never before the child's info is collected.
	if sess.Phase != domain.PhaseCollectingUserInfo {
		if gameID := e.switcher.MatchGameSwitch(userText); gameID != "" && gameID != sess.CurrentGame {
			if game, ok := e.syllabus.Game(gameID); ok {
				if err := sess.EnterGame(gameID); err == nil {
					notice := fmt.Sprintf("Switching to %s! Get ready for a fun adventure!", game.Name)
					if emit != nil {
						emit(notice)
					}
					sess.Append(domain.RoleAssistant, notice)
					slog.Info("Direct game switch",
						"session_id", sess.ID, "game_id", gameID)
				}
			}
		}
	}

	reply, err := e.complete(ctx, sess, emit)
	if err != nil {
		slog.Error("Turn completion failed, using apology",
			"session_id", sess.ID, "phase", sess.Phase, "error", err)
		reply = apologyText
		sess.Append(domain.RoleAssistant, reply)
		return reply, nil
	}

	e.applyTransition(sess, reply)
	sess.Append(domain.RoleAssistant, reply)
	return reply, nil
}

// complete streams the phase's completion, then runs the structured
// completion/tool loop on the same messages. Fragments reach emit while the
// structured response is still in flight; the structured content is what
// goes into history.
func (e *Engine) complete(ctx context.Context, sess *domain.Session, emit func(string)) (string, error) {
	messages := e.buildMessages(sess)
	tools := toolsForPhase(sess.Phase)

	if emit != nil {
		for delta, err := range e.inference.StreamComplete(ctx, messages, tools) {
			if err != nil {
				slog.Warn("Turn stream failed, continuing with the structured response",
					"session_id", sess.ID, "error", err)
				break
			}
			emit(delta)
		}
	}

	for round := 0; round < maxToolRounds; round++ {
		completion, err := e.inference.Complete(ctx, messages, tools)
		if err != nil {
			return "", err
		}
		if len(completion.ToolCalls) == 0 {
			return completion.Content, nil
		}

		messages = append(messages, inference.ChatMessage{
			Role:      string(domain.RoleAssistant),
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			result := e.tools.Execute(ctx, sess, call)
			messages = append(messages, inference.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
	return "", fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

// applyTransition mutates the session phase per the classifier's verdict.
func (e *Engine) applyTransition(sess *domain.Session, reply string) {
	t := e.classifier.Classify(sess, reply)
	switch t.Kind {
	case TransitionToMenu:
		from := sess.Phase
		sess.ReturnToMenu()
		slog.Info("Phase transition", "session_id", sess.ID,
			"from", from, "to", sess.Phase)
	case TransitionToGame:
		if _, ok := e.syllabus.Game(t.GameID); !ok {
			slog.Warn("Classifier chose unknown game", "session_id", sess.ID, "game_id", t.GameID)
			return
		}
		if err := sess.EnterGame(t.GameID); err != nil {
			slog.Warn("Rejected game transition", "session_id", sess.ID, "error", err)
			return
		}
		slog.Info("Phase transition", "session_id", sess.ID,
			"to", sess.Phase, "game_id", t.GameID)
	}
}
