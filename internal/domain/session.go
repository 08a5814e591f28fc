// Package domain contains core domain types for the tutor server.
package domain

import (
	"fmt"
	"time"
)

// HistoryCap bounds the conversation history kept on a session.
// Older messages are evicted first, except for an anchor system message.
const HistoryCap = 20

// Phase is the conversational agent's current mode.
type Phase string

const (
	// PhaseCollectingUserInfo is the initial phase where the agent asks for
	// the child's name and age.
	PhaseCollectingUserInfo Phase = "collecting_user_info"
	// PhaseChoosingActivity is the menu phase where the agent offers games.
	PhaseChoosingActivity Phase = "choosing_activity"
	// PhaseInGame means the agent is running a specific game; the session's
	// CurrentGame holds which one.
	PhaseInGame Phase = "in_game"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the authoritative per-connection conversational state. It is
// persisted as a whole record on every mutation and expires from the store
// after an inactivity window.
type Session struct {
	ID           string    `json:"session_id"`
	DeviceID     string    `json:"device_id"`
	UserID       string    `json:"user_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Phase        Phase     `json:"phase"`
	CurrentGame  string    `json:"current_game,omitempty"`
	History      []Message `json:"history"`
	Profile      Profile   `json:"profile"`
	Version      int64     `json:"version"`
	EndReason    string    `json:"end_reason,omitempty"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
}

// NewSession creates an active session for a device. The user ID defaults to
// the device ID when the device has no stable user identity.
func NewSession(sessionID, deviceID, userID string) *Session {
	if userID == "" {
		userID = deviceID
	}
	now := time.Now()
	return &Session{
		ID:           sessionID,
		DeviceID:     deviceID,
		UserID:       userID,
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
		Phase:        PhaseCollectingUserInfo,
		Profile:      DefaultProfile(),
	}
}

// Touch stamps the last-activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// Append adds a message to the history and trims it to HistoryCap. When the
// first message is a system message it is treated as an anchor and survives
// trimming; eviction removes the oldest non-anchor messages.
func (s *Session) Append(role Role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
	s.TrimHistory()
}

// TrimHistory enforces HistoryCap on the message history.
func (s *Session) TrimHistory() {
	if len(s.History) <= HistoryCap {
		return
	}
	if s.History[0].Role == RoleSystem {
		// Keep the anchor plus the most recent cap-1 messages.
		anchor := s.History[0]
		tail := s.History[len(s.History)-(HistoryCap-1):]
		s.History = append([]Message{anchor}, tail...)
		return
	}
	s.History = s.History[len(s.History)-HistoryCap:]
}

// EnterGame transitions the session into a game. Games are only reachable
// from the activity menu or from another game.
func (s *Session) EnterGame(gameID string) error {
	if s.Phase == PhaseCollectingUserInfo {
		return fmt.Errorf("cannot enter game %q before user info is collected", gameID)
	}
	s.Phase = PhaseInGame
	s.CurrentGame = gameID
	return nil
}

// ReturnToMenu transitions back to the activity menu and clears the game.
func (s *Session) ReturnToMenu() {
	s.Phase = PhaseChoosingActivity
	s.CurrentGame = ""
}

// End marks the session inactive with a reason and timestamp.
func (s *Session) End(reason string) {
	s.Active = false
	s.EndReason = reason
	s.EndedAt = time.Now()
}
