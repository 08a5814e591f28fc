package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/amigo-labs/amigo-server/internal/store"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker(store.NewMemory())

	updates, closeSub, err := b.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer closeSub()

	err = b.Publish(ctx, Message{
		Type:      TypeAgentResponse,
		SessionID: "s1",
		Text:      "¡Hola!",
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-updates:
		if msg.Type != TypeAgentResponse || msg.Text != "¡Hola!" {
			t.Errorf("received %+v", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("timestamp should be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker(store.NewMemory())

	// Published before anyone subscribes: dropped, not an error.
	if err := b.Publish(ctx, Message{Type: TypeAgentResponse, SessionID: "s1", Text: "early"}); err != nil {
		t.Fatal(err)
	}

	updates, closeSub, err := b.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer closeSub()

	if err := b.Publish(ctx, Message{Type: TypeAgentResponse, SessionID: "s1", Text: "late"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-updates:
		if msg.Text != "late" {
			t.Errorf("received %q, early message must not replay", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSessionChannelsIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker(store.NewMemory())

	s1, close1, err := b.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer close1()
	s2, close2, err := b.Subscribe(ctx, "s2")
	if err != nil {
		t.Fatal(err)
	}
	defer close2()

	if err := b.Publish(ctx, Message{Type: TypeTranscription, SessionID: "s2", Text: "for s2"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-s2:
		if msg.SessionID != "s2" {
			t.Errorf("s2 received %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("s2 did not receive its message")
	}

	select {
	case msg := <-s1:
		t.Errorf("s1 received a message for s2: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAudioSurvivesEnvelope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker(store.NewMemory())

	updates, closeSub, err := b.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer closeSub()

	audio := []byte{0x00, 0x01, 0xFF, 0xFE}
	if err := b.Publish(ctx, Message{Type: TypeAudioResponse, SessionID: "s1", Audio: audio}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-updates:
		if string(msg.Audio) != string(audio) {
			t.Errorf("audio = %v, want %v", msg.Audio, audio)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audio message")
	}
}
