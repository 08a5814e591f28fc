package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/amigo-labs/amigo-server/internal/store"
)

func testConfig() Config {
	return Config{
		Format:        Format{SampleRate: 8000, SampleWidth: 2, Channels: 1},
		MinUtterance:  2 * time.Second,
		MinMeaningful: 500 * time.Millisecond,
		BufferTTL:     time.Minute,
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	f := Format{SampleRate: 8000, SampleWidth: 2, Channels: 1}
	if got := f.BytesPerSecond(); got != 16000 {
		t.Errorf("BytesPerSecond = %d, want 16000", got)
	}
	if got := f.Bytes(2 * time.Second); got != 32000 {
		t.Errorf("Bytes(2s) = %d, want 32000", got)
	}
}

func TestAccumulatorThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := NewAccumulator(store.NewMemory(), testConfig())

	if a.Threshold() != 32000 {
		t.Fatalf("threshold = %d, want 32000", a.Threshold())
	}

	size, err := a.Append(ctx, "s1", make([]byte, 20000))
	if err != nil {
		t.Fatal(err)
	}
	if a.Ready(size) {
		t.Error("20000 bytes should not be ready at a 32000 threshold")
	}

	size, err = a.Append(ctx, "s1", make([]byte, 20000))
	if err != nil {
		t.Fatal(err)
	}
	if size != 40000 {
		t.Errorf("accumulated size = %d, want 40000", size)
	}
	if !a.Ready(size) {
		t.Error("40000 bytes should be ready")
	}
}

func TestReadyNeverOnEmpty(t *testing.T) {
	t.Parallel()
	a := NewAccumulator(store.NewMemory(), testConfig())
	if a.Ready(0) {
		t.Error("an empty buffer must never be ready")
	}
}

func TestDrainClearsBuffer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := NewAccumulator(store.NewMemory(), testConfig())

	if _, err := a.Append(ctx, "s1", []byte("audio-bytes")); err != nil {
		t.Fatal(err)
	}
	data, err := a.Drain(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("drained %q", data)
	}

	if _, err := a.Drain(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second drain = %v, want ErrNotFound", err)
	}
	if size, _ := a.Size(ctx, "s1"); size != 0 {
		t.Errorf("size after drain = %d", size)
	}
}

func TestMeaningful(t *testing.T) {
	t.Parallel()
	a := NewAccumulator(store.NewMemory(), testConfig())

	// 500ms at 16000 B/s is 8000 bytes.
	if a.Meaningful(7999) {
		t.Error("below the meaningful floor")
	}
	if !a.Meaningful(8000) {
		t.Error("at the meaningful floor")
	}
	if a.Meaningful(0) {
		t.Error("empty is never meaningful")
	}
}

func TestStatsTracking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := NewAccumulator(store.NewMemory(), testConfig())

	for i := 0; i < 3; i++ {
		if _, err := a.Append(ctx, "s1", make([]byte, 100)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := a.Drain(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	stats, err := a.Stats(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if stats["chunks_received"] != "3" {
		t.Errorf("chunks_received = %q, want 3", stats["chunks_received"])
	}
	if stats["buffers_dispatched"] != "1" {
		t.Errorf("buffers_dispatched = %q, want 1", stats["buffers_dispatched"])
	}
	if stats["last_chunk_size"] != "100" {
		t.Errorf("last_chunk_size = %q, want 100", stats["last_chunk_size"])
	}
}

func TestWAVHeader(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 1000)
	f := Format{SampleRate: 8000, SampleWidth: 2, Channels: 1}
	wav := WAV(pcm, f)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 8000 {
		t.Errorf("sample rate = %d, want 8000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 16000 {
		t.Errorf("byte rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("pcm payload should follow the header")
	}
}
