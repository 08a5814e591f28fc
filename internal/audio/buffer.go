// Package audio provides per-session audio buffering with
// threshold-triggered dispatch and PCM-to-WAV framing for the
// transcription API.
package audio

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amigo-labs/amigo-server/internal/store"
)

// Format describes the fixed PCM format devices stream in.
type Format struct {
	SampleRate  int // samples per second, e.g. 8000
	SampleWidth int // bytes per sample, e.g. 2 for 16-bit
	Channels    int // e.g. 1 for mono
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.SampleWidth * f.Channels
}

// Bytes returns the buffer size corresponding to a duration of audio.
func (f Format) Bytes(d time.Duration) int64 {
	return int64(float64(f.BytesPerSecond()) * d.Seconds())
}

// Config holds accumulator tuning.
type Config struct {
	Format Format
	// MinUtterance is the accumulated duration that triggers dispatch.
	MinUtterance time.Duration
	// MinMeaningful is the smallest remnant worth dispatching at session
	// end; anything shorter is treated as silence or noise and discarded.
	MinMeaningful time.Duration
	// BufferTTL bounds how long an idle buffer survives in the store.
	BufferTTL time.Duration
}

// Accumulator owns the per-session audio buffers in the store. Each buffer
// is written by exactly one session and cleared, not destroyed, on every
// dispatch.
type Accumulator struct {
	store     store.Store
	format    Format
	threshold int64
	minBytes  int64
	bufferTTL time.Duration
}

// NewAccumulator creates an accumulator over the given store.
func NewAccumulator(st store.Store, cfg Config) *Accumulator {
	if cfg.BufferTTL <= 0 {
		cfg.BufferTTL = time.Hour
	}
	return &Accumulator{
		store:     st,
		format:    cfg.Format,
		threshold: cfg.Format.Bytes(cfg.MinUtterance),
		minBytes:  cfg.Format.Bytes(cfg.MinMeaningful),
		bufferTTL: cfg.BufferTTL,
	}
}

// Format returns the PCM format the accumulator was configured with.
func (a *Accumulator) Format() Format { return a.format }

// Threshold returns the dispatch threshold in bytes.
func (a *Accumulator) Threshold() int64 { return a.threshold }

func bufferKey(sessionID string) string { return "buffer:" + sessionID }

// StatsKey returns the per-session statistics hash key.
func StatsKey(sessionID string) string { return "stats:" + sessionID }

// Append extends the session buffer and returns the accumulated size. The
// buffer TTL is re-armed and the stats hash updated on every append.
func (a *Accumulator) Append(ctx context.Context, sessionID string, chunk []byte) (int64, error) {
	key := bufferKey(sessionID)
	size, err := a.store.Append(ctx, key, chunk)
	if err != nil {
		return 0, fmt.Errorf("append audio for session %s: %w", sessionID, err)
	}
	if err := a.store.Expire(ctx, key, a.bufferTTL); err != nil {
		return size, fmt.Errorf("refresh buffer ttl for session %s: %w", sessionID, err)
	}

	statsKey := StatsKey(sessionID)
	_ = a.store.HIncrBy(ctx, statsKey, "chunks_received", 1)
	_ = a.store.HSet(ctx, statsKey, "last_activity", strconv.FormatInt(time.Now().Unix(), 10))
	_ = a.store.HSet(ctx, statsKey, "last_chunk_size", strconv.Itoa(len(chunk)))

	return size, nil
}

// Ready reports whether an accumulated size has crossed the dispatch
// threshold. An empty buffer is never ready.
func (a *Accumulator) Ready(size int64) bool {
	return size > 0 && size >= a.threshold
}

// Meaningful reports whether a remnant of the given size is worth
// dispatching at session end.
func (a *Accumulator) Meaningful(size int64) bool {
	return size > 0 && size >= a.minBytes
}

// Size returns the current buffer size for a session.
func (a *Accumulator) Size(ctx context.Context, sessionID string) (int64, error) {
	return a.store.Len(ctx, bufferKey(sessionID))
}

// Drain atomically reads and clears the session buffer. Two concurrent
// drains never observe the same bytes; a drain of an empty buffer returns
// store.ErrNotFound.
func (a *Accumulator) Drain(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := a.store.GetDel(ctx, bufferKey(sessionID))
	if err != nil {
		return nil, err
	}

	statsKey := StatsKey(sessionID)
	_ = a.store.HIncrBy(ctx, statsKey, "buffers_dispatched", 1)
	_ = a.store.HSet(ctx, statsKey, "last_buffer_size", strconv.Itoa(len(data)))

	return data, nil
}

// Discard drops whatever remains in the session buffer.
func (a *Accumulator) Discard(ctx context.Context, sessionID string) error {
	return a.store.Del(ctx, bufferKey(sessionID))
}

// Stats returns the session statistics hash.
func (a *Accumulator) Stats(ctx context.Context, sessionID string) (map[string]string, error) {
	return a.store.HGetAll(ctx, StatsKey(sessionID))
}
