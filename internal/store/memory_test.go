package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySetGetDel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Del = %v, want ErrNotFound", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key Get = %v, want ErrNotFound", err)
	}
}

func TestMemorySetNX(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	ok, err := s.SetNX(ctx, "k", []byte("first"), 0)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}
	ok, err = s.SetNX(ctx, "k", []byte("second"), 0)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v, want false", ok, err)
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "first" {
		t.Errorf("value = %q, want first writer's", got)
	}
}

func TestMemoryAppendAndGetDel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	n, err := s.Append(ctx, "buf", []byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("Append = %d, %v", n, err)
	}
	n, err = s.Append(ctx, "buf", []byte("de"))
	if err != nil || n != 5 {
		t.Fatalf("second Append = %d, %v", n, err)
	}
	if l, _ := s.Len(ctx, "buf"); l != 5 {
		t.Errorf("Len = %d, want 5", l)
	}

	got, err := s.GetDel(ctx, "buf")
	if err != nil || string(got) != "abcde" {
		t.Fatalf("GetDel = %q, %v", got, err)
	}
	if _, err := s.GetDel(ctx, "buf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second GetDel = %v, want ErrNotFound", err)
	}
}

func TestMemoryHashOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.HIncrBy(ctx, "h", "count", 2); err != nil {
		t.Fatal(err)
	}
	if err := s.HIncrBy(ctx, "h", "count", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.HSet(ctx, "h", "note", "hi"); err != nil {
		t.Fatal(err)
	}

	all, err := s.HGetAll(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if all["count"] != "5" || all["note"] != "hi" {
		t.Errorf("HGetAll = %v", all)
	}
}

func TestMemoryQueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.Push(ctx, "ingest:dev1", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(ctx, "other", []byte("b")); err != nil {
		t.Fatal(err)
	}

	names, err := s.Queues(ctx, "ingest:")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "ingest:dev1" {
		t.Errorf("Queues = %v", names)
	}

	queue, value, err := s.Pop(ctx, []string{"ingest:dev1"}, 100*time.Millisecond)
	if err != nil || queue != "ingest:dev1" || string(value) != "a" {
		t.Fatalf("Pop = %q, %q, %v", queue, value, err)
	}

	// Idle wait returns empty without error.
	queue, value, err = s.Pop(ctx, []string{"ingest:dev1"}, 20*time.Millisecond)
	if err != nil || queue != "" || value != nil {
		t.Errorf("idle Pop = %q, %q, %v", queue, value, err)
	}
}

func TestMemoryPubSub(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	// Published with no subscriber: lost.
	if err := s.Publish(ctx, "ch", []byte("early")); err != nil {
		t.Fatal(err)
	}

	sub, err := s.Subscribe(ctx, "ch")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "ch", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-sub.C:
		if string(got) != "hello" {
			t.Errorf("received %q, want hello (no replay of early message)", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMemoryLocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	ok, err := s.AcquireLock(ctx, "lock", "tok1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	ok, _ = s.AcquireLock(ctx, "lock", "tok2", time.Minute)
	if ok {
		t.Error("second acquire should fail while held")
	}

	// Wrong token does not release.
	if err := s.ReleaseLock(ctx, "lock", "tok2"); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.AcquireLock(ctx, "lock", "tok3", time.Minute)
	if ok {
		t.Error("lock should survive a wrong-token release")
	}

	if err := s.ReleaseLock(ctx, "lock", "tok1"); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.AcquireLock(ctx, "lock", "tok3", time.Minute)
	if !ok {
		t.Error("lock should be free after holder release")
	}
}
