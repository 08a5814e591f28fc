package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amigo-labs/amigo-server/internal/store"
)

func testRegistry() *Registry {
	return NewRegistry(store.NewMemory(), Config{
		ActiveTTL: time.Hour,
		EndedTTL:  30 * time.Minute,
		LockTTL:   time.Minute,
		LockWait:  200 * time.Millisecond,
	})
}

func TestCreateAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := testRegistry()

	created, err := r.Create(ctx, "s1", "dev1", "")
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := r.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != created.ID || loaded.DeviceID != "dev1" || loaded.UserID != "dev1" {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.Active {
		t.Error("loaded session should be active")
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	if _, err := r.Load(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load missing = %v, want ErrNotFound", err)
	}
}

func TestSaveBumpsVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := testRegistry()

	sess, err := r.Create(ctx, "s1", "dev1", "")
	if err != nil {
		t.Fatal(err)
	}
	v := sess.Version

	sess.Append("user", "hello")
	if err := r.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if sess.Version != v+1 {
		t.Errorf("version = %d, want %d", sess.Version, v+1)
	}

	loaded, err := r.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.History) != 1 {
		t.Errorf("history = %d entries, want 1", len(loaded.History))
	}
}

func TestSaveDetectsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := testRegistry()

	if _, err := r.Create(ctx, "s1", "dev1", ""); err != nil {
		t.Fatal(err)
	}

	a, err := r.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}

	a.Append("user", "from a")
	if err := r.Save(ctx, a); err != nil {
		t.Fatal(err)
	}

	b.Append("user", "from b")
	if err := r.Save(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale save = %v, want ErrVersionConflict", err)
	}
}

func TestEndMarksInactive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := testRegistry()

	if _, err := r.Create(ctx, "s1", "dev1", ""); err != nil {
		t.Fatal(err)
	}
	sess, err := r.End(ctx, "s1", "end_stream")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Active || sess.EndReason != "end_stream" {
		t.Errorf("ended session = %+v", sess)
	}

	loaded, err := r.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Active {
		t.Error("stored session should be inactive")
	}
}

func TestLockSerializes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := testRegistry()

	release, err := r.Lock(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Lock(ctx, "s1"); !errors.Is(err, ErrLockBusy) {
		t.Errorf("second lock = %v, want ErrLockBusy", err)
	}

	release()

	release2, err := r.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	release2()
}
