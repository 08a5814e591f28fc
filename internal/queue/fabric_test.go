package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/store"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	f := NewFabric(st, time.Hour)

	jobID, err := f.Enqueue(ctx, QueueSessionManagement, domain.JobSessionInit,
		domain.SessionInitPayload{SessionID: "s1", DeviceID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if jobID == "" {
		t.Fatal("empty job id")
	}

	job, queue, err := f.Dequeue(ctx, []string{QueueSessionManagement}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	if queue != QueueSessionManagement {
		t.Errorf("queue = %q", queue)
	}
	if job.ID != jobID || job.Kind != domain.JobSessionInit {
		t.Errorf("job = %+v", job)
	}

	var payload domain.SessionInitPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.SessionID != "s1" || payload.DeviceID != "d1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDequeueIdle(t *testing.T) {
	t.Parallel()
	f := NewFabric(store.NewMemory(), time.Hour)

	job, queue, err := f.Dequeue(context.Background(), []string{"empty"}, 20*time.Millisecond)
	if err != nil || job != nil || queue != "" {
		t.Errorf("idle Dequeue = %v, %q, %v", job, queue, err)
	}
}

func TestDequeueDeadLettersGarbage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	f := NewFabric(st, time.Hour)

	if err := st.Push(ctx, "q", []byte("not json")); err != nil {
		t.Fatal(err)
	}
	job, _, err := f.Dequeue(ctx, []string{"q"}, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Fatal("garbage should not surface as a job")
	}
}

func TestDeadLetterRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	f := NewFabric(st, time.Hour)

	job := &domain.Job{
		ID:      "job-1",
		Kind:    domain.JobAgentTurn,
		Payload: json.RawMessage(`{"session_id":"s1"}`),
	}
	f.DeadLetter(ctx, job, QueueAgentProcessing, errors.New("handler exploded"))

	data, err := st.Get(ctx, "deadletter:job-1")
	if err != nil {
		t.Fatal(err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatal(err)
	}
	if record["error"] != "handler exploded" {
		t.Errorf("error = %v", record["error"])
	}
	if record["queue"] != QueueAgentProcessing {
		t.Errorf("queue = %v", record["queue"])
	}
}

func TestSessionQueueDiscovery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFabric(store.NewMemory(), time.Hour)

	if _, err := f.Enqueue(ctx, IngestQueue("dev1"), domain.JobIngestChunk,
		domain.IngestChunkPayload{SessionID: "s1", ChunkKey: "chunk:s1:x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Enqueue(ctx, QueueSessionManagement, domain.JobSessionInit,
		domain.SessionInitPayload{SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}

	queues, err := f.SessionQueues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(queues) != 1 || !strings.HasPrefix(queues[0], "ingest:") {
		t.Errorf("SessionQueues = %v, want only the ingest queue", queues)
	}
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry()

	var handled bool
	reg.Register(domain.JobSessionInit, func(ctx context.Context, job *domain.Job) error {
		handled = true
		return nil
	})

	if err := reg.Dispatch(ctx, &domain.Job{Kind: domain.JobSessionInit}); err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Error("handler was not invoked")
	}

	if err := reg.Dispatch(ctx, &domain.Job{Kind: "mystery"}); err == nil {
		t.Error("unknown kind should error for dead-lettering")
	}
}

func TestWorkerProcessesAndDeadLetters(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemory()
	f := NewFabric(st, time.Hour)
	reg := NewRegistry()

	processed := make(chan string, 2)
	reg.Register(domain.JobSessionInit, func(ctx context.Context, job *domain.Job) error {
		processed <- job.ID
		return nil
	})
	reg.Register(domain.JobSessionEnd, func(ctx context.Context, job *domain.Job) error {
		processed <- job.ID
		return errors.New("boom")
	})

	okID, err := f.Enqueue(ctx, "q", domain.JobSessionInit, domain.SessionInitPayload{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	failID, err := f.Enqueue(ctx, "q", domain.JobSessionEnd, domain.SessionEndPayload{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}

	go NewWorker("w1", []string{"q"}, f, reg).Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case id := <-processed:
			if id != okID && id != failID {
				t.Errorf("unexpected job %q", id)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for worker")
		}
	}

	// The failing job must end up dead-lettered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := st.Get(ctx, "deadletter:"+failID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("failed job was not dead-lettered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
