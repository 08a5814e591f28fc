package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/fanout"
	"github.com/amigo-labs/amigo-server/internal/queue"
	"github.com/amigo-labs/amigo-server/internal/store"
)

type wsFixture struct {
	store  *store.MemoryStore
	fabric *queue.Fabric
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	st := store.NewMemory()
	fabric := queue.NewFabric(st, time.Hour)
	broker := fanout.NewBroker(st)
	h := NewHandler(st, fabric, broker, NewConnManager(), time.Minute, []string{"*"}, true)

	r := chi.NewRouter()
	r.Get("/ws/{deviceID}", h.ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &wsFixture{store: st, fabric: fabric, server: srv}
}

func (f *wsFixture) dial(ctx context.Context, t *testing.T, deviceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/" + deviceID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readEnvelope(ctx context.Context, t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("undecodable frame %q: %v", data, err)
	}
	return msg
}

func TestHandlerAcksAudioChunks(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newWSFixture(t)
	conn := f.dial(ctx, t, "dev1")

	started := readEnvelope(ctx, t, conn)
	sid, _ := started["session_id"].(string)
	if started["type"] != "session_started" || sid == "" {
		t.Fatalf("first frame = %v, want session_started", started)
	}

	if err := conn.Write(ctx, websocket.MessageBinary, make([]byte, 1600)); err != nil {
		t.Fatal(err)
	}

	ack := readEnvelope(ctx, t, conn)
	if ack["type"] != "ack" {
		t.Errorf("ack envelope type = %v, want ack", ack["type"])
	}
	if size, ok := ack["size"].(float64); !ok || int(size) != 1600 {
		t.Errorf("ack size = %v, want 1600", ack["size"])
	}

	// The chunk lands on the device's own ingestion queue.
	job, _, err := f.fabric.Dequeue(ctx, []string{queue.IngestQueue("dev1")}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Kind != domain.JobIngestChunk {
		t.Fatalf("queued = %+v, want an ingest_chunk job", job)
	}
	var payload domain.IngestChunkPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	staged, err := f.store.Get(ctx, payload.ChunkKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(staged) != 1600 {
		t.Errorf("staged chunk = %d bytes, want 1600", len(staged))
	}
}

func TestHandlerRejectsInvalidDeviceID(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/bad%20id"
	if _, _, err := websocket.Dial(ctx, url, nil); err == nil {
		t.Error("device id with a space should be rejected")
	}
}
