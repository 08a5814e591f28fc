package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/fanout"
	"github.com/amigo-labs/amigo-server/internal/identity"
	"github.com/amigo-labs/amigo-server/internal/queue"
	"github.com/amigo-labs/amigo-server/internal/store"
)

// clientMessage is the text-frame protocol from the device.
type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Handler upgrades device connections and bridges them to the queue fabric
// and the response fan-out.
type Handler struct {
	store          store.Store
	fabric         *queue.Fabric
	broker         *fanout.Broker
	conns          *ConnManager
	chunkTTL       time.Duration
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates the WebSocket handler.
func NewHandler(st store.Store, fabric *queue.Fabric, broker *fanout.Broker,
	conns *ConnManager, chunkTTL time.Duration, allowedOrigins []string, isDev bool) *Handler {

	if chunkTTL <= 0 {
		chunkTTL = 5 * time.Minute
	}
	return &Handler{
		store:          st,
		fabric:         fabric,
		broker:         broker,
		conns:          conns,
		chunkTTL:       chunkTTL,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP handles GET /ws/{deviceID}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if !identity.ValidDeviceID(deviceID) {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}
	slog.Info("WebSocket connection request",
		"device_id", deviceID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	sessionID, err := identity.NewSessionID(deviceID)
	if err != nil {
		slog.Error("Failed to mint session id", "error", err, "device_id", deviceID)
		return
	}

	h.conns.Register(deviceID, conn)
	defer h.conns.Unregister(deviceID, conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Attach to the response channel before init so the greeting cannot
	// slip past us.
	updates, closeSub, err := h.broker.Subscribe(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to subscribe to session updates",
			"error", err, "session_id", sessionID)
		return
	}
	defer closeSub()

	if _, err := h.fabric.Enqueue(ctx, queue.QueueSessionManagement, domain.JobSessionInit,
		domain.SessionInitPayload{SessionID: sessionID, DeviceID: deviceID}); err != nil {
		slog.Error("Failed to enqueue session init", "error", err, "session_id", sessionID)
		return
	}

	if err := h.writeJSON(ctx, conn, map[string]string{
		"type":       "session_started",
		"session_id": sessionID,
	}); err != nil {
		slog.Debug("Failed to send session_started", "error", err)
		return
	}

	sess := &connSession{
		handler:   h,
		conn:      conn,
		deviceID:  deviceID,
		sessionID: sessionID,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: device frames -> queue fabric.
	go func() {
		defer wg.Done()
		defer cancel()
		sess.readLoop(ctx)
	}()

	// Output loop: fan-out messages -> device.
	go func() {
		defer wg.Done()
		defer cancel()
		sess.updateLoop(ctx, updates)
	}()

	wg.Wait()
	sess.endOnce(context.Background(), "disconnected")
	slog.Info("Device session ended", "device_id", deviceID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// connSession is the per-connection state shared by the two loops.
type connSession struct {
	handler   *Handler
	conn      *websocket.Conn
	deviceID  string
	sessionID string

	mu    sync.Mutex
	ended bool
}

// readLoop consumes device frames until the connection closes. Binary
// frames are audio chunks; text frames carry control messages.
func (s *connSession) readLoop(ctx context.Context) {
	for {
		kind, message, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by device", "device_id", s.deviceID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "device_id", s.deviceID)
			}
			return
		}

		switch kind {
		case websocket.MessageBinary:
			if err := s.ingestChunk(ctx, message); err != nil {
				slog.Error("Failed to ingest audio chunk",
					"error", err, "session_id", s.sessionID)
				s.sendError(ctx, "chunk ingestion failed")
			}
		case websocket.MessageText:
			if done := s.handleControl(ctx, message); done {
				return
			}
		}
	}
}

// ingestChunk stages the audio bytes in the store and queues an ingest job
// referencing them, then acks the frame.
func (s *connSession) ingestChunk(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	h := s.handler

	chunkKey := "chunk:" + s.sessionID + ":" + uuid.NewString()
	if err := h.store.Set(ctx, chunkKey, chunk, h.chunkTTL); err != nil {
		return err
	}
	_, err := h.fabric.Enqueue(ctx, queue.IngestQueue(s.deviceID), domain.JobIngestChunk,
		domain.IngestChunkPayload{
			SessionID: s.sessionID,
			ChunkKey:  chunkKey,
			Timestamp: time.Now(),
		})
	if err != nil {
		return err
	}

	return h.writeJSON(ctx, s.conn, map[string]any{
		"type": "ack",
		"size": len(chunk),
	})
}

// handleControl dispatches one text frame. It reports whether the
// connection should stop reading.
func (s *connSession) handleControl(ctx context.Context, message []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Warn("Malformed control frame", "device_id", s.deviceID, "error", err)
		s.sendError(ctx, "malformed message")
		return false
	}

	h := s.handler
	switch msg.Type {
	case "end_stream":
		s.endOnce(ctx, "end_stream")
		return false
	case "text_input":
		if msg.Content == "" {
			s.sendError(ctx, "empty text_input")
			return false
		}
		_, err := h.fabric.Enqueue(ctx, queue.QueueAgentProcessing, domain.JobAgentTurn,
			domain.AgentTurnPayload{
				SessionID: s.sessionID,
				Text:      msg.Content,
				Timestamp: time.Now(),
			})
		if err != nil {
			slog.Error("Failed to enqueue text turn", "error", err, "session_id", s.sessionID)
			s.sendError(ctx, "text input failed")
		}
	case "ping":
		if err := h.writeJSON(ctx, s.conn, map[string]string{"type": "pong"}); err != nil {
			slog.Debug("Failed to send pong", "error", err)
		}
	default:
		slog.Warn("Unknown control message", "type", msg.Type, "device_id", s.deviceID)
		s.sendError(ctx, "unknown message type")
	}
	return false
}

// updateLoop forwards fan-out messages to the device. Synthesized audio
// goes out as a binary frame, everything else as its JSON envelope.
func (s *connSession) updateLoop(ctx context.Context, updates <-chan fanout.Message) {
	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if msg.Type == fanout.TypeAudioResponse {
				if err := s.conn.Write(ctx, websocket.MessageBinary, msg.Audio); err != nil {
					slog.Debug("Failed to forward audio", "error", err, "session_id", s.sessionID)
					return
				}
				continue
			}
			if err := s.handler.writeJSON(ctx, s.conn, msg); err != nil {
				slog.Debug("Failed to forward update", "error", err, "session_id", s.sessionID)
				return
			}
			if msg.Type == fanout.TypeSessionEnded {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// endOnce queues the session-end job exactly once per connection.
func (s *connSession) endOnce(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := s.handler.fabric.Enqueue(enqueueCtx, queue.QueueSessionManagement, domain.JobSessionEnd,
		domain.SessionEndPayload{
			SessionID: s.sessionID,
			DeviceID:  s.deviceID,
			Reason:    reason,
		})
	if err != nil {
		slog.Error("Failed to enqueue session end",
			"error", err, "session_id", s.sessionID, "reason", reason)
	}
}

func (s *connSession) sendError(ctx context.Context, text string) {
	if err := s.handler.writeJSON(ctx, s.conn, map[string]string{
		"type":  "error",
		"error": text,
	}); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}
