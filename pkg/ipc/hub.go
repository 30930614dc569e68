package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

const (
	writeTimeout    = 10 * time.Second
	defaultPingWait = 5 * time.Second
)

// Handler consumes one inbound envelope from a worker session.
type Handler func(ctx context.Context, env *model.Envelope)

// Hub owns the per-worker WebSocket sessions on the coordinator side.
// Workers dial back at spawn time and register; every control frame
// (online, heartbeat, ping/pong, drain, task dispatch/result) flows
// through here. One dead session never affects another.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	handlers map[model.MessageType][]Handler

	pendingMu sync.Mutex
	pending   map[string]chan *model.Envelope // ping nonce -> pong
}

type session struct {
	workerID string
	conn     *websocket.Conn
	writeMu  sync.Mutex
	closed   chan struct{}
	once     sync.Once
}

// NewHub creates an empty session hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		handlers: make(map[model.MessageType][]Handler),
		pending:  make(map[string]chan *model.Envelope),
	}
}

// HandleFunc registers a handler for one message type. Registration must
// happen before workers connect; handlers run on the session's read
// goroutine and should hand off anything slow.
func (h *Hub) HandleFunc(t model.MessageType, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[t] = append(h.handlers[t], fn)
}

// Attach registers a worker connection and starts its read loop. An
// existing session for the same worker is closed first.
func (h *Hub) Attach(ctx context.Context, workerID string, conn *websocket.Conn) {
	s := &session{
		workerID: workerID,
		conn:     conn,
		closed:   make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.sessions[workerID]; ok {
		old.close()
	}
	h.sessions[workerID] = s
	h.mu.Unlock()

	go h.readLoop(ctx, s)
}

// Detach drops a worker session and closes its connection.
func (h *Hub) Detach(workerID string) {
	h.mu.Lock()
	s, ok := h.sessions[workerID]
	if ok {
		delete(h.sessions, workerID)
	}
	h.mu.Unlock()
	if ok {
		s.close()
	}
}

// detachSession removes one specific session. A replacement attached
// under the same worker id stays registered.
func (h *Hub) detachSession(s *session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.workerID]; ok && cur == s {
		delete(h.sessions, s.workerID)
	}
	h.mu.Unlock()
	s.close()
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Connected reports whether a worker has a live session.
func (h *Hub) Connected(workerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[workerID]
	return ok
}

// ConnectedWorkers returns the ids of all live sessions.
func (h *Hub) ConnectedWorkers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Send writes one envelope to a worker session.
func (h *Hub) Send(ctx context.Context, workerID string, env *model.Envelope) error {
	h.mu.RLock()
	s, ok := h.sessions[workerID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("worker %s has no control session", workerID)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s to worker %s: %w", env.Type, workerID, err)
	}
	return nil
}

// Ping sends a probe frame and waits for the matching pong. Implements
// the health monitor's prober; the timeout comes from ctx.
func (h *Hub) Ping(ctx context.Context, workerID string) (time.Duration, error) {
	nonce := uuid.NewString()
	replyCh := make(chan *model.Envelope, 1)

	h.pendingMu.Lock()
	h.pending[nonce] = replyCh
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, nonce)
		h.pendingMu.Unlock()
	}()

	env, err := NewEnvelope(model.MessagePing, model.EnvelopeFromCoordinator, model.PingPayload{Nonce: nonce})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	if err := h.Send(ctx, workerID, env); err != nil {
		return 0, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPingWait)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("ping to worker %s timed out: %w", workerID, ctx.Err())
	case <-replyCh:
		return time.Since(start), nil
	}
}

func (h *Hub) readLoop(ctx context.Context, s *session) {
	defer h.detachSession(s)

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			logger.DebugCtx(ctx, "control session for worker %s closed: %v", s.workerID, err)
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.WarnCtx(ctx, "dropping malformed frame from worker %s: %v", s.workerID, err)
			continue
		}

		if env.Type == model.MessagePong {
			h.resolvePong(&env)
			continue
		}

		h.dispatch(ctx, &env)
	}
}

func (h *Hub) resolvePong(env *model.Envelope) {
	var pong model.PongPayload
	if err := json.Unmarshal(env.Payload, &pong); err != nil {
		return
	}
	h.pendingMu.Lock()
	ch, ok := h.pending[pong.Nonce]
	h.pendingMu.Unlock()
	if ok {
		select {
		case ch <- env:
		default:
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, env *model.Envelope) {
	h.mu.RLock()
	handlers := h.handlers[env.Type]
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, env)
	}
}

// Close drops every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for id, s := range h.sessions {
		sessions = append(sessions, s)
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

// NewEnvelope stamps a wire frame with a fresh id and the current time.
func NewEnvelope(t model.MessageType, from string, payload interface{}) (*model.Envelope, error) {
	env := &model.Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		From:      from,
		Timestamp: time.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}
