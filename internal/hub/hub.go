// Package hub is the live broadcast channel: one duplex websocket per
// client with team-scoped and task-scoped subscriber groups, plus a
// read-only SSE mirror of every broadcast for clients that only need to
// observe.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Trojanku/claude-teams-dashboard/internal/otel"
	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// Outbound event names. The five entity events reuse the watcher's kind
// strings; message:received is emitted on inbound send:message.
const EventMessageReceived = "message:received"

// Inbound event names.
const (
	EventSubscribeTeam  = "subscribe:team"
	EventSubscribeTasks = "subscribe:tasks"
	EventSendMessage    = "send:message"
)

// TeamRoom is the subscriber group receiving a team's entity events and
// messages.
func TeamRoom(teamID string) string { return "team:" + teamID }

// TasksRoom is the subscriber group receiving a team's task events.
func TasksRoom(teamID string) string { return "tasks:" + teamID }

// Envelope is the wire frame in both directions: an event name plus an
// event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageStore is the slice of the store the hub appends inbound messages
// through.
type MessageStore interface {
	AddMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error)
}

// Hub owns all live connections and their room memberships. Membership is
// per-connection and dies with the connection; there is no replay, a late
// subscriber never sees earlier events.
type Hub struct {
	store         MessageStore
	logger        *slog.Logger
	allowedOrigin string
	sse           *SSEHub

	mu    sync.RWMutex
	conns map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithAllowedOrigin restricts websocket upgrades to one Origin. Empty
// allows any origin.
func WithAllowedOrigin(origin string) HubOption {
	return func(h *Hub) { h.allowedOrigin = origin }
}

// NewHub returns a Hub with an embedded SSE mirror.
func NewHub(store MessageStore, opts ...HubOption) *Hub {
	h := &Hub{
		store:  store,
		logger: slog.Default(),
		sse:    NewSSEHub(),
		conns:  make(map[*Conn]struct{}),
		rooms:  make(map[string]map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SSE returns the read-only mirror hub for the /stream endpoint.
func (h *Hub) SSE() *SSEHub { return h.sse }

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	otel.AddConnection("ws")
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()
	close(c.send)
	otel.RemoveConnection("ws")
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// BroadcastGlobal fans an event out to every connection and the SSE mirror.
func (h *Hub) BroadcastGlobal(event string, data any) {
	frame, ok := h.marshal(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	for c := range h.conns {
		c.trySend(frame)
	}
	h.mu.RUnlock()
	h.mirror(event, frame)
}

// BroadcastRoom fans an event out to one subscriber group and the SSE
// mirror. Connections outside the room never see it.
func (h *Hub) BroadcastRoom(room, event string, data any) {
	frame, ok := h.marshal(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	for c := range h.rooms[room] {
		c.trySend(frame)
	}
	h.mu.RUnlock()
	h.mirror(event, frame)
}

func (h *Hub) marshal(event string, data any) ([]byte, bool) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("dropping broadcast, payload not marshalable", "event", event, "error", err)
		return nil, false
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Warn("dropping broadcast, frame not marshalable", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (h *Hub) mirror(event string, frame []byte) {
	otel.RecordBroadcast(context.Background(), event)
	h.sse.Publish(frame)
}

// handleInbound dispatches one client frame. Malformed frames are logged
// and dropped; they never close the connection.
func (h *Hub) handleInbound(c *Conn, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.logger.Warn("dropping unparsable client frame", "conn", c.id, "error", err)
		return
	}
	switch env.Event {
	case EventSubscribeTeam:
		if teamID, ok := decodeID(env.Data); ok {
			h.join(c, TeamRoom(teamID))
		} else {
			h.logger.Warn("subscribe:team without team id", "conn", c.id)
		}
	case EventSubscribeTasks:
		if teamID, ok := decodeID(env.Data); ok {
			h.join(c, TasksRoom(teamID))
		} else {
			h.logger.Warn("subscribe:tasks without team id", "conn", c.id)
		}
	case EventSendMessage:
		h.handleSendMessage(c, env.Data)
	default:
		h.logger.Debug("ignoring unknown client event", "conn", c.id, "event", env.Event)
	}
}

// handleSendMessage validates, appends to the message log, and broadcasts
// the stored message (with its assigned id and timestamp) to the team's
// subscriber group only.
func (h *Hub) handleSendMessage(c *Conn, data json.RawMessage) {
	var req models.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("dropping unparsable send:message", "conn", c.id, "error", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.Warn("dropping invalid send:message", "conn", c.id, "error", err)
		return
	}
	msg, err := h.store.AddMessage(context.Background(), req)
	if err != nil {
		h.logger.Warn("failed to append message", "conn", c.id, "error", err)
		return
	}
	h.BroadcastRoom(TeamRoom(req.TeamID), EventMessageReceived, msg)
}

func decodeID(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil || id == "" {
		return "", false
	}
	return id, true
}
