package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageStore struct {
	added []models.SendMessageRequest
}

func (f *fakeMessageStore) AddMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	f.added = append(f.added, req)
	return models.Message{
		ID:        "msg-1",
		TeamID:    req.TeamID,
		Type:      req.Type,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Content:   req.Content,
		Timestamp: "2026-05-01T12:00:00Z",
	}, nil
}

func newTestConn(h *Hub) *Conn {
	c := &Conn{
		id:    "test-conn",
		hub:   h,
		send:  make(chan []byte, 8),
		rooms: make(map[string]struct{}),
	}
	h.register(c)
	return c
}

func recvEnvelope(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		t.Fatal("expected a queued frame")
		return Envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Conn, why ...string) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame: %s %v", frame, why)
	default:
	}
}

func TestHubRoomScoping(t *testing.T) {
	h := NewHub(&fakeMessageStore{})
	subscribed := newTestConn(h)
	other := newTestConn(h)
	h.join(subscribed, TeamRoom("feature-auth"))
	h.join(other, TeamRoom("docs-update"))

	h.BroadcastRoom(TeamRoom("feature-auth"), "team:updated", models.Team{ID: "feature-auth"})

	env := recvEnvelope(t, subscribed)
	assert.Equal(t, "team:updated", env.Event)
	var team models.Team
	require.NoError(t, json.Unmarshal(env.Data, &team))
	assert.Equal(t, "feature-auth", team.ID)

	assertNoFrame(t, other, "a different team's subscriber sees nothing")
}

func TestHubGlobalReachesEveryone(t *testing.T) {
	h := NewHub(&fakeMessageStore{})
	a := newTestConn(h)
	b := newTestConn(h)

	h.BroadcastGlobal("team:deleted", "gone")

	assert.Equal(t, "team:deleted", recvEnvelope(t, a).Event)
	assert.Equal(t, "team:deleted", recvEnvelope(t, b).Event)
}

func TestHubNoReplayForLateSubscriber(t *testing.T) {
	h := NewHub(&fakeMessageStore{})
	c := newTestConn(h)

	h.BroadcastRoom(TeamRoom("feature-auth"), "team:updated", models.Team{ID: "feature-auth"})
	h.join(c, TeamRoom("feature-auth"))

	assertNoFrame(t, c, "subscribing after an event fired does not replay it")

	h.BroadcastRoom(TeamRoom("feature-auth"), "team:updated", models.Team{ID: "feature-auth"})
	assert.Equal(t, "team:updated", recvEnvelope(t, c).Event)
}

func TestHubSlowClientDropsFrames(t *testing.T) {
	h := NewHub(&fakeMessageStore{})
	c := &Conn{id: "slow", hub: h, send: make(chan []byte, 1), rooms: make(map[string]struct{})}
	h.register(c)

	// Second broadcast overflows the queue and must not block.
	h.BroadcastGlobal("team:updated", models.Team{ID: "a"})
	h.BroadcastGlobal("team:updated", models.Team{ID: "b"})

	var team models.Team
	env := recvEnvelope(t, c)
	require.NoError(t, json.Unmarshal(env.Data, &team))
	assert.Equal(t, "a", team.ID)
	assertNoFrame(t, c, "overflow frame was dropped")
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	h := NewHub(&fakeMessageStore{})
	c := newTestConn(h)
	h.join(c, TasksRoom("feature-auth"))

	h.unregister(c)

	// Must not panic sending to the departed connection.
	h.BroadcastRoom(TasksRoom("feature-auth"), "task:updated", models.Task{ID: "1"})
	assert.Empty(t, h.rooms, "empty rooms are pruned")
}

func TestHubInboundSubscribeAndSend(t *testing.T) {
	st := &fakeMessageStore{}
	h := NewHub(st)
	sender := newTestConn(h)
	listener := newTestConn(h)

	h.handleInbound(listener, []byte(`{"event":"subscribe:team","data":"feature-auth"}`))
	h.handleInbound(sender, []byte(`{"event":"send:message","data":{"teamId":"feature-auth","type":"broadcast","sender":"team-lead","content":"hi"}}`))

	require.Len(t, st.added, 1)
	assert.Equal(t, "team-lead", st.added[0].Sender)

	env := recvEnvelope(t, listener)
	assert.Equal(t, EventMessageReceived, env.Event)
	var msg models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "msg-1", msg.ID, "broadcast carries the stored message with id and timestamp")

	assertNoFrame(t, sender, "sender is not subscribed to the team room")
}

func TestHubInboundInvalidMessageDropped(t *testing.T) {
	st := &fakeMessageStore{}
	h := NewHub(st)
	c := newTestConn(h)
	h.join(c, TeamRoom("feature-auth"))

	// Missing sender and content fails validation.
	h.handleInbound(c, []byte(`{"event":"send:message","data":{"teamId":"feature-auth","type":"broadcast"}}`))
	assert.Empty(t, st.added)
	assertNoFrame(t, c)

	// Garbage frames are ignored too.
	h.handleInbound(c, []byte(`not json`))
	h.handleInbound(c, []byte(`{"event":"subscribe:team","data":42}`))
	assertNoFrame(t, c)
}

func TestSSEMirrorSeesRoomBroadcasts(t *testing.T) {
	h := NewHub(&fakeMessageStore{})
	ch := h.SSE().Subscribe()
	defer h.SSE().Unsubscribe(ch)

	h.BroadcastRoom(TasksRoom("feature-auth"), "task:updated", models.Task{ID: "1"})

	select {
	case frame := <-ch:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, "task:updated", env.Event)
	default:
		t.Fatal("expected mirrored frame on SSE subscriber")
	}
}
