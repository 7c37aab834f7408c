package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Trojanku/claude-teams-dashboard/internal/store"
	"github.com/Trojanku/claude-teams-dashboard/internal/watcher"
	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	teams map[string]models.Team
	tasks map[string]models.Task // keyed by teamID/taskID
}

func (f *fakeReader) GetTeam(ctx context.Context, id string) (models.Team, error) {
	if team, ok := f.teams[id]; ok {
		return team, nil
	}
	return models.Team{}, &store.NotFoundError{Entity: "Team", ID: id}
}

func (f *fakeReader) GetTask(ctx context.Context, taskID, teamID string) (models.Task, error) {
	if task, ok := f.tasks[teamID+"/"+taskID]; ok {
		return task, nil
	}
	return models.Task{}, &store.NotFoundError{Entity: "Task", ID: taskID}
}

type broadcast struct {
	room  string // empty for global
	event string
	data  any
}

type recorder struct {
	mu    sync.Mutex
	calls []broadcast
}

func (r *recorder) BroadcastGlobal(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcast{event: event, data: data})
}

func (r *recorder) BroadcastRoom(room, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcast{room: room, event: event, data: data})
}

func (r *recorder) snapshot() []broadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broadcast, len(r.calls))
	copy(out, r.calls)
	return out
}

func runBridge(t *testing.T, rd Reader, pub Publisher, events ...watcher.Event) {
	t.Helper()
	ch := make(chan watcher.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		New(rd, pub, nil).Run(ctx, ch)
		close(done)
	}()
	// Drain then cancel.
	for len(ch) > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
}

func TestBridgeTeamEventReReadsAndBroadcasts(t *testing.T) {
	rd := &fakeReader{teams: map[string]models.Team{
		"alpha": {ID: "alpha", Name: "alpha", Status: models.TeamIdle},
	}}
	rec := &recorder{}

	runBridge(t, rd, rec, watcher.Event{Kind: watcher.TeamUpdated, TeamID: "alpha"})

	calls := rec.snapshot()
	require.Len(t, calls, 2, "team events go to the team room and globally")
	assert.Equal(t, "team:alpha", calls[0].room)
	assert.Equal(t, "team:updated", calls[0].event)
	assert.Equal(t, rd.teams["alpha"], calls[0].data, "payload is the re-read snapshot")
	assert.Empty(t, calls[1].room)
}

func TestBridgeTeamDeletedBroadcastsBareID(t *testing.T) {
	rec := &recorder{}
	runBridge(t, &fakeReader{}, rec, watcher.Event{Kind: watcher.TeamDeleted, TeamID: "gone"})

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "team:deleted", calls[0].event)
	assert.Equal(t, "gone", calls[0].data, "no re-read for deletions")
}

func TestBridgeTaskEventGoesToTasksRoomOnly(t *testing.T) {
	rd := &fakeReader{tasks: map[string]models.Task{
		"alpha/3": {ID: "3", TeamID: "alpha", Subject: "x", Status: models.TaskPending},
	}}
	rec := &recorder{}

	runBridge(t, rd, rec, watcher.Event{Kind: watcher.TaskCreated, TeamID: "alpha", TaskID: "3"})

	calls := rec.snapshot()
	require.Len(t, calls, 1, "task events never broadcast globally")
	assert.Equal(t, "tasks:alpha", calls[0].room)
	assert.Equal(t, "task:created", calls[0].event)
}

func TestBridgeDropsEventWhenReReadFails(t *testing.T) {
	rec := &recorder{}
	runBridge(t, &fakeReader{}, rec,
		watcher.Event{Kind: watcher.TeamCreated, TeamID: "vanished"},
		watcher.Event{Kind: watcher.TaskUpdated, TeamID: "vanished", TaskID: "1"},
	)
	assert.Empty(t, rec.snapshot(), "failed re-reads are dropped, never broadcast stale data")
}

func TestBridgePreservesOrderWithinStream(t *testing.T) {
	rd := &fakeReader{teams: map[string]models.Team{"alpha": {ID: "alpha"}}}
	rec := &recorder{}

	runBridge(t, rd, rec,
		watcher.Event{Kind: watcher.TeamCreated, TeamID: "alpha"},
		watcher.Event{Kind: watcher.TeamUpdated, TeamID: "alpha"},
	)

	calls := rec.snapshot()
	require.Len(t, calls, 4)
	assert.Equal(t, "team:created", calls[0].event)
	assert.Equal(t, "team:updated", calls[2].event)
}
