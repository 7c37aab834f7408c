// Package bridge connects the watcher to the live broadcast channel. Each
// raw filesystem event is reconciled against the store into a fresh entity
// snapshot before broadcasting, so clients only ever see complete entities,
// never whatever half-state triggered the notification.
package bridge

import (
	"context"
	"log/slog"

	"github.com/Trojanku/claude-teams-dashboard/internal/hub"
	"github.com/Trojanku/claude-teams-dashboard/internal/watcher"
	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// Reader is the slice of the store the bridge re-reads entities through.
type Reader interface {
	GetTeam(ctx context.Context, id string) (models.Team, error)
	GetTask(ctx context.Context, taskID, teamID string) (models.Task, error)
}

// Publisher is the outbound side of the live channel.
type Publisher interface {
	BroadcastGlobal(event string, data any)
	BroadcastRoom(room, event string, data any)
}

// Bridge reconciles watcher events into broadcasts.
type Bridge struct {
	store  Reader
	pub    Publisher
	logger *slog.Logger
}

// New returns a Bridge. A nil logger falls back to slog.Default.
func New(store Reader, pub Publisher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{store: store, pub: pub, logger: logger}
}

// Run consumes events until ctx is cancelled. Events are processed
// sequentially, which is what gives a single team's stream its emission
// order. Re-read failures are logged and the event dropped; they never
// stop the loop.
func (b *Bridge) Run(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, ev watcher.Event) {
	switch ev.Kind {
	case watcher.TeamCreated, watcher.TeamUpdated:
		team, err := b.store.GetTeam(ctx, ev.TeamID)
		if err != nil {
			b.logger.Warn("dropping event, team re-read failed", "event", string(ev.Kind), "team", ev.TeamID, "error", err)
			return
		}
		b.pub.BroadcastRoom(hub.TeamRoom(ev.TeamID), string(ev.Kind), team)
		b.pub.BroadcastGlobal(string(ev.Kind), team)
	case watcher.TeamDeleted:
		b.pub.BroadcastGlobal(string(ev.Kind), ev.TeamID)
	case watcher.TaskCreated, watcher.TaskUpdated:
		task, err := b.store.GetTask(ctx, ev.TaskID, ev.TeamID)
		if err != nil {
			b.logger.Warn("dropping event, task re-read failed", "event", string(ev.Kind), "team", ev.TeamID, "task", ev.TaskID, "error", err)
			return
		}
		b.pub.BroadcastRoom(hub.TasksRoom(ev.TeamID), string(ev.Kind), task)
	default:
		b.logger.Debug("unknown watcher event kind", "kind", string(ev.Kind))
	}
}
