package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce      sync.Once
	taskOpsCounter       metric.Int64Counter
	broadcastCounter     metric.Int64Counter
	watcherEventsCounter metric.Int64Counter
	connectionsGauge     metric.Int64ObservableGauge
	connections          map[string]int64
	connectionsMu        sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		connections = make(map[string]int64)
		m := Meter()
		taskOpsCounter, err = m.Int64Counter("teams_dashboard_task_operations_total", metric.WithDescription("Total task operations (create, update)"))
		if err != nil {
			return
		}
		broadcastCounter, err = m.Int64Counter("teams_dashboard_events_total", metric.WithDescription("Total events broadcast to live-channel clients"))
		if err != nil {
			return
		}
		watcherEventsCounter, err = m.Int64Counter("teams_dashboard_watcher_events_total", metric.WithDescription("Total semantic filesystem events emitted by the watcher"))
		if err != nil {
			return
		}
		connectionsGauge, err = m.Int64ObservableGauge("teams_dashboard_connections", metric.WithDescription("Current live-channel connection count by transport"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			connectionsMu.Lock()
			for transport, n := range connections {
				o.ObserveInt64(connectionsGauge, n, metric.WithAttributes(AttrTransport.String(transport)))
			}
			connectionsMu.Unlock()
			return nil
		}, connectionsGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordTaskOp records a task operation (create, update).
func RecordTaskOp(ctx context.Context, op string, team string, status string) {
	if taskOpsCounter == nil {
		return
	}
	taskOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		AttrTeam.String(team),
		AttrStatus.String(status),
	))
}

// RecordBroadcast records one event fanned out to subscribers.
func RecordBroadcast(ctx context.Context, event string) {
	if broadcastCounter == nil {
		return
	}
	broadcastCounter.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(event)))
}

// RecordWatcherEvent records one semantic watcher event.
func RecordWatcherEvent(ctx context.Context, kind string) {
	if watcherEventsCounter == nil {
		return
	}
	watcherEventsCounter.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(kind)))
}

// AddConnection adds 1 to the connection gauge for a transport ("ws" or "sse").
func AddConnection(transport string) {
	connectionsMu.Lock()
	if connections != nil {
		connections[transport]++
	}
	connectionsMu.Unlock()
}

// RemoveConnection subtracts 1 from the connection gauge for a transport.
func RemoveConnection(transport string) {
	connectionsMu.Lock()
	if connections != nil && connections[transport] > 0 {
		connections[transport]--
	}
	connectionsMu.Unlock()
}

// TaskCountFunc returns (pending, in_progress, completed, deleted) counts.
// Used for the teams_dashboard_tasks_total gauge.
type TaskCountFunc func() (pending, inProgress, completed, deleted int64)

// InitMetricsWithTaskCount creates instruments and optionally registers a callback for task gauges.
// Call after InitMeterProvider. If taskCount is nil, task gauges are not reported.
func InitMetricsWithTaskCount(ctx context.Context, taskCount TaskCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	tasksGauge, err := m.Float64ObservableGauge("teams_dashboard_tasks_total", metric.WithDescription("Number of tasks by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		pending, inProgress, completed, deleted := taskCount()
		o.ObserveFloat64(tasksGauge, float64(pending), metric.WithAttributes(AttrStatus.String("pending")))
		o.ObserveFloat64(tasksGauge, float64(inProgress), metric.WithAttributes(AttrStatus.String("in_progress")))
		o.ObserveFloat64(tasksGauge, float64(completed), metric.WithAttributes(AttrStatus.String("completed")))
		o.ObserveFloat64(tasksGauge, float64(deleted), metric.WithAttributes(AttrStatus.String("deleted")))
		return nil
	}, tasksGauge)
	return err
}
