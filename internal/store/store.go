// Package store defines the entity store interface and its two backends:
// a FileStore over the on-disk team/task directory tree and a MockStore
// over a generated in-memory fixture dataset. Both produce entities with
// the same schema and computed fields so the rest of the system never
// cares which one it is talking to.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// NotFoundError reports that an explicitly requested entity does not exist.
type NotFoundError struct {
	Entity string // e.g. "Team", "Task"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Store is the read/write surface over teams, tasks, and messages.
// Implementations: *FileStore (real mode) and *MockStore (mock mode).
type Store interface {
	// Teams
	ListTeams(ctx context.Context) ([]models.Team, error)
	GetTeam(ctx context.Context, id string) (models.Team, error)
	DeleteTeam(ctx context.Context, id string) error
	ListMembers(ctx context.Context, teamID string) ([]models.Member, error)

	// Agents (pure projection over team members; no storage of their own)
	ListAgents(ctx context.Context) ([]models.Agent, error)

	// Tasks
	ListAllTasks(ctx context.Context) ([]models.Task, error)
	ListTasks(ctx context.Context, teamID string) ([]models.Task, error)
	// GetTask returns the task with the given id. When teamID is empty the
	// search spans every team and the first match by id wins.
	GetTask(ctx context.Context, taskID, teamID string) (models.Task, error)
	CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Task, error)
	UpdateTask(ctx context.Context, taskID, teamID string, req models.UpdateTaskRequest) (models.Task, error)

	// Messages (in-process log, not persisted)
	ListMessages(ctx context.Context, teamID string) ([]models.Message, error)
	AddMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error)

	// Reset restores the initial fixture dataset (mock mode, test isolation).
	Reset(ctx context.Context) error
	Close() error
}

// agentsFromTeams flattens team members into the derived agent view.
func agentsFromTeams(teams []models.Team) []models.Agent {
	var agents []models.Agent
	for _, t := range teams {
		for _, m := range t.Members {
			agents = append(agents, models.Agent{Member: m, TeamID: t.ID, TeamName: t.Name})
		}
	}
	return agents
}

// countTasks returns (total, in-progress) over a task list.
func countTasks(tasks []models.Task) (int, int) {
	active := 0
	for _, t := range tasks {
		if t.Status == models.TaskInProgress {
			active++
		}
	}
	return len(tasks), active
}
