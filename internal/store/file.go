package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// PaneProber reports the set of live tmux pane ids. Satisfied by
// *liveness.Prober; nil means no liveness probing (statuses pass through
// as stored).
type PaneProber interface {
	ActivePanes(ctx context.Context) map[string]struct{}
}

// FileStore reads teams and tasks from the directory trees Claude Code team
// sessions write: teamsDir/{teamId}/config.json for team configs and
// tasksDir/{teamId}/{taskId}.json for tasks. The filesystem is the source of
// truth; every read is a fresh scan, nothing is cached here.
type FileStore struct {
	teamsDir string
	tasksDir string
	prober   PaneProber
	logger   *slog.Logger
	msgs     *messageLog
	locks    *mutexMap
	now      func() time.Time
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithProber attaches a tmux pane prober used to derive member liveness.
func WithProber(p PaneProber) FileStoreOption {
	return func(s *FileStore) { s.prober = p }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// WithFileClock overrides the time source.
func WithFileClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore returns a store over the given team and task roots. The roots
// need not exist yet; they appear when a session first writes to them.
func NewFileStore(teamsDir, tasksDir string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		teamsDir: teamsDir,
		tasksDir: tasksDir,
		logger:   slog.Default(),
		now:      time.Now,
		locks:    newMutexMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.msgs = newMessageLog(s.now)
	return s
}

func (s *FileStore) teamDir(teamID string) string  { return filepath.Join(s.teamsDir, teamID) }
func (s *FileStore) taskDir(teamID string) string  { return filepath.Join(s.tasksDir, teamID) }
func (s *FileStore) configPath(teamID string) string {
	return filepath.Join(s.teamsDir, teamID, "config.json")
}
func (s *FileStore) taskPath(teamID, taskID string) string {
	return filepath.Join(s.tasksDir, teamID, taskID+".json")
}

func (s *FileStore) nowString() string {
	return s.now().UTC().Format(time.RFC3339)
}

// ListTeams scans the teams root. Directories without a parseable, valid
// config.json are skipped with a warning; one broken team never hides the
// rest.
func (s *FileStore) ListTeams(ctx context.Context) ([]models.Team, error) {
	entries, err := os.ReadDir(s.teamsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Team{}, nil
		}
		return nil, fmt.Errorf("read teams dir: %w", err)
	}

	panes := s.activePanes(ctx)
	teams := make([]models.Team, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		team, err := s.readTeam(ctx, entry.Name(), panes)
		if err != nil {
			s.logger.Warn("skipping team", "team", entry.Name(), "error", err)
			continue
		}
		teams = append(teams, team)
	}
	return teams, nil
}

// GetTeam returns a single team snapshot. A config that exists but cannot
// be parsed reads the same as a missing team; the warn log is the only
// place the difference shows.
func (s *FileStore) GetTeam(ctx context.Context, id string) (models.Team, error) {
	team, err := s.readTeam(ctx, id, s.activePanes(ctx))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("unreadable team treated as missing", "team", id, "error", err)
		}
		return models.Team{}, &NotFoundError{Entity: "Team", ID: id}
	}
	return team, nil
}

// DeleteTeam removes the team's config directory and its task directory.
// A failure removing the task side is logged but not surfaced; the team is
// gone either way and orphaned task files are harmless.
func (s *FileStore) DeleteTeam(ctx context.Context, id string) error {
	if _, err := os.Stat(s.configPath(id)); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Entity: "Team", ID: id}
		}
		return fmt.Errorf("stat team config: %w", err)
	}
	if err := os.RemoveAll(s.teamDir(id)); err != nil {
		return fmt.Errorf("remove team dir: %w", err)
	}
	if err := os.RemoveAll(s.taskDir(id)); err != nil {
		s.logger.Warn("failed to remove task dir for deleted team", "team", id, "error", err)
	}
	return nil
}

// ListMembers returns the members of a team, liveness applied.
func (s *FileStore) ListMembers(ctx context.Context, teamID string) ([]models.Member, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return team.Members, nil
}

// ListAgents flattens every team's members into the agent view.
func (s *FileStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	teams, err := s.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	agents := agentsFromTeams(teams)
	if agents == nil {
		agents = []models.Agent{}
	}
	return agents, nil
}

// ListAllTasks scans every team's task directory.
func (s *FileStore) ListAllTasks(ctx context.Context) ([]models.Task, error) {
	entries, err := os.ReadDir(s.tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Task{}, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	tasks := make([]models.Task, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		teamTasks, err := s.ListTasks(ctx, entry.Name())
		if err != nil {
			s.logger.Warn("skipping team tasks", "team", entry.Name(), "error", err)
			continue
		}
		tasks = append(tasks, teamTasks...)
	}
	return tasks, nil
}

// ListTasks returns all tasks of one team. A team with no task directory has
// no tasks; that is not an error.
func (s *FileStore) ListTasks(ctx context.Context, teamID string) ([]models.Task, error) {
	entries, err := os.ReadDir(s.taskDir(teamID))
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Task{}, nil
		}
		return nil, fmt.Errorf("read task dir: %w", err)
	}

	tasks := make([]models.Task, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		task, err := s.readTaskFile(teamID, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping task file", "team", teamID, "file", entry.Name(), "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// GetTask returns the task with the given id. With an empty teamID the
// lookup spans every team and the first match wins; task ids are only unique
// within a team, so qualified lookups are preferred.
func (s *FileStore) GetTask(ctx context.Context, taskID, teamID string) (models.Task, error) {
	if teamID != "" {
		task, err := s.readTaskFile(teamID, taskID)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("unreadable task treated as missing", "team", teamID, "task", taskID, "error", err)
			}
			return models.Task{}, &NotFoundError{Entity: "Task", ID: taskID}
		}
		return task, nil
	}

	entries, err := os.ReadDir(s.tasksDir)
	if err != nil && !os.IsNotExist(err) {
		return models.Task{}, fmt.Errorf("read tasks dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		task, err := s.readTaskFile(entry.Name(), taskID)
		if err != nil {
			continue
		}
		return task, nil
	}
	return models.Task{}, &NotFoundError{Entity: "Task", ID: taskID}
}

// CreateTask allocates the next numeric id within the team and writes the
// task file atomically. The team's task directory is created on demand; the
// team itself is not required to exist, matching how sessions write tasks.
func (s *FileStore) CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Task, error) {
	dir := s.taskDir(req.TeamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Task{}, fmt.Errorf("create task dir: %w", err)
	}

	s.locks.Lock(req.TeamID)
	defer s.locks.Unlock(req.TeamID)

	id, err := s.nextTaskID(dir)
	if err != nil {
		return models.Task{}, err
	}

	now := s.nowString()
	task := models.Task{
		ID:          id,
		Subject:     req.Subject,
		Description: req.Description,
		Status:      models.TaskPending,
		Owner:       req.Owner,
		TeamID:      req.TeamID,
		Blocks:      []string{},
		BlockedBy:   []string{},
		ActiveForm:  req.ActiveForm,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := writeJSONAtomic(s.taskPath(req.TeamID, id), task); err != nil {
		return models.Task{}, fmt.Errorf("write task: %w", err)
	}
	return task, nil
}

// nextTaskID returns one past the highest numeric filename in the team's
// task directory. Gaps from deleted files are never refilled.
func (s *FileStore) nextTaskID(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read task dir: %w", err)
	}
	max := 0
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		if n, err := strconv.Atoi(name); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1), nil
}

// UpdateTask applies a partial update under the task's lock so concurrent
// updates to the same task serialize rather than losing writes.
func (s *FileStore) UpdateTask(ctx context.Context, taskID, teamID string, req models.UpdateTaskRequest) (models.Task, error) {
	key := teamID + "/" + taskID
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	task, err := s.readTaskFile(teamID, taskID)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("unreadable task treated as missing", "team", teamID, "task", taskID, "error", err)
		}
		return models.Task{}, &NotFoundError{Entity: "Task", ID: taskID}
	}

	task.Apply(req, s.nowString())
	if err := writeJSONAtomic(s.taskPath(teamID, taskID), task); err != nil {
		return models.Task{}, fmt.Errorf("write task: %w", err)
	}
	return task, nil
}

// ListMessages returns the in-process message log for a team.
func (s *FileStore) ListMessages(ctx context.Context, teamID string) ([]models.Message, error) {
	return s.msgs.list(teamID), nil
}

// AddMessage appends to the in-process message log. Messages are never
// written to disk.
func (s *FileStore) AddMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	return s.msgs.add(req), nil
}

// Reset is a no-op in file mode; the filesystem is the fixture.
func (s *FileStore) Reset(ctx context.Context) error { return nil }

func (s *FileStore) Close() error { return nil }

// activePanes returns the live pane set, or nil when no prober is attached.
func (s *FileStore) activePanes(ctx context.Context) map[string]struct{} {
	if s.prober == nil {
		return nil
	}
	return s.prober.ActivePanes(ctx)
}

// readTeam builds a full team snapshot: config, derived member statuses,
// task counts, computed team status, and last activity time.
func (s *FileStore) readTeam(ctx context.Context, id string, panes map[string]struct{}) (models.Team, error) {
	raw, err := os.ReadFile(s.configPath(id))
	if err != nil {
		return models.Team{}, err
	}
	var cfg models.TeamConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.Team{}, fmt.Errorf("parse config.json: %w", err)
	}
	if !cfg.Valid() {
		return models.Team{}, fmt.Errorf("config.json missing required member fields")
	}

	members := applyLiveness(cfg.Members, panes)

	tasks, err := s.ListTasks(ctx, id)
	if err != nil {
		return models.Team{}, err
	}
	total, active := countTasks(tasks)

	name := cfg.Name
	if name == "" {
		name = id
	}

	return models.Team{
		ID:             id,
		Name:           name,
		Description:    cfg.Description,
		Members:        members,
		TaskCount:      total,
		ActiveTasks:    active,
		Status:         models.ComputeTeamStatus(members, active),
		CreatedAt:      string(cfg.CreatedAt),
		LastActivityAt: s.lastActivity(id),
	}, nil
}

// applyLiveness overrides stored member statuses with pane liveness. A nil
// pane set means probing is disabled and statuses pass through. An empty set
// means no pane anywhere is alive, so every member is inactive. Otherwise a
// member whose pane is missing or dead is inactive; live members keep their
// stored status.
func applyLiveness(members []models.Member, panes map[string]struct{}) []models.Member {
	out := make([]models.Member, len(members))
	copy(out, members)
	if panes == nil {
		return out
	}
	for i := range out {
		if len(panes) == 0 {
			out[i].Status = models.MemberInactive
			continue
		}
		if _, ok := panes[out[i].TmuxPane]; out[i].TmuxPane == "" || !ok {
			out[i].Status = models.MemberInactive
		}
	}
	return out
}

// lastActivity is the newest mtime across the team's config, its other team
// files (inboxes and the like), and its task files. Falls back to now when
// nothing is statable.
func (s *FileStore) lastActivity(teamID string) string {
	var latest time.Time
	consider := func(path string) {
		if info, err := os.Stat(path); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}

	consider(s.configPath(teamID))
	if entries, err := os.ReadDir(s.teamDir(teamID)); err == nil {
		for _, entry := range entries {
			consider(filepath.Join(s.teamDir(teamID), entry.Name()))
		}
	}
	if entries, err := os.ReadDir(s.taskDir(teamID)); err == nil {
		for _, entry := range entries {
			consider(filepath.Join(s.taskDir(teamID), entry.Name()))
		}
	}

	if latest.IsZero() {
		latest = s.now()
	}
	return latest.UTC().Format(time.RFC3339)
}

// readTaskFile reads one task file and backfills the fields session writers
// sometimes omit, so API consumers always see a complete task.
func (s *FileStore) readTaskFile(teamID, taskID string) (models.Task, error) {
	raw, err := os.ReadFile(s.taskPath(teamID, taskID))
	if err != nil {
		return models.Task{}, err
	}
	var task models.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return models.Task{}, fmt.Errorf("parse task file: %w", err)
	}

	if task.ID == "" {
		task.ID = taskID
	}
	if task.Subject == "" {
		task.Subject = "Untitled"
	}
	if !task.Status.Valid() {
		task.Status = models.TaskPending
	}
	if task.Blocks == nil {
		task.Blocks = []string{}
	}
	if task.BlockedBy == nil {
		task.BlockedBy = []string{}
	}
	task.TeamID = teamID
	return task, nil
}
