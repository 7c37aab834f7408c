package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// MockStore serves a generated in-memory fixture dataset: three teams with
// nine members between them and sixteen tasks. Mutations hit the in-memory
// copies only; Reset throws them away and regenerates the fixture, which is
// what test suites call between cases.
type MockStore struct {
	mu    sync.Mutex
	teams []mockTeam
	tasks map[string][]models.Task // keyed by teamID
	msgs  *messageLog
	now   func() time.Time
}

// mockTeam is the stored portion of a fixture team; counts and status are
// computed per read, same as the file backend.
type mockTeam struct {
	id          string
	name        string
	description string
	members     []models.Member
	createdAt   string
}

// MockStoreOption configures a MockStore.
type MockStoreOption func(*MockStore)

// WithMockClock overrides the time source.
func WithMockClock(now func() time.Time) MockStoreOption {
	return func(s *MockStore) { s.now = now }
}

// NewMockStore returns a store seeded with the fixture dataset.
func NewMockStore(opts ...MockStoreOption) *MockStore {
	s := &MockStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.msgs = newMessageLog(s.now)
	s.seed()
	return s
}

func (s *MockStore) nowString() string {
	return s.now().UTC().Format(time.RFC3339)
}

// seed regenerates the fixture. Callers hold s.mu or are the constructor.
func (s *MockStore) seed() {
	now := s.nowString()

	s.teams = []mockTeam{
		{
			id:          "feature-auth",
			name:        "feature-auth",
			description: "Implement OAuth2 login flow with JWT sessions",
			createdAt:   now,
			members: []models.Member{
				{Name: "team-lead", AgentID: "agent-auth-1", AgentType: "lead", Status: models.MemberActive, TmuxPane: "%1", CurrentTask: "2"},
				{Name: "backend-dev", AgentID: "agent-auth-2", AgentType: "developer", Status: models.MemberActive, TmuxPane: "%2", CurrentTask: "3"},
				{Name: "frontend-dev", AgentID: "agent-auth-3", AgentType: "developer", Status: models.MemberIdle, TmuxPane: "%3"},
				{Name: "tester", AgentID: "agent-auth-4", AgentType: "tester", Status: models.MemberIdle, TmuxPane: "%4"},
			},
		},
		{
			id:          "refactor-api",
			name:        "refactor-api",
			description: "Split the monolithic API handlers into versioned modules",
			createdAt:   now,
			members: []models.Member{
				{Name: "api-lead", AgentID: "agent-api-1", AgentType: "lead", Status: models.MemberActive, TmuxPane: "%5", CurrentTask: "1"},
				{Name: "api-dev", AgentID: "agent-api-2", AgentType: "developer", Status: models.MemberIdle, TmuxPane: "%6"},
				{Name: "reviewer", AgentID: "agent-api-3", AgentType: "reviewer", Status: models.MemberError, TmuxPane: "%7"},
			},
		},
		{
			id:          "docs-update",
			name:        "docs-update",
			description: "Refresh the public API documentation for the next release",
			createdAt:   now,
			members: []models.Member{
				{Name: "docs-lead", AgentID: "agent-docs-1", AgentType: "lead", Status: models.MemberIdle, TmuxPane: "%8"},
				{Name: "docs-writer", AgentID: "agent-docs-2", AgentType: "writer", Status: models.MemberIdle, TmuxPane: "%9"},
			},
		},
	}

	task := func(teamID, id, subject string, status models.TaskStatus, owner string) models.Task {
		return models.Task{
			ID: id, Subject: subject, Status: status, Owner: owner, TeamID: teamID,
			Blocks: []string{}, BlockedBy: []string{}, CreatedAt: now, UpdatedAt: now,
		}
	}

	s.tasks = map[string][]models.Task{
		"feature-auth": {
			task("feature-auth", "1", "Design authentication flow", models.TaskCompleted, "team-lead"),
			task("feature-auth", "2", "Implement JWT token service", models.TaskInProgress, "team-lead"),
			task("feature-auth", "3", "Add login endpoint", models.TaskInProgress, "backend-dev"),
			task("feature-auth", "4", "Build login form component", models.TaskPending, "frontend-dev"),
			task("feature-auth", "5", "Add session refresh handling", models.TaskPending, ""),
			task("feature-auth", "6", "Write auth integration tests", models.TaskPending, "tester"),
			task("feature-auth", "7", "Document the auth endpoints", models.TaskPending, ""),
		},
		"refactor-api": {
			task("refactor-api", "1", "Map current handler dependencies", models.TaskInProgress, "api-lead"),
			task("refactor-api", "2", "Extract v1 route module", models.TaskPending, "api-dev"),
			task("refactor-api", "3", "Extract v2 route module", models.TaskPending, ""),
			task("refactor-api", "4", "Migrate middleware to shared package", models.TaskPending, ""),
			task("refactor-api", "5", "Remove deprecated endpoints", models.TaskCompleted, "api-dev"),
		},
		"docs-update": {
			task("docs-update", "1", "Audit existing documentation", models.TaskCompleted, "docs-lead"),
			task("docs-update", "2", "Rewrite quickstart guide", models.TaskCompleted, "docs-writer"),
			task("docs-update", "3", "Update API reference pages", models.TaskCompleted, "docs-writer"),
			task("docs-update", "4", "Publish changelog", models.TaskCompleted, "docs-lead"),
		},
	}

	// Relations between the auth tasks, one pair each way.
	s.tasks["feature-auth"][1].Blocks = []string{"3"}
	s.tasks["feature-auth"][2].BlockedBy = []string{"2"}

	s.msgs.clear()
	for _, req := range []models.SendMessageRequest{
		{TeamID: "feature-auth", Type: models.MessageBroadcast, Sender: "team-lead", Content: "Kicking off the auth work, check your assigned tasks", Summary: "Kickoff"},
		{TeamID: "feature-auth", Type: models.MessageDirect, Sender: "backend-dev", Recipient: "team-lead", Content: "Login endpoint is up on the feature branch, needs review"},
		{TeamID: "feature-auth", Type: models.MessageDirect, Sender: "frontend-dev", Recipient: "backend-dev", Content: "What shape is the token payload? Need it for the form wiring"},
		{TeamID: "refactor-api", Type: models.MessageBroadcast, Sender: "api-lead", Content: "Dependency map is in progress, hold off on extractions until it lands"},
	} {
		s.msgs.add(req)
	}
}

// snapshotTeam computes the read-side view of one fixture team.
func (s *MockStore) snapshotTeam(t mockTeam) models.Team {
	total, active := countTasks(s.tasks[t.id])
	members := make([]models.Member, len(t.members))
	copy(members, t.members)
	return models.Team{
		ID:             t.id,
		Name:           t.name,
		Description:    t.description,
		Members:        members,
		TaskCount:      total,
		ActiveTasks:    active,
		Status:         models.ComputeTeamStatus(members, active),
		CreatedAt:      t.createdAt,
		LastActivityAt: s.nowString(),
	}
}

func (s *MockStore) ListTeams(ctx context.Context) ([]models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := make([]models.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, s.snapshotTeam(t))
	}
	return teams, nil
}

func (s *MockStore) GetTeam(ctx context.Context, id string) (models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.id == id {
			return s.snapshotTeam(t), nil
		}
	}
	return models.Team{}, &NotFoundError{Entity: "Team", ID: id}
}

// DeleteTeam in mock mode validates existence but leaves the fixture
// intact, so the dataset survives exploratory clicking in a demo.
func (s *MockStore) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.id == id {
			return nil
		}
	}
	return &NotFoundError{Entity: "Team", ID: id}
}

func (s *MockStore) ListMembers(ctx context.Context, teamID string) ([]models.Member, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return team.Members, nil
}

func (s *MockStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
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

func (s *MockStore) ListAllTasks(ctx context.Context) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]models.Task, 0)
	for _, t := range s.teams {
		tasks = append(tasks, s.tasks[t.id]...)
	}
	return tasks, nil
}

func (s *MockStore) ListTasks(ctx context.Context, teamID string) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]models.Task, len(s.tasks[teamID]))
	copy(tasks, s.tasks[teamID])
	return tasks, nil
}

func (s *MockStore) GetTask(ctx context.Context, taskID, teamID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.findTask(taskID, teamID); ok {
		return *task, nil
	}
	return models.Task{}, &NotFoundError{Entity: "Task", ID: taskID}
}

func (s *MockStore) CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for _, t := range s.tasks[req.TeamID] {
		if n, err := strconv.Atoi(t.ID); err == nil && n > max {
			max = n
		}
	}

	now := s.nowString()
	task := models.Task{
		ID:          strconv.Itoa(max + 1),
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
	s.tasks[req.TeamID] = append(s.tasks[req.TeamID], task)
	return task, nil
}

func (s *MockStore) UpdateTask(ctx context.Context, taskID, teamID string, req models.UpdateTaskRequest) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.findTask(taskID, teamID)
	if !ok {
		return models.Task{}, &NotFoundError{Entity: "Task", ID: taskID}
	}
	task.Apply(req, s.nowString())
	return *task, nil
}

// findTask returns a pointer into the stored slice so updates mutate in
// place. Caller holds s.mu.
func (s *MockStore) findTask(taskID, teamID string) (*models.Task, bool) {
	if teamID != "" {
		for i := range s.tasks[teamID] {
			if s.tasks[teamID][i].ID == taskID {
				return &s.tasks[teamID][i], true
			}
		}
		return nil, false
	}
	for _, t := range s.teams {
		for i := range s.tasks[t.id] {
			if s.tasks[t.id][i].ID == taskID {
				return &s.tasks[t.id][i], true
			}
		}
	}
	return nil, false
}

func (s *MockStore) ListMessages(ctx context.Context, teamID string) ([]models.Message, error) {
	return s.msgs.list(teamID), nil
}

func (s *MockStore) AddMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	return s.msgs.add(req), nil
}

// Reset regenerates the fixture dataset. Message ids keep counting up
// across resets so an id is never reused within a process lifetime.
func (s *MockStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed()
	return nil
}

func (s *MockStore) Close() error { return nil }
