package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTeamStatus(t *testing.T) {
	active := Member{Name: "a", AgentID: "1", Status: MemberActive}
	idle := Member{Name: "b", AgentID: "2", Status: MemberIdle}
	inactive := Member{Name: "c", AgentID: "3", Status: MemberInactive}

	tests := []struct {
		name        string
		members     []Member
		activeTasks int
		want        TeamStatus
	}{
		{"all inactive wins over active tasks", []Member{inactive, inactive}, 3, TeamInactive},
		{"active tasks make team active", []Member{active, idle}, 1, TeamActive},
		{"no active tasks means idle", []Member{active, idle}, 0, TeamIdle},
		{"one live member avoids inactive", []Member{inactive, idle}, 0, TeamIdle},
		{"no members with active tasks", nil, 2, TeamActive},
		{"no members no tasks", nil, 0, TeamIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeTeamStatus(tt.members, tt.activeTasks))
		})
	}
}

func TestTaskApplyPartialUpdate(t *testing.T) {
	task := Task{
		ID:        "1",
		Subject:   "original",
		Status:    TaskPending,
		Owner:     "alice",
		TeamID:    "team-a",
		Blocks:    []string{"2"},
		BlockedBy: []string{},
		UpdatedAt: "2026-01-01T00:00:00Z",
	}

	status := TaskInProgress
	task.Apply(UpdateTaskRequest{Status: &status}, "2026-01-02T00:00:00Z")

	assert.Equal(t, TaskInProgress, task.Status)
	assert.Equal(t, "original", task.Subject, "absent fields stay unchanged")
	assert.Equal(t, "alice", task.Owner)
	assert.Equal(t, "2026-01-02T00:00:00Z", task.UpdatedAt)
}

func TestTaskApplyOwnerNullClears(t *testing.T) {
	task := Task{ID: "1", Owner: "alice"}

	var req UpdateTaskRequest
	require.NoError(t, json.Unmarshal([]byte(`{"owner":null}`), &req))
	task.Apply(req, "2026-01-02T00:00:00Z")
	assert.Empty(t, task.Owner, "explicit null clears owner")
}

func TestTaskApplyOwnerAbsentKeeps(t *testing.T) {
	task := Task{ID: "1", Owner: "alice"}
	var req UpdateTaskRequest
	require.NoError(t, json.Unmarshal([]byte(`{"status":"completed"}`), &req))
	task.Apply(req, "2026-01-02T00:00:00Z")
	assert.Equal(t, "alice", task.Owner, "absent owner field leaves owner unchanged")
}

func TestTaskApplyRelationUnion(t *testing.T) {
	task := Task{ID: "1", Blocks: []string{"2"}, BlockedBy: []string{}}
	task.Apply(UpdateTaskRequest{
		AddBlocks:    []string{"2", "3", "3"},
		AddBlockedBy: []string{"4"},
	}, "2026-01-02T00:00:00Z")

	assert.Equal(t, []string{"2", "3"}, task.Blocks, "union deduplicates and preserves order")
	assert.Equal(t, []string{"4"}, task.BlockedBy)
}

func TestTaskApplyMetadataMerge(t *testing.T) {
	task := Task{ID: "1", Metadata: map[string]any{"a": "old", "keep": true}}
	task.Apply(UpdateTaskRequest{Metadata: map[string]any{"a": "new", "b": 1}}, "2026-01-02T00:00:00Z")

	assert.Equal(t, "new", task.Metadata["a"])
	assert.Equal(t, true, task.Metadata["keep"])
	assert.Equal(t, 1, task.Metadata["b"])
}

func TestFlexTime(t *testing.T) {
	var cfg TeamConfig
	require.NoError(t, json.Unmarshal([]byte(`{"members":[],"createdAt":"2026-03-01T10:00:00Z"}`), &cfg))
	assert.Equal(t, FlexTime("2026-03-01T10:00:00Z"), cfg.CreatedAt)

	require.NoError(t, json.Unmarshal([]byte(`{"members":[],"createdAt":1767225600000}`), &cfg))
	assert.Equal(t, FlexTime("2026-01-01T00:00:00Z"), cfg.CreatedAt, "epoch millis normalize to RFC3339")

	require.NoError(t, json.Unmarshal([]byte(`{"members":[],"createdAt":null}`), &cfg))
	assert.Empty(t, cfg.CreatedAt)
}

func TestTeamConfigValid(t *testing.T) {
	assert.False(t, TeamConfig{}.Valid(), "nil members is invalid")
	assert.True(t, TeamConfig{Members: []Member{}}.Valid(), "empty members is valid")
	assert.False(t, TeamConfig{Members: []Member{{Name: "a"}}}.Valid(), "member without agentId is invalid")
	assert.True(t, TeamConfig{Members: []Member{{Name: "a", AgentID: "1"}}}.Valid())
}

func TestCreateTaskRequestValidate(t *testing.T) {
	assert.NoError(t, CreateTaskRequest{TeamID: "t", Subject: "s"}.Validate())

	err := CreateTaskRequest{}.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, CreateTaskRequest{TeamID: "t", Subject: string(long)}.Validate())
}

func TestUpdateTaskRequestValidate(t *testing.T) {
	bad := TaskStatus("bogus")
	assert.Error(t, UpdateTaskRequest{Status: &bad}.Validate())

	empty := ""
	assert.Error(t, UpdateTaskRequest{Subject: &empty}.Validate())

	good := TaskCompleted
	assert.NoError(t, UpdateTaskRequest{Status: &good}.Validate())
	assert.NoError(t, UpdateTaskRequest{}.Validate(), "empty update is valid")
}

func TestSendMessageRequestValidate(t *testing.T) {
	ok := SendMessageRequest{TeamID: "t", Type: MessageBroadcast, Sender: "a", Content: "hi"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Type = MessageType("yell")
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Content = ""
	assert.Error(t, bad.Validate())
}
