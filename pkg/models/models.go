// Package models provides shared types for the dashboard HTTP API and the
// live event channel. These types mirror the API JSON and the on-disk files
// written by Claude Code team sessions; they are stable for use by pkg/client
// and other consumers.
package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Member is an individual agent inside a team. Status is derived on each
// read for members that carry a tmux pane handle; a member whose pane is
// gone is inactive no matter what the config file says.
type Member struct {
	Name        string         `json:"name"`
	AgentID     string         `json:"agentId"`
	AgentType   string         `json:"agentType"`
	Status      MemberStatus   `json:"status"`
	CurrentTask string         `json:"currentTask,omitempty"`
	TmuxPane    string         `json:"tmuxPane,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Team is a named group of agents with associated tasks and messages.
// Identity is the team directory name. TaskCount, ActiveTasks, Status and
// LastActivityAt are computed on each read, never stored.
type Team struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Members        []Member   `json:"members"`
	TaskCount      int        `json:"taskCount"`
	ActiveTasks    int        `json:"activeTasks"`
	Status         TeamStatus `json:"status"`
	CreatedAt      string     `json:"createdAt,omitempty"`
	LastActivityAt string     `json:"lastActivityAt"`
}

// Task is a unit of work owned by a team. IDs are numeric strings unique
// within a team only; callers must qualify by team when ambiguous.
// Blocks/BlockedBy are deduplicated sets; mutual consistency between the
// two sides is not enforced.
type Task struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description,omitempty"`
	Status      TaskStatus     `json:"status"`
	Owner       string         `json:"owner,omitempty"`
	TeamID      string         `json:"teamId"`
	Blocks      []string       `json:"blocks"`
	BlockedBy   []string       `json:"blockedBy"`
	ActiveForm  string         `json:"activeForm,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// Message is an inter-agent message. Messages live only in the in-process
// log and are lost on restart. Recipient is empty for broadcasts.
type Message struct {
	ID        string      `json:"id"`
	TeamID    string      `json:"teamId"`
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient,omitempty"`
	Content   string      `json:"content"`
	Summary   string      `json:"summary,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Agent is a member projected together with its owning team. Agents have no
// storage of their own; they are recomputed from team snapshots per request.
type Agent struct {
	Member
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}

// TeamConfig is the on-disk shape of teamsRoot/{teamId}/config.json.
// Extra fields the session writer adds land in Metadata rather than being
// passed through untyped.
type TeamConfig struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Members     []Member       `json:"members"`
	CreatedAt   FlexTime       `json:"createdAt,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Valid reports whether the config carries the fields a listing requires.
// Teams with invalid configs are skipped, not surfaced as errors.
func (c TeamConfig) Valid() bool {
	if c.Members == nil {
		return false
	}
	for _, m := range c.Members {
		if m.Name == "" || m.AgentID == "" {
			return false
		}
	}
	return true
}

// FlexTime accepts either an RFC3339 string or epoch milliseconds (the two
// forms session writers emit for createdAt) and normalizes to RFC3339.
type FlexTime string

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = FlexTime(s)
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = FlexTime(time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339))
	return nil
}

// Apply merges a partial update into the task. Only fields present in the
// request change; an explicit null owner clears the owner. Relation adds are
// order-preserving set unions. UpdatedAt is set to now on every call.
func (t *Task) Apply(req UpdateTaskRequest, now string) {
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Subject != nil {
		t.Subject = *req.Subject
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.ActiveForm != nil {
		t.ActiveForm = *req.ActiveForm
	}
	if req.Owner.Set {
		if req.Owner.Valid {
			t.Owner = req.Owner.Value
		} else {
			t.Owner = ""
		}
	}
	if len(req.AddBlocks) > 0 {
		t.Blocks = unionStrings(t.Blocks, req.AddBlocks)
	}
	if len(req.AddBlockedBy) > 0 {
		t.BlockedBy = unionStrings(t.BlockedBy, req.AddBlockedBy)
	}
	if len(req.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any, len(req.Metadata))
		}
		for k, v := range req.Metadata {
			t.Metadata[k] = v
		}
	}
	t.UpdatedAt = now
}

// unionStrings appends the elements of add that are not already present,
// preserving first-seen order and deduplicating add itself.
func unionStrings(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, s := range existing {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range add {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
