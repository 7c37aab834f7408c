package models

// TeamStatus is the computed status of a team.
type TeamStatus string

const (
	TeamActive   TeamStatus = "active"
	TeamIdle     TeamStatus = "idle"
	TeamError    TeamStatus = "error"
	TeamInactive TeamStatus = "inactive"
)

// MemberStatus is the status of an individual team member.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberIdle     MemberStatus = "idle"
	MemberError    MemberStatus = "error"
	MemberInactive MemberStatus = "inactive"
)

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskDeleted    TaskStatus = "deleted"
)

// Valid reports whether s is a declared task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskDeleted:
		return true
	}
	return false
}

// MessageType classifies inter-agent messages.
type MessageType string

const (
	MessageDirect           MessageType = "message"
	MessageBroadcast        MessageType = "broadcast"
	MessageShutdownRequest  MessageType = "shutdown_request"
	MessageShutdownResponse MessageType = "shutdown_response"
)

// Valid reports whether t is a declared message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageDirect, MessageBroadcast, MessageShutdownRequest, MessageShutdownResponse:
		return true
	}
	return false
}

// ComputeTeamStatus derives a team's status from its members and the number
// of in-progress tasks. A team whose members are all inactive is inactive
// regardless of task activity; otherwise it is active when any task is in
// progress and idle when none is.
func ComputeTeamStatus(members []Member, activeTasks int) TeamStatus {
	if len(members) > 0 {
		allInactive := true
		for _, m := range members {
			if m.Status != MemberInactive {
				allInactive = false
				break
			}
		}
		if allInactive {
			return TeamInactive
		}
	}
	if activeTasks > 0 {
		return TeamActive
	}
	return TeamIdle
}
