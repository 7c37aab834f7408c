package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxSubjectLen = 200

// FieldError is one schema violation in a request body.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError carries the field-level breakdown returned to API clients
// as a 400 response.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Path + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// errOrNil wraps fields in a *ValidationError, or returns nil when empty.
func errOrNil(fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// NullString distinguishes absent, explicit-null, and set string fields in
// PATCH bodies. Absent leaves the target unchanged; null clears it.
type NullString struct {
	Set   bool
	Valid bool
	Value string
}

func (n *NullString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Valid = false
		return nil
	}
	n.Valid = true
	return json.Unmarshal(b, &n.Value)
}

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Set || !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	TeamID      string `json:"teamId"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`
	ActiveForm  string `json:"activeForm,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

func (r CreateTaskRequest) Validate() error {
	var fields []FieldError
	if r.TeamID == "" {
		fields = append(fields, FieldError{Path: "teamId", Message: "required"})
	}
	if r.Subject == "" {
		fields = append(fields, FieldError{Path: "subject", Message: "required"})
	} else if len(r.Subject) > maxSubjectLen {
		fields = append(fields, FieldError{Path: "subject", Message: fmt.Sprintf("must be at most %d characters", maxSubjectLen)})
	}
	return errOrNil(fields)
}

// UpdateTaskRequest is the body of PATCH /api/tasks/{id}. All fields are
// optional; absent fields leave the task unchanged.
type UpdateTaskRequest struct {
	Status       *TaskStatus    `json:"status,omitempty"`
	Subject      *string        `json:"subject,omitempty"`
	Description  *string        `json:"description,omitempty"`
	ActiveForm   *string        `json:"activeForm,omitempty"`
	Owner        NullString     `json:"owner,omitzero"`
	AddBlocks    []string       `json:"addBlocks,omitempty"`
	AddBlockedBy []string       `json:"addBlockedBy,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (r UpdateTaskRequest) Validate() error {
	var fields []FieldError
	if r.Status != nil && !r.Status.Valid() {
		fields = append(fields, FieldError{Path: "status", Message: "must be pending, in_progress, completed, or deleted"})
	}
	if r.Subject != nil {
		if *r.Subject == "" {
			fields = append(fields, FieldError{Path: "subject", Message: "must not be empty"})
		} else if len(*r.Subject) > maxSubjectLen {
			fields = append(fields, FieldError{Path: "subject", Message: fmt.Sprintf("must be at most %d characters", maxSubjectLen)})
		}
	}
	return errOrNil(fields)
}

// SendMessageRequest is the body of POST /api/messages and of the inbound
// send:message event on the live channel. Recipient is empty for broadcasts.
type SendMessageRequest struct {
	TeamID    string      `json:"teamId"`
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient,omitempty"`
	Content   string      `json:"content"`
	Summary   string      `json:"summary,omitempty"`
}

func (r SendMessageRequest) Validate() error {
	var fields []FieldError
	if r.TeamID == "" {
		fields = append(fields, FieldError{Path: "teamId", Message: "required"})
	}
	if !r.Type.Valid() {
		fields = append(fields, FieldError{Path: "type", Message: "must be message, broadcast, shutdown_request, or shutdown_response"})
	}
	if r.Sender == "" {
		fields = append(fields, FieldError{Path: "sender", Message: "required"})
	}
	if r.Content == "" {
		fields = append(fields, FieldError{Path: "content", Message: "required"})
	}
	return errOrNil(fields)
}

// SpawnRequest is the body of POST /api/teams/{id}/spawn.
type SpawnRequest struct {
	Name      string `json:"name"`
	AgentType string `json:"agentType"`
}

func (r SpawnRequest) Validate() error {
	var fields []FieldError
	if r.Name == "" {
		fields = append(fields, FieldError{Path: "name", Message: "required"})
	} else if len(r.Name) > 100 {
		fields = append(fields, FieldError{Path: "name", Message: "must be at most 100 characters"})
	}
	if r.AgentType == "" {
		fields = append(fields, FieldError{Path: "agentType", Message: "required"})
	}
	return errOrNil(fields)
}
