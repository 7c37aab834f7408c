// Package client provides a Go SDK for the dashboard HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// Client calls the dashboard HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3001"
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3001").
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health reports whether the server is up and whether it serves mock data.
func (c *Client) Health(ctx context.Context) (ok bool, mockData bool, err error) {
	var out struct {
		Status   string `json:"status"`
		MockData bool   `json:"mockData"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/api/health", nil, &out)
	return out.Status == "ok", out.MockData, err
}

// ListTeams returns all teams.
func (c *Client) ListTeams(ctx context.Context) ([]models.Team, error) {
	var out []models.Team
	err := c.doJSON(ctx, http.MethodGet, "/api/teams", nil, &out)
	return out, err
}

// GetTeam returns one team by id.
func (c *Client) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var out models.Team
	err := c.doJSON(ctx, http.MethodGet, "/api/teams/"+url.PathEscape(teamID), nil, &out)
	return &out, err
}

// DeleteTeam removes a team and its tasks.
func (c *Client) DeleteTeam(ctx context.Context, teamID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/teams/"+url.PathEscape(teamID), nil, nil)
}

// ListMembers returns a team's members.
func (c *Client) ListMembers(ctx context.Context, teamID string) ([]models.Member, error) {
	var out []models.Member
	err := c.doJSON(ctx, http.MethodGet, "/api/teams/"+url.PathEscape(teamID)+"/members", nil, &out)
	return out, err
}

// ListAgents returns every member across all teams with its owning team.
func (c *Client) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var out []models.Agent
	err := c.doJSON(ctx, http.MethodGet, "/api/agents", nil, &out)
	return out, err
}

// ListTasks returns all tasks, or one team's tasks when teamID is non-empty.
func (c *Client) ListTasks(ctx context.Context, teamID string) ([]models.Task, error) {
	path := "/api/tasks"
	if teamID != "" {
		path += "?teamId=" + url.QueryEscape(teamID)
	}
	var out []models.Task
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CreateTask creates a task and returns it.
func (c *Client) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks", req, &out)
	return &out, err
}

// GetTask returns a task by id. teamID qualifies the lookup; empty searches
// every team.
func (c *Client) GetTask(ctx context.Context, taskID, teamID string) (*models.Task, error) {
	path := "/api/tasks/" + url.PathEscape(taskID)
	if teamID != "" {
		path += "?teamId=" + url.QueryEscape(teamID)
	}
	var out models.Task
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

// UpdateTask applies a partial update and returns the updated task.
func (c *Client) UpdateTask(ctx context.Context, taskID, teamID string, req models.UpdateTaskRequest) (*models.Task, error) {
	path := "/api/tasks/" + url.PathEscape(taskID) + "?teamId=" + url.QueryEscape(teamID)
	var out models.Task
	err := c.doJSON(ctx, http.MethodPatch, path, req, &out)
	return &out, err
}

// ListMessages returns a team's message history.
func (c *Client) ListMessages(ctx context.Context, teamID string) ([]models.Message, error) {
	var out []models.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(teamID), nil, &out)
	return out, err
}

// SendMessage appends a message and returns it with id and timestamp set.
func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	var out models.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/messages", req, &out)
	return &out, err
}

// Reset restores the initial fixture dataset (mock mode).
func (c *Client) Reset(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/reset", nil, nil)
}
