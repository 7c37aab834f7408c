package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Trojanku/claude-teams-dashboard/internal/hub"
	"github.com/Trojanku/claude-teams-dashboard/internal/store"
	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// TestFileModeDeleteTeam walks the full REST path against a real directory
// tree: delete removes both subtrees and a follow-up read reports not found.
func TestFileModeDeleteTeam(t *testing.T) {
	root := t.TempDir()
	teamsDir := filepath.Join(root, "teams")
	tasksDir := filepath.Join(root, "tasks")

	teamDir := filepath.Join(teamsDir, "x")
	if err := os.MkdirAll(teamDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(teamDir, "config.json"), []byte(`{"name":"x","members":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	taskDir := filepath.Join(tasksDir, "x")
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, "1.json"), []byte(`{"id":"1","subject":"t"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	st := store.NewFileStore(teamsDir, tasksDir)
	app := NewApp(st, hub.NewHub(st), ServerOptions{Addr: "127.0.0.1:0"})
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(ts.Close)

	var team models.Team
	if code := getJSON(t, ts, "/api/teams/x", &team); code != http.StatusOK {
		t.Fatalf("GET team before delete: status=%d", code)
	}
	if team.TaskCount != 1 {
		t.Fatalf("expected 1 task, got %d", team.TaskCount)
	}

	if code := doJSON(t, ts, http.MethodDelete, "/api/teams/x", "", nil); code != http.StatusOK {
		t.Fatalf("DELETE team: status=%d", code)
	}

	if _, err := os.Stat(filepath.Join(teamsDir, "x")); !os.IsNotExist(err) {
		t.Fatal("team subtree still present after delete")
	}
	if _, err := os.Stat(filepath.Join(tasksDir, "x")); !os.IsNotExist(err) {
		t.Fatal("task subtree still present after delete")
	}

	if code := getJSON(t, ts, "/api/teams/x", nil); code != http.StatusNotFound {
		t.Fatalf("GET team after delete: status=%d", code)
	}
}

// TestFileModeTaskFlow creates and updates a task over HTTP against the
// filesystem store.
func TestFileModeTaskFlow(t *testing.T) {
	root := t.TempDir()
	st := store.NewFileStore(filepath.Join(root, "teams"), filepath.Join(root, "tasks"))
	app := NewApp(st, hub.NewHub(st), ServerOptions{Addr: "127.0.0.1:0"})
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(ts.Close)

	var created models.Task
	if code := doJSON(t, ts, http.MethodPost, "/api/tasks", `{"teamId":"alpha","subject":"from http"}`, &created); code != http.StatusCreated {
		t.Fatalf("POST task: status=%d", code)
	}
	if created.ID != "1" {
		t.Fatalf("expected id 1, got %q", created.ID)
	}

	var updated models.Task
	code := doJSON(t, ts, http.MethodPatch, "/api/tasks/1?teamId=alpha", `{"addBlockedBy":["2","2","3"]}`, &updated)
	if code != http.StatusOK {
		t.Fatalf("PATCH task: status=%d", code)
	}
	if len(updated.BlockedBy) != 2 {
		t.Fatalf("expected deduplicated relations, got %v", updated.BlockedBy)
	}

	var got models.Task
	if code := getJSON(t, ts, "/api/tasks/1?teamId=alpha", &got); code != http.StatusOK {
		t.Fatalf("GET task: status=%d", code)
	}
	if got.UpdatedAt == "" || got.UpdatedAt < got.CreatedAt {
		t.Fatalf("updatedAt not advanced: %+v", got)
	}
}
