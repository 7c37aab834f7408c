// Package httpapi is the REST surface over the store plus the two live
// endpoints (/ws and /stream). Handlers are thin: decode, validate,
// delegate to the store, map errors to status codes.
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Trojanku/claude-teams-dashboard/internal/hub"
	"github.com/Trojanku/claude-teams-dashboard/internal/otel"
	"github.com/Trojanku/claude-teams-dashboard/internal/store"
	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultMaxRequestBodyBytes is the default limit for request body size (1 MiB) to prevent OOM.
const defaultMaxRequestBodyBytes = 1 << 20

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for the dashboard frontend, which runs
// on its own dev origin.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr           string
	CORSOrigin     string       // Access-Control-Allow-Origin value; empty disables CORS headers
	MockData       bool         // reported by /api/health
	MetricsHandler http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // if true, wrap handler with otelhttp for request metrics
}

// App holds the HTTP server and its collaborators.
type App struct {
	Server *http.Server
	Hub    *hub.Hub
	Store  store.Store
}

// NewApp registers all routes over the given store and hub and returns the
// assembled server. The caller owns store and hub lifecycle.
func NewApp(st store.Store, h *hub.Hub, opts ServerOptions) *App {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"mockData":  opts.MockData,
		})
	})

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			tasks, _ := st.ListAllTasks(r.Context())
			var pending, inProgress, completed, deleted int64
			for _, tk := range tasks {
				switch tk.Status {
				case models.TaskPending:
					pending++
				case models.TaskInProgress:
					inProgress++
				case models.TaskCompleted:
					completed++
				case models.TaskDeleted:
					deleted++
				}
			}
			_, _ = fmt.Fprintf(w, "# TYPE teams_dashboard_tasks_total gauge\n")
			_, _ = fmt.Fprintf(w, "teams_dashboard_tasks_total{status=\"pending\"} %d\n", pending)
			_, _ = fmt.Fprintf(w, "teams_dashboard_tasks_total{status=\"in_progress\"} %d\n", inProgress)
			_, _ = fmt.Fprintf(w, "teams_dashboard_tasks_total{status=\"completed\"} %d\n", completed)
			_, _ = fmt.Fprintf(w, "teams_dashboard_tasks_total{status=\"deleted\"} %d\n", deleted)
		})
	}
	mux.HandleFunc("/ws", h.HandleWS)
	mux.HandleFunc("/stream", h.SSE().Handler())

	// --- Teams ---
	mux.HandleFunc("/api/teams", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		teams, err := st.ListTeams(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, teams)
	})

	mux.HandleFunc("/api/teams/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/teams/")
		parts := strings.Split(rest, "/")
		if len(parts) < 1 || parts[0] == "" {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		teamID := parts[0]

		// /api/teams/{id}
		if len(parts) == 1 || parts[1] == "" {
			switch r.Method {
			case http.MethodGet:
				team, err := st.GetTeam(r.Context(), teamID)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, team)
			case http.MethodDelete:
				if err := st.DeleteTeam(r.Context(), teamID); err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"message": "Team '" + teamID + "' cleaned up"})
			default:
				writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
			return
		}

		switch parts[1] {
		case "members":
			if r.Method != http.MethodGet {
				writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			members, err := st.ListMembers(r.Context(), teamID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, members)

		case "tasks":
			if r.Method != http.MethodGet {
				writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			tasks, err := st.ListTasks(r.Context(), teamID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, tasks)

		case "spawn":
			// Spawning is acknowledged only; the actual process launch
			// happens in the session tooling, not in the dashboard.
			if r.Method != http.MethodPost {
				writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			var req models.SpawnRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid json")
				return
			}
			if err := req.Validate(); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"name":      req.Name,
				"agentType": req.AgentType,
				"message":   "Teammate spawn initiated",
			})

		default:
			writeJSONError(w, http.StatusNotFound, "not found")
		}
	})

	// --- Agents ---
	mux.HandleFunc("/api/agents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		agents, err := st.ListAgents(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agents)
	})

	// --- Tasks ---
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			var tasks []models.Task
			var err error
			if teamID := r.URL.Query().Get("teamId"); teamID != "" {
				tasks, err = st.ListTasks(r.Context(), teamID)
			} else {
				tasks, err = st.ListAllTasks(r.Context())
			}
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, tasks)
		case http.MethodPost:
			var req models.CreateTaskRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid json")
				return
			}
			if err := req.Validate(); err != nil {
				writeError(w, err)
				return
			}
			task, err := st.CreateTask(r.Context(), req)
			if err != nil {
				writeError(w, err)
				return
			}
			otel.RecordTaskOp(r.Context(), "create", task.TeamID, string(task.Status))
			writeJSON(w, http.StatusCreated, task)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/tasks/", func(w http.ResponseWriter, r *http.Request) {
		taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		if taskID == "" || strings.Contains(taskID, "/") {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		teamID := r.URL.Query().Get("teamId")

		switch r.Method {
		case http.MethodGet:
			task, err := st.GetTask(r.Context(), taskID, teamID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case http.MethodPatch:
			if teamID == "" {
				writeJSONError(w, http.StatusBadRequest, "teamId query parameter is required")
				return
			}
			var req models.UpdateTaskRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid json")
				return
			}
			if err := req.Validate(); err != nil {
				writeError(w, err)
				return
			}
			task, err := st.UpdateTask(r.Context(), taskID, teamID, req)
			if err != nil {
				writeError(w, err)
				return
			}
			otel.RecordTaskOp(r.Context(), "update", task.TeamID, string(task.Status))
			writeJSON(w, http.StatusOK, task)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	// --- Messages ---
	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req models.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, err)
			return
		}
		msg, err := st.AddMessage(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	})

	mux.HandleFunc("/api/messages/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		teamID := strings.TrimPrefix(r.URL.Path, "/api/messages/")
		if teamID == "" || strings.Contains(teamID, "/") {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		msgs, err := st.ListMessages(r.Context(), teamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	})

	// Reset endpoint for testing; restores the fixture in mock mode and is
	// a no-op against the filesystem.
	mux.HandleFunc("/api/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := st.Reset(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(defaultMaxRequestBodyBytes, handler)
	if opts.CORSOrigin != "" {
		handler = corsMiddleware(opts.CORSOrigin, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "teams-dashboard")
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		_ = st.Close()
	})

	return &App{Server: srv, Hub: h, Store: st}
}

// responseRecorder captures status code for logging and forwards Flusher
// and Hijacker, which /stream and /ws need.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message})
}

// writeError maps domain errors to status codes. Validation failures carry
// their field breakdown; anything unexpected is opaque to the client.
func writeError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": verr.Fields,
		})
		return
	}
	if store.IsNotFound(err) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("request failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal server error")
}
