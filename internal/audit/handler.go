package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tinytulsi/mart-backend/internal/api"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// LogUser is the acting user's public identity in a log entry
type LogUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LogEntry is one audit record in the admin listing
type LogEntry struct {
	User      *LogUser  `json:"user"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	Timestamp time.Time `json:"timestamp"`
}

// ListResponse is the paginated admin audit-log payload
type ListResponse struct {
	Logs       []LogEntry `json:"logs"`
	TotalLogs  int64      `json:"totalLogs"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
}

// Handler serves the admin audit-log query surface
type Handler struct {
	repo repository.AuditLogRepository
}

// NewHandler creates a Handler
func NewHandler(repo repository.AuditLogRepository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /admin/audit-logs?page&limit. The caller wraps it with
// authentication and admin-role middleware.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, total, err := h.repo.List(r.Context(), page, limit)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	logs := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		entry := LogEntry{
			Action:    e.Action,
			Details:   e.Details,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Timestamp: e.Timestamp,
		}
		if e.UserName != nil && e.UserEmail != nil {
			entry.User = &LogUser{Name: *e.UserName, Email: *e.UserEmail}
		}
		logs = append(logs, entry)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	api.WriteSuccess(w, http.StatusOK, ListResponse{
		Logs:       logs,
		TotalLogs:  total,
		Page:       page,
		TotalPages: totalPages,
	})
}
