package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/logserver/internal/logstore"
	"github.com/akave-ai/logserver/internal/model"
	"github.com/akave-ai/logserver/internal/response"
	"github.com/akave-ai/logserver/internal/storage"
	"github.com/akave-ai/logserver/internal/target"
)

const defaultJournalLimit = 100

type Users interface {
	Users() ([]model.User, error)
	Open(user string, entries int) (*logstore.Contents, error)
}

type JournalReader interface {
	ListByUser(ctx context.Context, user string, limit int) ([]model.JournalEvent, error)
}

type Archiver interface {
	ArchiveLog(ctx context.Context, user string, r io.Reader) (string, error)
	Archives(ctx context.Context, user string) ([]storage.Archive, error)
}

type StatsProvider interface {
	Snapshot() model.ServerStats
}

// OpsHandler serves the operator API. Journal and Archive are optional and
// answer 503 when not configured.
type OpsHandler struct {
	Users   Users
	Journal JournalReader
	Archive Archiver
	Stats   StatsProvider
}

// Register mounts the ops routes on e.
func (h *OpsHandler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/stats", h.GetStats)
	e.GET("/users", h.ListUsers)
	e.GET("/users/:user/journal", h.UserJournal)
	e.POST("/users/:user/archive", h.ArchiveUser)
	e.GET("/archives", h.ListArchives)
}

// Health reports liveness (GET /healthz).
func (h *OpsHandler) Health(c echo.Context) error {
	return response.Reply(c, map[string]string{"status": "ok"})
}

// GetStats returns connection counters (GET /stats).
func (h *OpsHandler) GetStats(c echo.Context) error {
	return response.Reply(c, h.Stats.Snapshot())
}

// ListUsers returns every known user and the size of their log (GET /users).
func (h *OpsHandler) ListUsers(c echo.Context) error {
	users, err := h.Users.Users()
	if err != nil {
		return response.Fail(c, http.StatusInternalServerError, "list users failed", err)
	}
	return response.Reply(c, map[string]any{"users": users})
}

// UserJournal returns recent journal events for a user (GET /users/:user/journal).
func (h *OpsHandler) UserJournal(c echo.Context) error {
	if h.Journal == nil {
		return response.Disabled(c, "journal")
	}
	user := c.Param("user")
	if err := target.ValidateUser(user); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid user", err)
	}
	limit := defaultJournalLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return response.Fail(c, http.StatusBadRequest, "invalid limit", errors.New("limit must be a positive integer"))
		}
		limit = n
	}
	events, err := h.Journal.ListByUser(c.Request().Context(), user, limit)
	if err != nil {
		return response.Fail(c, http.StatusInternalServerError, "list journal failed", err)
	}
	return response.Reply(c, map[string]any{"user": user, "events": events})
}

// ArchiveUser uploads a compressed copy of a user's log (POST /users/:user/archive).
func (h *OpsHandler) ArchiveUser(c echo.Context) error {
	if h.Archive == nil {
		return response.Disabled(c, "archive")
	}
	user := c.Param("user")
	if err := target.ValidateUser(user); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid user", err)
	}
	contents, err := h.Users.Open(user, 0)
	if err != nil {
		if errors.Is(err, logstore.ErrUserNotFound) {
			return response.Fail(c, http.StatusNotFound, "unknown user", fmt.Errorf("no logs found for user '%s'", user))
		}
		return response.Fail(c, http.StatusInternalServerError, "open log failed", err)
	}
	defer contents.Close()

	key, err := h.Archive.ArchiveLog(c.Request().Context(), user, contents)
	if err != nil {
		return response.Fail(c, http.StatusInternalServerError, "archive upload failed", err)
	}
	return response.ReplyNote(c, map[string]any{"key": key, "bytes": contents.Size}, "archived")
}

// ListArchives lists stored snapshots, optionally for one user
// (GET /archives?user=alice).
func (h *OpsHandler) ListArchives(c echo.Context) error {
	if h.Archive == nil {
		return response.ReplyNote(c, map[string]any{"archives": []storage.Archive{}}, "archive not configured")
	}
	user := c.QueryParam("user")
	if user != "" {
		if err := target.ValidateUser(user); err != nil {
			return response.Fail(c, http.StatusBadRequest, "invalid user", err)
		}
	}
	list, err := h.Archive.Archives(c.Request().Context(), user)
	if err != nil {
		return response.Fail(c, http.StatusInternalServerError, "list archives failed", err)
	}
	return response.Reply(c, map[string]any{"archives": list})
}
