package api

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/scheduler"
)

// SystemStatus represents the overall system status
type SystemStatus struct {
	Version    string                   `json:"version"`
	StartTime  time.Time                `json:"startTime"`
	Uptime     string                   `json:"uptime"`
	OS         string                   `json:"os"`
	Arch       string                   `json:"arch"`
	GoVersion  string                   `json:"goVersion"`
	WebSockets int                      `json:"webSockets"`
	Queue      map[db.QueueStatus]int64 `json:"queue"`
}

// TaskInfo represents information about a scheduled task
type TaskInfo struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"lastRun"`
	NextRun  time.Time `json:"nextRun"`
	Running  bool      `json:"running"`
	Enabled  bool      `json:"enabled"`
}

// getSystemStatus returns system status information
func (s *Server) getSystemStatus(c echo.Context) error {
	status := SystemStatus{
		Version:   s.opts.Version,
		StartTime: s.startTime,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		Queue:     make(map[db.QueueStatus]int64),
	}
	if s.wsHub != nil {
		status.WebSockets = s.wsHub.ClientCount()
	}

	for _, st := range []db.QueueStatus{db.StatusQueued, db.StatusDownloading, db.StatusPaused, db.StatusCompleted, db.StatusFailed, db.StatusAddFailed} {
		_, total, err := s.queue.List(c.Request().Context(), queue.ListOptions{Statuses: []db.QueueStatus{st}, Limit: 1})
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to count queue")
		}
		status.Queue[st] = total
	}

	return c.JSON(http.StatusOK, status)
}

// getSystemTasks returns information about scheduled tasks
func (s *Server) getSystemTasks(c echo.Context) error {
	infos := s.tasks.GetTasks()
	tasks := make([]TaskInfo, 0, len(infos))
	for _, t := range infos {
		tasks = append(tasks, TaskInfo{
			Name:     t.Name,
			Interval: t.Interval.String(),
			LastRun:  t.LastRun,
			NextRun:  t.NextRun,
			Running:  t.Running,
			Enabled:  t.Enabled,
		})
	}
	return c.JSON(http.StatusOK, tasks)
}

// runSystemTask manually triggers a scheduled task. The task runs in the
// background; progress is reported over the websocket.
func (s *Server) runSystemTask(c echo.Context) error {
	taskName := c.Param("name")

	known := false
	for _, t := range s.tasks.GetTasks() {
		if t.Name == taskName {
			known = true
			if t.Running {
				return errorJSON(c, http.StatusConflict, "Task is already running")
			}
		}
	}
	if !known {
		return errorJSON(c, http.StatusNotFound, "Task not found")
	}

	go func() {
		if err := s.tasks.RunNow(taskName); err != nil && !errors.Is(err, scheduler.ErrTaskRunning) {
			s.logger.Warn().Err(err).Str("task", taskName).Msg("manual task run failed")
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Task " + taskName + " started",
	})
}
