package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/queue"
)

// QueueItemResponse represents a queue item
type QueueItemResponse struct {
	ID             uint           `json:"id"`
	SceneID        string         `json:"sceneId"`
	SubscriptionID *uint          `json:"subscriptionId,omitempty"`
	Placeholder    bool           `json:"placeholder"`
	Title          string         `json:"title"`
	Indexer        string         `json:"indexer"`
	Quality        string         `json:"quality"`
	Source         string         `json:"source"`
	Size           int64          `json:"size"`
	Seeders        int            `json:"seeders"`
	ContentHash    string         `json:"contentHash,omitempty"`
	ClientHash     string         `json:"clientHash,omitempty"`
	Status         db.QueueStatus `json:"status"`
	Progress       float64        `json:"progress"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"lastError,omitempty"`
	AddedAt        time.Time      `json:"addedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// QueueListResponse is one page of queue items
type QueueListResponse struct {
	Items []QueueItemResponse `json:"items"`
	Total int64               `json:"total"`
}

func toQueueResponse(item db.QueueItem) QueueItemResponse {
	resp := QueueItemResponse{
		ID:             item.ID,
		SceneID:        item.SceneID,
		SubscriptionID: item.SubscriptionID,
		Placeholder:    item.Placeholder,
		Title:          item.Title,
		Indexer:        item.Indexer,
		Quality:        item.Quality,
		Source:         item.Source,
		Size:           item.Size,
		Seeders:        item.Seeders,
		ContentHash:    item.ContentHash,
		Status:         item.Status,
		Progress:       item.Progress,
		Attempts:       item.Attempts,
		LastError:      item.LastError,
		AddedAt:        item.AddedAt,
		CompletedAt:    item.CompletedAt,
	}
	if item.ClientHash != nil {
		resp.ClientHash = *item.ClientHash
	}
	return resp
}

// getQueue lists queue items, newest first. ?status= takes a comma separated
// list; ?limit= and ?offset= page the result.
func (s *Server) getQueue(c echo.Context) error {
	opts := queue.ListOptions{Limit: 50}

	if raw := c.QueryParam("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			opts.Statuses = append(opts.Statuses, db.QueueStatus(strings.TrimSpace(st)))
		}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			return errorJSON(c, http.StatusBadRequest, "limit must be between 1 and 500")
		}
		opts.Limit = limit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return errorJSON(c, http.StatusBadRequest, "Invalid offset")
		}
		opts.Offset = offset
	}

	items, total, err := s.queue.List(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("list queue failed")
		return errorJSON(c, http.StatusInternalServerError, "Failed to list queue")
	}

	resp := QueueListResponse{Items: make([]QueueItemResponse, 0, len(items)), Total: total}
	for _, item := range items {
		resp.Items = append(resp.Items, toQueueResponse(item))
	}
	return c.JSON(http.StatusOK, resp)
}

// getQueueItem returns a single queue item
func (s *Server) getQueueItem(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid queue item ID")
	}

	item, err := s.queue.Get(c.Request().Context(), uint(id))
	if errors.Is(err, queue.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Queue item not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Failed to load queue item")
	}
	return c.JSON(http.StatusOK, toQueueResponse(item))
}
