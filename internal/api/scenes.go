package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/metadata"
)

// ReleaseResponse is one ranked candidate release
type ReleaseResponse struct {
	Title   string `json:"title"`
	Indexer string `json:"indexer"`
	Quality string `json:"quality"`
	Source  string `json:"source"`
	Size    int64  `json:"size"`
	Seeders int    `json:"seeders"`
	Hash    string `json:"hash,omitempty"`
}

// SceneSearchResponse reports a scene-targeted search
type SceneSearchResponse struct {
	SceneID   string             `json:"sceneId"`
	Title     string             `json:"title"`
	Raw       int                `json:"raw"`
	Validated int                `json:"validated"`
	Ranked    []ReleaseResponse  `json:"ranked"`
	Selected  *ReleaseResponse   `json:"selected,omitempty"`
	Method    string             `json:"method,omitempty"`
	Queued    *QueueItemResponse `json:"queued,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Errors    []string           `json:"indexerErrors,omitempty"`
}

func toReleaseResponse(r indexer.Release) ReleaseResponse {
	return ReleaseResponse{
		Title:   r.Title,
		Indexer: r.Indexer,
		Quality: r.Quality,
		Source:  r.Source,
		Size:    r.Size,
		Seeders: r.Seeders,
		Hash:    r.ContentHash,
	}
}

// searchScene searches the indexers for one scene. ?dryRun=true reports the
// selection without queueing it.
func (s *Server) searchScene(c echo.Context) error {
	sceneID := c.Param("id")
	dryRun, _ := strconv.ParseBool(c.QueryParam("dryRun"))

	result, err := s.scenes.SearchScene(c.Request().Context(), sceneID, dryRun)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "Scene not found")
	case errors.Is(err, indexer.ErrUnavailable):
		return errorJSON(c, http.StatusBadGateway, err.Error())
	case err != nil:
		s.logger.Error().Err(err).Str("scene", sceneID).Msg("scene search failed")
		return errorJSON(c, http.StatusInternalServerError, "Scene search failed")
	}

	outcome := result.Outcome
	resp := SceneSearchResponse{
		SceneID:   sceneID,
		Title:     outcome.Scene.Title,
		Raw:       outcome.Raw,
		Validated: outcome.Validated,
		Ranked:    make([]ReleaseResponse, 0, len(outcome.Ranked)),
		Reason:    result.Reason,
	}
	for _, r := range outcome.Ranked {
		resp.Ranked = append(resp.Ranked, toReleaseResponse(r))
	}
	if outcome.Selected != nil {
		selected := toReleaseResponse(outcome.Selected.Release)
		resp.Selected = &selected
		if outcome.Selected.Match != nil {
			resp.Method = string(outcome.Selected.Match.Method)
		}
	}
	if result.Item != nil {
		queued := toQueueResponse(*result.Item)
		resp.Queued = &queued
	}
	for _, e := range outcome.IndexerErrors {
		resp.Errors = append(resp.Errors, e.Error())
	}

	status := http.StatusOK
	if resp.Queued != nil {
		status = http.StatusCreated
	}
	return c.JSON(status, resp)
}
