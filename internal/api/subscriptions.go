package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/subscriptions"
)

// SubscriptionRequest represents a request to follow an entity
type SubscriptionRequest struct {
	Kind       db.SubscriptionKind `json:"kind"`
	ExternalID string              `json:"externalId"`
	Name       string              `json:"name"`
	Aliases    []string            `json:"aliases"`
}

// getSubscriptions returns active subscriptions
func (s *Server) getSubscriptions(c echo.Context) error {
	subs, err := s.subs.ListActive(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Failed to list subscriptions")
	}
	return c.JSON(http.StatusOK, subs)
}

// addSubscription follows a performer, studio or scene
func (s *Server) addSubscription(c echo.Context) error {
	var req SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.ExternalID == "" || req.Name == "" {
		return errorJSON(c, http.StatusBadRequest, "externalId and name are required")
	}

	sub := db.Subscription{Kind: req.Kind, ExternalID: req.ExternalID, Name: req.Name}
	if err := s.subs.Create(c.Request().Context(), &sub, req.Aliases); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sub)
}

// removeSubscription stops following an entity. Queue history is kept.
func (s *Server) removeSubscription(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid subscription ID")
	}
	err = s.subs.SetActive(c.Request().Context(), uint(id), false)
	if errors.Is(err, subscriptions.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Subscription not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Failed to remove subscription")
	}
	return c.NoContent(http.StatusNoContent)
}
