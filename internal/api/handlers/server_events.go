package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trustchecker.io/trustchecker/internal/dlq"
	"trustchecker.io/trustchecker/internal/eventbus"
)

// publishRequest is the body of POST /events.
type publishRequest struct {
	Type    string           `json:"type" binding:"required"`
	Data    map[string]any   `json:"data" binding:"required"`
	Context eventbus.Context `json:"context"`
}

// PublishEvent handles POST /events: validate and publish a domain event.
func (s *Server) PublishEvent(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_BODY", "message": err.Error()})
		return
	}

	env, err := s.bus.Publish(c.Request.Context(), req.Type, req.Data, req.Context)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, env)
}

// GetEventStatus handles GET /events/status: bus counters plus DLQ depth.
func (s *Server) GetEventStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bus":      s.bus.GetStats(),
		"dlq":      s.queue.GetStats(),
		"dlqDepth": s.queue.Depth(c.Request.Context()),
		"workers":  s.pools.Metrics(),
	})
}

// ListEventTypes handles GET /events/types: registered schemas.
func (s *Server) ListEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"eventTypes": s.schemas.ListEventTypes()})
}

// InspectDLQ handles GET /events/dlq/:group.
func (s *Server) InspectDLQ(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := s.queue.Inspect(c.Request.Context(), c.Param("group"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// replayRequest is the body of POST /events/dlq/:group/replay. An empty
// EntryID replays every pending entry of the group.
type replayRequest struct {
	EntryID string `json:"entryId"`
}

// ReplayDLQ handles POST /events/dlq/:group/replay. Replayed events are
// re-published to the bus so every consumer group sees them again.
func (s *Server) ReplayDLQ(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_BODY", "message": err.Error()})
		return
	}

	group := c.Param("group")
	handler := s.republishHandler()

	if req.EntryID != "" {
		result := s.queue.Replay(c.Request.Context(), group, req.EntryID, handler)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, result)
		return
	}

	c.JSON(http.StatusOK, s.queue.ReplayAll(c.Request.Context(), group, handler))
}

// republishHandler replays a dead-lettered envelope by publishing it as a
// fresh event. Validation runs again; an event whose schema has since
// tightened fails the replay instead of re-entering the stream.
func (s *Server) republishHandler() dlq.Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var env eventbus.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		_, err := s.bus.Publish(ctx, env.Type, env.Data, env.Context)
		return err
	}
}

// PurgeDLQ handles DELETE /events/dlq/:group.
func (s *Server) PurgeDLQ(c *gin.Context) {
	if err := s.queue.Purge(c.Request.Context(), c.Param("group")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": c.Param("group")})
}
