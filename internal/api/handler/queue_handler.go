package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/sweeper"
	"github.com/gin-gonic/gin"
)

// QueueHandler handles the domain queue endpoints.
type QueueHandler struct {
	registry *queue.Registry
	jobs     *repository.JobRepository
	sweeper  *sweeper.Sweeper
}

// NewQueueHandler creates a new queue handler.
// Parameters:
//   - registry: domain queue registry.
//   - jobs: job repository for listings.
//   - sw: sweeper for the on-demand reclaim endpoint.
// Returns:
//   - *QueueHandler: initialized handler.
func NewQueueHandler(registry *queue.Registry, jobs *repository.JobRepository, sw *sweeper.Sweeper) *QueueHandler {
	return &QueueHandler{
		registry: registry,
		jobs:     jobs,
		sweeper:  sw,
	}
}

// ListQueues handles GET /api/v1/queues, returning per-status counts for
// every domain queue.
func (h *QueueHandler) ListQueues(c *gin.Context) {
	type queueStats struct {
		Name   string                     `json:"name"`
		Counts map[domain.JobStatus]int64 `json:"counts"`
	}

	stats := make([]queueStats, 0, len(h.registry.Names()))
	for _, q := range h.registry.All() {
		counts, err := q.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load queue stats: " + err.Error(),
			})
			return
		}
		stats = append(stats, queueStats{Name: q.Name(), Counts: counts})
	}
	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

// ListJobs handles GET /api/v1/queues/:name/jobs.
func (h *QueueHandler) ListJobs(c *gin.Context) {
	name := c.Param("name")
	if h.registry.Get(name) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown queue: " + name})
		return
	}

	status := domain.JobStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.jobs.ListByQueue(c.Request.Context(), name, status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// enqueueRequest is the body of POST /api/v1/queues/:name/jobs.
type enqueueRequest struct {
	SubjectKey  string            `json:"subject_key" binding:"required"`
	Payload     domain.JobPayload `json:"payload"`
	OperationID *string           `json:"operation_id"`
}

// Enqueue handles POST /api/v1/queues/:name/jobs.
func (h *QueueHandler) Enqueue(c *gin.Context) {
	name := c.Param("name")
	q := h.registry.Get(name)
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown queue: " + name})
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	job, err := q.Enqueue(c.Request.Context(), req.SubjectKey, req.Payload, req.OperationID)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// Reclaim handles POST /api/v1/queues/:name/reclaim, an on-demand zombie
// sweep of one queue. The special name "all" sweeps every queue.
func (h *QueueHandler) Reclaim(c *gin.Context) {
	name := c.Param("name")

	if name == "all" {
		total, err := h.sweeper.ReclaimAll(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Sweep finished with errors: " + err.Error(),
				"reclaimed": total,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reclaimed": total})
		return
	}

	q := h.registry.Get(name)
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown queue: " + name})
		return
	}

	reclaimed, err := h.sweeper.ReclaimQueue(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reclaim queue: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reclaimed": reclaimed})
}
