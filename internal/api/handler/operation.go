package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/ledger"
	"github.com/gin-gonic/gin"
)

// OperationHandler handles the global operation ledger endpoints.
type OperationHandler struct {
	ledger *ledger.Ledger
}

// NewOperationHandler creates a new operation handler.
// Parameters:
//   - led: ledger service instance.
// Returns:
//   - *OperationHandler: initialized handler.
func NewOperationHandler(led *ledger.Ledger) *OperationHandler {
	return &OperationHandler{ledger: led}
}

// submitOperationRequest is the body of POST /api/v1/operations.
type submitOperationRequest struct {
	Type        domain.OperationType    `json:"operation_type" binding:"required"`
	Description string                  `json:"description"`
	Context     domain.OperationContext `json:"context"`
	OnItemError domain.OnItemError      `json:"on_item_error"`
	TotalItems  int                     `json:"total_items"`
	StartedBy   string                  `json:"started_by"`
}

// Submit handles POST /api/v1/operations.
func (h *OperationHandler) Submit(c *gin.Context) {
	var req submitOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	op, err := h.ledger.Submit(c.Request.Context(), ledger.SubmitRequest{
		Type:        req.Type,
		Description: req.Description,
		Context:     req.Context,
		OnItemError: req.OnItemError,
		TotalItems:  req.TotalItems,
		StartedBy:   req.StartedBy,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to submit operation: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, op)
}

// List handles GET /api/v1/operations. Supports status and classification
// query filters for the live feed.
func (h *OperationHandler) List(c *gin.Context) {
	status := domain.OperationStatus(c.Query("status"))
	class := domain.OperationClass(c.Query("classification"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ops, err := h.ledger.List(c.Request.Context(), status, class, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list operations: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"operations": ops,
		"count":      len(ops),
	})
}

// Get handles GET /api/v1/operations/:id, returning the operation with its
// bounded error log.
func (h *OperationHandler) Get(c *gin.Context) {
	id := c.Param("id")

	op, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load operation: " + err.Error(),
		})
		return
	}

	errLog, err := h.ledger.Errors(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load error log: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operation": op,
		"error_log": errLog,
	})
}

// Pause handles POST /api/v1/operations/:id/pause.
func (h *OperationHandler) Pause(c *gin.Context) {
	h.transition(c, h.ledger.Pause)
}

// Resume handles POST /api/v1/operations/:id/resume.
func (h *OperationHandler) Resume(c *gin.Context) {
	h.transition(c, h.ledger.Resume)
}

// Cancel handles POST /api/v1/operations/:id/cancel.
func (h *OperationHandler) Cancel(c *gin.Context) {
	h.transition(c, h.ledger.Cancel)
}

// transition applies one ledger transition and maps its error taxonomy to
// HTTP statuses.
func (h *OperationHandler) transition(c *gin.Context, fn func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := fn(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
		case errors.Is(err, ledger.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	op, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, op)
}
