package boost

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/securepay/internal/listing"
)

// Handler provides HTTP endpoints for listing boosts.
type Handler struct {
	service *Service
}

// NewHandler creates a new boost handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up boost routes. Requires the auth middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/boost/sessions", h.CreateSession)
	r.POST("/boost/activate", h.Activate)
}

// CreateSessionRequest is the body for POST /v1/payments/boost/sessions.
type CreateSessionRequest struct {
	ListingID string `json:"listingId" binding:"required"`
}

// ActivateRequest is the body for POST /v1/payments/boost/activate.
type ActivateRequest struct {
	ListingID string `json:"listingId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// CreateSession handles POST /v1/payments/boost/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "listingId is required",
		})
		return
	}

	intent, err := h.service.CreateSession(c.Request.Context(), req.ListingID, c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"checkoutUrl": intent.CheckoutURL,
		"sessionId":   intent.SessionID,
		"priceCents":  h.service.PriceCents(),
	})
}

// Activate handles POST /v1/payments/boost/activate
func (h *Handler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "listingId and sessionId are required",
		})
		return
	}

	activation, err := h.service.Activate(c.Request.Context(), req.ListingID, req.SessionID, c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, activation)
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, listing.ErrListingNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrSessionMismatch):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrPaymentNotCompleted):
		status = http.StatusPaymentRequired
		code = "payment_not_completed"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
