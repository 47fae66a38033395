package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmarket/securepay/internal/listing"
)

// Handler provides HTTP endpoints for the Secure-Pay workflow.
type Handler struct {
	service *Service
}

// NewHandler creates a new Secure-Pay handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up Secure-Pay routes. All routes require the auth
// middleware to have set authUserID; actor identity is never taken from the
// request body.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/secure-pay/sessions", h.CreateSession)
	r.POST("/secure-pay/activate", h.Activate)
	r.GET("/secure-pay/listings/:listingID", h.GetForListing)
	r.POST("/secure-pay/:txID/confirm-handoff", h.ConfirmHandoff)
	r.POST("/secure-pay/:txID/confirm-receipt", h.ConfirmReceipt)
	r.POST("/secure-pay/:txID/dispute", h.Dispute)
}

// CreateSessionRequest is the body for POST /v1/payments/secure-pay/sessions.
type CreateSessionRequest struct {
	ListingID string `json:"listingId" binding:"required"`
}

// ActivateRequest is the body for POST /v1/payments/secure-pay/activate.
type ActivateRequest struct {
	ListingID string `json:"listingId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// CreateSession handles POST /v1/payments/secure-pay/sessions
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

	c.JSON(http.StatusCreated, intent)
}

// Activate handles POST /v1/payments/secure-pay/activate
func (h *Handler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "listingId and sessionId are required",
		})
		return
	}

	tx, err := h.service.Activate(c.Request.Context(), req.ListingID, req.SessionID, c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// GetForListing handles GET /v1/payments/secure-pay/listings/:listingID
func (h *Handler) GetForListing(c *gin.Context) {
	view, err := h.service.GetForListing(c.Request.Context(), c.Param("listingID"), c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}

	// No transaction is a normal state for a listing, not an error.
	if view == nil {
		c.JSON(http.StatusOK, gin.H{"transaction": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": view})
}

// ConfirmHandoff handles POST /v1/payments/secure-pay/:txID/confirm-handoff
func (h *Handler) ConfirmHandoff(c *gin.Context) {
	tx, err := h.service.ConfirmHandoff(c.Request.Context(), c.Param("txID"), c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ConfirmReceipt handles POST /v1/payments/secure-pay/:txID/confirm-receipt
func (h *Handler) ConfirmReceipt(c *gin.Context) {
	tx, err := h.service.ConfirmReceipt(c.Request.Context(), c.Param("txID"), c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// Dispute handles POST /v1/payments/secure-pay/:txID/dispute
func (h *Handler) Dispute(c *gin.Context) {
	tx, err := h.service.Dispute(c.Request.Context(), c.Param("txID"), c.GetString("authUserID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// respondError maps domain errors to HTTP status codes and stable error codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, listing.ErrListingNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
		code = "session_not_found"
	case errors.Is(err, ErrNotSeller), errors.Is(err, ErrNotBuyer), errors.Is(err, ErrSessionMismatch):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrSelfTransactionDenied):
		status = http.StatusBadRequest
		code = "self_transaction_denied"
	case errors.Is(err, ErrListingUnavailable):
		status = http.StatusConflict
		code = "listing_unavailable"
	case errors.Is(err, ErrSessionAlreadyConsumed):
		status = http.StatusConflict
		code = "session_already_consumed"
	case errors.Is(err, ErrAlreadyConfirmed):
		status = http.StatusConflict
		code = "already_confirmed"
	case errors.Is(err, ErrHandoffNotConfirmed):
		status = http.StatusConflict
		code = "handoff_not_confirmed"
	case errors.Is(err, ErrInvalidState):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrPaymentNotAuthorized):
		status = http.StatusPaymentRequired
		code = "payment_not_authorized"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
