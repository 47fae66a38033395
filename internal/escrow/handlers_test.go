package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/securepay/internal/listing"
	"github.com/campusmarket/securepay/internal/processor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Test Setup ---

func setupTestRouter(t *testing.T) (*gin.Engine, *Service, *processor.Fake, listing.Store) {
	t.Helper()

	fake := processor.NewFake()
	listings := listing.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(NewMemoryStore(), listings, fake, 700, "cad", "http://localhost:5173", logger)

	router := gin.New()
	// Stand-in for the gateway identity middleware.
	router.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("authUserID", userID)
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(router.Group("/v1/payments"))
	return router, svc, fake, listings
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedHandlerListing(t *testing.T, listings listing.Store, id, sellerID string, priceCents int64) {
	t.Helper()
	now := time.Now()
	require.NoError(t, listings.Create(context.Background(), &listing.Listing{
		ID:         id,
		SellerID:   sellerID,
		Title:      "Mini fridge",
		PriceCents: priceCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

// activateHold completes checkout + activation through the HTTP surface.
func activateHold(t *testing.T, router *gin.Engine, fake *processor.Fake, listingID, buyerID string) map[string]any {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/sessions", buyerID,
		gin.H{"listingId": listingID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var intent struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	fake.MarkAuthorized(intent.SessionID)

	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/activate", buyerID,
		gin.H{"listingId": listingID, "sessionId": intent.SessionID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Transaction map[string]any `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Transaction
}

// --- CreateSession ---

func TestCreateSessionHandler(t *testing.T) {
	router, _, _, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/sessions", "buyer",
		gin.H{"listingId": "lst_1"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var intent SessionIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.NotEmpty(t, intent.CheckoutURL)
	assert.NotEmpty(t, intent.SessionID)
	assert.Equal(t, int64(10700), intent.AmountCents)
	assert.Equal(t, int64(700), intent.FeeCents)
}

func TestCreateSessionHandler_MissingBody(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/sessions", "buyer", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSessionHandler_UnknownListing(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/sessions", "buyer",
		gin.H{"listingId": "lst_missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionHandler_SelfDeal(t *testing.T) {
	router, _, _, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "alice", 10000)

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/sessions", "alice",
		gin.H{"listingId": "lst_1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "self_transaction_denied")
}

// --- Activate ---

func TestActivateHandler(t *testing.T) {
	router, _, fake, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)

	tx := activateHold(t, router, fake, "lst_1", "buyer")
	assert.Equal(t, "held", tx["paymentStatus"])
	assert.Equal(t, float64(10700), tx["amountCents"])
	// The processor reference must never reach clients.
	assert.NotContains(t, tx, "PaymentIntentID")
	assert.NotContains(t, tx, "paymentIntentId")
}

func TestActivateHandler_NotAuthorized(t *testing.T) {
	router, _, _, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/sessions", "buyer",
		gin.H{"listingId": "lst_1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var intent SessionIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))

	// Activation without a completed checkout.
	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/activate", "buyer",
		gin.H{"listingId": "lst_1", "sessionId": intent.SessionID})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "payment_not_authorized")
}

func TestActivateHandler_ForeignSession(t *testing.T) {
	router, _, fake, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)
	tx := activateHold(t, router, fake, "lst_1", "buyer")

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/activate", "mallory",
		gin.H{"listingId": "lst_1", "sessionId": tx["sessionId"]})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "session_already_consumed")
}

// --- Lifecycle over HTTP ---

func TestLifecycleHandlers(t *testing.T) {
	router, _, fake, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)
	tx := activateHold(t, router, fake, "lst_1", "buyer")
	txID := tx["id"].(string)

	// Receipt before handoff is rejected.
	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/confirm-receipt", "buyer", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "handoff_not_confirmed")

	// Only the seller may confirm handoff.
	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/confirm-handoff", "buyer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/confirm-handoff", "seller", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Only the buyer may confirm receipt.
	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/confirm-receipt", "seller", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/confirm-receipt", "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"paymentStatus":"captured"`)

	// Terminal: further transitions conflict.
	w = doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/dispute", "buyer", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDisputeHandler_AutoRefund(t *testing.T) {
	router, _, fake, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)
	tx := activateHold(t, router, fake, "lst_1", "buyer")
	txID := tx["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/v1/payments/secure-pay/"+txID+"/dispute", "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"paymentStatus":"refunded"`)
	assert.True(t, fake.Canceled(tx["sessionId"].(string)))
}

// --- GetForListing ---

func TestGetForListingHandler(t *testing.T) {
	router, _, fake, listings := setupTestRouter(t)
	seedHandlerListing(t, listings, "lst_1", "seller", 10000)
	activateHold(t, router, fake, "lst_1", "buyer")

	w := doJSON(t, router, http.MethodGet, "/v1/payments/secure-pay/listings/lst_1", "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isBuyer":true`)
	assert.Contains(t, w.Body.String(), `"isSeller":false`)

	// A third party gets a null transaction, not an error.
	w = doJSON(t, router, http.MethodGet, "/v1/payments/secure-pay/listings/lst_1", "rando", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transaction":null`)
}
