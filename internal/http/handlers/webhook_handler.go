// Platform webhook and revenue HTTP handlers.
//
// Endpoints:
//   - POST /webhooks          (inventory updates and app uninstalls)
//   - GET  /recover/{token}   (recovery link redemption)
//   - POST /orders            (order revenue attribution)
//
// The webhook boundary acknowledges the platform with 200 whenever the topic
// is recognized, regardless of processing outcome; processing failures are
// logged and absorbed so the platform never retries a partially handled
// delivery.
package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/restocklab/go-restock-backend/internal/http/middleware"
	"github.com/restocklab/go-restock-backend/internal/services"
)

// Webhook metadata headers, following the storefront platform convention.
const (
	HeaderWebhookTopic     = "X-Webhook-Topic"
	HeaderShopDomain       = "X-Shop-Domain"
	HeaderWebhookSignature = "X-Webhook-Hmac-Sha256"
)

// validSignature reports whether sig is the hex-encoded HMAC-SHA256 of body
// under secret. Comparison is constant-time.
func validSignature(secret string, body []byte, sig string) bool {
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

//
// DTOs
//

// InventoryWebhookBody is the JSON payload of an inventory_levels/update
// webhook.
type InventoryWebhookBody struct {
	VariantID string `json:"variant_id" binding:"required" example:"ext-var-1001"`
	Quantity  int    `json:"quantity"   example:"12"`
}

// AttributeOrderBody is the JSON payload for recording order revenue.
type AttributeOrderBody struct {
	ShopDomain    string `json:"shop_domain"    binding:"required" example:"demo-store.myshopify.com"`
	OrderID       string `json:"order_id"       binding:"required" example:"order-5001"`
	RecoveryToken string `json:"recovery_token,omitempty"`
	Revenue       string `json:"revenue"        binding:"required" example:"49.90"`
}

// RedeemResponse reports a successfully redeemed recovery link.
type RedeemResponse struct {
	RecoveryLinkID  string `json:"recovery_link_id"`
	DemandRequestID string `json:"demand_request_id"`
}

//
// Handlers
//

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive a platform webhook
// @Description Routes by the X-Webhook-Topic header. Recognized topics are
// @Description acknowledged with 200 even when processing fails internally.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       X-Webhook-Topic        header  string  true   "Topic"  example(inventory_levels/update)
// @Param       X-Shop-Domain          header  string  true   "Storefront domain"
// @Param       X-Webhook-Hmac-Sha256  header  string  false  "Hex HMAC-SHA256 of the raw body (required when a shared secret is configured)"
// @Param       body             body    handlers.InventoryWebhookBody  false  "Inventory payload (inventory topic only)"
// @Success     200  {object}  map[string]string
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown topic or malformed payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Router      /webhooks [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	topic := c.GetHeader(HeaderWebhookTopic)
	shopDomain := c.GetHeader(HeaderShopDomain)
	if topic == "" || shopDomain == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Webhook-Topic and X-Shop-Domain headers are required")
		return
	}

	// Signature precondition: the HMAC covers the exact raw body bytes, so
	// they are read once here and handed back for JSON binding below.
	if h.WebhookSecret != "" {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read request body")
			return
		}
		if !validSignature(h.WebhookSecret, raw, c.GetHeader(HeaderWebhookSignature)) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook signature")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	}

	// A redelivery of an already-processed webhook is acknowledged without
	// reprocessing.
	if middleware.IsReplay(c) {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, gin.H{"status": "accepted"})
		return
	}

	switch topic {
	case services.TopicInventoryUpdate:
		var body InventoryWebhookBody
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "variant_id is required")
			return
		}
		// Queued when the job layer is enabled, inline otherwise. Either way
		// the platform gets its ack now.
		if err := h.submitter.SubmitInventoryUpdate(c.Request.Context(), shopDomain, services.InventoryUpdatePayload{
			VariantID: body.VariantID,
			Quantity:  body.Quantity,
		}); err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not accept webhook")
			return
		}
	case services.TopicAppUninstalled:
		h.webhookSvc.HandleAppUninstalled(c.Request.Context(), shopDomain)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown webhook topic")
		return
	}

	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey && h.RecordDelivery != nil {
		if err := h.RecordDelivery(c.Request.Context(), shopDomain, key); err != nil {
			// Recording is best effort: a miss only means a redelivery gets
			// reprocessed, which every topic tolerates.
			middleware.LoggerFrom(c).Warn().Err(err).Msg("could not record webhook delivery")
		}
	}

	ok(c, http.StatusOK, gin.H{"status": "accepted"})
}

// RedeemLink godoc
// @ID          redeemLink
// @Summary     Redeem a recovery link token
// @Tags        Recovery
// @Produce     json
// @Param       token  path  string  true  "Recovery token"
// @Success     200  {object}  handlers.RedeemResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown token"
// @Failure     410  {object}  handlers.ErrorResponse  "Expired link"
// @Router      /recover/{token} [get]
func (h *Handlers) RedeemLink(c *gin.Context) {
	link, err := h.recoverySvc.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLinkNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recovery link not found")
		case errors.Is(err, services.ErrLinkExpired):
			fail(c, http.StatusGone, ErrCodeLinkExpired, "recovery link has expired")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not redeem link")
		}
		return
	}
	ok(c, http.StatusOK, RedeemResponse{
		RecoveryLinkID:  link.ID,
		DemandRequestID: link.DemandRequestID,
	})
}

// AttributeOrder godoc
// @ID          attributeOrder
// @Summary     Record order revenue
// @Description Records an order's revenue, attributing it to a recovery link
// @Description when a valid token accompanies it. An order is attributed at
// @Description most once.
// @Tags        Recovery
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.AttributeOrderBody  true  "Order payload"
// @Success     201  {object}  domain.OrderAttribution
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed payload"
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Order already attributed"
// @Router      /orders [post]
func (h *Handlers) AttributeOrder(c *gin.Context) {
	var body AttributeOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "shop_domain, order_id and revenue are required")
		return
	}

	revenue, err := decimal.NewFromString(body.Revenue)
	if err != nil || revenue.IsNegative() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "revenue must be a non-negative decimal")
		return
	}

	shop, err := h.shopSvc.GetByDomain(c.Request.Context(), body.ShopDomain)
	if err != nil {
		if errors.Is(err, services.ErrShopNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "shop not found")
		} else {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not resolve shop")
		}
		return
	}

	attr, err := h.recoverySvc.AttributeOrder(c.Request.Context(), shop.ID, body.OrderID, body.RecoveryToken, revenue)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateOrder) {
			fail(c, http.StatusConflict, ErrCodeConflict, "order already attributed")
		} else {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not record order")
		}
		return
	}
	ok(c, http.StatusCreated, attr)
}

// Dashboard godoc
// @ID          dashboard
// @Summary     Merchant dashboard rollup
// @Description Products with live demand, restock priority hints, and the
// @Description shop's recovered-revenue totals.
// @Tags        Dashboard
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Success     200  {object}  services.DashboardData
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Router      /shops/{shop}/dashboard [get]
func (h *Handlers) Dashboard(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	data, err := h.dashSvc.Overview(c.Request.Context(), shop.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not build dashboard")
		return
	}
	ok(c, http.StatusOK, data)
}
