// Demand HTTP handlers.
//
// This file exposes the storefront widget and merchant notification
// endpoints:
//   - POST /widget/requests          (customer joins a variant's waitlist)
//   - GET  /widget/status            (widget payload: stock flag + demand count)
//   - POST /requests/{id}/notify     (merchant manually notifies one customer)
//   - GET  /shops/{shop}/products/{id}/waitlist (masked waitlist rollup)
//
// Handlers are transport-thin: they validate and normalize inputs, delegate
// to application services, and map service sentinel errors onto the stable
// HTTP error taxonomy in errors.go.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/services"
	"github.com/restocklab/go-restock-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DemandService defines the wait-list lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type DemandService interface {
	// CreateRequest records a customer opt-in, idempotent per (variant, contact).
	CreateRequest(ctx context.Context, shopDomain, variantID, contact, channel string) (*services.CreateRequestResult, error)
	// Notify runs the notify-then-commit protocol for one request.
	Notify(ctx context.Context, requestID string) (*services.NotifyResult, error)
	// Widget returns the storefront widget payload for a variant.
	Widget(ctx context.Context, shopDomain, variantID string) (*services.WidgetData, error)
	// ProductWaitlist returns the masked merchant waitlist for a product,
	// with per-entry recovered revenue and summary totals.
	ProductWaitlist(ctx context.Context, shopID, productID string) (*services.ProductWaitlistData, error)
}

// PlanService defines quota and tier operations consumed by HTTP handlers.
type PlanService interface {
	GetOrCreate(ctx context.Context, shopID string) (*domain.ShopPlan, error)
	UpdateTier(ctx context.Context, shopID string, tier domain.PlanTier) (*domain.ShopPlan, error)
}

// SettingsService defines per-shop toggle operations consumed by HTTP handlers.
type SettingsService interface {
	GetOrCreate(ctx context.Context, shopID string) (*domain.ShopSettings, error)
	SetAutoNotify(ctx context.Context, shopID string, enabled bool) (*domain.ShopSettings, error)
}

// ShopService defines install and catalog operations consumed by HTTP handlers.
type ShopService interface {
	UpsertShop(ctx context.Context, shopDomain, accessToken string) (*domain.Shop, error)
	GetByDomain(ctx context.Context, shopDomain string) (*domain.Shop, error)
	RegisterProduct(ctx context.Context, shopID, externalProductID, title string, imageURL *string) (*domain.Product, error)
	RegisterVariant(ctx context.Context, productID, externalVariantID string, inventory int) (*domain.Variant, error)
}

// DashboardService defines the merchant rollup consumed by HTTP handlers.
type DashboardService interface {
	Overview(ctx context.Context, shopID string) (*services.DashboardData, error)
}

// RecoveryService defines link redemption and order attribution consumed by
// HTTP handlers.
type RecoveryService interface {
	Redeem(ctx context.Context, token string) (*domain.RecoveryLink, error)
	AttributeOrder(ctx context.Context, shopID, orderID, token string, revenue decimal.Decimal) (*domain.OrderAttribution, error)
}

// WebhookSubmitter accepts platform webhook work, either queued or inline.
type WebhookSubmitter interface {
	SubmitInventoryUpdate(ctx context.Context, shopDomain string, payload services.InventoryUpdatePayload) error
}

// WebhookService handles the webhook topics processed synchronously.
type WebhookService interface {
	HandleAppUninstalled(ctx context.Context, shopDomain string)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the public API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	demandSvc   DemandService
	planSvc     PlanService
	settingsSvc SettingsService
	shopSvc     ShopService
	dashSvc     DashboardService
	recoverySvc RecoveryService
	webhookSvc  WebhookService
	submitter   WebhookSubmitter

	// RecordDelivery persists a processed webhook delivery for replay
	// detection. Optional; set by the router when idempotency is wired.
	RecordDelivery func(ctx context.Context, shopDomain, key string) error

	// WebhookSecret, when set, requires platform webhooks to carry a valid
	// HMAC-SHA256 signature over the raw body. Set by the router from config.
	WebhookSecret string
}

// New constructs a Handlers instance bound to the given services.
func New(
	demandSvc DemandService,
	planSvc PlanService,
	settingsSvc SettingsService,
	shopSvc ShopService,
	dashSvc DashboardService,
	recoverySvc RecoveryService,
	webhookSvc WebhookService,
	submitter WebhookSubmitter,
) *Handlers {
	return &Handlers{
		demandSvc:   demandSvc,
		planSvc:     planSvc,
		settingsSvc: settingsSvc,
		shopSvc:     shopSvc,
		dashSvc:     dashSvc,
		recoverySvc: recoverySvc,
		webhookSvc:  webhookSvc,
		submitter:   submitter,
	}
}

// resolveShop turns the :shop path parameter (a storefront domain) into the
// shop row, failing the request with 404 when unknown.
func (h *Handlers) resolveShop(c *gin.Context) (*domain.Shop, bool) {
	shop, err := h.shopSvc.GetByDomain(c.Request.Context(), c.Param("shop"))
	if err != nil {
		if errors.Is(err, services.ErrShopNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "shop not found")
		} else {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not resolve shop")
		}
		return nil, false
	}
	return shop, true
}

//
// DTOs
//

// CreateRequestBody is the JSON payload for a widget opt-in.
type CreateRequestBody struct {
	ShopDomain string `json:"shop_domain" binding:"required" example:"demo-store.myshopify.com"`
	VariantID  string `json:"variant_id"  binding:"required" example:"ext-var-1001"`
	Contact    string `json:"contact"     binding:"required" example:"jane@example.com"`
	Channel    string `json:"channel"     binding:"required" example:"EMAIL"`
}

// CreateRequestResponse reports the created (or pre-existing) waitlist entry.
type CreateRequestResponse struct {
	RequestID         string `json:"request_id"`
	Status            string `json:"status"`
	AlreadySubscribed bool   `json:"already_subscribed"`
}

// NotifyResponse reports a committed notification.
type NotifyResponse struct {
	RequestID      string `json:"request_id"`
	Status         string `json:"status"`
	RecoveryLinkID string `json:"recovery_link_id"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page     int   `json:"page"      example:"1"`
	PageSize int   `json:"page_size" example:"20"`
	Total    int64 `json:"total"     example:"137"`
}

// WaitlistSummary totals a product's waitlist across all pages.
type WaitlistSummary struct {
	TotalWaiting          int64  `json:"total_waiting"`
	TotalNotified         int64  `json:"total_notified"`
	TotalRecoveredRevenue string `json:"total_recovered_revenue" example:"120.00"`
}

// WaitlistResponse wraps a page of a product's masked waitlist entries.
type WaitlistResponse struct {
	Entries    []services.WaitlistEntry `json:"entries"`
	Summary    WaitlistSummary          `json:"summary"`
	Pagination Pagination               `json:"pagination"`
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createDemandRequest
// @Summary     Join a variant's restock waitlist
// @Description Records a customer's back-in-stock request. Idempotent per
// @Description (variant, contact): re-subscribing returns the existing entry
// @Description with already_subscribed=true.
// @Tags        Widget
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateRequestBody  true  "Opt-in payload"
// @Success     201  {object}  handlers.CreateRequestResponse  "Created"
// @Success     200  {object}  handlers.CreateRequestResponse  "Already subscribed"
// @Failure     400  {object}  handlers.ErrorResponse          "Invalid contact or channel"
// @Failure     404  {object}  handlers.ErrorResponse          "Shop or variant not found"
// @Failure     500  {object}  handlers.ErrorResponse          "Internal error"
// @Router      /widget/requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "shop_domain, variant_id, contact and channel are required")
		return
	}

	res, err := h.demandSvc.CreateRequest(c.Request.Context(), body.ShopDomain, body.VariantID, body.Contact, body.Channel)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedChannel):
			fail(c, http.StatusBadRequest, ErrCodeUnsupportedChannel, "channel must be EMAIL or WHATSAPP")
		case errors.Is(err, services.ErrInvalidContact):
			fail(c, http.StatusBadRequest, ErrCodeInvalidContact, "contact is not valid for the chosen channel")
		case errors.Is(err, services.ErrShopNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "shop not found")
		case errors.Is(err, services.ErrVariantNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "variant not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create request")
		}
		return
	}

	status := http.StatusCreated
	if res.AlreadySubscribed {
		status = http.StatusOK
	}
	ok(c, status, CreateRequestResponse{
		RequestID:         res.Request.ID,
		Status:            string(res.Request.Status),
		AlreadySubscribed: res.AlreadySubscribed,
	})
}

// WidgetStatus godoc
// @ID          widgetStatus
// @Summary     Storefront widget payload for a variant
// @Tags        Widget
// @Produce     json
// @Param       shop_domain  query  string  true  "Storefront domain"
// @Param       variant_id   query  string  true  "Variant id (row or storefront)"
// @Success     200  {object}  services.WidgetData
// @Failure     400  {object}  handlers.ErrorResponse  "Missing parameters"
// @Failure     404  {object}  handlers.ErrorResponse  "Shop or variant not found"
// @Router      /widget/status [get]
func (h *Handlers) WidgetStatus(c *gin.Context) {
	shopDomain := c.Query("shop_domain")
	variantID := c.Query("variant_id")
	if shopDomain == "" || variantID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "shop_domain and variant_id are required")
		return
	}

	data, err := h.demandSvc.Widget(c.Request.Context(), shopDomain, variantID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrShopNotFound), errors.Is(err, services.ErrVariantNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "shop or variant not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load widget data")
		}
		return
	}
	ok(c, http.StatusOK, data)
}

// NotifyRequest godoc
// @ID          notifyRequest
// @Summary     Notify one waiting customer
// @Description Sends the back-in-stock notification for a PENDING request.
// @Description The quota gate runs before any side effect; a delivery failure
// @Description leaves the request PENDING.
// @Tags        Demand
// @Produce     json
// @Param       id  path  string  true  "Demand request ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.NotifyResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already notified or converted"
// @Failure     429  {object}  handlers.ErrorResponse  "Monthly quota exhausted"
// @Failure     502  {object}  handlers.ErrorResponse  "Delivery failed"
// @Router      /requests/{id}/notify [post]
func (h *Handlers) NotifyRequest(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return
	}

	res, err := h.demandSvc.Notify(c.Request.Context(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "demand request not found")
		case errors.Is(err, services.ErrAlreadyNotified):
			fail(c, http.StatusConflict, ErrCodeAlreadyNotified, "customer has already been notified")
		case errors.Is(err, services.ErrAlreadyConverted):
			fail(c, http.StatusConflict, ErrCodeAlreadyConverted, "customer has already converted")
		case errors.Is(err, services.ErrQuotaExceeded):
			fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, err.Error())
		default:
			fail(c, http.StatusBadGateway, ErrCodeInternal, "notification delivery failed")
		}
		return
	}
	ok(c, http.StatusOK, NotifyResponse{
		RequestID:      res.Request.ID,
		Status:         string(res.Request.Status),
		RecoveryLinkID: res.RecoveryLinkID,
	})
}

// ProductWaitlist godoc
// @ID          productWaitlist
// @Summary     Masked waitlist for a product
// @Tags        Demand
// @Produce     json
// @Param       shop       path   string  true   "Storefront domain"
// @Param       id         path   string  true   "Product ID (UUID)"  format(uuid)
// @Param       page       query  int     false  "Page number (1-based)"
// @Param       page_size  query  int     false  "Page size (max 100)"
// @Success     200  {object}  handlers.WaitlistResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Shop or product not found"
// @Router      /shops/{shop}/products/{id}/waitlist [get]
func (h *Handlers) ProductWaitlist(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	data, err := h.demandSvc.ProductWaitlist(c.Request.Context(), shop.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
		} else {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load waitlist")
		}
		return
	}

	entries := data.Entries
	page, pageSize := clampPagination(c)
	total := int64(len(entries))
	start := (page - 1) * pageSize
	if start > len(entries) {
		start = len(entries)
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	ok(c, http.StatusOK, WaitlistResponse{
		Entries: entries[start:end],
		Summary: WaitlistSummary{
			TotalWaiting:          data.TotalWaiting,
			TotalNotified:         data.TotalNotified,
			TotalRecoveredRevenue: data.TotalRecoveredRevenue.StringFixed(2),
		},
		Pagination: Pagination{Page: page, PageSize: pageSize, Total: total},
	})
}
