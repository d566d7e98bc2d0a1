package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/services"
)

// ---------- flexible service stubs ----------

type stubDemandSvc struct {
	create   func(ctx context.Context, shopDomain, variantID, contact, channel string) (*services.CreateRequestResult, error)
	notify   func(ctx context.Context, requestID string) (*services.NotifyResult, error)
	widget   func(ctx context.Context, shopDomain, variantID string) (*services.WidgetData, error)
	waitlist func(ctx context.Context, shopID, productID string) (*services.ProductWaitlistData, error)
}

func (s stubDemandSvc) CreateRequest(ctx context.Context, shopDomain, variantID, contact, channel string) (*services.CreateRequestResult, error) {
	if s.create != nil {
		return s.create(ctx, shopDomain, variantID, contact, channel)
	}
	return &services.CreateRequestResult{Request: &domain.DemandRequest{ID: uuid.NewString(), Status: domain.StatusPending}}, nil
}

func (s stubDemandSvc) Notify(ctx context.Context, requestID string) (*services.NotifyResult, error) {
	if s.notify != nil {
		return s.notify(ctx, requestID)
	}
	return &services.NotifyResult{Request: &domain.DemandRequest{ID: requestID, Status: domain.StatusNotified}}, nil
}

func (s stubDemandSvc) Widget(ctx context.Context, shopDomain, variantID string) (*services.WidgetData, error) {
	if s.widget != nil {
		return s.widget(ctx, shopDomain, variantID)
	}
	return &services.WidgetData{VariantID: variantID}, nil
}

func (s stubDemandSvc) ProductWaitlist(ctx context.Context, shopID, productID string) (*services.ProductWaitlistData, error) {
	if s.waitlist != nil {
		return s.waitlist(ctx, shopID, productID)
	}
	return &services.ProductWaitlistData{}, nil
}

type stubPlanSvc struct {
	get    func(ctx context.Context, shopID string) (*domain.ShopPlan, error)
	update func(ctx context.Context, shopID string, tier domain.PlanTier) (*domain.ShopPlan, error)
}

func (s stubPlanSvc) GetOrCreate(ctx context.Context, shopID string) (*domain.ShopPlan, error) {
	if s.get != nil {
		return s.get(ctx, shopID)
	}
	return &domain.ShopPlan{ShopID: shopID, Tier: domain.TierFree}, nil
}

func (s stubPlanSvc) UpdateTier(ctx context.Context, shopID string, tier domain.PlanTier) (*domain.ShopPlan, error) {
	if s.update != nil {
		return s.update(ctx, shopID, tier)
	}
	return &domain.ShopPlan{ShopID: shopID, Tier: tier}, nil
}

type stubSettingsSvc struct {
	get func(ctx context.Context, shopID string) (*domain.ShopSettings, error)
	set func(ctx context.Context, shopID string, enabled bool) (*domain.ShopSettings, error)
}

func (s stubSettingsSvc) GetOrCreate(ctx context.Context, shopID string) (*domain.ShopSettings, error) {
	if s.get != nil {
		return s.get(ctx, shopID)
	}
	return &domain.ShopSettings{ShopID: shopID}, nil
}

func (s stubSettingsSvc) SetAutoNotify(ctx context.Context, shopID string, enabled bool) (*domain.ShopSettings, error) {
	if s.set != nil {
		return s.set(ctx, shopID, enabled)
	}
	return &domain.ShopSettings{ShopID: shopID, AutoNotifyOnRestock: enabled}, nil
}

type stubShopSvc struct {
	upsert          func(ctx context.Context, shopDomain, accessToken string) (*domain.Shop, error)
	getByDomain     func(ctx context.Context, shopDomain string) (*domain.Shop, error)
	registerProduct func(ctx context.Context, shopID, externalProductID, title string, imageURL *string) (*domain.Product, error)
	registerVariant func(ctx context.Context, productID, externalVariantID string, inventory int) (*domain.Variant, error)
}

func (s stubShopSvc) UpsertShop(ctx context.Context, shopDomain, accessToken string) (*domain.Shop, error) {
	if s.upsert != nil {
		return s.upsert(ctx, shopDomain, accessToken)
	}
	return &domain.Shop{ID: "shop-1", Domain: shopDomain, IsActive: true}, nil
}

func (s stubShopSvc) GetByDomain(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	if s.getByDomain != nil {
		return s.getByDomain(ctx, shopDomain)
	}
	return &domain.Shop{ID: "shop-1", Domain: shopDomain, IsActive: true}, nil
}

func (s stubShopSvc) RegisterProduct(ctx context.Context, shopID, externalProductID, title string, imageURL *string) (*domain.Product, error) {
	if s.registerProduct != nil {
		return s.registerProduct(ctx, shopID, externalProductID, title, imageURL)
	}
	return &domain.Product{ID: "prod-1", ShopID: shopID, Title: title}, nil
}

func (s stubShopSvc) RegisterVariant(ctx context.Context, productID, externalVariantID string, inventory int) (*domain.Variant, error) {
	if s.registerVariant != nil {
		return s.registerVariant(ctx, productID, externalVariantID, inventory)
	}
	return &domain.Variant{ID: "var-1", ProductID: productID, InventoryQuantity: inventory}, nil
}

type stubDashSvc struct {
	overview func(ctx context.Context, shopID string) (*services.DashboardData, error)
}

func (s stubDashSvc) Overview(ctx context.Context, shopID string) (*services.DashboardData, error) {
	if s.overview != nil {
		return s.overview(ctx, shopID)
	}
	return &services.DashboardData{}, nil
}

type stubRecoverySvc struct {
	redeem    func(ctx context.Context, token string) (*domain.RecoveryLink, error)
	attribute func(ctx context.Context, shopID, orderID, token string, revenue decimal.Decimal) (*domain.OrderAttribution, error)
}

func (s stubRecoverySvc) Redeem(ctx context.Context, token string) (*domain.RecoveryLink, error) {
	if s.redeem != nil {
		return s.redeem(ctx, token)
	}
	return &domain.RecoveryLink{ID: "link-1", Token: token}, nil
}

func (s stubRecoverySvc) AttributeOrder(ctx context.Context, shopID, orderID, token string, revenue decimal.Decimal) (*domain.OrderAttribution, error) {
	if s.attribute != nil {
		return s.attribute(ctx, shopID, orderID, token, revenue)
	}
	return &domain.OrderAttribution{ID: "attr-1", OrderID: orderID, ShopID: shopID, Revenue: revenue}, nil
}

type stubWebhookSvc struct {
	uninstalled func(ctx context.Context, shopDomain string)
}

func (s stubWebhookSvc) HandleAppUninstalled(ctx context.Context, shopDomain string) {
	if s.uninstalled != nil {
		s.uninstalled(ctx, shopDomain)
	}
}

type stubSubmitter struct {
	submit func(ctx context.Context, shopDomain string, payload services.InventoryUpdatePayload) error
}

func (s stubSubmitter) SubmitInventoryUpdate(ctx context.Context, shopDomain string, payload services.InventoryUpdatePayload) error {
	if s.submit != nil {
		return s.submit(ctx, shopDomain, payload)
	}
	return nil
}

// newStubHandlers wires a Handlers over default stubs; tests replace the
// fields they care about before registering routes.
func newStubHandlers(demand DemandService) *Handlers {
	if demand == nil {
		demand = stubDemandSvc{}
	}
	return New(demand, stubPlanSvc{}, stubSettingsSvc{}, stubShopSvc{}, stubDashSvc{}, stubRecoverySvc{}, stubWebhookSvc{}, stubSubmitter{})
}

// ---------- helpers-only tests ----------

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=-5&page_size=9999", nil)
	p, ps := clampPagination(c)
	if p != 1 || ps != 100 {
		t.Fatalf("clamp bounds got p=%d ps=%d", p, ps)
	}

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=&page_size=0", nil)
	p, ps = clampPagination(c)
	if p != 1 || ps != 1 {
		t.Fatalf("clamp defaults got p=%d ps=%d", p, ps)
	}
}

// ---------- CreateRequest ----------

func TestCreateRequest_BadJSON_Success_AlreadySubscribed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Bad JSON -> 400
	{
		h := newStubHandlers(nil)
		r := gin.New()
		r.POST("/widget/requests", h.CreateRequest)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/widget/requests", bytes.NewBufferString("{bad"))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("bad json -> %d", w.Code)
		}
	}

	// Fresh opt-in -> 201
	{
		var got struct{ shop, variant, contact, channel string }
		svc := stubDemandSvc{
			create: func(ctx context.Context, shopDomain, variantID, contact, channel string) (*services.CreateRequestResult, error) {
				got.shop, got.variant, got.contact, got.channel = shopDomain, variantID, contact, channel
				return &services.CreateRequestResult{Request: &domain.DemandRequest{ID: "req-1", Status: domain.StatusPending}}, nil
			},
		}
		h := newStubHandlers(svc)
		r := gin.New()
		r.POST("/widget/requests", h.CreateRequest)

		w := httptest.NewRecorder()
		body := `{"shop_domain":"demo.myshopify.com","variant_id":"ext-var-1","contact":"a@b.co","channel":"EMAIL"}`
		req := httptest.NewRequest(http.MethodPost, "/widget/requests", bytes.NewBufferString(body))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
		}
		if got.shop != "demo.myshopify.com" || got.variant != "ext-var-1" || got.contact != "a@b.co" || got.channel != "EMAIL" {
			t.Fatalf("service args mismatch: %+v", got)
		}
		var out CreateRequestResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.RequestID != "req-1" || out.Status != "PENDING" || out.AlreadySubscribed {
			t.Fatalf("unexpected response: %#v", out)
		}
	}

	// Re-subscribe -> 200 with already_subscribed
	{
		svc := stubDemandSvc{
			create: func(context.Context, string, string, string, string) (*services.CreateRequestResult, error) {
				return &services.CreateRequestResult{
					Request:           &domain.DemandRequest{ID: "req-1", Status: domain.StatusPending},
					AlreadySubscribed: true,
				}, nil
			},
		}
		h := newStubHandlers(svc)
		r := gin.New()
		r.POST("/widget/requests", h.CreateRequest)

		w := httptest.NewRecorder()
		body := `{"shop_domain":"demo.myshopify.com","variant_id":"ext-var-1","contact":"a@b.co","channel":"EMAIL"}`
		req := httptest.NewRequest(http.MethodPost, "/widget/requests", bytes.NewBufferString(body))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("resubscribe -> %d", w.Code)
		}
		var out CreateRequestResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if !out.AlreadySubscribed {
			t.Fatalf("already_subscribed not set")
		}
	}
}

func TestCreateRequest_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported channel", services.ErrUnsupportedChannel, http.StatusBadRequest, ErrCodeUnsupportedChannel},
		{"invalid contact", services.ErrInvalidContact, http.StatusBadRequest, ErrCodeInvalidContact},
		{"shop not found", services.ErrShopNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"variant not found", services.ErrVariantNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubDemandSvc{
				create: func(context.Context, string, string, string, string) (*services.CreateRequestResult, error) {
					return nil, tc.err
				},
			}
			h := newStubHandlers(svc)
			r := gin.New()
			r.POST("/widget/requests", h.CreateRequest)

			w := httptest.NewRecorder()
			body := `{"shop_domain":"d.myshopify.com","variant_id":"v","contact":"a@b.co","channel":"EMAIL"}`
			req := httptest.NewRequest(http.MethodPost, "/widget/requests", bytes.NewBufferString(body))
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var out ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
				t.Fatalf("json: %v", err)
			}
			if out.Code != tc.code {
				t.Fatalf("code = %q, want %q", out.Code, tc.code)
			}
		})
	}
}

// ---------- WidgetStatus ----------

func TestWidgetStatus_MissingParams_Success_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newStubHandlers(stubDemandSvc{
		widget: func(ctx context.Context, shopDomain, variantID string) (*services.WidgetData, error) {
			if shopDomain == "ghost.myshopify.com" {
				return nil, services.ErrShopNotFound
			}
			return &services.WidgetData{VariantID: variantID, ProductName: "Hat", InStock: true, DemandCount: 3}, nil
		},
	})
	r := gin.New()
	r.GET("/widget/status", h.WidgetStatus)

	// missing params -> 400
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widget/status?variant_id=v", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing params -> %d", w.Code)
	}

	// success -> 200
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widget/status?shop_domain=demo.myshopify.com&variant_id=v1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("widget -> %d body=%s", w.Code, w.Body.String())
	}
	var out services.WidgetData
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.VariantID != "v1" || !out.InStock || out.DemandCount != 3 {
		t.Fatalf("unexpected widget payload: %#v", out)
	}

	// unknown shop -> 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widget/status?shop_domain=ghost.myshopify.com&variant_id=v1", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown shop -> %d", w.Code)
	}
}

// ---------- NotifyRequest ----------

func TestNotifyRequest_UUID_Success_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// bad UUID -> 400
	{
		h := newStubHandlers(nil)
		r := gin.New()
		r.POST("/requests/:id/notify", h.NotifyRequest)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/not-uuid/notify", nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("uuid 400 -> %d", w.Code)
		}
	}

	// success -> 200 with recovery link id
	{
		id := uuid.NewString()
		h := newStubHandlers(stubDemandSvc{
			notify: func(ctx context.Context, requestID string) (*services.NotifyResult, error) {
				return &services.NotifyResult{
					Request:        &domain.DemandRequest{ID: requestID, Status: domain.StatusNotified},
					RecoveryLinkID: "link-9",
				}, nil
			},
		})
		r := gin.New()
		r.POST("/requests/:id/notify", h.NotifyRequest)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/"+id+"/notify", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("notify -> %d body=%s", w.Code, w.Body.String())
		}
		var out NotifyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.RequestID != id || out.Status != "NOTIFIED" || out.RecoveryLinkID != "link-9" {
			t.Fatalf("unexpected response: %#v", out)
		}
	}

	// error taxonomy
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", services.ErrRequestNotFound, http.StatusNotFound},
		{"already notified", services.ErrAlreadyNotified, http.StatusConflict},
		{"already converted", services.ErrAlreadyConverted, http.StatusConflict},
		{"quota exceeded", services.ErrQuotaExceeded, http.StatusTooManyRequests},
		{"delivery failed", context.DeadlineExceeded, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newStubHandlers(stubDemandSvc{
				notify: func(context.Context, string) (*services.NotifyResult, error) { return nil, tc.err },
			})
			r := gin.New()
			r.POST("/requests/:id/notify", h.NotifyRequest)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/"+uuid.NewString()+"/notify", nil))
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

// ---------- ProductWaitlist ----------

func TestProductWaitlist_Pagination_And_Errors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	entries := make([]services.WaitlistEntry, 5)
	for i := range entries {
		entries[i] = services.WaitlistEntry{RequestID: uuid.NewString(), MaskedContact: "jo***@example.com", Channel: "EMAIL", Status: "PENDING"}
	}
	recovered := decimal.RequireFromString("75.50")
	entries[4].Status = "NOTIFIED"
	entries[4].RecoveredRevenue = &recovered
	h := newStubHandlers(stubDemandSvc{
		waitlist: func(ctx context.Context, shopID, productID string) (*services.ProductWaitlistData, error) {
			if productID == "missing" {
				return nil, services.ErrProductNotFound
			}
			return &services.ProductWaitlistData{
				Entries:               entries,
				TotalWaiting:          4,
				TotalNotified:         1,
				TotalRecoveredRevenue: recovered,
			}, nil
		},
	})
	r := gin.New()
	r.GET("/shops/:shop/products/:id/waitlist", h.ProductWaitlist)

	// page 2 of size 2 -> entries[2:4]
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shops/demo.myshopify.com/products/p1/waitlist?page=2&page_size=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("waitlist -> %d body=%s", w.Code, w.Body.String())
	}
	var out WaitlistResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Entries) != 2 || out.Pagination.Total != 5 || out.Pagination.Page != 2 {
		t.Fatalf("pagination mismatch: %#v", out.Pagination)
	}
	if out.Entries[0].RequestID != entries[2].RequestID {
		t.Fatalf("wrong page slice")
	}
	// Summary totals cover the whole waitlist, not just the page.
	if out.Summary.TotalWaiting != 4 || out.Summary.TotalNotified != 1 {
		t.Fatalf("summary mismatch: %#v", out.Summary)
	}
	if out.Summary.TotalRecoveredRevenue != "75.50" {
		t.Fatalf("summary revenue = %s, want 75.50", out.Summary.TotalRecoveredRevenue)
	}

	// page beyond the end -> empty slice, not an error
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shops/demo.myshopify.com/products/p1/waitlist?page=9&page_size=50", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("overflow page -> %d", w.Code)
	}
	out = WaitlistResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Entries) != 0 {
		t.Fatalf("overflow page returned entries")
	}

	// unknown product -> 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shops/demo.myshopify.com/products/missing/waitlist", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing product -> %d", w.Code)
	}
}

func TestProductWaitlist_UnknownShop(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := New(stubDemandSvc{}, stubPlanSvc{}, stubSettingsSvc{}, stubShopSvc{
		getByDomain: func(context.Context, string) (*domain.Shop, error) { return nil, services.ErrShopNotFound },
	}, stubDashSvc{}, stubRecoverySvc{}, stubWebhookSvc{}, stubSubmitter{})
	r := gin.New()
	r.GET("/shops/:shop/products/:id/waitlist", h.ProductWaitlist)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shops/ghost.myshopify.com/products/p1/waitlist", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown shop -> %d", w.Code)
	}
}
