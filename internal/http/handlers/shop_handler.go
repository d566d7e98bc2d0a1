// Shop, settings, and plan HTTP handlers.
//
// Merchant-facing endpoints keyed by storefront domain:
//   - POST /shops                         (install / reinstall)
//   - POST /shops/{shop}/products         (mirror a catalog product)
//   - POST /shops/{shop}/products/{id}/variants (mirror a variant)
//   - GET/PUT /shops/{shop}/settings      (auto-notify toggle)
//   - GET/PUT /shops/{shop}/plan          (tier and quota state)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/services"
)

//
// DTOs
//

// InstallShopBody is the JSON payload for installing a shop.
type InstallShopBody struct {
	ShopDomain  string `json:"shop_domain"  binding:"required" example:"demo-store.myshopify.com"`
	AccessToken string `json:"access_token" binding:"required"`
}

// RegisterProductBody mirrors one storefront product into the catalog.
type RegisterProductBody struct {
	ExternalProductID string  `json:"external_product_id" binding:"required" example:"ext-prod-42"`
	Title             string  `json:"title"               binding:"required" example:"Waffle Knit Beanie"`
	ImageURL          *string `json:"image_url,omitempty"`
}

// RegisterVariantBody mirrors one storefront variant under a product.
type RegisterVariantBody struct {
	ExternalVariantID string `json:"external_variant_id" binding:"required" example:"ext-var-1001"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// UpdateSettingsBody flips the restock auto-notification toggle.
type UpdateSettingsBody struct {
	AutoNotifyOnRestock *bool `json:"auto_notify_on_restock" binding:"required"`
}

// UpdatePlanBody switches the shop's subscription tier.
type UpdatePlanBody struct {
	Tier string `json:"tier" binding:"required" example:"PRO"`
}

//
// Handlers
//

// InstallShop godoc
// @ID          installShop
// @Summary     Install or reinstall a shop
// @Description Upserts the shop row: new domains are created, known domains
// @Description are reactivated with the fresh access token.
// @Tags        Shops
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.InstallShopBody  true  "Install payload"
// @Success     201  {object}  domain.Shop
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /shops [post]
func (h *Handlers) InstallShop(c *gin.Context) {
	var body InstallShopBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "shop_domain and access_token are required")
		return
	}

	shop, err := h.shopSvc.UpsertShop(c.Request.Context(), body.ShopDomain, body.AccessToken)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not install shop")
		return
	}
	ok(c, http.StatusCreated, shop)
}

// RegisterProduct godoc
// @ID          registerProduct
// @Summary     Mirror a storefront product
// @Tags        Shops
// @Accept      json
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Param       body  body  handlers.RegisterProductBody  true  "Product payload"
// @Success     201  {object}  domain.Product
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Router      /shops/{shop}/products [post]
func (h *Handlers) RegisterProduct(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	var body RegisterProductBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "external_product_id and title are required")
		return
	}

	product, err := h.shopSvc.RegisterProduct(c.Request.Context(), shop.ID, body.ExternalProductID, body.Title, body.ImageURL)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not register product")
		return
	}
	ok(c, http.StatusCreated, product)
}

// RegisterVariant godoc
// @ID          registerVariant
// @Summary     Mirror a storefront variant
// @Tags        Shops
// @Accept      json
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Param       id    path  string  true  "Product ID (UUID)"  format(uuid)
// @Param       body  body  handlers.RegisterVariantBody  true  "Variant payload"
// @Success     201  {object}  domain.Variant
// @Failure     404  {object}  handlers.ErrorResponse  "Shop or product not found"
// @Router      /shops/{shop}/products/{id}/variants [post]
func (h *Handlers) RegisterVariant(c *gin.Context) {
	if _, okShop := h.resolveShop(c); !okShop {
		return
	}

	var body RegisterVariantBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "external_variant_id is required")
		return
	}

	variant, err := h.shopSvc.RegisterVariant(c.Request.Context(), c.Param("id"), body.ExternalVariantID, body.InventoryQuantity)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
		} else {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not register variant")
		}
		return
	}
	ok(c, http.StatusCreated, variant)
}

// GetSettings godoc
// @ID          getSettings
// @Summary     Read shop settings
// @Tags        Settings
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Success     200  {object}  domain.ShopSettings
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Router      /shops/{shop}/settings [get]
func (h *Handlers) GetSettings(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	settings, err := h.settingsSvc.GetOrCreate(c.Request.Context(), shop.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load settings")
		return
	}
	ok(c, http.StatusOK, settings)
}

// UpdateSettings godoc
// @ID          updateSettings
// @Summary     Update shop settings
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Param       body  body  handlers.UpdateSettingsBody  true  "Settings payload"
// @Success     200  {object}  domain.ShopSettings
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Router      /shops/{shop}/settings [put]
func (h *Handlers) UpdateSettings(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	var body UpdateSettingsBody
	if err := c.ShouldBindJSON(&body); err != nil || body.AutoNotifyOnRestock == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "auto_notify_on_restock is required")
		return
	}

	settings, err := h.settingsSvc.SetAutoNotify(c.Request.Context(), shop.ID, *body.AutoNotifyOnRestock)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update settings")
		return
	}
	ok(c, http.StatusOK, settings)
}

// GetPlan godoc
// @ID          getPlan
// @Summary     Read the shop's plan and quota state
// @Description Applies the lazy month rollover before returning, so the usage
// @Description counter always refers to the current UTC month.
// @Tags        Plans
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Success     200  {object}  domain.ShopPlan
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Router      /shops/{shop}/plan [get]
func (h *Handlers) GetPlan(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	plan, err := h.planSvc.GetOrCreate(c.Request.Context(), shop.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load plan")
		return
	}
	ok(c, http.StatusOK, plan)
}

// UpdatePlan godoc
// @ID          updatePlan
// @Summary     Switch the shop's subscription tier
// @Tags        Plans
// @Accept      json
// @Produce     json
// @Param       shop  path  string  true  "Storefront domain"
// @Param       body  body  handlers.UpdatePlanBody  true  "Tier payload"
// @Success     200  {object}  domain.ShopPlan
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown tier"
// @Failure     404  {object}  handlers.ErrorResponse  "Shop not found"
// @Router      /shops/{shop}/plan [put]
func (h *Handlers) UpdatePlan(c *gin.Context) {
	shop, okShop := h.resolveShop(c)
	if !okShop {
		return
	}

	var body UpdatePlanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tier is required")
		return
	}

	var tier domain.PlanTier
	switch strings.ToUpper(strings.TrimSpace(body.Tier)) {
	case string(domain.TierFree):
		tier = domain.TierFree
	case string(domain.TierPro):
		tier = domain.TierPro
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tier must be FREE or PRO")
		return
	}

	plan, err := h.planSvc.UpdateTier(c.Request.Context(), shop.ID, tier)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update plan")
		return
	}
	ok(c, http.StatusOK, plan)
}
