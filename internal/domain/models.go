// Package domain defines the persistence models for shops, catalog data,
// wait-list demand, recovery links, and revenue attribution. These types are
// mapped with GORM and form the core data layer of the restock-notification
// backend.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel identifies the delivery channel a customer opted into.
type Channel string

// Supported demand channels. WHATSAPP rides on the SMS delivery capability.
const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// Status is the lifecycle state of a DemandRequest. Transitions are strictly
// forward: PENDING → NOTIFIED → CONVERTED. NOTIFIED and CONVERTED are terminal
// with respect to notification.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusNotified  Status = "NOTIFIED"
	StatusConverted Status = "CONVERTED"
)

// PlanTier is the subscription tier of a shop. FREE shops are limited to
// manual notifications; only PRO shops may auto-notify on restock webhooks.
type PlanTier string

const (
	TierFree PlanTier = "FREE"
	TierPro  PlanTier = "PRO"
)

// Shop represents an installed merchant store, keyed by its normalized
// storefront domain. Uninstalls soft-deactivate the row; dependent data is
// retained for reinstalls and revenue audit.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Domain: normalized storefront domain; unique.
//   - AccessToken: storefront API token (opaque to this service).
//   - IsActive: false after app/uninstalled.
//   - InstalledAt: first successful install time.
type Shop struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	Domain      string     `json:"domain"       gorm:"type:varchar(255);not null;uniqueIndex:ux_shops_domain"`
	AccessToken string     `json:"-"            gorm:"type:varchar(255);not null"`
	IsActive    bool       `json:"is_active"    gorm:"not null;default:true"`
	InstalledAt *time.Time `json:"installed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Shop.
func (Shop) TableName() string { return "shops" }

// ShopSettings holds per-shop behavior toggles. One row per shop, created
// lazily with defaults on first read.
type ShopSettings struct {
	ID                  string    `json:"id"                     gorm:"type:char(36);primaryKey"`
	ShopID              string    `json:"shop_id"                gorm:"type:char(36);not null;uniqueIndex:ux_settings_shop"`
	AutoNotifyOnRestock bool      `json:"auto_notify_on_restock" gorm:"not null;default:false"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ShopSettings.
func (ShopSettings) TableName() string { return "shop_settings" }

// ShopPlan tracks the tier and monthly notification quota for a shop.
//
// Invariant: NotificationsUsedThisMonth always refers to the month starting at
// UsageResetAt. Every read/write path applies the lazy month-rollover reset
// before acting, so no caller ever observes a stale (wrong-month) counter.
type ShopPlan struct {
	ID                         string     `json:"id"      gorm:"type:char(36);primaryKey"`
	ShopID                     string     `json:"shop_id" gorm:"type:char(36);not null;uniqueIndex:ux_plans_shop"`
	Tier                       PlanTier   `json:"tier"    gorm:"type:varchar(10);not null;default:'FREE';check:tier IN ('FREE','PRO')"`
	MonthlyNotifyLimit         int        `json:"monthly_notify_limit"          gorm:"not null;default:50"`
	NotificationsUsedThisMonth int        `json:"notifications_used_this_month" gorm:"not null;default:0"`
	UsageResetAt               *time.Time `json:"usage_reset_at"`
	CreatedAt                  time.Time  `json:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ShopPlan.
func (ShopPlan) TableName() string { return "shop_plans" }

// Product is a merchant catalog item. Demand is tracked per Variant; the
// product level exists for dashboard aggregation only.
type Product struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	ShopID            string    `json:"shop_id"             gorm:"type:char(36);not null;index:idx_products_shop"`
	ExternalProductID string    `json:"external_product_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_products_external"`
	Title             string    `json:"title"               gorm:"type:varchar(255);not null"`
	ImageURL          *string   `json:"image_url"           gorm:"type:varchar(1024)"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Variant is a purchasable SKU with a mutable inventory count. The inventory
// webhook reports levels against ExternalVariantID; a 0→positive transition on
// InventoryQuantity is the restock edge that triggers auto-notification.
type Variant struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	ProductID         string    `json:"product_id"          gorm:"type:char(36);not null;index:idx_variants_product"`
	ExternalVariantID string    `json:"external_variant_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_variants_external"`
	InventoryQuantity int       `json:"inventory_quantity"  gorm:"not null;default:0"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Variant.
func (Variant) TableName() string { return "variants" }

// DemandRequest is a customer's wait-list entry for one variant.
//
// Invariant: at most one PENDING row per (variant_id, contact) pair. The
// service layer returns the existing row instead of creating a duplicate.
//
// Lifecycle: created PENDING on opt-in; set NOTIFIED only after a confirmed
// notification send; set CONVERTED by external order attribution. No
// transition ever moves backward.
type DemandRequest struct {
	ID         string     `json:"id"         gorm:"type:char(36);primaryKey"`
	VariantID  string     `json:"variant_id" gorm:"type:char(36);not null;index:idx_demand_variant,priority:1"`
	Contact    string     `json:"contact"    gorm:"type:varchar(255);not null"`
	Channel    Channel    `json:"channel"    gorm:"type:varchar(16);not null;check:channel IN ('EMAIL','WHATSAPP')"`
	Status     Status     `json:"status"     gorm:"type:varchar(16);not null;default:'PENDING';index:idx_demand_variant,priority:2;check:status IN ('PENDING','NOTIFIED','CONVERTED')"`
	NotifiedAt *time.Time `json:"notified_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Variant is the awaited SKU. Requests are cascade-deleted with it.
	Variant Variant `json:"-" gorm:"foreignKey:VariantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DemandRequest.
func (DemandRequest) TableName() string { return "demand_requests" }

// RecoveryLink is a single-use, expiring purchase-return token minted per
// successful notification. Rows are never mutated or reissued in place;
// re-notifying a request mints a new link and leaves earlier ones inert.
type RecoveryLink struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	DemandRequestID string    `json:"demand_request_id" gorm:"type:char(36);not null;index:idx_links_request"`
	Token           string    `json:"-"                 gorm:"type:char(64);not null;uniqueIndex:ux_links_token"`
	ExpiresAt       time.Time `json:"expires_at"        gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`

	DemandRequest DemandRequest `json:"-" gorm:"foreignKey:DemandRequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RecoveryLink.
func (RecoveryLink) TableName() string { return "recovery_links" }

// OrderAttribution records revenue from an order, optionally tied to the
// recovery link the customer purchased through. OrderID is unique: an order is
// attributed at most once.
type OrderAttribution struct {
	ID             string          `json:"id"               gorm:"type:char(36);primaryKey"`
	OrderID        string          `json:"order_id"         gorm:"type:varchar(64);not null;uniqueIndex:ux_attr_order"`
	ShopID         string          `json:"shop_id"          gorm:"type:char(36);not null;index:idx_attr_shop"`
	RecoveryLinkID *string         `json:"recovery_link_id" gorm:"type:char(36);index:idx_attr_link"`
	Revenue        decimal.Decimal `json:"revenue"          gorm:"type:numeric(10,2);not null"`
	CreatedAt      time.Time       `json:"created_at"`

	Shop         Shop          `json:"-" gorm:"foreignKey:ShopID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	RecoveryLink *RecoveryLink `json:"-" gorm:"foreignKey:RecoveryLinkID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for OrderAttribution.
func (OrderAttribution) TableName() string { return "order_attributions" }
