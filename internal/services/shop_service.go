// Package services – ShopService
//
// Install/uninstall lifecycle and catalog registration. Installs are upserts:
// a reinstall reactivates the existing shop row and refreshes its access
// token, keeping all historical demand and revenue data attached.

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ShopService manages shop registration and the mirrored product catalog.
type ShopService struct {
	DB *gorm.DB
}

// UpsertShop installs or reinstalls a shop. New domains get a fresh row;
// existing ones are reactivated with the new access token.
func (s *ShopService) UpsertShop(ctx context.Context, shopDomain, accessToken string) (*domain.Shop, error) {
	tr := otel.Tracer("services/ShopService")
	ctx, span := tr.Start(ctx, "UpsertShop",
		trace.WithAttributes(attribute.String("shop.domain", shopDomain)),
	)
	defer span.End()

	normalized := NormalizeShopDomain(shopDomain)
	shop, err := repo.GetShopByDomain(ctx, s.DB, normalized)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := repo.CreateShop(ctx, s.DB, normalized, accessToken, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		log.Info().Str("shop_id", created.ID).Str("shop_domain", normalized).Msg("shop installed")
		return created, nil
	}
	if err != nil {
		return nil, err
	}

	shop.AccessToken = accessToken
	shop.IsActive = true
	if err := repo.SaveShop(ctx, s.DB, shop); err != nil {
		return nil, err
	}
	log.Info().Str("shop_id", shop.ID).Str("shop_domain", normalized).Msg("shop reinstalled")
	return shop, nil
}

// GetByDomain resolves an active shop from its storefront domain.
func (s *ShopService) GetByDomain(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	shop, err := repo.GetShopByDomain(ctx, s.DB, NormalizeShopDomain(shopDomain))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	return shop, nil
}

// RegisterProduct mirrors a storefront product into the catalog, creating the
// row on first sight and refreshing title/image on subsequent syncs.
func (s *ShopService) RegisterProduct(ctx context.Context, shopID, externalProductID, title string, imageURL *string) (*domain.Product, error) {
	var existing domain.Product
	err := s.DB.WithContext(ctx).
		Where("shop_id = ? AND external_product_id = ?", shopID, externalProductID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.CreateProduct(ctx, s.DB, shopID, externalProductID, title, imageURL)
	}
	if err != nil {
		return nil, err
	}

	existing.Title = title
	existing.ImageURL = imageURL
	if err := s.DB.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// RegisterVariant mirrors a storefront variant under a product, creating it on
// first sight and refreshing the inventory level on subsequent syncs.
func (s *ShopService) RegisterVariant(ctx context.Context, productID, externalVariantID string, inventory int) (*domain.Variant, error) {
	if _, err := repo.GetProduct(ctx, s.DB, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	variant, err := repo.GetVariantByExternalID(ctx, s.DB, externalVariantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.CreateVariant(ctx, s.DB, productID, externalVariantID, inventory)
	}
	if err != nil {
		return nil, err
	}

	if err := repo.UpdateVariantInventory(ctx, s.DB, variant.ID, inventory); err != nil {
		return nil, err
	}
	variant.InventoryQuantity = inventory
	return variant, nil
}
