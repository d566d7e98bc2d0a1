// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Product and
// Variant catalog models.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// CreateProduct inserts a product row for a shop.
func CreateProduct(ctx context.Context, db *gorm.DB, shopID, externalProductID, title string, imageURL *string) (*domain.Product, error) {
	p := &domain.Product{
		ID:                uuid.NewString(),
		ShopID:            shopID,
		ExternalProductID: externalProductID,
		Title:             title,
		ImageURL:          imageURL,
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetProduct fetches a product by primary key, or ErrNotFound.
func GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProductsByShop returns all products for a shop ordered by creation time.
func ListProductsByShop(ctx context.Context, db *gorm.DB, shopID string) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CreateVariant inserts a variant row for a product.
func CreateVariant(ctx context.Context, db *gorm.DB, productID, externalVariantID string, inventory int) (*domain.Variant, error) {
	v := &domain.Variant{
		ID:                uuid.NewString(),
		ProductID:         productID,
		ExternalVariantID: externalVariantID,
		InventoryQuantity: inventory,
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// GetVariant fetches a variant by primary key, or ErrNotFound.
func GetVariant(ctx context.Context, db *gorm.DB, id string) (*domain.Variant, error) {
	var v domain.Variant
	if err := db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVariantByExternalID fetches a variant by its storefront identifier.
func GetVariantByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Variant, error) {
	var v domain.Variant
	err := db.WithContext(ctx).
		Where("external_variant_id = ?", externalID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVariantForShop resolves a shop-scoped variant: the identifier may be
// either the variant's row id or its storefront id, and the owning product
// must belong to shopID. Returns ErrNotFound when nothing matches.
func GetVariantForShop(ctx context.Context, db *gorm.DB, shopID, variantID string) (*domain.Variant, error) {
	var v domain.Variant
	err := db.WithContext(ctx).
		Joins("JOIN products ON products.id = variants.product_id").
		Where("(variants.id = ? OR variants.external_variant_id = ?) AND products.shop_id = ?", variantID, variantID, shopID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVariantsByProduct returns all variants belonging to a product.
func ListVariantsByProduct(ctx context.Context, db *gorm.DB, productID string) ([]domain.Variant, error) {
	var out []domain.Variant
	err := db.WithContext(ctx).
		Where("product_id = ?", productID).
		Find(&out).Error
	return out, err
}

// UpdateVariantInventory sets a variant's inventory count. Returns ErrNotFound
// if no row matched.
func UpdateVariantInventory(ctx context.Context, db *gorm.DB, variantID string, quantity int) error {
	res := db.WithContext(ctx).
		Model(&domain.Variant{}).
		Where("id = ?", variantID).
		Update("inventory_quantity", quantity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
