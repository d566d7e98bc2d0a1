// Package services – PlanService
//
// This file implements the Usage/Plan Gate: per-shop notification quota state
// with lazy month-rollover reset. There is no scheduled job; every quota
// read/write path re-applies the reset first, so no caller ever observes a
// counter from a previous month.
//
// Ordering contract with DemandService.Notify: CheckLimit runs before any
// side effect of a notification, and Increment runs only after the delivery
// capability confirmed the send. Usage therefore counts notifications
// delivered, not attempts.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/repo"
)

// Default quota shape per tier.
const (
	FreeMonthlyLimit = 50
	ProMonthlyLimit  = 10000
)

// PlanService enforces notification quotas and tier gating for shops.
type PlanService struct {
	DB *gorm.DB

	// Now is the clock source; tests override it to cross month boundaries.
	Now func() time.Time

	// FreeLimit and ProLimit override the tier defaults when positive.
	FreeLimit int
	ProLimit  int
}

// NewPlanService constructs a PlanService with the real clock.
func NewPlanService(db *gorm.DB) *PlanService {
	return &PlanService{DB: db, Now: time.Now}
}

func (s *PlanService) freeLimit() int {
	if s.FreeLimit > 0 {
		return s.FreeLimit
	}
	return FreeMonthlyLimit
}

func (s *PlanService) proLimit() int {
	if s.ProLimit > 0 {
		return s.ProLimit
	}
	return ProMonthlyLimit
}

func (s *PlanService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// startOfCurrentMonth returns UTC midnight on day 1 of the current month.
func (s *PlanService) startOfCurrentMonth() time.Time {
	n := s.now()
	return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// GetOrCreate returns the shop's plan, creating a default FREE plan on first
// access. The lazy month reset is applied before the plan is returned.
func (s *PlanService) GetOrCreate(ctx context.Context, shopID string) (*domain.ShopPlan, error) {
	plan, err := repo.GetPlan(ctx, s.DB, shopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		plan, err = repo.CreatePlan(ctx, s.DB, shopID, domain.TierFree, s.freeLimit(), s.startOfCurrentMonth())
		if err != nil {
			return nil, err
		}
		log.Info().Str("shop_id", shopID).Msg("created default FREE plan")
		return plan, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.resetIfNewMonth(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// CheckLimit fails with ErrQuotaExceeded when the shop's monthly cap is
// reached. A pure read-check on the happy path; the only write it may perform
// is the lazy reset.
func (s *PlanService) CheckLimit(ctx context.Context, shopID string) error {
	plan, err := s.GetOrCreate(ctx, shopID)
	if err != nil {
		return err
	}
	if plan.NotificationsUsedThisMonth >= plan.MonthlyNotifyLimit {
		log.Warn().
			Str("shop_id", shopID).
			Int("used", plan.NotificationsUsedThisMonth).
			Int("limit", plan.MonthlyNotifyLimit).
			Msg("notify blocked: monthly limit reached")
		return fmt.Errorf("%w (%d/%d)", ErrQuotaExceeded,
			plan.NotificationsUsedThisMonth, plan.MonthlyNotifyLimit)
	}
	return nil
}

// Increment bumps the shop's monthly usage counter. Callers must invoke it
// strictly after delivery confirmation, never optimistically.
func (s *PlanService) Increment(ctx context.Context, shopID string) error {
	if _, err := s.GetOrCreate(ctx, shopID); err != nil {
		return err
	}
	return repo.IncrementPlanUsage(ctx, s.DB, shopID)
}

// CanAutoNotify reports whether the shop may use webhook-triggered
// notification. PRO only; FREE shops are hard-gated out regardless of their
// settings toggle.
func (s *PlanService) CanAutoNotify(ctx context.Context, shopID string) (bool, error) {
	plan, err := s.GetOrCreate(ctx, shopID)
	if err != nil {
		return false, err
	}
	return plan.Tier == domain.TierPro, nil
}

// UpdateTier switches the shop's tier and resets the limit to the tier's
// default quota.
func (s *PlanService) UpdateTier(ctx context.Context, shopID string, tier domain.PlanTier) (*domain.ShopPlan, error) {
	plan, err := s.GetOrCreate(ctx, shopID)
	if err != nil {
		return nil, err
	}
	plan.Tier = tier
	if tier == domain.TierPro {
		plan.MonthlyNotifyLimit = s.proLimit()
	} else {
		plan.MonthlyNotifyLimit = s.freeLimit()
	}
	if err := repo.SavePlan(ctx, s.DB, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// resetIfNewMonth applies the lazy reset: when the stored window start is
// missing or predates the current UTC month, usage drops to 0 and the window
// restamps. The in-memory plan is updated alongside the row so callers see
// the reset immediately.
func (s *PlanService) resetIfNewMonth(ctx context.Context, plan *domain.ShopPlan) error {
	monthStart := s.startOfCurrentMonth()
	if plan.UsageResetAt != nil && !plan.UsageResetAt.Before(monthStart) {
		return nil
	}
	if err := repo.ResetPlanUsage(ctx, s.DB, plan.ShopID, monthStart); err != nil {
		return err
	}
	plan.NotificationsUsedThisMonth = 0
	plan.UsageResetAt = &monthStart
	log.Info().Str("shop_id", plan.ShopID).Msg("monthly notification usage reset")
	return nil
}
