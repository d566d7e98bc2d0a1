// Package services – RecoveryService
//
// This file implements the recovery-link issuer and the order-attribution
// boundary. A recovery link is the single-use, expiring token a notified
// customer follows back to purchase; it is also the anchor revenue is
// attributed against. Links are never mutated or reissued in place:
// re-notifying a request mints a new row and earlier links stay inert until
// they expire passively.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/repo"
)

// DefaultLinkTTL is how long a recovery link stays redeemable.
const DefaultLinkTTL = 7 * 24 * time.Hour

// RecoveryService issues recovery links and records order attributions.
type RecoveryService struct {
	DB *gorm.DB

	// LinkTTL overrides DefaultLinkTTL when positive.
	LinkTTL time.Duration
}

func (s *RecoveryService) ttl() time.Duration {
	if s.LinkTTL > 0 {
		return s.LinkTTL
	}
	return DefaultLinkTTL
}

// newToken returns 256 bits of hex-encoded randomness.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue mints a recovery link for a demand request: fresh unique token,
// expiry now + TTL, persisted. A token collision (astronomically unlikely but
// enforced by the unique index) is retried once with a new token.
func (s *RecoveryService) Issue(ctx context.Context, demandRequestID string) (*domain.RecoveryLink, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		link, err := repo.CreateRecoveryLink(ctx, s.DB, demandRequestID, token, time.Now().UTC().Add(s.ttl()))
		if errors.Is(err, repo.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return link, nil
	}
	return nil, errors.New("recovery token collision persisted across retries")
}

// Redeem resolves a token to its link, enforcing expiry. Expired links are
// not deleted on redemption; they simply stop resolving.
func (s *RecoveryService) Redeem(ctx context.Context, token string) (*domain.RecoveryLink, error) {
	link, err := repo.GetRecoveryLinkByToken(ctx, s.DB, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	if time.Now().UTC().After(link.ExpiresAt) {
		return nil, ErrLinkExpired
	}
	return link, nil
}

// AttributeOrder records revenue for an order, optionally tied to a recovery
// token. The matching contract is deliberately thin: a valid, unexpired token
// attributes the order to that link and marks the underlying request
// CONVERTED; a missing or stale token records the revenue unattributed.
// OrderID is unique — a second attribution of the same order fails with
// ErrDuplicateOrder.
func (s *RecoveryService) AttributeOrder(ctx context.Context, shopID, orderID, token string, revenue decimal.Decimal) (*domain.OrderAttribution, error) {
	var linkID *string
	var requestID string

	if token != "" {
		link, err := s.Redeem(ctx, token)
		switch {
		case errors.Is(err, ErrLinkNotFound), errors.Is(err, ErrLinkExpired):
			log.Debug().Str("order_id", orderID).Msg("order token did not resolve; recording unattributed")
		case err != nil:
			return nil, err
		default:
			linkID = &link.ID
			requestID = link.DemandRequestID
		}
	}

	attr, err := repo.CreateOrderAttribution(ctx, s.DB, shopID, orderID, linkID, revenue.Round(2))
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, orderID)
	}
	if err != nil {
		return nil, err
	}

	if requestID != "" {
		converted, err := repo.MarkConverted(ctx, s.DB, requestID)
		if err != nil {
			return nil, err
		}
		if !converted {
			// Request was not in NOTIFIED state; the attribution row stands
			// on its own and the lifecycle stays monotonic.
			log.Debug().Str("demand_request_id", requestID).Msg("attribution without NOTIFIED→CONVERTED transition")
		}
	}

	return attr, nil
}

// SweepExpired deletes links whose expiry lies further in the past than the
// retention window. Expiry itself is passive; the sweep only reclaims
// storage.
func (s *RecoveryService) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := repo.DeleteExpiredRecoveryLinks(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("swept expired recovery links")
	}
	return n, nil
}
