package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/enum"
	"github.com/antriq/api/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpdateStatusRequest asks for one explicit status change on a token.
type UpdateStatusRequest struct {
	ShopID    uuid.UUID
	TokenID   uuid.UUID
	Requested string
}

// UpdateStatus applies a status transition. The requested status must be the
// workflow profile's single next step for the token's current state, or the
// CANCELLED escape from any non-terminal state. Settled tokens are frozen.
// The write is conditional on the observed status, so a concurrent change
// surfaces as ErrStatusConflict instead of silently clobbering.
func (s *TokenService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (database.Token, error) {
	token, err := s.store.GetToken(ctx, database.GetTokenParams{ID: req.TokenID, ShopID: req.ShopID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Token{}, ErrTokenNotFound
		}
		return database.Token{}, fmt.Errorf("get token: %w", err)
	}

	if token.SettledSaleID.Valid {
		return database.Token{}, ErrTokenSettled
	}

	shop, err := s.store.GetShop(ctx, req.ShopID)
	if err != nil {
		return database.Token{}, fmt.Errorf("get shop: %w", err)
	}
	profile, err := workflow.Resolve(shop.BusinessType, shop.WorkflowOverride.String)
	if err != nil {
		return database.Token{}, fmt.Errorf("resolve workflow profile: %w", err)
	}

	if !profile.ValidTransition(token.Status, req.Requested) {
		return database.Token{}, &TransitionError{Current: token.Status, Requested: req.Requested}
	}

	updated, err := s.store.UpdateTokenStatus(ctx, database.UpdateTokenStatusParams{
		ID:         req.TokenID,
		ShopID:     req.ShopID,
		Status:     req.Requested,
		PrevStatus: token.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Token{}, ErrStatusConflict
		}
		return database.Token{}, fmt.Errorf("update token status: %w", err)
	}
	return updated, nil
}

// CallNext atomically picks the oldest still-WAITING token for the shop's
// current (or given) business day and transitions it to CALLED. Returns
// (nil, nil) when nothing is waiting.
func (s *TokenService) CallNext(ctx context.Context, shopID uuid.UUID, date string) (*database.Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	shop, err := store.GetShop(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}

	bizDate, err := s.resolveDate(shop, date)
	if err != nil {
		return nil, err
	}

	token, err := store.OldestWaitingForUpdate(ctx, database.OldestWaitingParams{
		ShopID:       shopID,
		BusinessDate: bizDate,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest waiting token: %w", err)
	}

	updated, err := store.UpdateTokenStatus(ctx, database.UpdateTokenStatusParams{
		ID:         token.ID,
		ShopID:     shopID,
		Status:     enum.TokenStatusCalled,
		PrevStatus: enum.TokenStatusWaiting,
	})
	if err != nil {
		return nil, fmt.Errorf("call token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &updated, nil
}
