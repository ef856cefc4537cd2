package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Errors returned by the settlement engine.
var (
	ErrSettleCancelled = errors.New("cannot settle a cancelled token")
	ErrSettleNoItems   = errors.New("cannot settle a token with no items")
)

// SaleLine is one line handed to the sale-creation collaborator, mirrored
// 1:1 from a token item.
type SaleLine struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
}

// SaleInput is the contract of the sale-creation collaborator.
type SaleInput struct {
	ShopID        uuid.UUID
	Lines         []SaleLine
	PaymentMethod string
	TotalAmount   decimal.Decimal
	Note          string
	CreatedBy     uuid.UUID
}

// SaleCreator creates one financial sale record. It runs against the db
// handle it is given, so the settlement engine can place the sale inside its
// own transaction and discard it if the compare-and-set write loses.
type SaleCreator interface {
	CreateSale(ctx context.Context, db database.DBTX, in SaleInput) (uuid.UUID, error)
}

// SettlementStore defines the DB methods the settlement engine needs.
type SettlementStore interface {
	GetToken(ctx context.Context, arg database.GetTokenParams) (database.Token, error)
	GetTokenForUpdate(ctx context.Context, arg database.GetTokenParams) (database.Token, error)
	ListTokenItemsByToken(ctx context.Context, tokenID uuid.UUID) ([]database.TokenItem, error)
	SettleToken(ctx context.Context, arg database.SettleTokenParams) (database.Token, error)
}

// NewSettlementStore creates a SettlementStore from a DBTX (pool or tx).
type NewSettlementStore func(db database.DBTX) SettlementStore

// SettlementService converts one token into exactly one sale. It is the only
// writer of settled_sale_id and the only caller of the sale collaborator.
type SettlementService struct {
	pool     TxBeginner
	store    SettlementStore
	newStore NewSettlementStore
	sales    SaleCreator
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(pool TxBeginner, store SettlementStore, newStore NewSettlementStore, sales SaleCreator) *SettlementService {
	return &SettlementService{pool: pool, store: store, newStore: newStore, sales: sales}
}

// SettleRequest identifies the token to settle.
type SettleRequest struct {
	ShopID    uuid.UUID
	TokenID   uuid.UUID
	Note      string
	SettledBy uuid.UUID
}

// SettleResult reports the sale the token settled into. AlreadySettled is
// true when this call found the token settled and returned the existing sale;
// that is a success for the caller, never an error.
type SettleResult struct {
	Token          database.Token
	SaleID         uuid.UUID
	AlreadySettled bool
}

// Settle converts the token's items into a cash sale and marks the token
// settled, tolerating duplicate invocation:
//
//  1. if settled_sale_id is already set, return it with no side effects;
//  2. otherwise open a transaction, lock the token row, and re-check: a
//     settle that committed between the first read and the lock is reported
//     as already settled before any sale is created;
//  3. create the sale and apply the conditional update guarded by
//     settled_sale_id IS NULL, still under the row lock;
//  4. if the conditional update hits zero rows anyway, roll back (discarding
//     this attempt's sale), re-read, and return the winner's sale id.
//
// The token row itself is the idempotency record; no external key store.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	token, err := s.store.GetToken(ctx, database.GetTokenParams{ID: req.TokenID, ShopID: req.ShopID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	if token.SettledSaleID.Valid {
		return &SettleResult{
			Token:          token,
			SaleID:         uuid.UUID(token.SettledSaleID.Bytes),
			AlreadySettled: true,
		}, nil
	}
	if token.Status == enum.TokenStatusCancelled {
		return nil, ErrSettleCancelled
	}

	items, err := s.store.ListTokenItemsByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list token items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrSettleNoItems
	}

	lines := make([]SaleLine, len(items))
	for i, it := range items {
		lines[i] = SaleLine{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   numericToDecimal(it.UnitPrice),
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txStore := s.newStore(tx)

	// Hold the row lock for the rest of the transaction. A concurrent settle
	// that committed after the fast-path read surfaces here, before this
	// attempt writes a sale of its own.
	locked, err := txStore.GetTokenForUpdate(ctx, database.GetTokenParams{ID: req.TokenID, ShopID: req.ShopID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("lock token: %w", err)
	}
	if locked.SettledSaleID.Valid {
		return &SettleResult{
			Token:          locked,
			SaleID:         uuid.UUID(locked.SettledSaleID.Bytes),
			AlreadySettled: true,
		}, nil
	}
	if locked.Status == enum.TokenStatusCancelled {
		return nil, ErrSettleCancelled
	}

	saleID, err := s.sales.CreateSale(ctx, tx, SaleInput{
		ShopID:        req.ShopID,
		Lines:         lines,
		PaymentMethod: enum.PaymentMethodCash,
		TotalAmount:   numericToDecimal(token.TotalAmount),
		Note:          req.Note,
		CreatedBy:     req.SettledBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}

	settled, err := txStore.SettleToken(ctx, database.SettleTokenParams{
		ID:     req.TokenID,
		ShopID: req.ShopID,
		SaleID: saleID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the compare-and-set. The rollback discards this attempt's
			// sale; the winner's write is committed and visible on re-read.
			tx.Rollback(ctx) //nolint:errcheck
			return s.settledElsewhere(ctx, req)
		}
		return nil, fmt.Errorf("settle token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &SettleResult{Token: settled, SaleID: saleID}, nil
}

// settledElsewhere re-reads a token after losing the settlement race.
func (s *SettlementService) settledElsewhere(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	token, err := s.store.GetToken(ctx, database.GetTokenParams{ID: req.TokenID, ShopID: req.ShopID})
	if err != nil {
		return nil, fmt.Errorf("re-read token after settle race: %w", err)
	}
	if token.SettledSaleID.Valid {
		return &SettleResult{
			Token:          token,
			SaleID:         uuid.UUID(token.SettledSaleID.Bytes),
			AlreadySettled: true,
		}, nil
	}
	// Zero rows without a settled id means the token was cancelled under us.
	if token.Status == enum.TokenStatusCancelled {
		return nil, ErrSettleCancelled
	}
	return nil, fmt.Errorf("settle token %s: conditional update matched no rows", req.TokenID)
}
