package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the token service.
var (
	ErrShopNotFound     = errors.New("shop not found")
	ErrTokensDisabled   = errors.New("token queue is disabled for this shop")
	ErrEmptyItems       = errors.New("items are required")
	ErrInvalidQuantity  = errors.New("quantity must be > 0")
	ErrInvalidProductID = errors.New("invalid product_id")
	ErrProductNotFound  = errors.New("product not found in shop")
	ErrInvalidOrderType = errors.New("order_type not allowed for this shop")
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenSettled     = errors.New("token is already settled")
	ErrStatusConflict   = errors.New("token status changed, please retry")
)

// CapacityError is returned when a requested line exceeds the quantity still
// available after subtracting active reservations. It names the product and
// the maximum the caller could still get, so the request can be corrected.
type CapacityError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int32
	Available   int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// TransitionError is returned when a requested status is not the workflow
// profile's next step (nor the CANCELLED escape) for the token's current state.
type TransitionError struct {
	Current   string
	Requested string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.Current, e.Requested)
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TokenStore defines the DB methods needed by the token queue engine.
// Satisfied by *database.Queries (and its transaction-bound variant).
type TokenStore interface {
	GetShop(ctx context.Context, id uuid.UUID) (database.Shop, error)
	GetProductForToken(ctx context.Context, arg database.GetProductForTokenParams) (database.Product, error)
	ListActiveProducts(ctx context.Context, shopID uuid.UUID) ([]database.Product, error)
	NextTokenNo(ctx context.Context, arg database.NextTokenNoParams) (int32, error)
	ReservedQuantities(ctx context.Context, arg database.ReservedQuantitiesParams) ([]database.ReservedQuantitiesRow, error)
	CreateToken(ctx context.Context, arg database.CreateTokenParams) (database.Token, error)
	CreateTokenItem(ctx context.Context, arg database.CreateTokenItemParams) (database.TokenItem, error)
	GetToken(ctx context.Context, arg database.GetTokenParams) (database.Token, error)
	ListTokensByDate(ctx context.Context, arg database.ListTokensByDateParams) ([]database.Token, error)
	ListTokenItemsByToken(ctx context.Context, tokenID uuid.UUID) ([]database.TokenItem, error)
	OldestWaitingForUpdate(ctx context.Context, arg database.OldestWaitingParams) (database.Token, error)
	UpdateTokenStatus(ctx context.Context, arg database.UpdateTokenStatusParams) (database.Token, error)
	CancelPendingByDate(ctx context.Context, arg database.CancelPendingByDateParams) ([]database.Token, error)
}

// NewTokenStore creates a TokenStore from a DBTX (pool or tx).
type NewTokenStore func(db database.DBTX) TokenStore

// TokenService handles the order queue business logic.
type TokenService struct {
	pool     TxBeginner
	store    TokenStore
	newStore NewTokenStore
	now      func() time.Time
}

// NewTokenService creates a new TokenService. store runs reads against the
// pool; newStore builds transaction-bound stores for the atomic flows.
func NewTokenService(pool TxBeginner, store TokenStore, newStore NewTokenStore) *TokenService {
	return &TokenService{pool: pool, store: store, newStore: newStore, now: time.Now}
}

// shopBusinessDate resolves the shop-local operating day for an instant.
// The rollover hour and timezone come from shop configuration, so the engine
// itself stays timezone-agnostic.
func shopBusinessDate(shop database.Shop, at time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(shop.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("shop timezone %q: %w", shop.Timezone, err)
	}
	return workflow.BusinessDate(loc, int(shop.DayRolloverHour), at), nil
}

// TokenLabel formats the display label for a token number. Pure and
// deterministic: the same number always yields the same label.
func TokenLabel(prefix string, tokenNo int32) string {
	if prefix == "" {
		return fmt.Sprintf("%03d", tokenNo)
	}
	return fmt.Sprintf("%s-%03d", prefix, tokenNo)
}

// CreateTokenRequest is the validated input for accepting a token.
type CreateTokenRequest struct {
	ShopID        uuid.UUID
	CreatedBy     uuid.UUID
	OrderType     string
	CustomerName  string
	CustomerPhone string
	Notes         string
	Items         []CreateTokenItemRequest
}

// CreateTokenItemRequest is a single requested line.
type CreateTokenItemRequest struct {
	ProductID string
	Quantity  int32
}

// CreateTokenResult is the accepted token with its frozen line items.
type CreateTokenResult struct {
	Token database.Token
	Items []database.TokenItem
}

// preparedItem is a line with its catalog snapshot resolved.
type preparedItem struct {
	product  database.Product
	quantity int32
	price    decimal.Decimal
	total    decimal.Decimal
}

// Create accepts a new token: allocates the day-scoped token number, checks
// every stock-tracked line against current availability, and persists the
// token plus its items, all inside one transaction. Two concurrent creators
// for the same shop serialize on the counter row, so the second one observes
// the first one's committed reservations before its own check runs.
func (s *TokenService) Create(ctx context.Context, req CreateTokenRequest) (*CreateTokenResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(item.ProductID); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidProductID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	shop, err := store.GetShop(ctx, req.ShopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}
	if !shop.TokensEnabled {
		return nil, ErrTokensDisabled
	}

	profile, err := workflow.Resolve(shop.BusinessType, shop.WorkflowOverride.String)
	if err != nil {
		return nil, fmt.Errorf("resolve workflow profile: %w", err)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = profile.OrderTypes[0]
	}
	if !profile.AllowsOrderType(orderType) {
		return nil, ErrInvalidOrderType
	}

	businessDate, err := shopBusinessDate(shop, s.now())
	if err != nil {
		return nil, err
	}
	bizDate := pgtype.Date{Time: businessDate, Valid: true}

	// Serialization point: the counter row lock orders concurrent creators
	// for the same shop and day.
	tokenNo, err := store.NextTokenNo(ctx, database.NextTokenNoParams{
		ShopID:       req.ShopID,
		BusinessDate: bizDate,
	})
	if err != nil {
		return nil, fmt.Errorf("next token number: %w", err)
	}

	// Resolve catalog snapshots and line totals.
	totalAmount := decimal.Zero
	prepared := make([]preparedItem, 0, len(req.Items))
	requested := make(map[uuid.UUID]int32)
	var trackedIDs []uuid.UUID

	for i, item := range req.Items {
		productID, _ := uuid.Parse(item.ProductID)
		product, err := store.GetProductForToken(ctx, database.GetProductForTokenParams{
			ID:     productID,
			ShopID: req.ShopID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrProductNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get product: %w", i, err)
		}

		price := numericToDecimal(product.Price)
		lineTotal := price.Mul(decimal.NewFromInt32(item.Quantity))
		totalAmount = totalAmount.Add(lineTotal)
		prepared = append(prepared, preparedItem{
			product:  product,
			quantity: item.Quantity,
			price:    price,
			total:    lineTotal,
		})

		if product.TrackStock {
			if _, seen := requested[productID]; !seen {
				trackedIDs = append(trackedIDs, productID)
			}
			requested[productID] += item.Quantity
		}
	}

	// Re-validate availability at acceptance time, not display time: the sum
	// reserved by all active tokens is read inside this transaction.
	if len(trackedIDs) > 0 {
		reservedRows, err := store.ReservedQuantities(ctx, database.ReservedQuantitiesParams{
			ShopID:     req.ShopID,
			ProductIDs: trackedIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("reserved quantities: %w", err)
		}
		reserved := make(map[uuid.UUID]int64, len(reservedRows))
		for _, r := range reservedRows {
			reserved[r.ProductID] = r.Reserved
		}
		for _, pi := range prepared {
			if !pi.product.TrackStock {
				continue
			}
			available := int64(pi.product.StockQty) - reserved[pi.product.ID]
			if available < 0 {
				available = 0
			}
			if int64(requested[pi.product.ID]) > available {
				return nil, &CapacityError{
					ProductID:   pi.product.ID,
					ProductName: pi.product.Name,
					Requested:   requested[pi.product.ID],
					Available:   available,
				}
			}
		}
	}

	token, err := store.CreateToken(ctx, database.CreateTokenParams{
		ShopID:        req.ShopID,
		TokenNo:       tokenNo,
		TokenLabel:    TokenLabel(shop.TokenPrefix.String, tokenNo),
		OrderType:     orderType,
		BusinessDate:  bizDate,
		CustomerName:  textOrNull(req.CustomerName),
		CustomerPhone: textOrNull(req.CustomerPhone),
		Notes:         textOrNull(req.Notes),
		TotalAmount:   decimalToNumeric(totalAmount),
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	items := make([]database.TokenItem, 0, len(prepared))
	for _, pi := range prepared {
		it, err := store.CreateTokenItem(ctx, database.CreateTokenItemParams{
			TokenID:     token.ID,
			ProductID:   pi.product.ID,
			ProductName: pi.product.Name,
			Quantity:    pi.quantity,
			UnitPrice:   decimalToNumeric(pi.price),
			LineTotal:   decimalToNumeric(pi.total),
		})
		if err != nil {
			return nil, fmt.Errorf("create token item: %w", err)
		}
		items = append(items, it)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateTokenResult{Token: token, Items: items}, nil
}

// --- Helpers ---

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
