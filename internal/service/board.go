package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antriq/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrInvalidDate is returned for a date query parameter not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid date, use YYYY-MM-DD")

// resolveDate parses an explicit YYYY-MM-DD date, or resolves the shop's
// current business day when none is given.
func (s *TokenService) resolveDate(shop database.Shop, date string) (pgtype.Date, error) {
	if date == "" {
		d, err := shopBusinessDate(shop, s.now())
		if err != nil {
			return pgtype.Date{}, err
		}
		return pgtype.Date{Time: d, Valid: true}, nil
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return pgtype.Date{}, ErrInvalidDate
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

// BoardToken is a token with its line items, as shown on the queue board.
type BoardToken struct {
	Token database.Token
	Items []database.TokenItem
}

// BoardSnapshot is one shop's queue for one business day, active tokens
// first, token number ascending within each group.
type BoardSnapshot struct {
	Shop         database.Shop
	BusinessDate time.Time
	Tokens       []BoardToken
}

// Board returns the queue board for a shop and business day.
func (s *TokenService) Board(ctx context.Context, shopID uuid.UUID, date string) (*BoardSnapshot, error) {
	shop, err := s.store.GetShop(ctx, shopID)
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

	tokens, err := s.store.ListTokensByDate(ctx, database.ListTokensByDateParams{
		ShopID:       shopID,
		BusinessDate: bizDate,
	})
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	board := make([]BoardToken, 0, len(tokens))
	for _, t := range tokens {
		items, err := s.store.ListTokenItemsByToken(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("list token items: %w", err)
		}
		board = append(board, BoardToken{Token: t, Items: items})
	}

	return &BoardSnapshot{Shop: shop, BusinessDate: bizDate.Time, Tokens: board}, nil
}

// Detail returns one token with its items.
func (s *TokenService) Detail(ctx context.Context, shopID, tokenID uuid.UUID) (*BoardToken, error) {
	token, err := s.store.GetToken(ctx, database.GetTokenParams{ID: tokenID, ShopID: shopID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	items, err := s.store.ListTokenItemsByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list token items: %w", err)
	}
	return &BoardToken{Token: token, Items: items}, nil
}

// ProductAvailability is the order-entry view of one product: how much of
// the catalog stock is still biddable after subtracting active reservations.
// Available is nil for products that do not track stock (unlimited).
type ProductAvailability struct {
	Product   database.Product
	Reserved  int64
	Available *int64
}

// Availability computes the "available now" numbers staff see while entering
// an order. Display-time only: acceptance re-checks inside the creation
// transaction.
func (s *TokenService) Availability(ctx context.Context, shopID uuid.UUID) ([]ProductAvailability, error) {
	products, err := s.store.ListActiveProducts(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	reservedRows, err := s.store.ReservedQuantities(ctx, database.ReservedQuantitiesParams{ShopID: shopID})
	if err != nil {
		return nil, fmt.Errorf("reserved quantities: %w", err)
	}
	reserved := make(map[uuid.UUID]int64, len(reservedRows))
	for _, r := range reservedRows {
		reserved[r.ProductID] = r.Reserved
	}

	result := make([]ProductAvailability, 0, len(products))
	for _, p := range products {
		pa := ProductAvailability{Product: p, Reserved: reserved[p.ID]}
		if p.TrackStock {
			avail := int64(p.StockQty) - pa.Reserved
			if avail < 0 {
				avail = 0
			}
			pa.Available = &avail
		}
		result = append(result, pa)
	}
	return result, nil
}
