package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/antriq/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CloseDayResult reports the outcome of a day-close sweep: how many pending
// tokens were force-cancelled and their combined value, the portion of the
// day that never converted to revenue.
type CloseDayResult struct {
	PendingCount   int
	CancelledCount int
	PendingTotal   decimal.Decimal
}

// CloseDay force-cancels every token for the shop and business day that is
// neither settled nor already terminal. Cancellation is idempotent, so a
// re-run (or a crash mid-sweep followed by a retry) only touches rows still
// pending; the second run reports zero newly cancelled tokens.
func (s *TokenService) CloseDay(ctx context.Context, shopID uuid.UUID, date string) (*CloseDayResult, error) {
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

	cancelled, err := s.store.CancelPendingByDate(ctx, database.CancelPendingByDateParams{
		ShopID:       shopID,
		BusinessDate: bizDate,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel pending tokens: %w", err)
	}

	total := decimal.Zero
	for _, t := range cancelled {
		total = total.Add(numericToDecimal(t.TotalAmount))
	}

	return &CloseDayResult{
		PendingCount:   len(cancelled),
		CancelledCount: len(cancelled),
		PendingTotal:   total,
	}, nil
}
