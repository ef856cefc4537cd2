package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func TestBoard_ReturnsTokensWithItems(t *testing.T) {
	shopID := uuid.New()
	tokenID := uuid.New()
	store := defaultStore(shopID, uuid.New())
	store.listTokensByDateFn = func(ctx context.Context, arg database.ListTokensByDateParams) ([]database.Token, error) {
		return []database.Token{waitingToken(tokenID, shopID)}, nil
	}
	store.listTokenItemsByTokenFn = func(ctx context.Context, id uuid.UUID) ([]database.TokenItem, error) {
		if id != tokenID {
			t.Errorf("items requested for wrong token: %v", id)
		}
		return tokenItems(tokenID), nil
	}

	svc, _ := newTestService(store)
	snapshot, err := svc.Board(context.Background(), shopID, "2026-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshot.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(snapshot.Tokens))
	}
	if len(snapshot.Tokens[0].Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(snapshot.Tokens[0].Items))
	}
	if got := snapshot.BusinessDate.Format("2006-01-02"); got != "2026-03-10" {
		t.Errorf("business_date: got %v, want 2026-03-10", got)
	}
}

func TestBoard_ShopNotFound(t *testing.T) {
	store := defaultStore(uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.Board(context.Background(), uuid.New(), "")
	if !errors.Is(err, ErrShopNotFound) {
		t.Fatalf("expected ErrShopNotFound, got: %v", err)
	}
}

func TestDetail_TokenNotFound(t *testing.T) {
	shopID := uuid.New()
	store := defaultStore(shopID, uuid.New())
	store.getTokenFn = func(ctx context.Context, arg database.GetTokenParams) (database.Token, error) {
		return database.Token{}, pgx.ErrNoRows
	}

	svc, _ := newTestService(store)
	_, err := svc.Detail(context.Background(), shopID, uuid.New())
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got: %v", err)
	}
}

func TestAvailability_Computation(t *testing.T) {
	shopID := uuid.New()
	tracked := uuid.New()
	overbooked := uuid.New()
	untracked := uuid.New()

	store := defaultStore(shopID, uuid.New())
	store.listActiveProductsFn = func(ctx context.Context, id uuid.UUID) ([]database.Product, error) {
		return []database.Product{
			trackedProduct(tracked, shopID, 10),
			trackedProduct(overbooked, shopID, 5),
			{ID: untracked, ShopID: shopID, Name: "Kopi", Price: makeNumeric("12000.00"), Active: true},
		}, nil
	}
	store.reservedQuantitiesFn = func(ctx context.Context, arg database.ReservedQuantitiesParams) ([]database.ReservedQuantitiesRow, error) {
		return []database.ReservedQuantitiesRow{
			{ProductID: tracked, Reserved: 4},
			{ProductID: overbooked, Reserved: 9}, // stock was lowered mid-day
		}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.Availability(context.Background(), shopID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 products, got %d", len(result))
	}

	byID := make(map[uuid.UUID]ProductAvailability)
	for _, pa := range result {
		byID[pa.Product.ID] = pa
	}

	if got := byID[tracked]; got.Available == nil || *got.Available != 6 {
		t.Errorf("tracked available: got %v, want 6", got.Available)
	}
	if got := byID[overbooked]; got.Available == nil || *got.Available != 0 {
		t.Errorf("overbooked available: got %v, want 0 (floored)", got.Available)
	}
	if got := byID[untracked]; got.Available != nil {
		t.Errorf("untracked available: got %v, want nil (unlimited)", *got.Available)
	}
}

func TestAvailability_NoActiveTokens(t *testing.T) {
	shopID := uuid.New()
	productID := uuid.New()
	store := defaultStore(shopID, productID)
	store.listActiveProductsFn = func(ctx context.Context, id uuid.UUID) ([]database.Product, error) {
		return []database.Product{trackedProduct(productID, shopID, 10)}, nil
	}
	store.reservedQuantitiesFn = func(ctx context.Context, arg database.ReservedQuantitiesParams) ([]database.ReservedQuantitiesRow, error) {
		return nil, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.Availability(context.Background(), shopID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result[0]; got.Reserved != 0 || got.Available == nil || *got.Available != 10 {
		t.Errorf("fresh product: reserved=%d available=%v, want 0 and 10", got.Reserved, got.Available)
	}
}

func TestResolveDate_RolloverHour(t *testing.T) {
	shopID := uuid.New()
	store := defaultStore(shopID, uuid.New())
	svc, _ := newTestService(store)

	// 2026-03-10 02:30 in Asia/Jakarta is before the 04:00 rollover, so the
	// business day is still March 9. 02:30 WIB = 2026-03-09 19:30 UTC.
	svc.now = func() time.Time {
		return time.Date(2026, 3, 9, 19, 30, 0, 0, time.UTC)
	}

	d, err := svc.resolveDate(testShop(shopID), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.Time.Format("2006-01-02"); got != "2026-03-09" {
		t.Errorf("business_date: got %v, want 2026-03-09", got)
	}
}

func TestTokensSettledOrCancelledStayOnBoard(t *testing.T) {
	shopID := uuid.New()
	store := defaultStore(shopID, uuid.New())

	done := waitingToken(uuid.New(), shopID)
	done.Status = enum.TokenStatusDone
	cancelled := waitingToken(uuid.New(), shopID)
	cancelled.Status = enum.TokenStatusCancelled

	store.listTokensByDateFn = func(ctx context.Context, arg database.ListTokensByDateParams) ([]database.Token, error) {
		return []database.Token{waitingToken(uuid.New(), shopID), done, cancelled}, nil
	}
	store.listTokenItemsByTokenFn = func(ctx context.Context, id uuid.UUID) ([]database.TokenItem, error) {
		return nil, nil
	}

	svc, _ := newTestService(store)
	snapshot, err := svc.Board(context.Background(), shopID, "2026-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Terminal tokens remain visible for the day; the store orders them last.
	if len(snapshot.Tokens) != 3 {
		t.Errorf("expected all 3 tokens on the board, got %d", len(snapshot.Tokens))
	}
}
