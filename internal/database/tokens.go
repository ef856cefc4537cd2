package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tokenColumns = `id, shop_id, token_no, token_label, order_type, status, business_date,
	customer_name, customer_phone, notes, total_amount, settled_sale_id, created_by,
	created_at, updated_at, called_at, in_kitchen_at, ready_at, served_at, settled_at, cancelled_at`

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	err := row.Scan(
		&t.ID, &t.ShopID, &t.TokenNo, &t.TokenLabel, &t.OrderType, &t.Status, &t.BusinessDate,
		&t.CustomerName, &t.CustomerPhone, &t.Notes, &t.TotalAmount, &t.SettledSaleID, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt, &t.CalledAt, &t.InKitchenAt, &t.ReadyAt, &t.ServedAt, &t.SettledAt, &t.CancelledAt,
	)
	return t, err
}

type NextTokenNoParams struct {
	ShopID       uuid.UUID
	BusinessDate pgtype.Date
}

// NextTokenNo bumps the per-(shop, business date) counter row and returns the
// new value. The upsert takes a row lock, so concurrent creators serialize
// here; rolling back the surrounding transaction releases the number.
func (q *Queries) NextTokenNo(ctx context.Context, arg NextTokenNoParams) (int32, error) {
	const sql = `
		INSERT INTO token_counters (shop_id, business_date, last_no)
		VALUES ($1, $2, 1)
		ON CONFLICT (shop_id, business_date)
		DO UPDATE SET last_no = token_counters.last_no + 1
		RETURNING last_no`
	var n int32
	err := q.db.QueryRow(ctx, sql, arg.ShopID, arg.BusinessDate).Scan(&n)
	return n, err
}

type CreateTokenParams struct {
	ShopID        uuid.UUID
	TokenNo       int32
	TokenLabel    string
	OrderType     string
	BusinessDate  pgtype.Date
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Notes         pgtype.Text
	TotalAmount   pgtype.Numeric
	CreatedBy     uuid.UUID
}

func (q *Queries) CreateToken(ctx context.Context, arg CreateTokenParams) (Token, error) {
	const sql = `
		INSERT INTO tokens (shop_id, token_no, token_label, order_type, business_date,
			customer_name, customer_phone, notes, total_amount, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + tokenColumns
	return scanToken(q.db.QueryRow(ctx, sql,
		arg.ShopID, arg.TokenNo, arg.TokenLabel, arg.OrderType, arg.BusinessDate,
		arg.CustomerName, arg.CustomerPhone, arg.Notes, arg.TotalAmount, arg.CreatedBy))
}

type CreateTokenItemParams struct {
	TokenID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	LineTotal   pgtype.Numeric
}

func (q *Queries) CreateTokenItem(ctx context.Context, arg CreateTokenItemParams) (TokenItem, error) {
	const sql = `
		INSERT INTO token_items (token_id, product_id, product_name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, token_id, product_id, product_name, quantity, unit_price, line_total`
	var it TokenItem
	err := q.db.QueryRow(ctx, sql,
		arg.TokenID, arg.ProductID, arg.ProductName, arg.Quantity, arg.UnitPrice, arg.LineTotal,
	).Scan(&it.ID, &it.TokenID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal)
	return it, err
}

type GetTokenParams struct {
	ID     uuid.UUID
	ShopID uuid.UUID
}

func (q *Queries) GetToken(ctx context.Context, arg GetTokenParams) (Token, error) {
	const sql = `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1 AND shop_id = $2`
	return scanToken(q.db.QueryRow(ctx, sql, arg.ID, arg.ShopID))
}

// GetTokenForUpdate locks the token row for the duration of the transaction.
func (q *Queries) GetTokenForUpdate(ctx context.Context, arg GetTokenParams) (Token, error) {
	const sql = `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1 AND shop_id = $2 FOR NO KEY UPDATE`
	return scanToken(q.db.QueryRow(ctx, sql, arg.ID, arg.ShopID))
}

type ListTokensByDateParams struct {
	ShopID       uuid.UUID
	BusinessDate pgtype.Date
}

// ListTokensByDate returns the board ordering: active tokens before terminal
// ones, token number ascending within each group.
func (q *Queries) ListTokensByDate(ctx context.Context, arg ListTokensByDateParams) ([]Token, error) {
	const sql = `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE shop_id = $1 AND business_date = $2
		ORDER BY (status IN ('DONE', 'CANCELLED')), token_no`
	rows, err := q.db.Query(ctx, sql, arg.ShopID, arg.BusinessDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (q *Queries) ListTokenItemsByToken(ctx context.Context, tokenID uuid.UUID) ([]TokenItem, error) {
	const sql = `
		SELECT id, token_id, product_id, product_name, quantity, unit_price, line_total
		FROM token_items WHERE token_id = $1 ORDER BY id`
	rows, err := q.db.Query(ctx, sql, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TokenItem
	for rows.Next() {
		var it TokenItem
		if err := rows.Scan(&it.ID, &it.TokenID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type OldestWaitingParams struct {
	ShopID       uuid.UUID
	BusinessDate pgtype.Date
}

// OldestWaitingForUpdate picks the lowest-numbered WAITING token and locks it.
// SKIP LOCKED lets two concurrent call-next requests pick different tokens
// instead of blocking on the same row.
func (q *Queries) OldestWaitingForUpdate(ctx context.Context, arg OldestWaitingParams) (Token, error) {
	const sql = `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE shop_id = $1 AND business_date = $2 AND status = 'WAITING'
		ORDER BY token_no
		LIMIT 1
		FOR NO KEY UPDATE SKIP LOCKED`
	return scanToken(q.db.QueryRow(ctx, sql, arg.ShopID, arg.BusinessDate))
}

type UpdateTokenStatusParams struct {
	ID         uuid.UUID
	ShopID     uuid.UUID
	Status     string
	PrevStatus string
}

// UpdateTokenStatus applies a status change conditionally on the previously
// observed status and on the token not being settled. Each milestone timestamp
// is stamped the first time its status is reached; forward-only transitions
// make re-stamping impossible.
func (q *Queries) UpdateTokenStatus(ctx context.Context, arg UpdateTokenStatusParams) (Token, error) {
	const sql = `
		UPDATE tokens SET
			status = $3,
			updated_at = now(),
			called_at     = CASE WHEN $3 = 'CALLED'      AND called_at     IS NULL THEN now() ELSE called_at     END,
			in_kitchen_at = CASE WHEN $3 = 'IN_PROGRESS' AND in_kitchen_at IS NULL THEN now() ELSE in_kitchen_at END,
			ready_at      = CASE WHEN $3 = 'READY'       AND ready_at      IS NULL THEN now() ELSE ready_at      END,
			served_at     = CASE WHEN $3 = 'DONE'        AND served_at     IS NULL THEN now() ELSE served_at     END,
			cancelled_at  = CASE WHEN $3 = 'CANCELLED'   AND cancelled_at  IS NULL THEN now() ELSE cancelled_at  END
		WHERE id = $1 AND shop_id = $2 AND status = $4 AND settled_sale_id IS NULL
		RETURNING ` + tokenColumns
	return scanToken(q.db.QueryRow(ctx, sql, arg.ID, arg.ShopID, arg.Status, arg.PrevStatus))
}

type SettleTokenParams struct {
	ID     uuid.UUID
	ShopID uuid.UUID
	SaleID uuid.UUID
}

// SettleToken is the compare-and-set write of settlement: it only succeeds
// while settled_sale_id is still NULL and the token was not cancelled in the
// meantime. A concurrent loser gets pgx.ErrNoRows and must re-read.
func (q *Queries) SettleToken(ctx context.Context, arg SettleTokenParams) (Token, error) {
	const sql = `
		UPDATE tokens SET
			settled_sale_id = $3,
			status = 'DONE',
			settled_at = now(),
			served_at = COALESCE(served_at, now()),
			updated_at = now()
		WHERE id = $1 AND shop_id = $2 AND settled_sale_id IS NULL AND status <> 'CANCELLED'
		RETURNING ` + tokenColumns
	return scanToken(q.db.QueryRow(ctx, sql, arg.ID, arg.ShopID, arg.SaleID))
}

type CancelPendingByDateParams struct {
	ShopID       uuid.UUID
	BusinessDate pgtype.Date
}

// CancelPendingByDate force-cancels every token for the day that is neither
// settled nor already terminal, returning the affected rows. Re-running it
// only touches rows still pending, so the operation is idempotent.
func (q *Queries) CancelPendingByDate(ctx context.Context, arg CancelPendingByDateParams) ([]Token, error) {
	const sql = `
		UPDATE tokens SET
			status = 'CANCELLED',
			cancelled_at = now(),
			updated_at = now()
		WHERE shop_id = $1 AND business_date = $2
			AND settled_sale_id IS NULL
			AND status NOT IN ('DONE', 'CANCELLED')
		RETURNING ` + tokenColumns
	rows, err := q.db.Query(ctx, sql, arg.ShopID, arg.BusinessDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

type ReservedQuantitiesParams struct {
	ShopID     uuid.UUID
	ProductIDs []uuid.UUID
}

type ReservedQuantitiesRow struct {
	ProductID uuid.UUID
	Reserved  int64
}

// ReservedQuantities aggregates item quantities over active tokens (not
// cancelled, not yet settled). Pass a nil ProductIDs slice for all products.
func (q *Queries) ReservedQuantities(ctx context.Context, arg ReservedQuantitiesParams) ([]ReservedQuantitiesRow, error) {
	const sql = `
		SELECT ti.product_id, SUM(ti.quantity)::bigint
		FROM token_items ti
		JOIN tokens t ON t.id = ti.token_id
		WHERE t.shop_id = $1
			AND t.settled_sale_id IS NULL
			AND t.status <> 'CANCELLED'
			AND ($2::uuid[] IS NULL OR ti.product_id = ANY($2))
		GROUP BY ti.product_id`
	rows, err := q.db.Query(ctx, sql, arg.ShopID, arg.ProductIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReservedQuantitiesRow
	for rows.Next() {
		var r ReservedQuantitiesRow
		if err := rows.Scan(&r.ProductID, &r.Reserved); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
