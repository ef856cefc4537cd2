package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const shopColumns = `id, name, business_type, workflow_override, token_prefix, timezone,
	day_rollover_hour, tokens_enabled, created_at, updated_at`

func scanShop(row pgx.Row) (Shop, error) {
	var s Shop
	err := row.Scan(&s.ID, &s.Name, &s.BusinessType, &s.WorkflowOverride, &s.TokenPrefix,
		&s.Timezone, &s.DayRolloverHour, &s.TokensEnabled, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *Queries) GetShop(ctx context.Context, id uuid.UUID) (Shop, error) {
	const sql = `SELECT ` + shopColumns + ` FROM shops WHERE id = $1`
	return scanShop(q.db.QueryRow(ctx, sql, id))
}

const productColumns = `id, shop_id, name, price, track_stock, stock_qty, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.Price, &p.TrackStock, &p.StockQty,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

type GetProductForTokenParams struct {
	ID     uuid.UUID
	ShopID uuid.UUID
}

// GetProductForToken resolves the catalog snapshot a token line needs: name,
// current price, and stock tracking state. Inactive products are invisible.
func (q *Queries) GetProductForToken(ctx context.Context, arg GetProductForTokenParams) (Product, error) {
	const sql = `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND shop_id = $2 AND active`
	return scanProduct(q.db.QueryRow(ctx, sql, arg.ID, arg.ShopID))
}

func (q *Queries) ListActiveProducts(ctx context.Context, shopID uuid.UUID) ([]Product, error) {
	const sql = `SELECT ` + productColumns + ` FROM products WHERE shop_id = $1 AND active ORDER BY name`
	rows, err := q.db.Query(ctx, sql, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

const userColumns = `id, shop_id, full_name, email, hashed_password, pin, role, active, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ShopID, &u.FullName, &u.Email, &u.HashedPassword, &u.Pin,
		&u.Role, &u.Active, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND active`
	return scanUser(q.db.QueryRow(ctx, sql, email))
}

type GetUserByShopAndPinParams struct {
	ShopID uuid.UUID
	Pin    string
}

func (q *Queries) GetUserByShopAndPin(ctx context.Context, arg GetUserByShopAndPinParams) (User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users WHERE shop_id = $1 AND pin = $2 AND active`
	return scanUser(q.db.QueryRow(ctx, sql, arg.ShopID, arg.Pin))
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND active`
	return scanUser(q.db.QueryRow(ctx, sql, id))
}
