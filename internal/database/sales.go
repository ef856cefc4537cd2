package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// NextInvoiceNo bumps the per-shop invoice counter inside the caller's
// transaction, same discipline as NextTokenNo.
func (q *Queries) NextInvoiceNo(ctx context.Context, shopID uuid.UUID) (int32, error) {
	const sql = `
		INSERT INTO sale_counters (shop_id, last_no)
		VALUES ($1, 1)
		ON CONFLICT (shop_id)
		DO UPDATE SET last_no = sale_counters.last_no + 1
		RETURNING last_no`
	var n int32
	err := q.db.QueryRow(ctx, sql, shopID).Scan(&n)
	return n, err
}

type CreateSaleParams struct {
	ShopID        uuid.UUID
	InvoiceNo     string
	PaymentMethod string
	TotalAmount   pgtype.Numeric
	Notes         pgtype.Text
	CreatedBy     uuid.UUID
}

func (q *Queries) CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error) {
	const sql = `
		INSERT INTO sales (shop_id, invoice_no, payment_method, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, shop_id, invoice_no, payment_method, total_amount, notes, created_by, created_at`
	var s Sale
	err := q.db.QueryRow(ctx, sql,
		arg.ShopID, arg.InvoiceNo, arg.PaymentMethod, arg.TotalAmount, arg.Notes, arg.CreatedBy,
	).Scan(&s.ID, &s.ShopID, &s.InvoiceNo, &s.PaymentMethod, &s.TotalAmount, &s.Notes, &s.CreatedBy, &s.CreatedAt)
	return s, err
}

type CreateSaleItemParams struct {
	SaleID      uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	LineTotal   pgtype.Numeric
}

func (q *Queries) CreateSaleItem(ctx context.Context, arg CreateSaleItemParams) (SaleItem, error) {
	const sql = `
		INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sale_id, product_id, product_name, quantity, unit_price, line_total`
	var it SaleItem
	err := q.db.QueryRow(ctx, sql,
		arg.SaleID, arg.ProductID, arg.ProductName, arg.Quantity, arg.UnitPrice, arg.LineTotal,
	).Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal)
	return it, err
}
