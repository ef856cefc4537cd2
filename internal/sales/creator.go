// Package sales implements the sale-creation collaborator: it turns a
// settlement request into an immutable sale record with mirrored line items
// and a per-shop sequential invoice number.
package sales

import (
	"context"
	"fmt"

	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Creator writes sales through the db handle it is given, so a settlement
// transaction can carry the sale and the token update together.
type Creator struct{}

// NewCreator creates a new Creator.
func NewCreator() *Creator {
	return &Creator{}
}

// CreateSale inserts the sale and its items and returns the sale id.
func (c *Creator) CreateSale(ctx context.Context, db database.DBTX, in service.SaleInput) (uuid.UUID, error) {
	q := database.New(db)

	invoiceNo, err := q.NextInvoiceNo(ctx, in.ShopID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("next invoice number: %w", err)
	}

	var notes pgtype.Text
	if in.Note != "" {
		notes = pgtype.Text{String: in.Note, Valid: true}
	}

	sale, err := q.CreateSale(ctx, database.CreateSaleParams{
		ShopID:        in.ShopID,
		InvoiceNo:     fmt.Sprintf("INV-%06d", invoiceNo),
		PaymentMethod: in.PaymentMethod,
		TotalAmount:   toNumeric(in.TotalAmount),
		Notes:         notes,
		CreatedBy:     in.CreatedBy,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create sale: %w", err)
	}

	for _, line := range in.Lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity))
		if _, err := q.CreateSaleItem(ctx, database.CreateSaleItemParams{
			SaleID:      sale.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   toNumeric(line.UnitPrice),
			LineTotal:   toNumeric(lineTotal),
		}); err != nil {
			return uuid.Nil, fmt.Errorf("create sale item: %w", err)
		}
	}

	return sale.ID, nil
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
