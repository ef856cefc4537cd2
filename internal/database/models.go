package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Shop struct {
	ID               uuid.UUID
	Name             string
	BusinessType     string
	WorkflowOverride pgtype.Text
	TokenPrefix      pgtype.Text
	Timezone         string
	DayRolloverHour  int32
	TokensEnabled    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type User struct {
	ID             uuid.UUID
	ShopID         uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Pin            pgtype.Text
	Role           string
	Active         bool
	CreatedAt      time.Time
}

type Product struct {
	ID         uuid.UUID
	ShopID     uuid.UUID
	Name       string
	Price      pgtype.Numeric
	TrackStock bool
	StockQty   int32
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Token struct {
	ID            uuid.UUID
	ShopID        uuid.UUID
	TokenNo       int32
	TokenLabel    string
	OrderType     string
	Status        string
	BusinessDate  pgtype.Date
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Notes         pgtype.Text
	TotalAmount   pgtype.Numeric
	SettledSaleID pgtype.UUID
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CalledAt      pgtype.Timestamptz
	InKitchenAt   pgtype.Timestamptz
	ReadyAt       pgtype.Timestamptz
	ServedAt      pgtype.Timestamptz
	SettledAt     pgtype.Timestamptz
	CancelledAt   pgtype.Timestamptz
}

type TokenItem struct {
	ID          uuid.UUID
	TokenID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	LineTotal   pgtype.Numeric
}

type Sale struct {
	ID            uuid.UUID
	ShopID        uuid.UUID
	InvoiceNo     string
	PaymentMethod string
	TotalAmount   pgtype.Numeric
	Notes         pgtype.Text
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

type SaleItem struct {
	ID          uuid.UUID
	SaleID      uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	LineTotal   pgtype.Numeric
}
