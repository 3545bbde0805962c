package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"

	// StatusAll disables status filtering in list queries.
	StatusAll Status = "all"
)

// ErrNotFound is returned by repositories when the order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is the persisted order as read back from the store.
type Order struct {
	ID            string          `json:"id" bson:"-"`
	CustomerName  string          `json:"customerName" bson:"customerName"`
	CustomerPhone string          `json:"customerPhone" bson:"customerPhone"`
	Address       *string         `json:"address,omitempty" bson:"address,omitempty"`
	PaymentMethod *string         `json:"paymentMethod,omitempty" bson:"paymentMethod,omitempty"`
	Observations  string          `json:"observations" bson:"observations"`
	Items         []Item          `json:"items" bson:"items"`
	Status        Status          `json:"status" bson:"status"`
	Subtotal      decimal.Decimal `json:"subtotal" bson:"subtotal"`
	Frete         decimal.Decimal `json:"frete" bson:"frete"`
	Discount      decimal.Decimal `json:"discount" bson:"discount"`
	Total         decimal.Decimal `json:"total" bson:"total"`
	CouponCode    *string         `json:"couponCode" bson:"couponCode"`
	CreatedAt     string          `json:"createdAt" bson:"-"`
	UpdatedAt     string          `json:"updatedAt" bson:"-"`
}

// Item is a persisted line item with its recomputed prices.
type Item struct {
	MenuItemID         *string          `json:"menuItemId" bson:"menuItemId"`
	Name               *string          `json:"name,omitempty" bson:"name,omitempty"`
	Price              decimal.Decimal  `json:"price" bson:"price"`
	Quantity           int              `json:"quantity" bson:"quantity"`
	SelectedVariations []VariationGroup `json:"selectedVariations" bson:"selectedVariations"`
	IsHalfPizza        bool             `json:"isHalfPizza" bson:"isHalfPizza"`
	Combination        *Combination     `json:"combination" bson:"combination"`
	SelectedBorder     *Border          `json:"selectedBorder" bson:"selectedBorder"`
	Subtotal           decimal.Decimal  `json:"subtotal" bson:"subtotal"`
}

// VariationGroup is a processed option group with resolved prices.
type VariationGroup struct {
	GroupID    *string     `json:"groupId,omitempty" bson:"groupId,omitempty"`
	GroupName  *string     `json:"groupName,omitempty" bson:"groupName,omitempty"`
	Variations []Variation `json:"variations" bson:"variations"`
}

// Variation is a selected variation with the price frozen at order time.
type Variation struct {
	VariationID     *string         `json:"variationId" bson:"variationId"`
	Quantity        int             `json:"quantity" bson:"quantity"`
	Name            string          `json:"name" bson:"name"`
	AdditionalPrice decimal.Decimal `json:"additionalPrice" bson:"additionalPrice"`
	HalfSelection   *string         `json:"halfSelection" bson:"halfSelection"`
}

// Combination is the half-and-half flavor pair.
type Combination struct {
	First  string           `json:"first,omitempty" bson:"first,omitempty"`
	Second string           `json:"second,omitempty" bson:"second,omitempty"`
	Price  *decimal.Decimal `json:"price,omitempty" bson:"price,omitempty"`
}

// Border is the stuffed-crust selection.
type Border struct {
	Name            string          `json:"name" bson:"name"`
	AdditionalPrice decimal.Decimal `json:"additionalPrice" bson:"additionalPrice"`
}

// Record is the normalized representation handed to a store on create.
type Record struct {
	ID        string
	Phone     string
	Status    Status
	CreatedAt time.Time
	// Doc is the full order document, already stripped of Undefined values.
	Doc Document
}

// Change is a partial update handed to a store.
type Change struct {
	// Status is set when the patch changes the status.
	Status    *Status
	UpdatedAt time.Time
	// Fields holds every patched field including updatedAt, stripped of
	// Undefined values.
	Fields Document
}

// Repository persists orders in a document-oriented store.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	// Get returns ErrNotFound when the order does not exist.
	Get(ctx context.Context, id string) (*Order, error)
	// ListByPhone returns the customer's orders, newest first.
	ListByPhone(ctx context.Context, phone string) ([]Order, error)
	// ListCreatedBetween returns orders created in [from, to], newest first.
	// A zero to leaves the range open-ended.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error)
	// Update returns ErrNotFound when the order does not exist.
	Update(ctx context.Context, id string, c Change) error
}
