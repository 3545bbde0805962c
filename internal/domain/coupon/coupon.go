package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when no coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon exists but is switched off.
	ErrInactive = errors.New("coupon inactive")
)

// MinimumNotMetError is returned when the order subtotal is below the
// coupon's minimum order value.
type MinimumNotMetError struct {
	Minimum  decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("minimum order value %s not met (subtotal %s)", e.Minimum.StringFixed(2), e.Subtotal.StringFixed(2))
}

// Coupon is a named discount code as stored in the coupon table.
type Coupon struct {
	ID            string
	Name          string
	Type          DiscountType
	Value         decimal.Decimal
	Active        bool
	Uses          int
	UsageLimit    int
	StartsAt      *time.Time
	EndsAt        *time.Time
	MinOrderValue *decimal.Decimal
}

// NewID derives a stable coupon id from its name, so that importing the
// same code twice updates one row.
func NewID(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("coupon:"+key)).String()
}

// Applied is the normalized snapshot kept in a cart session once a coupon
// has been accepted.
type Applied struct {
	ID            string           `json:"id"`
	Code          string           `json:"code"`
	Type          DiscountType     `json:"type"`
	Value         decimal.Decimal  `json:"value"`
	MinOrderValue *decimal.Decimal `json:"minOrderValue,omitempty"`
	Uses          int              `json:"uses"`
	UsageLimit    int              `json:"usageLimit"`
}

// Finder looks coupons up by name, case-insensitively. It returns
// ErrNotFound when nothing matches.
type Finder interface {
	FindByName(ctx context.Context, name string) (*Coupon, error)
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	Finder
	Upsert(ctx context.Context, c Coupon) error
}
