package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/manucarbs/marketplace-backend/internal/money"
)

type Product struct {
	ID        uuid.UUID
	Title     string
	SellerID  string
	Price     money.Money
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShippingInfo struct {
	Address   string `json:"address"`
	City      string `json:"city"`
	Phone     string `json:"phone"`
	Reference string `json:"reference,omitempty"`
}

func (s ShippingInfo) Validate() error {
	if s.Address == "" {
		return ErrShippingAddressRequired
	}
	if s.City == "" {
		return ErrShippingCityRequired
	}
	if s.Phone == "" {
		return ErrShippingPhoneRequired
	}
	return nil
}

// Order is a frozen snapshot of one checkout attempt. Total and item prices
// are computed once at creation and never recomputed, so later catalog
// changes cannot affect it.
type Order struct {
	ID            uuid.UUID
	Number        string
	BuyerID       string
	Shipping      ShippingInfo
	Items         []Item
	Total         money.Money
	Status        Status
	PaymentRef    string
	PaymentMethod string
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// Item belongs exclusively to its parent Order. SellerID and UnitPrice are
// denormalized from the product at order-creation time.
type Item struct {
	ProductID uuid.UUID
	SellerID  string
	Quantity  int
	UnitPrice money.Money
}

// CartItem is what the cart collaborator hands the orchestrator.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}
