package cart

import (
	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/storefront-state/internal/model"
)

// State is the cart state: either Empty or Active.
type State interface {
	isState()
}

// Empty is the state of a shopper with no cart.
type Empty struct{}

// Active holds a cart with at least one line.
type Active struct {
	Cart model.Cart
}

func (Empty) isState()  {}
func (Active) isState() {}

// View is the JSON form of a cart state.
type View struct {
	Empty     bool             `json:"empty"`
	ID        string           `json:"id,omitempty"`
	Items     []model.CartItem `json:"items"`
	Total     decimal.Decimal  `json:"total"`
	ItemCount int              `json:"itemCount"`
}

// ViewOf renders a state for API responses and events.
func ViewOf(s State) View {
	active, ok := s.(Active)
	if !ok {
		return View{Empty: true, Items: []model.CartItem{}, Total: decimal.Zero}
	}
	return View{
		ID:        active.Cart.ID,
		Items:     active.Cart.Items,
		Total:     active.Cart.Total,
		ItemCount: active.Cart.ItemCount(),
	}
}
