// cartstore/cartstore.go

package cartstore

import (
	"context"

	"github.com/norun9/rocketshoes-cart/domain"
)

// CartKey is the single slot the serialized cart lives under.
const CartKey = "@RocketShoes:cart"

// ICartStore defines the operations on the persisted cart slot.
type ICartStore interface {
	Initialize(ctx context.Context) error

	// Load returns the stored cart, or an empty cart if nothing is stored.
	// A stored value that cannot be decoded yields domain.ErrMalformedCart.
	Load(ctx context.Context) (domain.Cart, error)
	// Save overwrites the slot with cart.
	Save(ctx context.Context, cart domain.Cart) error

	Ping(ctx context.Context) bool
}
