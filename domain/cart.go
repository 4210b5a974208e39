// domain/cart.go

package domain

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/pkg/errors"
)

// ErrMalformedCart is returned when a persisted cart cannot be decoded.
var ErrMalformedCart = errors.New("malformed cart data")

// Product is an immutable catalog entry.
type Product struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Stock is the maximum quantity obtainable for a product at query time.
type Stock struct {
	ProductID int `json:"productId"`
	Amount    int `json:"amount"`
}

// CartItem is a product joined with the quantity the customer wants.
// It serializes flat: the product fields plus "amount".
type CartItem struct {
	Product
	Amount int `json:"amount"`
}

// Subtotal returns price * amount.
func (i CartItem) Subtotal() float64 {
	return i.Price * float64(i.Amount)
}

// Cart is an ordered list of items, unique by product id.
type Cart []CartItem

// Find returns the index of the item for productID.
func (c Cart) Find(productID int) (int, bool) {
	idx := slices.IndexFunc(c, func(item CartItem) bool {
		return item.ID == productID
	})
	return idx, idx >= 0
}

// Clone returns a copy that shares nothing with c.
func (c Cart) Clone() Cart {
	if c == nil {
		return Cart{}
	}
	return slices.Clone(c)
}

// Size is the number of distinct products in the cart.
func (c Cart) Size() int {
	return len(c)
}

// Total sums the subtotals of every item.
func (c Cart) Total() float64 {
	var total float64
	for _, item := range c {
		total += item.Subtotal()
	}
	return total
}

// MarshalCart encodes the cart as a flat JSON array. A nil cart encodes as "[]".
func MarshalCart(c Cart) ([]byte, error) {
	if c == nil {
		c = Cart{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode cart")
	}
	return data, nil
}

// UnmarshalCart decodes a persisted cart. Empty input yields an empty cart.
// A value that decodes but repeats a product id or holds an amount below one
// is reported as ErrMalformedCart.
func UnmarshalCart(data []byte) (Cart, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Cart{}, nil
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(ErrMalformedCart, "%v", err)
	}
	if c == nil {
		// "null" was stored
		return Cart{}, nil
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c Cart) validate() error {
	seen := make(map[int]struct{}, len(c))
	for _, item := range c {
		if item.Amount < 1 {
			return errors.Wrapf(ErrMalformedCart, "product %d has amount %d", item.ID, item.Amount)
		}
		if _, dup := seen[item.ID]; dup {
			return errors.Wrapf(ErrMalformedCart, "product %d appears more than once", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
