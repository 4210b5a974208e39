// cart/outcome.go

package cart

// Outcome reports how a cart operation ended. Operations never return errors;
// callers inspect the outcome or simply observe the cart.
type Outcome int

const (
	// OK means the new cart was saved and published.
	OK Outcome = iota
	// Ignored means the request was a no-op (non-positive amount).
	Ignored
	// OutOfStock means the requested amount exceeds the stock level.
	OutOfStock
	// NotFound means the product is not in the cart.
	NotFound
	// Unavailable means the stock or catalog lookup failed.
	Unavailable
	// StoreFailed means the new cart could not be persisted.
	StoreFailed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Ignored:
		return "ignored"
	case OutOfStock:
		return "out_of_stock"
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	case StoreFailed:
		return "store_failed"
	default:
		return "unknown"
	}
}

// Changed reports whether the cart was replaced.
func (o Outcome) Changed() bool {
	return o == OK
}

// User-facing notification messages. Storefront clients match on the exact
// text, so these must not change.
const (
	MsgOutOfStock   = "Quantidade solicitada fora de estoque"
	MsgAddFailed    = "Erro na adição do produto"
	MsgRemoveFailed = "Erro na remoção do produto"
	MsgUpdateFailed = "Erro na alteração de quantidade do produto"
	MsgClearFailed  = "Erro ao limpar o carrinho"
)
