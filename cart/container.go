// cart/container.go

package cart

import (
	"context"
	"slices"
	"sync"

	"github.com/norun9/rocketshoes-cart/cartstore"
	"github.com/norun9/rocketshoes-cart/catalog"
	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/norun9/rocketshoes-cart/notify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/norun9/rocketshoes-cart/cart"

// Handle is what the rest of the application sees of the cart.
type Handle interface {
	Cart() domain.Cart
	AddProduct(ctx context.Context, productID int) Outcome
	RemoveProduct(ctx context.Context, productID int) Outcome
	UpdateProductAmount(ctx context.Context, productID, amount int) Outcome
	Clear(ctx context.Context) Outcome
	Subscribe(ctx context.Context) <-chan domain.Cart
}

var _ Handle = (*Container)(nil)

// Container owns the cart. Every successful mutation is saved to the store
// before it becomes visible through Cart and Subscribe.
type Container struct {
	store    cartstore.ICartStore
	catalog  catalog.ICatalogClient
	notifier notify.INotifier
	log      logrus.FieldLogger
	tracer   trace.Tracer
	meter    metric.Meter
	ops      metric.Int64Counter

	// opMu serializes mutations so each one starts from the cart the
	// previous one published.
	opMu sync.Mutex

	mu   sync.RWMutex
	cart domain.Cart
	subs map[chan domain.Cart]struct{}
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Container) {
		c.log = log
	}
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Container) {
		c.tracer = tracer
	}
}

// WithMeter overrides the global meter.
func WithMeter(meter metric.Meter) Option {
	return func(c *Container) {
		c.meter = meter
	}
}

// New loads the persisted cart and returns a container around it. A persisted
// value that cannot be decoded is discarded and the cart starts empty.
func New(ctx context.Context, store cartstore.ICartStore, cat catalog.ICatalogClient, notifier notify.INotifier, opts ...Option) (*Container, error) {
	c := &Container{
		store:    store,
		catalog:  cat,
		notifier: notifier,
		log:      logrus.StandardLogger(),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		subs:     make(map[chan domain.Cart]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	ops, err := c.meter.Int64Counter("cart.operations",
		metric.WithDescription("Cart operations by kind and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create operations counter")
	}
	c.ops = ops

	loaded, err := store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrMalformedCart):
		c.log.WithError(err).Warn("discarding unreadable persisted cart")
		loaded = domain.Cart{}
	case err != nil:
		return nil, errors.Wrap(err, "failed to load cart")
	}
	c.cart = loaded.Clone()

	c.log.WithField("items", len(c.cart)).Info("cart loaded")
	return c, nil
}

// Cart returns a snapshot of the current cart.
func (c *Container) Cart() domain.Cart {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cart.Clone()
}

// AddProduct adds one unit of productID, fetching the product on first add.
func (c *Container) AddProduct(ctx context.Context, productID int) Outcome {
	ctx, span := c.start(ctx, "AddProduct", attribute.Int("app.product_id", productID))
	defer span.End()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	outcome := c.addProduct(ctx, productID)
	c.finish(ctx, span, "add", outcome, MsgAddFailed)
	return outcome
}

func (c *Container) addProduct(ctx context.Context, productID int) Outcome {
	log := c.log.WithField("product_id", productID)

	stock, err := c.catalog.GetStock(ctx, productID)
	if err != nil {
		log.WithError(err).Warn("stock lookup failed")
		return Unavailable
	}
	if stock.ProductID != productID {
		log.WithField("got_id", stock.ProductID).Warn("catalog returned stock for a different product")
		return Unavailable
	}

	next := c.Cart()
	idx, inCart := next.Find(productID)

	amount := 1
	if inCart {
		amount = next[idx].Amount + 1
	}
	if amount > stock.Amount {
		log.WithFields(logrus.Fields{"wanted": amount, "stock": stock.Amount}).Info("out of stock")
		return OutOfStock
	}

	if inCart {
		next[idx].Amount = amount
		return c.commit(ctx, next)
	}

	product, err := c.catalog.GetProduct(ctx, productID)
	if err != nil {
		log.WithError(err).Warn("product lookup failed")
		return Unavailable
	}
	if product.ID != productID {
		log.WithField("got_id", product.ID).Warn("catalog returned a different product")
		return Unavailable
	}
	next = append(next, domain.CartItem{Product: product, Amount: amount})
	return c.commit(ctx, next)
}

// RemoveProduct drops productID from the cart.
func (c *Container) RemoveProduct(ctx context.Context, productID int) Outcome {
	ctx, span := c.start(ctx, "RemoveProduct", attribute.Int("app.product_id", productID))
	defer span.End()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	outcome := c.removeProduct(ctx, productID)
	c.finish(ctx, span, "remove", outcome, MsgRemoveFailed)
	return outcome
}

func (c *Container) removeProduct(ctx context.Context, productID int) Outcome {
	next := c.Cart()
	idx, ok := next.Find(productID)
	if !ok {
		c.log.WithField("product_id", productID).Info("remove: product not in cart")
		return NotFound
	}
	return c.commit(ctx, slices.Delete(next, idx, idx+1))
}

// UpdateProductAmount sets the quantity of productID. Non-positive amounts
// are ignored without a notification.
func (c *Container) UpdateProductAmount(ctx context.Context, productID, amount int) Outcome {
	ctx, span := c.start(ctx, "UpdateProductAmount",
		attribute.Int("app.product_id", productID),
		attribute.Int("app.amount", amount),
	)
	defer span.End()

	if amount <= 0 {
		c.finish(ctx, span, "update", Ignored, MsgUpdateFailed)
		return Ignored
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	outcome := c.updateProductAmount(ctx, productID, amount)
	c.finish(ctx, span, "update", outcome, MsgUpdateFailed)
	return outcome
}

func (c *Container) updateProductAmount(ctx context.Context, productID, amount int) Outcome {
	log := c.log.WithFields(logrus.Fields{"product_id": productID, "amount": amount})

	stock, err := c.catalog.GetStock(ctx, productID)
	if err != nil {
		log.WithError(err).Warn("stock lookup failed")
		return Unavailable
	}
	if stock.ProductID != productID {
		log.WithField("got_id", stock.ProductID).Warn("catalog returned stock for a different product")
		return Unavailable
	}
	if amount > stock.Amount {
		log.WithField("stock", stock.Amount).Info("out of stock")
		return OutOfStock
	}

	next := c.Cart()
	idx, ok := next.Find(productID)
	if !ok {
		log.Info("update: product not in cart")
		return NotFound
	}
	next[idx].Amount = amount
	return c.commit(ctx, next)
}

// Clear empties the cart.
func (c *Container) Clear(ctx context.Context) Outcome {
	ctx, span := c.start(ctx, "Clear")
	defer span.End()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	outcome := c.commit(ctx, domain.Cart{})
	c.finish(ctx, span, "clear", outcome, MsgClearFailed)
	return outcome
}

// Subscribe returns a channel that holds the latest published cart. It starts
// with the current cart and is closed once ctx is done.
func (c *Container) Subscribe(ctx context.Context) <-chan domain.Cart {
	ch := make(chan domain.Cart, 1)

	c.mu.Lock()
	ch <- c.cart.Clone()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

// commit saves next and, only if that worked, publishes it.
func (c *Container) commit(ctx context.Context, next domain.Cart) Outcome {
	if err := c.store.Save(ctx, next); err != nil {
		c.log.WithError(err).Error("failed to save cart")
		return StoreFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cart = next
	for ch := range c.subs {
		// keep only the newest cart in each buffer
		select {
		case <-ch:
		default:
		}
		ch <- next.Clone()
	}
	return OK
}

func (c *Container) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records the outcome and raises at most one notification.
func (c *Container) finish(ctx context.Context, span trace.Span, op string, outcome Outcome, failMsg string) {
	span.SetAttributes(attribute.String("app.outcome", outcome.String()))
	c.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome.String()),
	))

	switch outcome {
	case OK, Ignored:
		return
	case OutOfStock:
		c.notifier.Error(ctx, MsgOutOfStock)
	default:
		span.SetStatus(codes.Error, outcome.String())
		c.notifier.Error(ctx, failMsg)
	}
}
