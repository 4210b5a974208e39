// cartstore/local_cartstore.go

package cartstore

import (
	"context"
	"sync"

	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LocalCartStore keeps the serialized cart in memory, the way browser local
// storage keeps it as a string under a key.
type LocalCartStore struct {
	mu   sync.RWMutex
	data map[string]string
	log  logrus.FieldLogger
}

// NewLocalCartStore constructor
func NewLocalCartStore(log logrus.FieldLogger) *LocalCartStore {
	return &LocalCartStore{
		data: make(map[string]string),
		log:  log,
	}
}

// Initialize does nothing for the in-memory store.
func (l *LocalCartStore) Initialize(ctx context.Context) error {
	l.log.Debug("LocalCartStore initialized")
	return nil
}

// Load decodes the cart held under CartKey.
func (l *LocalCartStore) Load(ctx context.Context) (domain.Cart, error) {
	raw, ok := l.Raw()
	if !ok {
		return domain.Cart{}, nil
	}
	cart, err := domain.UnmarshalCart([]byte(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "LocalCartStore: failed to parse %q", CartKey)
	}
	return cart, nil
}

// Save replaces the value under CartKey.
func (l *LocalCartStore) Save(ctx context.Context, cart domain.Cart) error {
	data, err := domain.MarshalCart(cart)
	if err != nil {
		return err
	}
	l.log.WithField("items", len(cart)).Debug("LocalCartStore: Save called")
	l.SetRaw(string(data))
	return nil
}

// Raw returns the serialized text under CartKey.
func (l *LocalCartStore) Raw() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.data[CartKey]
	return v, ok
}

// SetRaw stores text under CartKey verbatim.
func (l *LocalCartStore) SetRaw(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.data[CartKey] = text
}

// Ping always succeeds.
func (l *LocalCartStore) Ping(ctx context.Context) bool {
	return true
}
