// cartstore/redis_cartstore.go

package cartstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/jpillora/backoff"
	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultConnectAttempts = 30

// RedisCartStore is a cart store backed by Redis. The serialized cart is kept
// as a plain string under CartKey.
type RedisCartStore struct {
	client   *redis.Client
	log      logrus.FieldLogger
	attempts int
	backoff  backoff.Backoff
}

// RedisOption customizes a RedisCartStore.
type RedisOption func(*RedisCartStore)

// WithConnectAttempts bounds how many pings Initialize makes.
func WithConnectAttempts(n int) RedisOption {
	return func(r *RedisCartStore) {
		r.attempts = n
	}
}

// WithConnectBackoff sets the wait between Initialize pings.
func WithConnectBackoff(min, max time.Duration) RedisOption {
	return func(r *RedisCartStore) {
		r.backoff.Min = min
		r.backoff.Max = max
	}
}

// NewRedisCartStore accepts a Redis address ("host:port" or a redis:// URL).
func NewRedisCartStore(redisAddr string, log logrus.FieldLogger, opts ...RedisOption) (*RedisCartStore, error) {
	if redisAddr == "" {
		return nil, errors.New("redis address is required")
	}

	redisOpts, err := redis.ParseURL(redisAddr)
	if err != nil {
		// Not a redis:// URL, use it as a plain Addr.
		redisOpts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(redisOpts)
	client.AddHook(redisotel.NewTracingHook())

	store := &RedisCartStore{
		client:   client,
		log:      log.WithField("store", "redis"),
		attempts: defaultConnectAttempts,
		backoff: backoff.Backoff{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 2,
		},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Initialize pings Redis until it answers, the attempts run out, or ctx ends.
func (r *RedisCartStore) Initialize(ctx context.Context) error {
	r.log.Info("initializing connection")
	r.backoff.Reset()

	for i := 1; i <= r.attempts; i++ {
		if r.Ping(ctx) {
			r.log.WithField("attempt", i).Info("connection established")
			return nil
		}

		wait := r.backoff.Duration()
		r.log.WithFields(logrus.Fields{"attempt": i, "wait": wait}).Warn("ping failed, retrying")

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "cancelled while waiting for redis")
		case <-time.After(wait):
		}
	}
	return errors.Errorf("failed to connect to redis after %d attempts", r.attempts)
}

// Load reads and decodes the cart under CartKey. A missing key is an empty cart.
func (r *RedisCartStore) Load(ctx context.Context) (domain.Cart, error) {
	val, err := r.client.Get(ctx, CartKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis GET failed")
	}

	cart, err := domain.UnmarshalCart(val)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", CartKey)
	}
	return cart, nil
}

// Save overwrites CartKey with the serialized cart.
func (r *RedisCartStore) Save(ctx context.Context, cart domain.Cart) error {
	data, err := domain.MarshalCart(cart)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, CartKey, data, 0).Err(); err != nil {
		return errors.Wrap(err, "redis SET failed")
	}
	r.log.WithField("items", len(cart)).Debug("cart saved")
	return nil
}

// Ping checks if Redis is alive.
func (r *RedisCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.WithError(err).Debug("ping failed")
		return false
	}
	return true
}

// Close releases the underlying connection pool.
func (r *RedisCartStore) Close() error {
	return r.client.Close()
}
