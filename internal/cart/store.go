package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bookstore-service/internal/models"
	"bookstore-service/internal/util"
)

// Store keeps per-session carts in Redis, one JSON value per session. All
// expiry and mutation rules live here; handlers and services never touch the
// raw session value.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore connects to Redis and returns a session cart store. ttl is the
// sliding expiration window applied on every successful mutation.
func NewStore(addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func sessionKey(sessionID string) string {
	return "cart:" + sessionID
}

// Get returns the cart for the session. An expired cart is wiped as a side
// effect of the read and an empty cart is returned in its place.
func (s *Store) Get(ctx context.Context, sessionID string) (*Cart, error) {
	val, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("failed to decode session cart: %w", err)
	}
	if c.Items == nil {
		c.Items = map[string]Entry{}
	}

	if c.Expired(time.Now()) {
		util.CartsExpiredTotal.Inc()
		if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
			return nil, fmt.Errorf("failed to wipe expired cart: %w", err)
		}
		return New(), nil
	}

	return &c, nil
}

// AddItem upserts an entry (last write wins) and slides the expiry window.
// Validation of quantity and stock belongs to the caller; the store only
// records the already-snapshotted entry.
func (s *Store) AddItem(ctx context.Context, sessionID, bookID string, e Entry) (*Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c.Upsert(bookID, e)
	c.Touch(time.Now(), s.ttl)

	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return c, nil
}

// RemoveItem deletes the entry for bookID. A missing entry is a not-found
// error since the caller is acting on a stale view. Removal that empties the
// cart clears the expiry marker instead of sliding it.
func (s *Store) RemoveItem(ctx context.Context, sessionID, bookID string) (*Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !c.Remove(bookID) {
		return nil, models.NewNotFoundError("Book not found in cart.")
	}

	if c.Empty() {
		c.ExpiresAt = nil
	} else {
		c.Touch(time.Now(), s.ttl)
	}

	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return c, nil
}

// SelectShipping records the chosen shipping option, replacing any previous
// selection, and slides the expiry window.
func (s *Store) SelectShipping(ctx context.Context, sessionID string, opt ShippingOption) (*Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c.ShippingOption = &opt
	c.Touch(time.Now(), s.ttl)

	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("select_shipping").Inc()
	return c, nil
}

// Clear removes the session cart entirely. Called after a successful checkout.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session cart: %w", err)
	}
	return nil
}

// save writes the cart back with a storage-level TTL. The TTL is a hygiene
// bound on the Redis key; the cart's own ExpiresAt marker is authoritative.
func (s *Store) save(ctx context.Context, sessionID string, c *Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode session cart: %w", err)
	}
	// Keep the key around twice as long as the logical window so an expired
	// cart is still observable (and wiped) by the next read.
	if err := s.rdb.Set(ctx, sessionKey(sessionID), data, 2*s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session cart: %w", err)
	}
	return nil
}
