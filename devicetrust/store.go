package devicetrust

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a trust record does not exist or has expired.
var ErrNotFound = errors.New("trusted device not found")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorrupt is returned when a stored trust record cannot be decoded.
var ErrCorrupt = errors.New("trust record corrupt")

// Store is a Redis-backed trusted-device store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a trusted-device [Store] with the given Redis key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists a trust record with a TTL and evicts the user's oldest
// records until the total, counting the one being saved, fits maxPerUser.
// The evicted records are returned so the caller can emit revocation events.
//
// The count-then-evict sequence is not transactional: two concurrent grants
// can momentarily overshoot the cap by one record. The excess is shed on the
// next grant, so the cap is eventually enforced without distributed locks.
func (s *Store) Save(ctx context.Context, rec *Record, ttl time.Duration, maxPerUser int) ([]*Record, error) {
	var evicted []*Record

	if maxPerUser > 0 {
		live, err := s.ListByUser(ctx, rec.UserID)
		if err != nil {
			return nil, err
		}
		for len(live) >= maxPerUser {
			oldest := live[0]
			if err := s.remove(ctx, rec.UserID, oldest.ID); err != nil {
				return nil, err
			}
			evicted = append(evicted, oldest)
			live = live[1:]
		}
	}

	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.ID), data, ttl)
		pipe.ZAdd(ctx, s.userKey(rec.UserID), redis.Z{
			Score:  float64(rec.CreatedAt),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return evicted, nil
}

// Get retrieves a live trust record. Expiry is checked lazily: an expired
// record is deleted on read and reported as [ErrNotFound].
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.ID = id

	if time.Now().Unix() >= rec.ExpiresAt {
		_ = s.remove(ctx, rec.UserID, id)
		return nil, ErrNotFound
	}

	return rec, nil
}

// Touch records a successful bypass by updating LastUsedAt. The record's
// lifetime is fixed at grant time: touching never extends the TTL.
func (s *Store) Touch(ctx context.Context, id string, usedAt time.Time) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	rec.LastUsedAt = usedAt.Unix()
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(rec.ExpiresAt, 0))
	if err := s.redis.Set(ctx, s.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Revoke removes a trust record. Revoking an absent record is not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		_ = s.redis.Del(ctx, s.key(id)).Err()
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return s.remove(ctx, rec.UserID, id)
}

// RevokeAll removes every trust record for a user and returns the revoked
// records.
func (s *Store) RevokeAll(ctx context.Context, userID string) ([]*Record, error) {
	records, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if err := s.remove(ctx, userID, rec.ID); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// ListByUser returns the user's live trust records ordered oldest first.
// Index entries whose backing record has expired or vanished are pruned as a
// side effect.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.userKey(userID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().Unix()
	records := make([]*Record, 0, len(ids))
	var stale []interface{}

	for _, id := range ids {
		data, err := s.redis.Get(ctx, s.key(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, id)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		rec, err := Decode(data)
		if err != nil {
			stale = append(stale, id)
			continue
		}
		rec.ID = id
		if now >= rec.ExpiresAt {
			_ = s.remove(ctx, userID, id)
			continue
		}
		records = append(records, rec)
	}

	if len(stale) > 0 {
		_ = s.redis.ZRem(ctx, s.userKey(userID), stale...).Err()
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt < records[j].CreatedAt
	})

	return records, nil
}

func (s *Store) remove(ctx context.Context, userID, id string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.userKey(userID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
