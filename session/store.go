package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session does not exist or has expired.
// Callers must treat both identically: an absent session is an invalidated
// session.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrTokenFamilyMismatch is returned by [Store.RotateTokenFamily] when the
// presented family does not match the session's current family. The session
// is deleted before this is returned; the caller should treat it as refresh
// token reuse.
var ErrTokenFamilyMismatch = errors.New("token family mismatch")

// ErrCorrupt is returned when a stored session blob cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

const rotateMaxRetries = 4

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] with the given Redis key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists a session with a TTL and indexes it under the owning user,
// scored by creation time so the oldest session is always cheap to find.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.ZAdd(ctx, s.userKey(sess.UserID), redis.Z{
			Score:  float64(sess.CreatedAt),
			Member: sess.SessionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a live session. Expiry is checked lazily: an expired record
// is deleted on read and reported as [ErrNotFound].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.SessionID = sessionID

	if time.Now().Unix() >= sess.ExpiresAt {
		_ = s.remove(ctx, sess.UserID, sessionID)
		return nil, ErrNotFound
	}

	return sess, nil
}

// Delete removes a session and its index entry. Deleting an absent session
// is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Remove the unreadable blob anyway; the index entry is unreachable
		// without a user ID and will be pruned on the next ListByUser.
		_ = s.redis.Del(ctx, s.key(sessionID)).Err()
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return s.remove(ctx, sess.UserID, sessionID)
}

func (s *Store) remove(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.ZRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ListByUser returns the user's live sessions ordered oldest first. Index
// entries whose backing record has expired or vanished are pruned as a side
// effect.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
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
	sessions := make([]*Session, 0, len(ids))
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
		sess, err := Decode(data)
		if err != nil {
			stale = append(stale, id)
			continue
		}
		sess.SessionID = id
		if now >= sess.ExpiresAt {
			_ = s.remove(ctx, userID, id)
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		_ = s.redis.ZRem(ctx, s.userKey(userID), stale...).Err()
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt < sessions[j].CreatedAt
	})

	return sessions, nil
}

// DeleteAllForUser removes every live session for a user and returns the
// deleted sessions so callers can emit per-session invalidation events.
//
// ATOMICITY NOTE: the read and delete phases are separate commands; a session
// created concurrently may survive this call. Acceptable for logout-all and
// password-change, where the new login is the caller's own.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, sess := range sessions {
		if err := s.remove(ctx, userID, sess.SessionID); err != nil {
			return nil, err
		}
	}

	return sessions, nil
}

// RotateTokenFamily atomically replaces the session's token family.
//
// The presented family must equal the stored one; on mismatch the session is
// deleted (all descendants of the stolen/stale refresh token die with it) and
// [ErrTokenFamilyMismatch] is returned. The compare-and-swap runs inside a
// WATCH transaction and is retried on contention, so two concurrent rotations
// with the same presented family cannot both succeed.
func (s *Store) RotateTokenFamily(ctx context.Context, sessionID, presentedFamily, nextFamily string) (*Session, error) {
	key := s.key(sessionID)

	for i := 0; i < rotateMaxRetries; i++ {
		var rotated *Session
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			sess.SessionID = sessionID

			if time.Now().Unix() >= sess.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.ZRem(ctx, s.userKey(sess.UserID), sessionID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrNotFound
			}

			if sess.TokenFamily != presentedFamily {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.ZRem(ctx, s.userKey(sess.UserID), sessionID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrTokenFamilyMismatch
			}

			ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
			sess.TokenFamily = nextFamily
			updated, err := Encode(sess)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			rotated = sess
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrNotFound
			}
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTokenFamilyMismatch) || errors.Is(err, ErrCorrupt) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return rotated, nil
	}

	return nil, ErrNotFound
}
