package signet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockoutRecordVersion1 = 1

// Lockout records outlive the lock itself so the attempt counter survives
// between failures. 24h is far beyond any configured lock duration.
const lockoutRecordTTL = 24 * time.Hour

var errLockoutBackend = errors.New("lockout backend unavailable")

// lockoutState is the per-principal brute-force counter. Principals are
// hashes of the normalized signin email, so unknown addresses accumulate
// state exactly like real accounts and stay indistinguishable.
type lockoutState struct {
	Attempts    uint16
	LockedUntil int64
}

func (s *lockoutState) lockedAt(now time.Time) bool {
	return s != nil && s.LockedUntil > now.Unix()
}

type lockoutStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newLockoutStore(redisClient redis.UniversalClient, prefix string) *lockoutStore {
	return &lockoutStore{redis: redisClient, prefix: prefix}
}

func (s *lockoutStore) key(principal [32]byte) string {
	return s.prefix + ":" + base64.RawURLEncoding.EncodeToString(principal[:])
}

// RecordFailure counts one wrong-password attempt inside a WATCH
// transaction. Crossing the threshold sets the lock; an expired lock is
// cleared before counting so the attempt lands on a fresh counter. The
// second return value reports whether this attempt crossed the threshold.
func (s *lockoutStore) RecordFailure(
	ctx context.Context,
	principal [32]byte,
	threshold int,
	lockDuration time.Duration,
	now time.Time,
) (*lockoutState, bool, error) {
	const maxRetries = 4
	key := s.key(principal)

	for i := 0; i < maxRetries; i++ {
		var (
			state   *lockoutState
			crossed bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			state = &lockoutState{}
			crossed = false

			data, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				decoded, decErr := decodeLockoutState(data)
				if decErr != nil {
					return decErr
				}
				state = decoded
			}

			if state.LockedUntil != 0 && state.LockedUntil <= now.Unix() {
				state.Attempts = 0
				state.LockedUntil = 0
			}

			state.Attempts++
			if !state.lockedAt(now) && int(state.Attempts) >= threshold {
				state.LockedUntil = now.Add(lockDuration).Unix()
				crossed = int(state.Attempts) == threshold
			}

			encoded, err := encodeLockoutState(state)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, lockoutRecordTTL)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", errLockoutBackend, err)
		}
		return state, crossed, nil
	}

	return nil, false, errLockoutBackend
}

// Get returns the current state, or nil when the principal has no record.
func (s *lockoutStore) Get(ctx context.Context, principal [32]byte) (*lockoutState, error) {
	data, err := s.redis.Get(ctx, s.key(principal)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errLockoutBackend, err)
	}
	state, err := decodeLockoutState(data)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Clear removes the record. Called on successful authentication, lock
// expiry, and password reset.
func (s *lockoutStore) Clear(ctx context.Context, principal [32]byte) error {
	if err := s.redis.Del(ctx, s.key(principal)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLockoutBackend, err)
	}
	return nil
}

func encodeLockoutState(state *lockoutState) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(lockoutRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, state.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, state.LockedUntil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLockoutState(data []byte) (*lockoutState, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != lockoutRecordVersion1 {
		return nil, errors.New("invalid lockout record version")
	}

	state := &lockoutState{}
	if err := binary.Read(reader, binary.BigEndian, &state.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &state.LockedUntil); err != nil {
		return nil, err
	}
	return state, nil
}
