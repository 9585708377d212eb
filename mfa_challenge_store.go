package signet

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const mfaChallengeVersion1 = 1

var (
	errChallengeNotFound = errors.New("mfa challenge not found")
	errChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// mfaChallenge is the transient state between a signin that demanded a
// second factor and the verification that resolves it. The fingerprint hash
// from the signin request rides along so a remember-device grant at
// verification time binds to the device that actually signed in.
type mfaChallenge struct {
	UserID          string
	Method          MFAMethod
	HasCode         bool
	CodeHash        [32]byte
	HasFingerprint  bool
	FingerprintHash [32]byte
	ExpiresAt       int64
	Attempts        uint16
}

func (c *mfaChallenge) expiredAt(now time.Time) bool {
	return c.ExpiresAt <= now.Unix()
}

type mfaChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newMFAChallengeStore(redisClient redis.UniversalClient, prefix string) *mfaChallengeStore {
	return &mfaChallengeStore{redis: redisClient, prefix: prefix}
}

func (s *mfaChallengeStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *mfaChallengeStore) Save(ctx context.Context, token string, challenge *mfaChallenge, ttl time.Duration) error {
	data, err := encodeMFAChallenge(challenge)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

// Get returns the challenge for an opaque token. Expired challenges are
// deleted and reported as not found so verification cannot race the TTL.
func (s *mfaChallengeStore) Get(ctx context.Context, token string) (*mfaChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	challenge, err := decodeMFAChallenge(data)
	if err != nil {
		return nil, err
	}

	if challenge.expiredAt(time.Now()) {
		_ = s.redis.Del(ctx, s.key(token)).Err()
		return nil, errChallengeNotFound
	}

	return challenge, nil
}

func (s *mfaChallengeStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

// RecordFailure counts one wrong code inside a WATCH transaction. The
// record survives exhaustion so later attempts on the same token read as a
// dead challenge rather than an unknown token; the TTL removes it.
// Returns the attempt count after this failure and whether the budget is
// now exhausted.
func (s *mfaChallengeStore) RecordFailure(ctx context.Context, token string, maxAttempts int) (uint16, bool, error) {
	const maxRetries = 4
	key := s.key(token)

	for i := 0; i < maxRetries; i++ {
		var (
			attempts  uint16
			exhausted bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return errChallengeNotFound
				}
				return err
			}

			challenge, err := decodeMFAChallenge(data)
			if err != nil {
				return err
			}
			if challenge.expiredAt(time.Now()) {
				return errChallengeNotFound
			}

			challenge.Attempts++
			attempts = challenge.Attempts
			exhausted = int(challenge.Attempts) >= maxAttempts

			encoded, err := encodeMFAChallenge(challenge)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, errChallengeNotFound) {
				return 0, false, errChallengeNotFound
			}
			return 0, false, fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
		return attempts, exhausted, nil
	}

	return 0, false, errChallengeBackend
}

func encodeMFAChallenge(challenge *mfaChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(mfaChallengeVersion1)

	if err := writeChallengeString(&buf, challenge.UserID); err != nil {
		return nil, err
	}
	buf.WriteByte(uint8(challenge.Method))

	buf.WriteByte(boolByte(challenge.HasCode))
	buf.Write(challenge.CodeHash[:])

	buf.WriteByte(boolByte(challenge.HasFingerprint))
	buf.Write(challenge.FingerprintHash[:])

	if err := binary.Write(&buf, binary.BigEndian, challenge.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, challenge.Attempts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMFAChallenge(data []byte) (*mfaChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaChallengeVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}

	challenge := &mfaChallenge{}

	if challenge.UserID, err = readChallengeString(reader); err != nil {
		return nil, err
	}

	method, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	challenge.Method = MFAMethod(method)

	hasCode, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	challenge.HasCode = hasCode == 1
	if _, err := reader.Read(challenge.CodeHash[:]); err != nil {
		return nil, err
	}

	hasFingerprint, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	challenge.HasFingerprint = hasFingerprint == 1
	if _, err := reader.Read(challenge.FingerprintHash[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &challenge.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &challenge.Attempts); err != nil {
		return nil, err
	}
	return challenge, nil
}

func writeChallengeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("challenge field too long")
	}
	buf.WriteByte(uint8(len(s)))
	buf.WriteString(s)
	return nil
}

func readChallengeString(reader *bytes.Reader) (string, error) {
	length, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	out := make([]byte, length)
	if _, err := reader.Read(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
