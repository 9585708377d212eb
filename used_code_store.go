package signet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var errUsedCodeBackend = errors.New("used code backend unavailable")

// usedCodeStore remembers accepted one-time codes so a code that already
// authenticated cannot do so again inside its validity window. Keys combine
// the user, the code hash, and the TOTP step the code matched, which keeps
// entries for different users and different steps independent.
type usedCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newUsedCodeStore(redisClient redis.UniversalClient, prefix string) *usedCodeStore {
	return &usedCodeStore{redis: redisClient, prefix: prefix}
}

func (s *usedCodeStore) key(userID string, codeHash [32]byte, timeStep int64) string {
	return s.prefix + ":" + userID + ":" +
		base64.RawURLEncoding.EncodeToString(codeHash[:]) + ":" +
		strconv.FormatInt(timeStep, 10)
}

// MarkUsed records an accepted code. SET NX makes the recording atomic:
// when two verifications race the same code, exactly one observes
// newlySet=true and wins.
func (s *usedCodeStore) MarkUsed(ctx context.Context, userID string, codeHash [32]byte, timeStep int64, ttl time.Duration) (bool, error) {
	newlySet, err := s.redis.SetNX(ctx, s.key(userID, codeHash, timeStep), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errUsedCodeBackend, err)
	}
	return newlySet, nil
}
