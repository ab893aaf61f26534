// Package redisstore provides Redis-backed adapters: the shared round-robin
// pool cursor and the durable image cache.
package redisstore

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

const cursorKey = "pool:cursor"

// luaCursorCAS advances the cursor only when it still equals the observed
// snapshot, giving the conditional-write semantics selection depends on.
// A missing key counts as cursor 0.
const luaCursorCAS = `
local key = KEYS[1]
local observed = tonumber(ARGV[1])

local current = 0
local v = redis.call("GET", key)
if v ~= false and v ~= nil then
  current = tonumber(v)
end

if current ~= observed then
  return 0
end

redis.call("SET", key, current + 1)
return 1
`

// CursorStore implements domain.CursorStore on Redis.
type CursorStore struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewCursorStore constructs a CursorStore.
func NewCursorStore(rdb *redis.Client) *CursorStore {
	return &CursorStore{rdb: rdb, script: redis.NewScript(luaCursorCAS)}
}

// Get returns the current cursor value; a missing key reads as 0.
func (s *CursorStore) Get(ctx domain.Context) (int64, error) {
	v, err := s.rdb.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("op=cursor.get: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("op=cursor.get parse %q: %w", v, err)
	}
	return n, nil
}

// Advance performs the conditional write. ErrConflict signals the caller to
// re-read and retry.
func (s *CursorStore) Advance(ctx domain.Context, observed int64) error {
	res, err := s.script.Run(ctx, s.rdb, []string{cursorKey}, observed).Result()
	if err != nil {
		return fmt.Errorf("op=cursor.advance: %w", err)
	}
	ok, _ := res.(int64)
	if ok != 1 {
		return fmt.Errorf("op=cursor.advance observed=%d: %w", observed, domain.ErrConflict)
	}
	return nil
}
