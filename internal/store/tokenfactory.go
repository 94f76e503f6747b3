package store

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/kenneth/msl/internal/msl"
	"github.com/redis/go-redis/v9"
)

// acceptNonReplayableIDScript implements msl.EvaluateNonReplayableID's
// accept/replay/unrecoverable decision as a single Lua EVAL so the
// compare-and-advance of the largest-seen ID is linearizable per master
// token serial number (spec.md §5) without an external lock: Redis
// executes one command at a time, so the GET-then-SET below never races
// with another client's EVAL against the same key.
const acceptNonReplayableIDScript = `
local largest = redis.call('GET', KEYS[1])
local incoming = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local maxid = tonumber(ARGV[3])

if largest == false then
  redis.call('SET', KEYS[1], incoming)
  return {1, 0, 0}
end
largest = tonumber(largest)

if incoming == largest then
  return {0, 1, 0}
end

if incoming > largest then
  local delta = incoming - largest
  if delta <= window then
    redis.call('SET', KEYS[1], incoming)
    return {1, 0, 0}
  end
  return {0, 0, 1}
end

local distanceToWrap = (maxid - largest) + incoming + 1
if distanceToWrap <= window then
  redis.call('SET', KEYS[1], incoming)
  return {1, 0, 0}
end
return {0, 1, 0}
`

// RedisTokenFactory implements msl.TokenFactory against Redis: revocation
// checks are set-membership lookups, and the non-replayable-ID
// compare-and-advance runs server-side via acceptNonReplayableIDScript.
type RedisTokenFactory struct {
	client *redis.Client
}

// NewRedisTokenFactory wraps an existing go-redis client.
func NewRedisTokenFactory(client *redis.Client) *RedisTokenFactory {
	return &RedisTokenFactory{client: client}
}

func largestSeenKey(serialNumber int64) string {
	return "msl:replay:largest-seen:" + strconv.FormatInt(serialNumber, 10)
}

func revokedEntitiesKey() string       { return "msl:revoked:entities" }
func revokedMasterTokensKey() string   { return "msl:revoked:master-tokens" }
func revokedUserIDTokensKey() string   { return "msl:revoked:user-id-tokens" }
func revocationReasonKey(id string) string { return "msl:revoked:reason:" + id }

// IsEntityRevoked implements msl.TokenFactory.
func (f *RedisTokenFactory) IsEntityRevoked(ctx context.Context, identity string) (string, bool, error) {
	return f.checkRevoked(ctx, revokedEntitiesKey(), identity)
}

// IsMasterTokenRevoked implements msl.TokenFactory.
func (f *RedisTokenFactory) IsMasterTokenRevoked(ctx context.Context, mt *msl.MasterToken) (string, bool, error) {
	id := strconv.FormatInt(mt.SerialNumber, 10)
	return f.checkRevoked(ctx, revokedMasterTokensKey(), id)
}

// IsUserIDTokenRevoked implements msl.TokenFactory.
func (f *RedisTokenFactory) IsUserIDTokenRevoked(ctx context.Context, _ *msl.MasterToken, ut *msl.UserIDToken) (string, bool, error) {
	id := strconv.FormatInt(ut.SerialNumber, 10)
	return f.checkRevoked(ctx, revokedUserIDTokensKey(), id)
}

func (f *RedisTokenFactory) checkRevoked(ctx context.Context, setKey, member string) (string, bool, error) {
	revoked, err := f.client.SIsMember(ctx, setKey, member).Result()
	if err != nil {
		return "", false, fmt.Errorf("store: redis: check revocation: %w", err)
	}
	if !revoked {
		return "", false, nil
	}
	reason, err := f.client.Get(ctx, revocationReasonKey(member)).Result()
	if err != nil && err != redis.Nil {
		return "", true, fmt.Errorf("store: redis: fetch revocation reason: %w", err)
	}
	if reason == "" {
		reason = "revoked"
	}
	return reason, true, nil
}

// Revoke marks member revoked in the given set, recording reason. It backs
// RevokeEntity and RevokeMasterToken.
func (f *RedisTokenFactory) Revoke(ctx context.Context, setKey, member, reason string) error {
	if err := f.client.SAdd(ctx, setKey, member).Err(); err != nil {
		return fmt.Errorf("store: redis: revoke %s: %w", member, err)
	}
	if reason != "" {
		if err := f.client.Set(ctx, revocationReasonKey(member), reason, 0).Err(); err != nil {
			return fmt.Errorf("store: redis: set revocation reason: %w", err)
		}
	}
	return nil
}

// RevokeEntity revokes an entity identity.
func (f *RedisTokenFactory) RevokeEntity(ctx context.Context, identity, reason string) error {
	return f.Revoke(ctx, revokedEntitiesKey(), identity, reason)
}

// RevokeMasterToken revokes a master token by serial number.
func (f *RedisTokenFactory) RevokeMasterToken(ctx context.Context, serialNumber int64, reason string) error {
	return f.Revoke(ctx, revokedMasterTokensKey(), strconv.FormatInt(serialNumber, 10), reason)
}

// AcceptNonReplayableID implements msl.TokenFactory's linearizable
// compare-and-advance via acceptNonReplayableIDScript.
func (f *RedisTokenFactory) AcceptNonReplayableID(ctx context.Context, mt *msl.MasterToken, id int64) (accepted, replay, unrecoverable bool, err error) {
	key := largestSeenKey(mt.SerialNumber)
	result, evalErr := f.client.Eval(ctx, acceptNonReplayableIDScript, []string{key},
		id, msl.AcceptanceWindow, int64(math.MaxInt64)).Result()
	if evalErr != nil {
		return false, false, false, fmt.Errorf("store: redis: accept non-replayable id: %w", evalErr)
	}

	vals, ok := result.([]interface{})
	if !ok || len(vals) != 3 {
		return false, false, false, fmt.Errorf("store: redis: unexpected eval result shape %T", result)
	}
	accepted = asInt64(vals[0]) == 1
	replay = asInt64(vals[1]) == 1
	unrecoverable = asInt64(vals[2]) == 1
	return accepted, replay, unrecoverable, nil
}

// Snapshot reads the full revoked-entity, revoked-master-token, and
// revoked-user-ID-token sets, for the archive-now CLI subcommand to back up
// to cold storage. Unlike the hot-path revocation checks above, this is an
// O(set size) operation and is never called from the receive pipeline.
func (f *RedisTokenFactory) Snapshot(ctx context.Context) (entities []string, masterTokens []int64, userIDTokens []int64, err error) {
	entities, err = f.client.SMembers(ctx, revokedEntitiesKey()).Result()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("store: redis: snapshot entities: %w", err)
	}

	mtStrs, err := f.client.SMembers(ctx, revokedMasterTokensKey()).Result()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("store: redis: snapshot master tokens: %w", err)
	}
	masterTokens = make([]int64, 0, len(mtStrs))
	for _, s := range mtStrs {
		n, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			continue
		}
		masterTokens = append(masterTokens, n)
	}

	utStrs, err := f.client.SMembers(ctx, revokedUserIDTokensKey()).Result()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("store: redis: snapshot user ID tokens: %w", err)
	}
	userIDTokens = make([]int64, 0, len(utStrs))
	for _, s := range utStrs {
		n, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			continue
		}
		userIDTokens = append(userIDTokens, n)
	}

	return entities, masterTokens, userIDTokens, nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
