package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fitcoach/internal/model"
	"fitcoach/pkg/logger"
	"fitcoach/storage/redis"
)

const draftPrefix = "onboarding:draft"

// saveDraftScript 只有在已有草稿版本不高于新版本时才写入。
// KEYS[1] 草稿 key；ARGV[1] 草稿 JSON，ARGV[2] 新版本，ARGV[3] TTL 毫秒（0 表示不过期）。
var saveDraftScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, doc = pcall(cjson.decode, cur)
	if ok and type(doc) == 'table' and type(doc.snapshot) == 'table' then
		local v = tonumber(doc.snapshot.version) or 0
		if v > tonumber(ARGV[2]) then
			return 0
		end
	end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// DraftStore 把引导会话草稿保存在 Redis 中，过期后自动清除
type DraftStore struct {
	ttl time.Duration
}

func NewDraftStore(ttl time.Duration) *DraftStore {
	return &DraftStore{ttl: ttl}
}

// Save 写入草稿并刷新 TTL。Redis 中已有更高版本时放弃写入，不返回错误。
func (s *DraftStore) Save(ctx context.Context, draft *model.OnboardingDraft) error {
	b, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal onboarding draft: %w", err)
	}
	return DraftBreaker.Call(ctx, func(ctx context.Context) error {
		key := redis.Key(draftPrefix, draft.SessionID)
		written, err := saveDraftScript.Run(ctx, redis.Client(), []string{key},
			b, draft.Snapshot.Version, s.ttl.Milliseconds()).Int()
		if err != nil {
			return err
		}
		if written == 0 {
			logger.Logger.Debug("Skipped stale onboarding draft",
				zap.String("session_id", draft.SessionID),
				zap.Uint64("version", draft.Snapshot.Version),
			)
		}
		return nil
	})
}

// Load 未找到时返回 (nil, nil)
func (s *DraftStore) Load(ctx context.Context, sessionID string) (*model.OnboardingDraft, error) {
	var raw []byte
	err := DraftBreaker.Call(ctx, func(ctx context.Context) error {
		var err error
		raw, err = redis.Client().Get(ctx, redis.Key(draftPrefix, sessionID)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var draft model.OnboardingDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("unmarshal onboarding draft: %w", err)
	}
	return &draft, nil
}

func (s *DraftStore) Delete(ctx context.Context, sessionID string) error {
	return redis.Client().Del(ctx, redis.Key(draftPrefix, sessionID)).Err()
}
