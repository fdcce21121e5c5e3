package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/models"

	"go.uber.org/zap"
)

// RedisSnapshotStore 主快照存储。整份 JSON 覆盖写,TTL 与快照 expires_at 同步,
// 但过期语义仍以调用方检查 expires_at 为准
type RedisSnapshotStore struct {
	kv        KV
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)

// NewRedisSnapshotStore 创建主快照存储
func NewRedisSnapshotStore(kv KV, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		kv:        kv,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *RedisSnapshotStore) key(userID string, instrumentType domain.InstrumentType) string {
	return SnapshotKey(s.keyPrefix, userID, instrumentType)
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap *models.ResumableSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(snap.UserID, snap.SubType), string(data), s.ttl); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*models.ResumableSnapshot, error) {
	val, err := s.kv.Get(ctx, s.key(userID, instrumentType))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	var snap models.ResumableSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if !snap.Validate() {
		return nil, fmt.Errorf("%w: structural validation failed", ErrSnapshotCorrupt)
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, userID string, instrumentType domain.InstrumentType) error {
	if err := s.kv.Del(ctx, s.key(userID, instrumentType)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisSnapshotStore) HasActive(ctx context.Context, userID string, instrumentType domain.InstrumentType) (bool, error) {
	ok, err := s.kv.Exists(ctx, s.key(userID, instrumentType))
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return ok, nil
}
