package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/models"
)

// ErrSnapshotCorrupt 快照无法反序列化或结构不完整。
// 调用方按"无可恢复会话"降级处理,但日志必须与普通 miss 区分
var ErrSnapshotCorrupt = errors.New("snapshot corrupt")

// SnapshotStore 可恢复快照存储能力集。
// Load 未命中返回 (nil, nil);过期判定由调用方负责,存储不强制删除。
// Save 幂等,整份快照覆盖写(快照粒度 last-write-wins)
type SnapshotStore interface {
	Save(ctx context.Context, snap *models.ResumableSnapshot) error
	Load(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*models.ResumableSnapshot, error)
	Delete(ctx context.Context, userID string, instrumentType domain.InstrumentType) error
	HasActive(ctx context.Context, userID string, instrumentType domain.InstrumentType) (bool, error)
}

// SnapshotKey 主存储键:{prefix}{userID}:{instrumentType}
func SnapshotKey(prefix, userID string, instrumentType domain.InstrumentType) string {
	return fmt.Sprintf("%s%s:%s", prefix, userID, instrumentType)
}
