package repository

import (
	"context"

	"github.com/MP2EZ/being-sub014/internal/domain"
)

// ResultsRepository 已完成评估归档(追加只写,不修改不删除)
type ResultsRepository interface {
	// 追加一条完成结果。失败时调用方不得删除进行中快照
	Append(ctx context.Context, result *domain.CompletedResult) error

	// 查询用户历史结果,按完成时间倒序。instrumentType 为 nil 时不过滤;
	// limit <= 0 表示不限条数
	List(ctx context.Context, userID string, instrumentType *domain.InstrumentType, limit int) ([]*domain.CompletedResult, error)
}
