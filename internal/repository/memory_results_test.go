package repository

import (
	"context"
	"testing"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryResultsRepository_AppendAndList(t *testing.T) {
	repo := NewMemoryResultsRepository()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, inst := range []domain.InstrumentType{domain.InstrumentPHQ9, domain.InstrumentGAD7, domain.InstrumentPHQ9} {
		require.NoError(t, repo.Append(ctx, &domain.CompletedResult{
			ResultID:       string(rune('a' + i)),
			UserID:         "user-1",
			SessionID:      "sess",
			InstrumentType: inst,
			TotalScore:     i,
			Severity:       domain.SeverityMinimal,
			CompletedAt:    base.Add(time.Duration(i) * time.Hour),
			CreatedAt:      base,
		}))
	}

	// 倒序:最后完成的排最前
	all, err := repo.List(ctx, "user-1", nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].TotalScore)
	assert.Equal(t, 0, all[2].TotalScore)

	// 量表过滤
	phq9 := domain.InstrumentPHQ9
	filtered, err := repo.List(ctx, "user-1", &phq9, 0)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	// 条数限制
	limited, err := repo.List(ctx, "user-1", nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// 其他用户看不到
	other, err := repo.List(ctx, "user-2", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryResultsRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryResultsRepository()
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, &domain.CompletedResult{
		ResultID:       "res-1",
		UserID:         "user-1",
		InstrumentType: domain.InstrumentPHQ9,
		TotalScore:     5,
		Answers:        []domain.AnswerRecord{{QuestionID: "phq9_q1", Response: 1}},
		CompletedAt:    time.Now(),
	}))

	first, err := repo.List(ctx, "user-1", nil, 0)
	require.NoError(t, err)
	first[0].TotalScore = 99
	first[0].Answers[0].Response = 99

	second, err := repo.List(ctx, "user-1", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, second[0].TotalScore)
	assert.Equal(t, 1, second[0].Answers[0].Response)
}
