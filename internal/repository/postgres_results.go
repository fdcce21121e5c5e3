package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MP2EZ/being-sub014/internal/domain"
)

// PostgresResultsRepository 归档Repository实现(对应 assessment_results 表)
type PostgresResultsRepository struct {
	db *sql.DB
}

// NewPostgresResultsRepository 创建归档Repository
func NewPostgresResultsRepository(db *sql.DB) *PostgresResultsRepository {
	return &PostgresResultsRepository{db: db}
}

// 确保实现了接口
var _ ResultsRepository = (*PostgresResultsRepository)(nil)

func (r *PostgresResultsRepository) Append(ctx context.Context, result *domain.CompletedResult) error {
	answersJSON, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	query := `
		INSERT INTO assessment_results
			(result_id, user_id, session_id, instrument_type, total_score, severity,
			 is_crisis, suicidal_ideation, answers, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var suicidal sql.NullBool
	if result.SuicidalIdeation != nil {
		suicidal = sql.NullBool{Bool: *result.SuicidalIdeation, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		result.ResultID,
		result.UserID,
		result.SessionID,
		string(result.InstrumentType),
		result.TotalScore,
		string(result.Severity),
		result.IsCrisis,
		suicidal,
		answersJSON,
		result.CompletedAt,
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append result: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *PostgresResultsRepository) List(ctx context.Context, userID string, instrumentType *domain.InstrumentType, limit int) ([]*domain.CompletedResult, error) {
	query := `
		SELECT result_id, user_id, session_id, instrument_type, total_score, severity,
		       is_crisis, suicidal_ideation, answers, completed_at, created_at
		FROM assessment_results
		WHERE user_id = $1`
	args := []interface{}{userID}
	argN := 2

	if instrumentType != nil {
		query += fmt.Sprintf(" AND instrument_type = $%d", argN)
		args = append(args, string(*instrumentType))
		argN++
	}
	query += " ORDER BY completed_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query results: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []*domain.CompletedResult
	for rows.Next() {
		var (
			result      domain.CompletedResult
			suicidal    sql.NullBool
			answersJSON []byte
		)
		if err := rows.Scan(
			&result.ResultID,
			&result.UserID,
			&result.SessionID,
			&result.InstrumentType,
			&result.TotalScore,
			&result.Severity,
			&result.IsCrisis,
			&suicidal,
			&answersJSON,
			&result.CompletedAt,
			&result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if suicidal.Valid {
			v := suicidal.Bool
			result.SuicidalIdeation = &v
		}
		if len(answersJSON) > 0 {
			if err := json.Unmarshal(answersJSON, &result.Answers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal answers for result %s: %w", result.ResultID, err)
			}
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate results: %v", domain.ErrStorageUnavailable, err)
	}
	return results, nil
}
