package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"copytrader/internal/models"
)

// EarningRepository - чтение журнала начислений master_earnings
//
// Записи создаются только SettlementRepository.
type EarningRepository struct {
	db *sql.DB
}

// NewEarningRepository создает новый экземпляр репозитория
func NewEarningRepository(db *sql.DB) *EarningRepository {
	return &EarningRepository{db: db}
}

// ListByMaster возвращает начисления мастера, новые первыми
func (r *EarningRepository) ListByMaster(ctx context.Context, masterID string, limit int) ([]*models.MasterEarning, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT id, master_id, copier_id, copied_trade_id, amount, follower_profit, fee_percentage, created_at
		FROM master_earnings
		WHERE master_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, masterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []*models.MasterEarning
	for rows.Next() {
		e := &models.MasterEarning{}
		if err := rows.Scan(
			&e.ID,
			&e.MasterID,
			&e.CopierID,
			&e.CopiedTradeID,
			&e.Amount,
			&e.FollowerProfit,
			&e.FeePercentage,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		earnings = append(earnings, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return earnings, nil
}

// SumByMaster возвращает сумму начислений мастера по журналу
func (r *EarningRepository) SumByMaster(ctx context.Context, masterID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM master_earnings WHERE master_id = $1`, masterID,
	).Scan(&total)
	return total, err
}
