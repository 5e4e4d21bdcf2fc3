package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"copytrader/internal/models"
)

// ErrSettlementConflict - запись изменилась между блокировкой и обновлением
var ErrSettlementConflict = errors.New("copied trade settlement conflict")

// SettlementRepository - атомарный расчёт комиссии мастера
//
// Все изменения (запись репликации, журнал начислений, итоги мастера) выполняются
// в одной транзакции. Строка copied_trades блокируется через SELECT ... FOR UPDATE,
// поэтому конкурентные расчёты одной записи выполняются последовательно и только
// первый видит processed = false.
type SettlementRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSettlementRepository создает новый экземпляр репозитория
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db, now: time.Now}
}

// Settle применяет комиссию к записи репликации ровно один раз
//
// Повторный вызов для уже обработанной записи ничего не меняет и возвращает
// сохранённый результат первого расчёта с AlreadyProcessed = true.
func (r *SettlementRepository) Settle(ctx context.Context, copiedTradeID string, followerProfit decimal.Decimal) (result *models.SettlementResult, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settlement: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 1. Блокируем запись, читаем процент комиссии мастера и сохранённый итог
	var (
		masterID     string
		copierID     string
		processed    bool
		feePct       decimal.Decimal
		storedProfit decimal.NullDecimal
		storedFee    decimal.NullDecimal
		earningID    sql.NullString
		earningPct   decimal.NullDecimal
	)
	lockQuery := `
		SELECT ct.master_id, ct.copier_id, ct.processed, ct.follower_profit, ct.master_fee,
			m.performance_fee, e.id, e.fee_percentage
		FROM copied_trades ct
		JOIN master_accounts m ON m.id = ct.master_id
		LEFT JOIN master_earnings e ON e.copied_trade_id = ct.id
		WHERE ct.id = $1
		FOR UPDATE OF ct`

	err = tx.QueryRowContext(ctx, lockQuery, copiedTradeID).Scan(
		&masterID, &copierID, &processed, &storedProfit, &storedFee,
		&feePct, &earningID, &earningPct,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCopiedTradeNotFound
		}
		return nil, err
	}

	result = &models.SettlementResult{
		CopiedTradeID:  copiedTradeID,
		MasterID:       masterID,
		CopierID:       copierID,
		FollowerProfit: followerProfit,
		FeePercentage:  feePct,
		Fee:            decimal.Zero,
	}

	// 2. Уже обработана - идемпотентный no-op, возвращаем первый расчёт
	if processed {
		result.AlreadyProcessed = true
		result.FollowerProfit = storedProfit.Decimal
		result.Fee = storedFee.Decimal
		if earningPct.Valid {
			result.FeePercentage = earningPct.Decimal
		}
		result.EarningID = earningID.String
		if err = tx.Rollback(); err != nil {
			return nil, err
		}
		return result, nil
	}

	// 3. Комиссия только с положительной прибыли
	fee := models.PerformanceFee(followerProfit, feePct)
	result.Fee = fee
	now := r.now()

	// 4. Закрываем запись репликации
	update, err := tx.ExecContext(ctx, `
		UPDATE copied_trades
		SET follower_profit = $1, master_fee = $2, processed = true, settled_at = $3
		WHERE id = $4 AND processed = false`,
		followerProfit, fee, now, copiedTradeID,
	)
	if err != nil {
		return nil, err
	}
	if err = requireAffected(update, ErrSettlementConflict); err != nil {
		return nil, err
	}

	// 5. Журнал начислений и итоги мастера - только при fee > 0
	if fee.IsPositive() {
		result.EarningID = uuid.NewString()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO master_earnings (id, master_id, copier_id, copied_trade_id, amount, follower_profit, fee_percentage, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			result.EarningID, masterID, copierID, copiedTradeID, fee, followerProfit, feePct, now,
		)
		if err != nil {
			return nil, err
		}

		var totals sql.Result
		totals, err = tx.ExecContext(ctx, `
			UPDATE master_accounts
			SET earnings = earnings + $1, profit = profit + $1, updated_at = $2
			WHERE id = $3`,
			fee, now, masterID,
		)
		if err != nil {
			return nil, err
		}
		if err = requireAffected(totals, ErrMasterNotFound); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}

	return result, nil
}
