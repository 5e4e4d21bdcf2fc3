package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"copytrader/internal/models"
)

// Ошибки репозитория записей репликации
var (
	ErrCopiedTradeNotFound = errors.New("copied trade not found")
	ErrCopiedTradeExists   = errors.New("copied trade already recorded for this transaction")
)

// Лимиты выборки
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const copiedTradeColumns = `id, master_id, copier_id, master_transaction_id, contract_id, symbol, contract_type,
		amount, currency, status, error_message, processed, follower_profit, master_fee, created_at, settled_at`

// CopiedTradeRepository - работа с таблицей copied_trades
//
// Записи создаются движком репликации и изменяются только при расчёте комиссии
// (см. SettlementRepository).
type CopiedTradeRepository struct {
	db *sql.DB
}

// NewCopiedTradeRepository создает новый экземпляр репозитория
func NewCopiedTradeRepository(db *sql.DB) *CopiedTradeRepository {
	return &CopiedTradeRepository{db: db}
}

func scanCopiedTrade(s rowScanner) (*models.CopiedTrade, error) {
	t := &models.CopiedTrade{}
	err := s.Scan(
		&t.ID,
		&t.MasterID,
		&t.CopierID,
		&t.MasterTransactionID,
		&t.ContractID,
		&t.Symbol,
		&t.ContractType,
		&t.Amount,
		&t.Currency,
		&t.Status,
		&t.ErrorMessage,
		&t.Processed,
		&t.FollowerProfit,
		&t.MasterFee,
		&t.CreatedAt,
		&t.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create записывает результат попытки репликации
//
// Повторная запись для той же пары (транзакция мастера, копировщик) отклоняется
// с ErrCopiedTradeExists.
func (r *CopiedTradeRepository) Create(ctx context.Context, t *models.CopiedTrade) error {
	query := `
		INSERT INTO copied_trades (id, master_id, copier_id, master_transaction_id, contract_id, symbol, contract_type,
			amount, currency, status, error_message, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12)
		ON CONFLICT (master_id, copier_id, master_transaction_id) DO NOTHING`

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Processed = false
	t.CreatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.MasterID,
		t.CopierID,
		t.MasterTransactionID,
		t.ContractID,
		t.Symbol,
		t.ContractType,
		t.Amount,
		t.Currency,
		t.Status,
		t.ErrorMessage,
		t.CreatedAt,
	)
	if err != nil {
		return err
	}

	return requireAffected(result, ErrCopiedTradeExists)
}

// GetByID возвращает запись по ID
func (r *CopiedTradeRepository) GetByID(ctx context.Context, id string) (*models.CopiedTrade, error) {
	query := `SELECT ` + copiedTradeColumns + ` FROM copied_trades WHERE id = $1`

	t, err := scanCopiedTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCopiedTradeNotFound
		}
		return nil, err
	}

	return t, nil
}

// List возвращает записи по фильтру, новые первыми
func (r *CopiedTradeRepository) List(ctx context.Context, f models.CopiedTradeFilter) ([]*models.CopiedTrade, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("(master_id IN (SELECT id FROM master_accounts WHERE user_id = $%[1]d) OR "+
			"copier_id IN (SELECT id FROM copier_accounts WHERE user_id = $%[1]d))", f.UserID)
	}
	if f.MasterID != "" {
		add("master_id = $%d", f.MasterID)
	}
	if f.CopierID != "" {
		add("copier_id = $%d", f.CopierID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Processed != nil {
		add("processed = $%d", *f.Processed)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + copiedTradeColumns + ` FROM copied_trades`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.CopiedTrade
	for rows.Next() {
		t, err := scanCopiedTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
