package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"copytrader/internal/models"
)

// Ошибки репозитория мастеров
var (
	ErrMasterNotFound = errors.New("master account not found")
	ErrMasterExists   = errors.New("master account already exists")
)

const masterColumns = `id, user_id, label, token, login_id, account_kind, currency, email, active,
		performance_fee, earnings, balance, equity, profit, loss, validated_at, created_at, updated_at`

// MasterRepository - работа с таблицей master_accounts
type MasterRepository struct {
	db *sql.DB
}

// NewMasterRepository создает новый экземпляр репозитория
func NewMasterRepository(db *sql.DB) *MasterRepository {
	return &MasterRepository{db: db}
}

func scanMaster(s rowScanner) (*models.MasterAccount, error) {
	m := &models.MasterAccount{}
	err := s.Scan(
		&m.ID,
		&m.UserID,
		&m.Label,
		&m.Token,
		&m.LoginID,
		&m.AccountKind,
		&m.Currency,
		&m.Email,
		&m.Active,
		&m.PerformanceFee,
		&m.Earnings,
		&m.Balance,
		&m.Equity,
		&m.Profit,
		&m.Loss,
		&m.ValidatedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MasterRepository) queryList(ctx context.Context, query string, args ...interface{}) ([]*models.MasterAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var masters []*models.MasterAccount
	for rows.Next() {
		m, err := scanMaster(rows)
		if err != nil {
			return nil, err
		}
		masters = append(masters, m)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return masters, nil
}

// Create сохраняет нового мастера (токен должен быть уже зашифрован)
func (r *MasterRepository) Create(ctx context.Context, m *models.MasterAccount) error {
	query := `
		INSERT INTO master_accounts (id, user_id, label, token, login_id, account_kind, currency, email, active,
			performance_fee, earnings, balance, equity, profit, loss, validated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.Label,
		m.Token,
		m.LoginID,
		m.AccountKind,
		m.Currency,
		m.Email,
		m.Active,
		m.PerformanceFee,
		m.Earnings,
		m.Balance,
		m.Equity,
		m.Profit,
		m.Loss,
		m.ValidatedAt,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrMasterExists
		}
		return err
	}

	return nil
}

// GetByID возвращает мастера по ID
func (r *MasterRepository) GetByID(ctx context.Context, id string) (*models.MasterAccount, error) {
	query := `SELECT ` + masterColumns + ` FROM master_accounts WHERE id = $1`

	m, err := scanMaster(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMasterNotFound
		}
		return nil, err
	}

	return m, nil
}

// ListByUser возвращает мастеров пользователя
func (r *MasterRepository) ListByUser(ctx context.Context, userID string) ([]*models.MasterAccount, error) {
	query := `SELECT ` + masterColumns + ` FROM master_accounts WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryList(ctx, query, userID)
}

// ListActive возвращает всех активных мастеров (для реестра подписок)
func (r *MasterRepository) ListActive(ctx context.Context) ([]*models.MasterAccount, error) {
	query := `SELECT ` + masterColumns + ` FROM master_accounts WHERE active = true ORDER BY created_at`
	return r.queryList(ctx, query)
}

// Update сохраняет изменяемые пользователем поля и токен
func (r *MasterRepository) Update(ctx context.Context, m *models.MasterAccount) error {
	query := `
		UPDATE master_accounts
		SET label = $1, token = $2, active = $3, performance_fee = $4, updated_at = $5
		WHERE id = $6`

	m.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query, m.Label, m.Token, m.Active, m.PerformanceFee, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}

	return requireAffected(result, ErrMasterNotFound)
}

// UpdateSnapshot обновляет снимок аккаунта после повторной валидации
func (r *MasterRepository) UpdateSnapshot(ctx context.Context, m *models.MasterAccount) error {
	query := `
		UPDATE master_accounts
		SET login_id = $1, account_kind = $2, currency = $3, email = $4,
			balance = $5, equity = $6, profit = $7, loss = $8, validated_at = $9, updated_at = $10
		WHERE id = $11`

	m.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		m.LoginID,
		m.AccountKind,
		m.Currency,
		m.Email,
		m.Balance,
		m.Equity,
		m.Profit,
		m.Loss,
		m.ValidatedAt,
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return err
	}

	return requireAffected(result, ErrMasterNotFound)
}

// RotateToken записывает новый токен вместе с его снимком аккаунта одним UPDATE
func (r *MasterRepository) RotateToken(ctx context.Context, m *models.MasterAccount) error {
	query := `
		UPDATE master_accounts
		SET label = $1, token = $2, active = $3, performance_fee = $4,
			login_id = $5, account_kind = $6, currency = $7, email = $8,
			balance = $9, equity = $10, profit = $11, loss = $12, validated_at = $13, updated_at = $14
		WHERE id = $15`

	m.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		m.Label,
		m.Token,
		m.Active,
		m.PerformanceFee,
		m.LoginID,
		m.AccountKind,
		m.Currency,
		m.Email,
		m.Balance,
		m.Equity,
		m.Profit,
		m.Loss,
		m.ValidatedAt,
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrMasterExists
		}
		return err
	}

	return requireAffected(result, ErrMasterNotFound)
}

// Delete удаляет мастера; копировщики удаляются каскадно, история остаётся
func (r *MasterRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM master_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireAffected(result, ErrMasterNotFound)
}

// DeleteOrphans удаляет мастеров без копировщиков, созданных раньше olderThan
func (r *MasterRepository) DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM master_accounts m
		WHERE m.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM copier_accounts c WHERE c.master_id = m.id)`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// requireAffected возвращает notFound, если запрос не затронул ни одной строки
func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
