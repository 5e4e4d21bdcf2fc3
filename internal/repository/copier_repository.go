package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"copytrader/internal/models"
)

// Ошибки репозитория копировщиков
var (
	ErrCopierNotFound = errors.New("copier account not found")
	ErrCopierExists   = errors.New("copier account already follows this master")
)

const copierColumns = `id, user_id, master_id, token, login_id, account_kind, email, active,
		stake_type, stake_amount, risk_multiplier, validated_at, created_at, updated_at`

// CopierRepository - работа с таблицей copier_accounts
type CopierRepository struct {
	db *sql.DB
}

// NewCopierRepository создает новый экземпляр репозитория
func NewCopierRepository(db *sql.DB) *CopierRepository {
	return &CopierRepository{db: db}
}

func scanCopier(s rowScanner) (*models.CopierAccount, error) {
	c := &models.CopierAccount{}
	err := s.Scan(
		&c.ID,
		&c.UserID,
		&c.MasterID,
		&c.Token,
		&c.LoginID,
		&c.AccountKind,
		&c.Email,
		&c.Active,
		&c.StakeType,
		&c.StakeAmount,
		&c.RiskMultiplier,
		&c.ValidatedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CopierRepository) queryList(ctx context.Context, query string, args ...interface{}) ([]*models.CopierAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var copiers []*models.CopierAccount
	for rows.Next() {
		c, err := scanCopier(rows)
		if err != nil {
			return nil, err
		}
		copiers = append(copiers, c)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return copiers, nil
}

// Create сохраняет нового копировщика
func (r *CopierRepository) Create(ctx context.Context, c *models.CopierAccount) error {
	query := `
		INSERT INTO copier_accounts (id, user_id, master_id, token, login_id, account_kind, email, active,
			stake_type, stake_amount, risk_multiplier, validated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.MasterID,
		c.Token,
		c.LoginID,
		c.AccountKind,
		c.Email,
		c.Active,
		c.StakeType,
		c.StakeAmount,
		c.RiskMultiplier,
		c.ValidatedAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCopierExists
		}
		if isForeignKeyViolation(err) {
			return ErrMasterNotFound
		}
		return err
	}

	return nil
}

// GetByID возвращает копировщика по ID
func (r *CopierRepository) GetByID(ctx context.Context, id string) (*models.CopierAccount, error) {
	query := `SELECT ` + copierColumns + ` FROM copier_accounts WHERE id = $1`

	c, err := scanCopier(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCopierNotFound
		}
		return nil, err
	}

	return c, nil
}

// ListByUser возвращает копировщиков пользователя
func (r *CopierRepository) ListByUser(ctx context.Context, userID string) ([]*models.CopierAccount, error) {
	query := `SELECT ` + copierColumns + ` FROM copier_accounts WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryList(ctx, query, userID)
}

// ListActiveByMaster возвращает активных копировщиков мастера (чтение на каждую сделку)
func (r *CopierRepository) ListActiveByMaster(ctx context.Context, masterID string) ([]*models.CopierAccount, error) {
	query := `SELECT ` + copierColumns + ` FROM copier_accounts WHERE master_id = $1 AND active = true`
	return r.queryList(ctx, query, masterID)
}

// Update сохраняет политику ставки, флаг активности и токен
func (r *CopierRepository) Update(ctx context.Context, c *models.CopierAccount) error {
	query := `
		UPDATE copier_accounts
		SET token = $1, login_id = $2, email = $3, active = $4, stake_type = $5, stake_amount = $6,
			risk_multiplier = $7, validated_at = $8, updated_at = $9
		WHERE id = $10`

	c.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		c.Token,
		c.LoginID,
		c.Email,
		c.Active,
		c.StakeType,
		c.StakeAmount,
		c.RiskMultiplier,
		c.ValidatedAt,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCopierExists
		}
		return err
	}

	return requireAffected(result, ErrCopierNotFound)
}

// Delete удаляет копировщика
func (r *CopierRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM copier_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireAffected(result, ErrCopierNotFound)
}

// CountByMaster возвращает количество копировщиков мастера
func (r *CopierRepository) CountByMaster(ctx context.Context, masterID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM copier_accounts WHERE master_id = $1`, masterID).Scan(&count)
	return count, err
}
