package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements - схема БД, применяется идемпотентно при старте
//
// copied_trades и master_earnings - история: удаление аккаунтов её не трогает,
// поэтому внешних ключей на аккаунты у них нет.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS master_accounts (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		label VARCHAR(100) NOT NULL DEFAULT '',
		token TEXT NOT NULL,
		login_id VARCHAR(32) NOT NULL,
		account_kind VARCHAR(8) NOT NULL DEFAULT 'real',
		currency VARCHAR(8) NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		performance_fee NUMERIC(10, 4) NOT NULL DEFAULT 0,
		earnings NUMERIC(20, 8) NOT NULL DEFAULT 0,
		balance NUMERIC(20, 8) NOT NULL DEFAULT 0,
		equity NUMERIC(20, 8) NOT NULL DEFAULT 0,
		profit NUMERIC(20, 8) NOT NULL DEFAULT 0,
		loss NUMERIC(20, 8) NOT NULL DEFAULT 0,
		validated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_master_accounts_login ON master_accounts (login_id)`,
	`CREATE TABLE IF NOT EXISTS copier_accounts (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		master_id VARCHAR(36) NOT NULL REFERENCES master_accounts(id) ON DELETE CASCADE,
		token TEXT NOT NULL,
		login_id VARCHAR(32) NOT NULL,
		account_kind VARCHAR(8) NOT NULL DEFAULT 'real',
		email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		stake_type VARCHAR(16) NOT NULL DEFAULT 'PERCENTAGE',
		stake_amount DOUBLE PRECISION,
		risk_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
		validated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_copier_accounts_master_login ON copier_accounts (master_id, login_id)`,
	`CREATE INDEX IF NOT EXISTS idx_copier_accounts_master_active ON copier_accounts (master_id) WHERE active`,
	`CREATE TABLE IF NOT EXISTS copied_trades (
		id VARCHAR(36) PRIMARY KEY,
		master_id VARCHAR(36) NOT NULL,
		copier_id VARCHAR(36) NOT NULL,
		master_transaction_id VARCHAR(64) NOT NULL,
		contract_id VARCHAR(64) NOT NULL DEFAULT '',
		symbol VARCHAR(32) NOT NULL DEFAULT '',
		contract_type VARCHAR(32) NOT NULL DEFAULT '',
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency VARCHAR(8) NOT NULL DEFAULT '',
		status VARCHAR(10) NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		processed BOOLEAN NOT NULL DEFAULT false,
		follower_profit NUMERIC(20, 8),
		master_fee NUMERIC(20, 8),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		settled_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_copied_trades_attempt ON copied_trades (master_id, copier_id, master_transaction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_copied_trades_created ON copied_trades (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS master_earnings (
		id VARCHAR(36) PRIMARY KEY,
		master_id VARCHAR(36) NOT NULL,
		copier_id VARCHAR(36) NOT NULL,
		copied_trade_id VARCHAR(36) NOT NULL UNIQUE,
		amount NUMERIC(20, 8) NOT NULL,
		follower_profit NUMERIC(20, 8) NOT NULL,
		fee_percentage NUMERIC(10, 4) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_master_earnings_master ON master_earnings (master_id, created_at DESC)`,
	// схемы, созданные до отказа от каскадного удаления истории
	`ALTER TABLE copied_trades DROP CONSTRAINT IF EXISTS copied_trades_master_id_fkey`,
	`ALTER TABLE copied_trades DROP CONSTRAINT IF EXISTS copied_trades_copier_id_fkey`,
	`ALTER TABLE master_earnings DROP CONSTRAINT IF EXISTS master_earnings_master_id_fkey`,
}

// Migrate создаёт таблицы и индексы, если их ещё нет
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
