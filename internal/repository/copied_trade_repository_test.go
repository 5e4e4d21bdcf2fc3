package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"copytrader/internal/models"
)

var copiedTradeColumnNames = []string{
	"id", "master_id", "copier_id", "master_transaction_id", "contract_id", "symbol", "contract_type",
	"amount", "currency", "status", "error_message", "processed", "follower_profit", "master_fee", "created_at", "settled_at",
}

func TestCopiedTradeRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		trade       *models.CopiedTrade
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success record",
			trade: &models.CopiedTrade{
				MasterID: "m-1", CopierID: "c-1", MasterTransactionID: "tx-1", ContractID: "555",
				Symbol: "R_100", ContractType: "CALL", Amount: 10, Currency: "USD", Status: models.CopiedTradeSuccess,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO copied_trades .+ ON CONFLICT \(master_id, copier_id, master_transaction_id\) DO NOTHING`).
					WithArgs(sqlmock.AnyArg(), "m-1", "c-1", "tx-1", "555", "R_100", "CALL", 10.0, "USD", "SUCCESS", "", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "failed record",
			trade: &models.CopiedTrade{
				MasterID: "m-1", CopierID: "c-2", MasterTransactionID: "tx-1",
				Status: models.CopiedTradeFailed, ErrorMessage: "InsufficientBalance: balance too low",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO copied_trades`).
					WithArgs(sqlmock.AnyArg(), "m-1", "c-2", "tx-1", "", "", "", 0.0, "", "FAILED", "InsufficientBalance: balance too low", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate attempt",
			trade: &models.CopiedTrade{
				MasterID: "m-1", CopierID: "c-1", MasterTransactionID: "tx-1", Status: models.CopiedTradeSuccess,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO copied_trades`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrCopiedTradeExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			err = NewCopiedTradeRepository(db).Create(context.Background(), tt.trade)
			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}
			if tt.trade.Processed {
				t.Error("new record must not be processed")
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestCopiedTradeRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	settled := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM copied_trades WHERE id = \$1`).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows(copiedTradeColumnNames).
			AddRow("rec-1", "m-1", "c-1", "tx-1", "555", "R_100", "CALL", 10.0, "USD", "SUCCESS", "", true, "200", "20", settled, settled))

	trade, err := NewCopiedTradeRepository(db).GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trade.Processed || !trade.MasterFee.Valid || !trade.MasterFee.Decimal.Equal(decimal.NewFromInt(20)) {
		t.Errorf("unexpected settlement fields: %+v", trade)
	}
	if trade.SettledAt == nil {
		t.Error("SettledAt must be set")
	}
}

func TestCopiedTradeRepositoryGetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM copied_trades`).WillReturnRows(sqlmock.NewRows(copiedTradeColumnNames))

	if _, err := NewCopiedTradeRepository(db).GetByID(context.Background(), "x"); !errors.Is(err, ErrCopiedTradeNotFound) {
		t.Errorf("expected ErrCopiedTradeNotFound, got %v", err)
	}
}

func TestCopiedTradeRepositoryList(t *testing.T) {
	processed := false

	tests := []struct {
		name      string
		filter    models.CopiedTradeFilter
		queryRe   string
		queryArgs []driver.Value
	}{
		{
			name:      "no filter uses default limit",
			filter:    models.CopiedTradeFilter{},
			queryRe:   `FROM copied_trades ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`,
			queryArgs: []driver.Value{DefaultListLimit, 0},
		},
		{
			name:      "all filters",
			filter:    models.CopiedTradeFilter{MasterID: "m-1", CopierID: "c-1", Status: "FAILED", Processed: &processed, Limit: 10, Offset: 20},
			queryRe:   `WHERE master_id = \$1 AND copier_id = \$2 AND status = \$3 AND processed = \$4 ORDER BY created_at DESC LIMIT \$5 OFFSET \$6`,
			queryArgs: []driver.Value{"m-1", "c-1", "FAILED", false, 10, 20},
		},
		{
			name:      "limit capped",
			filter:    models.CopiedTradeFilter{MasterID: "m-1", Limit: 100000, Offset: -5},
			queryRe:   `WHERE master_id = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`,
			queryArgs: []driver.Value{"m-1", MaxListLimit, 0},
		},
		{
			name:   "scoped to user accounts",
			filter: models.CopiedTradeFilter{UserID: "u-1", Status: "SUCCESS"},
			queryRe: `WHERE \(master_id IN \(SELECT id FROM master_accounts WHERE user_id = \$1\) OR ` +
				`copier_id IN \(SELECT id FROM copier_accounts WHERE user_id = \$1\)\) AND status = \$2 ` +
				`ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`,
			queryArgs: []driver.Value{"u-1", "SUCCESS", DefaultListLimit, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			mock.ExpectQuery(tt.queryRe).
				WithArgs(tt.queryArgs...).
				WillReturnRows(sqlmock.NewRows(copiedTradeColumnNames).
					AddRow("rec-1", "m-1", "c-1", "tx-1", "", "R_100", "CALL", 1.0, "USD", "FAILED", "timeout", false, nil, nil, time.Now(), nil))

			trades, err := NewCopiedTradeRepository(db).List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(trades) != 1 || trades[0].FollowerProfit.Valid {
				t.Errorf("unexpected trades: %+v", trades)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
