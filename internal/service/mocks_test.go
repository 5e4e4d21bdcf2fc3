package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/internal/deriv"
	"copytrader/internal/models"
	"copytrader/internal/repository"
)

// ============ Mock MasterRepository ============

type MockMasterRepository struct {
	masters         map[string]*models.MasterAccount
	createErr       error
	getErr          error
	updateErr       error
	snapshotErr     error
	rotateErr       error
	deleteErr       error
	snapshotUpdates int
	rotations       int
	nextID          int
}

func NewMockMasterRepository() *MockMasterRepository {
	return &MockMasterRepository{
		masters: make(map[string]*models.MasterAccount),
		nextID:  1,
	}
}

func (m *MockMasterRepository) add(master *models.MasterAccount) {
	stored := *master
	m.masters[master.ID] = &stored
}

func (m *MockMasterRepository) Create(_ context.Context, master *models.MasterAccount) error {
	if m.createErr != nil {
		return m.createErr
	}
	if master.ID == "" {
		master.ID = "master-" + itoa(m.nextID)
		m.nextID++
	}
	master.CreatedAt = time.Now()
	m.add(master)
	return nil
}

func (m *MockMasterRepository) GetByID(_ context.Context, id string) (*models.MasterAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	master, ok := m.masters[id]
	if !ok {
		return nil, repository.ErrMasterNotFound
	}
	stored := *master
	return &stored, nil
}

func (m *MockMasterRepository) ListByUser(_ context.Context, userID string) ([]*models.MasterAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.MasterAccount
	for _, master := range m.masters {
		if master.UserID == userID {
			result = append(result, master)
		}
	}
	return result, nil
}

func (m *MockMasterRepository) Update(_ context.Context, master *models.MasterAccount) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.masters[master.ID]
	if !ok {
		return repository.ErrMasterNotFound
	}
	stored.Label = master.Label
	stored.Token = master.Token
	stored.Active = master.Active
	stored.PerformanceFee = master.PerformanceFee
	return nil
}

func (m *MockMasterRepository) UpdateSnapshot(_ context.Context, master *models.MasterAccount) error {
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	stored, ok := m.masters[master.ID]
	if !ok {
		return repository.ErrMasterNotFound
	}
	m.snapshotUpdates++
	stored.LoginID = master.LoginID
	stored.AccountKind = master.AccountKind
	stored.Currency = master.Currency
	stored.Email = master.Email
	stored.Balance = master.Balance
	stored.Equity = master.Equity
	stored.Profit = master.Profit
	stored.Loss = master.Loss
	stored.ValidatedAt = master.ValidatedAt
	return nil
}

func (m *MockMasterRepository) RotateToken(_ context.Context, master *models.MasterAccount) error {
	if m.rotateErr != nil {
		return m.rotateErr
	}
	stored, ok := m.masters[master.ID]
	if !ok {
		return repository.ErrMasterNotFound
	}
	m.rotations++
	updated := *master
	updated.Earnings = stored.Earnings
	m.masters[master.ID] = &updated
	return nil
}

func (m *MockMasterRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.masters[id]; !ok {
		return repository.ErrMasterNotFound
	}
	delete(m.masters, id)
	return nil
}

// ============ Mock CopierRepository ============

type MockCopierRepository struct {
	copiers   map[string]*models.CopierAccount
	createErr error
	getErr    error
	updateErr error
	deleteErr error
	nextID    int
}

func NewMockCopierRepository() *MockCopierRepository {
	return &MockCopierRepository{
		copiers: make(map[string]*models.CopierAccount),
		nextID:  1,
	}
}

func (m *MockCopierRepository) Create(_ context.Context, c *models.CopierAccount) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.copiers {
		if existing.MasterID == c.MasterID && existing.LoginID == c.LoginID {
			return repository.ErrCopierExists
		}
	}
	if c.ID == "" {
		c.ID = "copier-" + itoa(m.nextID)
		m.nextID++
	}
	stored := *c
	m.copiers[c.ID] = &stored
	return nil
}

func (m *MockCopierRepository) GetByID(_ context.Context, id string) (*models.CopierAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.copiers[id]
	if !ok {
		return nil, repository.ErrCopierNotFound
	}
	stored := *c
	return &stored, nil
}

func (m *MockCopierRepository) ListByUser(_ context.Context, userID string) ([]*models.CopierAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.CopierAccount
	for _, c := range m.copiers {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MockCopierRepository) Update(_ context.Context, c *models.CopierAccount) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.copiers[c.ID]; !ok {
		return repository.ErrCopierNotFound
	}
	stored := *c
	m.copiers[c.ID] = &stored
	return nil
}

func (m *MockCopierRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.copiers[id]; !ok {
		return repository.ErrCopierNotFound
	}
	delete(m.copiers, id)
	return nil
}

// ============ Mock CopiedTradeRepository ============

type MockCopiedTradeRepository struct {
	trades     map[string]*models.CopiedTrade
	listErr    error
	lastFilter models.CopiedTradeFilter
}

func NewMockCopiedTradeRepository() *MockCopiedTradeRepository {
	return &MockCopiedTradeRepository{trades: make(map[string]*models.CopiedTrade)}
}

func (m *MockCopiedTradeRepository) GetByID(_ context.Context, id string) (*models.CopiedTrade, error) {
	t, ok := m.trades[id]
	if !ok {
		return nil, repository.ErrCopiedTradeNotFound
	}
	return t, nil
}

func (m *MockCopiedTradeRepository) List(_ context.Context, filter models.CopiedTradeFilter) ([]*models.CopiedTrade, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.CopiedTrade
	for _, t := range m.trades {
		if filter.MasterID != "" && t.MasterID != filter.MasterID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

// ============ Mock SettlementRepository ============

// MockSettlementRepository повторяет семантику атомарного расчёта в памяти
type MockSettlementRepository struct {
	mu        sync.Mutex
	trades    map[string]*models.CopiedTrade
	feePct    map[string]decimal.Decimal
	earnings  []*models.MasterEarning
	settleErr error
}

func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{
		trades: make(map[string]*models.CopiedTrade),
		feePct: make(map[string]decimal.Decimal),
	}
}

func (m *MockSettlementRepository) Settle(_ context.Context, id string, profit decimal.Decimal) (*models.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settleErr != nil {
		return nil, m.settleErr
	}
	t, ok := m.trades[id]
	if !ok {
		return nil, repository.ErrCopiedTradeNotFound
	}

	pct := m.feePct[t.MasterID]
	result := &models.SettlementResult{
		CopiedTradeID:  id,
		MasterID:       t.MasterID,
		CopierID:       t.CopierID,
		FollowerProfit: profit,
		FeePercentage:  pct,
		Fee:            decimal.Zero,
	}
	if t.Processed {
		result.AlreadyProcessed = true
		result.FollowerProfit = t.FollowerProfit.Decimal
		result.Fee = t.MasterFee.Decimal
		return result, nil
	}

	fee := models.PerformanceFee(profit, pct)
	t.Processed = true
	t.FollowerProfit = decimal.NewNullDecimal(profit)
	t.MasterFee = decimal.NewNullDecimal(fee)
	result.Fee = fee

	if fee.IsPositive() {
		earning := &models.MasterEarning{
			ID:             "earning-" + itoa(len(m.earnings)+1),
			MasterID:       t.MasterID,
			CopierID:       t.CopierID,
			CopiedTradeID:  id,
			Amount:         fee,
			FollowerProfit: profit,
			FeePercentage:  pct,
		}
		m.earnings = append(m.earnings, earning)
		result.EarningID = earning.ID
	}
	return result, nil
}

// ============ Mock EarningRepository ============

type MockEarningRepository struct {
	earnings  []*models.MasterEarning
	listErr   error
	sumErr    error
	lastLimit int
}

func (m *MockEarningRepository) ListByMaster(_ context.Context, masterID string, limit int) ([]*models.MasterEarning, error) {
	m.lastLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.MasterEarning
	for _, e := range m.earnings {
		if e.MasterID == masterID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MockEarningRepository) SumByMaster(_ context.Context, masterID string) (decimal.Decimal, error) {
	if m.sumErr != nil {
		return decimal.Zero, m.sumErr
	}
	total := decimal.Zero
	for _, e := range m.earnings {
		if e.MasterID == masterID {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// ============ Mock CredentialValidator ============

// MockValidator принимает токены из accounts, остальные отклоняет
type MockValidator struct {
	accounts map[string]*models.AccountAttributes
	err      error
	calls    []string
}

func NewMockValidator() *MockValidator {
	return &MockValidator{accounts: make(map[string]*models.AccountAttributes)}
}

func (m *MockValidator) Validate(_ context.Context, token string) (*models.AccountAttributes, error) {
	m.calls = append(m.calls, token)
	if m.err != nil {
		return nil, m.err
	}
	attrs, ok := m.accounts[token]
	if !ok {
		return nil, invalidCredentials()
	}
	stored := *attrs
	return &stored, nil
}

// ============ Mock TokenCipher ============

type mockCipher struct {
	sealErr error
}

func (c mockCipher) Seal(plaintext string) (string, error) {
	if c.sealErr != nil {
		return "", c.sealErr
	}
	return "sealed:" + plaintext, nil
}

func (c mockCipher) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("message authentication failed")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

// ============ Mock EventPublisher ============

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.events...)
}

// ============ Mock SubscriptionLister ============

type staticSubscriptions []models.SubscriptionStatus

func (s staticSubscriptions) Statuses() []models.SubscriptionStatus { return s }

// ============ Helpers ============

func itoa(n int) string { return strconv.Itoa(n) }

func ptr[T any](v T) *T { return &v }

// invalidCredentials оборачивает ошибку так же, как это делает валидатор площадки
func invalidCredentials() error {
	return errors.Join(deriv.ErrInvalidCredentials, &deriv.APIError{Code: "InvalidToken", Message: "The token is invalid."})
}
