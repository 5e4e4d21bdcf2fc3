package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"copytrader/internal/models"
	"copytrader/internal/service"
)

var ErrMockDatabase = errors.New("mock database error")

// ============ Mock AccountService ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	mu         sync.Mutex
	masters    map[string]*models.MasterAccount
	copiers    map[string]*models.CopierAccount
	err        error
	lastUserID string
	lastMaster *service.RegisterMasterRequest
	lastCopier *service.RegisterCopierRequest
	lastUpdate *service.UpdateMasterRequest
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		masters: make(map[string]*models.MasterAccount),
		copiers: make(map[string]*models.CopierAccount),
	}
}

func (m *MockAccountService) RegisterMaster(_ context.Context, req *service.RegisterMasterRequest) (*models.MasterAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastMaster = req
	if m.err != nil {
		return nil, m.err
	}
	master := &models.MasterAccount{ID: "m1", UserID: req.UserID, Label: req.Label, Token: "sealed", Active: true}
	m.masters[master.ID] = master
	return master, nil
}

func (m *MockAccountService) GetMaster(_ context.Context, userID, id string) (*models.MasterAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	if m.err != nil {
		return nil, m.err
	}
	master, ok := m.masters[id]
	if !ok || master.UserID != userID {
		return nil, service.ErrMasterNotFound
	}
	return master, nil
}

func (m *MockAccountService) ListMasters(_ context.Context, userID string) ([]*models.MasterAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	if m.err != nil {
		return nil, m.err
	}
	result := []*models.MasterAccount{}
	for _, master := range m.masters {
		if master.UserID == userID {
			result = append(result, master)
		}
	}
	return result, nil
}

func (m *MockAccountService) UpdateMaster(ctx context.Context, userID, id string, req *service.UpdateMasterRequest) (*models.MasterAccount, error) {
	master, err := m.GetMaster(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpdate = req
	if req.Active != nil {
		master.Active = *req.Active
	}
	return master, nil
}

func (m *MockAccountService) RefreshMaster(ctx context.Context, userID, id string) (*models.MasterAccount, error) {
	return m.GetMaster(ctx, userID, id)
}

func (m *MockAccountService) DeleteMaster(ctx context.Context, userID, id string) error {
	if _, err := m.GetMaster(ctx, userID, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.masters, id)
	return nil
}

func (m *MockAccountService) RegisterCopier(_ context.Context, req *service.RegisterCopierRequest) (*models.CopierAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCopier = req
	if m.err != nil {
		return nil, m.err
	}
	copier := &models.CopierAccount{ID: "c1", UserID: req.UserID, MasterID: req.MasterID, StakeType: models.StakeTypePercentage, RiskMultiplier: 1}
	m.copiers[copier.ID] = copier
	return copier, nil
}

func (m *MockAccountService) GetCopier(_ context.Context, userID, id string) (*models.CopierAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.copiers[id]
	if !ok || c.UserID != userID {
		return nil, service.ErrCopierNotFound
	}
	return c, nil
}

func (m *MockAccountService) ListCopiers(_ context.Context, userID string) ([]*models.CopierAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := []*models.CopierAccount{}
	for _, c := range m.copiers {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MockAccountService) UpdateCopier(_ context.Context, userID, id string, req *service.UpdateCopierRequest) (*models.CopierAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.copiers[id]
	if !ok || c.UserID != userID {
		return nil, service.ErrCopierNotFound
	}
	if req.RiskMultiplier != nil {
		c.RiskMultiplier = *req.RiskMultiplier
	}
	return c, nil
}

func (m *MockAccountService) DeleteCopier(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.copiers[id]
	if !ok || c.UserID != userID {
		return service.ErrCopierNotFound
	}
	delete(m.copiers, id)
	return nil
}

// ============ Mock TradeService ============

// MockTradeService: все записи принадлежат пользователю owner
type MockTradeService struct {
	owner         string
	trades        map[string]*models.CopiedTrade
	subscriptions []models.SubscriptionStatus
	earnings      *service.EarningsSummary
	err           error
	lastFilter    models.CopiedTradeFilter
	lastLimit     int
}

func NewMockTradeService() *MockTradeService {
	return &MockTradeService{owner: "u1", trades: make(map[string]*models.CopiedTrade)}
}

func (m *MockTradeService) ListTrades(_ context.Context, userID string, filter models.CopiedTradeFilter) ([]*models.CopiedTrade, error) {
	filter.UserID = userID
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	result := []*models.CopiedTrade{}
	if userID != m.owner {
		return result, nil
	}
	for _, t := range m.trades {
		result = append(result, t)
	}
	return result, nil
}

func (m *MockTradeService) GetTrade(_ context.Context, userID, id string) (*models.CopiedTrade, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.trades[id]
	if !ok || userID != m.owner {
		return nil, service.ErrCopiedTradeNotFound
	}
	return t, nil
}

func (m *MockTradeService) AuthorizeSettlement(_ context.Context, userID, _ string) error {
	if m.err != nil {
		return m.err
	}
	if userID != m.owner {
		return service.ErrCopiedTradeNotFound
	}
	return nil
}

func (m *MockTradeService) GetEarnings(_ context.Context, _, masterID string, limit int) (*service.EarningsSummary, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if m.earnings == nil || m.earnings.MasterID != masterID {
		return nil, service.ErrMasterNotFound
	}
	return m.earnings, nil
}

func (m *MockTradeService) Subscriptions() []models.SubscriptionStatus {
	if m.subscriptions == nil {
		return []models.SubscriptionStatus{}
	}
	return m.subscriptions
}

// ============ Mock SettlementService ============

type MockSettlementService struct {
	processed map[string]bool
	err       error
	calls     int
}

func NewMockSettlementService() *MockSettlementService {
	return &MockSettlementService{processed: make(map[string]bool)}
}

func (m *MockSettlementService) Settle(_ context.Context, id string, profit float64) (*models.SettlementResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if id == "missing" {
		return nil, service.ErrCopiedTradeNotFound
	}
	result := &models.SettlementResult{
		CopiedTradeID:  id,
		MasterID:       "m1",
		CopierID:       "c1",
		FollowerProfit: decimal.NewFromFloat(profit),
		FeePercentage:  decimal.NewFromInt(20),
		Fee:            models.PerformanceFee(decimal.NewFromFloat(profit), decimal.NewFromInt(20)),
	}
	if m.processed[id] {
		result.AlreadyProcessed = true
	}
	m.processed[id] = true
	return result, nil
}
