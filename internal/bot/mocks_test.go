package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"copytrader/internal/deriv"
	"copytrader/internal/models"
	"copytrader/internal/repository"
)

// ============ Копировщики ============

type mockCopierSource struct {
	copiers []*models.CopierAccount
	err     error
}

func (m *mockCopierSource) ListActiveByMaster(_ context.Context, masterID string) ([]*models.CopierAccount, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []*models.CopierAccount
	for _, c := range m.copiers {
		if c.MasterID == masterID && c.Active {
			result = append(result, c)
		}
	}
	return result, nil
}

// ============ Записи репликации ============

type mockTradeRecorder struct {
	mu      sync.Mutex
	records []*models.CopiedTrade
	seen    map[string]bool
	err     error
}

func newMockTradeRecorder() *mockTradeRecorder {
	return &mockTradeRecorder{seen: make(map[string]bool)}
}

func (m *mockTradeRecorder) Create(_ context.Context, t *models.CopiedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := t.MasterID + "|" + t.CopierID + "|" + t.MasterTransactionID
	if m.seen[key] {
		return repository.ErrCopiedTradeExists
	}
	m.seen[key] = true
	copied := *t
	m.records = append(m.records, &copied)
	return nil
}

func (m *mockTradeRecorder) byCopier() map[string]*models.CopiedTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*models.CopiedTrade, len(m.records))
	for _, r := range m.records {
		result[r.CopierID] = r
	}
	return result
}

func (m *mockTradeRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// ============ Размещение ордеров ============

type placedOrder struct {
	token string
	spec  models.OrderSpec
}

type mockPlacer struct {
	mu       sync.Mutex
	orders   []placedOrder
	failFor  map[string]error // по токену
	delay    time.Duration
	active   int
	maxSeen  int
	contract string
}

func newMockPlacer() *mockPlacer {
	return &mockPlacer{failFor: make(map[string]error), contract: "C-1"}
}

func (m *mockPlacer) Place(ctx context.Context, token string, spec models.OrderSpec) (*deriv.Confirmation, error) {
	m.mu.Lock()
	m.orders = append(m.orders, placedOrder{token: token, spec: spec})
	m.active++
	if m.active > m.maxSeen {
		m.maxSeen = m.active
	}
	err := m.failFor[token]
	delay := m.delay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &deriv.Confirmation{ContractID: m.contract + "-" + token, BuyPrice: spec.Amount}, nil
}

func (m *mockPlacer) placed() []placedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]placedOrder(nil), m.orders...)
}

func (m *mockPlacer) peak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}

// ============ Дедупликация ============

type dedupReply struct {
	first bool
	err   error
}

// scriptedDeduper отвечает по очереди заданными ответами
type scriptedDeduper struct {
	mu      sync.Mutex
	replies []dedupReply
}

func (d *scriptedDeduper) MarkSeen(context.Context, string, string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.replies) == 0 {
		return false, errors.New("no scripted reply")
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	return reply.first, reply.err
}

// ============ Токены ============

// prefixOpener "расшифровывает" токены вида sealed:<plain>
type prefixOpener struct{}

func (prefixOpener) Open(sealed string) (string, error) {
	const prefix = "sealed:"
	if len(sealed) <= len(prefix) || sealed[:len(prefix)] != prefix {
		return "", errors.New("invalid ciphertext")
	}
	return sealed[len(prefix):], nil
}

// ============ События ============

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Publish(_ context.Context, e models.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) ofType(eventType string) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Event
	for _, e := range s.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// ============ Мастера и потоки ============

type mockMasterSource struct {
	mu           sync.Mutex
	masters      []*models.MasterAccount
	err          error
	orphanCutoff time.Time
	orphans      int64
}

func (m *mockMasterSource) ListActive(context.Context) ([]*models.MasterAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var result []*models.MasterAccount
	for _, master := range m.masters {
		if master.Active {
			copied := *master
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockMasterSource) DeleteOrphans(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphanCutoff = olderThan
	return m.orphans, nil
}

func (m *mockMasterSource) set(masters ...*models.MasterAccount) {
	m.mu.Lock()
	m.masters = masters
	m.mu.Unlock()
}

type fakeFeed struct {
	masterID string
	token    string

	mu            sync.Mutex
	state         deriv.StreamState
	started       bool
	closed        bool
	onTransaction func(*models.TradeNotification)
	onStateChange func(deriv.StreamState, error)
}

func (f *fakeFeed) SetOnTransaction(h func(*models.TradeNotification)) {
	f.mu.Lock()
	f.onTransaction = h
	f.mu.Unlock()
}

func (f *fakeFeed) SetOnStateChange(h func(deriv.StreamState, error)) {
	f.mu.Lock()
	f.onStateChange = h
	f.mu.Unlock()
}

func (f *fakeFeed) Start(context.Context) {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.setState(deriv.StreamSubscribed, nil)
}

func (f *fakeFeed) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.setState(deriv.StreamClosed, nil)
}

func (f *fakeFeed) State() deriv.StreamState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFeed) Status() models.SubscriptionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.SubscriptionStatus{MasterID: f.masterID, State: f.state.String()}
}

func (f *fakeFeed) setState(state deriv.StreamState, err error) {
	f.mu.Lock()
	f.state = state
	handler := f.onStateChange
	f.mu.Unlock()
	if handler != nil {
		handler(state, err)
	}
}

func (f *fakeFeed) emit(n *models.TradeNotification) {
	f.mu.Lock()
	handler := f.onTransaction
	f.mu.Unlock()
	if handler != nil {
		handler(n)
	}
}

func (f *fakeFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type feedFactory struct {
	mu    sync.Mutex
	feeds []*fakeFeed
}

func (ff *feedFactory) create(masterID, token string) Feed {
	feed := &fakeFeed{masterID: masterID, token: token}
	ff.mu.Lock()
	ff.feeds = append(ff.feeds, feed)
	ff.mu.Unlock()
	return feed
}

func (ff *feedFactory) all() []*fakeFeed {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]*fakeFeed(nil), ff.feeds...)
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleNotification(_ context.Context, masterID string, n *models.TradeNotification) ([]*models.CopiedTrade, error) {
	h.mu.Lock()
	h.calls = append(h.calls, masterID+"/"+n.TransactionID)
	h.mu.Unlock()
	h.done <- struct{}{}
	return nil, nil
}
