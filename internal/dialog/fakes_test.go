package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finman/internal/models"
	"finman/pkg/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type extractFunc func(ctx context.Context, content Content) ([]Candidate, error)

func (f extractFunc) Extract(ctx context.Context, content Content) ([]Candidate, error) {
	return f(ctx, content)
}

func returns(cands ...Candidate) extractFunc {
	return func(context.Context, Content) ([]Candidate, error) {
		return cands, nil
	}
}

// memExpenses mimics the repositories: one row per conversation id.
type memExpenses struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*models.Expense
	inserts int
	fail    error
	delay   time.Duration
}

func newMemExpenses() *memExpenses {
	return &memExpenses{rows: make(map[uuid.UUID]*models.Expense)}
}

func (m *memExpenses) Insert(ctx context.Context, e *models.Expense) (*models.Expense, error) {
	m.mu.Lock()
	delay, fail := m.delay, m.fail
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if fail != nil {
		return nil, fail
	}
	if existing, ok := m.rows[e.ConversationID]; ok {
		return existing, nil
	}
	cp := *e
	m.rows[e.ConversationID] = &cp
	return &cp, nil
}

func (m *memExpenses) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memExpenses) setDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

func (m *memExpenses) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memExpenses) all() []*models.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Expense, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	return out
}

var errStorageDown = errors.New("storage down")

type sentMessage struct {
	userID string
	text   string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *recordingSender) Send(_ context.Context, userID, text string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{userID, text})
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func testDialogConfig() *config.DialogConfig {
	return &config.DialogConfig{
		HighConfidenceThreshold: 0.85,
		LowConfidenceThreshold:  0.3,
		MaxClarificationTurns:   3,
		SessionIdleTimeout:      30 * time.Minute,
		SweepInterval:           time.Minute,
		ExtractionTimeout:       200 * time.Millisecond,
		CommitTimeout:           200 * time.Millisecond,
		DedupWindow:             time.Minute,
	}
}

type harness struct {
	engine  *Engine
	store   *Store
	repo    *memExpenses
	clock   *fakeClock
	cfg     *config.DialogConfig
	extract Extractor
}

func newHarness(t *testing.T, extractor Extractor) *harness {
	t.Helper()
	cfg := testDialogConfig()
	clk := newFakeClock()
	logger := zap.NewNop()
	store := NewStore(cfg.SessionIdleTimeout, clk, logger)
	repo := newMemExpenses()
	coord := NewCoordinator(repo, cfg.CommitTimeout, cfg.DedupWindow, clk, logger)
	return &harness{
		engine:  NewEngine(cfg, store, extractor, coord, clk, logger),
		store:   store,
		repo:    repo,
		clock:   clk,
		cfg:     cfg,
		extract: extractor,
	}
}

func (h *harness) say(userID, text string) Reply {
	return h.engine.Handle(context.Background(), Inbound{UserID: userID, Content: Content{Text: text}})
}

func (h *harness) sayWithID(userID, msgID, text string) Reply {
	return h.engine.Handle(context.Background(), Inbound{ID: msgID, UserID: userID, Content: Content{Text: text}})
}

func (h *harness) session(t *testing.T, userID string) *Session {
	t.Helper()
	s, err := h.store.Get(userID)
	if err != nil {
		return nil
	}
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
