package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

// MockRequestRepository is a func-field mock backed by an in-memory map
// when no override is set.
type MockRequestRepository struct {
	mu       sync.Mutex
	store    map[string]domain.ChargeRequest
	SaveFunc func(ctx context.Context, req *domain.ChargeRequest) error
	FindFunc func(ctx context.Context, id string) (*domain.ChargeRequest, error)
}

func NewMockRequestRepository() *MockRequestRepository {
	return &MockRequestRepository{store: make(map[string]domain.ChargeRequest)}
}

func (m *MockRequestRepository) Save(ctx context.Context, req *domain.ChargeRequest) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[req.ID] = *req
	return nil
}

func (m *MockRequestRepository) FindByID(ctx context.Context, id string) (*domain.ChargeRequest, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.store[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *MockRequestRepository) FindHistoryByUserID(ctx context.Context, userID string) ([]domain.ChargeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChargeRequest
	for _, r := range m.store {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Stored returns the persisted copy of a request, if any.
func (m *MockRequestRepository) Stored(id string) (domain.ChargeRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	return r, ok
}

// MockSessionRepository records saved sessions in order.
type MockSessionRepository struct {
	mu       sync.Mutex
	Sessions []domain.ChargingSession
	SaveFunc func(ctx context.Context, session *domain.ChargingSession) error
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{}
}

func (m *MockSessionRepository) Save(ctx context.Context, session *domain.ChargingSession) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions = append(m.Sessions, *session)
	return nil
}

func (m *MockSessionRepository) FindByID(ctx context.Context, id string) (*domain.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sessions) - 1; i >= 0; i-- {
		if m.Sessions[i].ID == id {
			s := m.Sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

// MockBillRepository is an append-only in-memory bill store.
type MockBillRepository struct {
	mu         sync.Mutex
	Bills      []domain.Bill
	InsertFunc func(ctx context.Context, bill *domain.Bill) error
}

func NewMockBillRepository() *MockBillRepository {
	return &MockBillRepository{}
}

func (m *MockBillRepository) Insert(ctx context.Context, bill *domain.Bill) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, bill)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bills = append(m.Bills, *bill)
	return nil
}

func (m *MockBillRepository) FindByID(ctx context.Context, id string) (*domain.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.Bills {
		if b.ID == id {
			bb := b
			return &bb, nil
		}
	}
	return nil, nil
}

func (m *MockBillRepository) FindByUserID(ctx context.Context, userID string, q ports.RecordQuery) ([]domain.Bill, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Bill
	for _, b := range m.Bills {
		if b.UserID != userID {
			continue
		}
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		if q.From != nil && b.StartAt.Before(*q.From) {
			continue
		}
		if q.To != nil && !b.StartAt.Before(*q.To) {
			continue
		}
		out = append(out, b)
	}
	switch q.Sort {
	case ports.RecordSortTimeDesc:
		sort.Slice(out, func(i, j int) bool { return out[i].StartAt.After(out[j].StartAt) })
	case ports.RecordSortCostAsc:
		sort.Slice(out, func(i, j int) bool { return out[i].TotalCost.LessThan(out[j].TotalCost) })
	case ports.RecordSortCostDesc:
		sort.Slice(out, func(i, j int) bool { return out[j].TotalCost.LessThan(out[i].TotalCost) })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	}
	total := int64(len(out))
	if q.PageSize > 0 {
		start := (q.Page - 1) * q.PageSize
		if start < 0 {
			start = 0
		}
		if start > len(out) {
			start = len(out)
		}
		end := start + q.PageSize
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (m *MockBillRepository) CountForDay(ctx context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.Bills {
		if b.CreatedAt.Year() == day.Year() && b.CreatedAt.YearDay() == day.YearDay() {
			n++
		}
	}
	return n, nil
}

// MockPileRepository records pile snapshots.
type MockPileRepository struct {
	mu    sync.Mutex
	Piles map[string]domain.Pile
}

func NewMockPileRepository() *MockPileRepository {
	return &MockPileRepository{Piles: make(map[string]domain.Pile)}
}

func (m *MockPileRepository) Save(ctx context.Context, pile *domain.Pile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Piles[pile.ID] = *pile
	return nil
}

func (m *MockPileRepository) FindAll(ctx context.Context) ([]domain.Pile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Pile
	for _, p := range m.Piles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
