package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

// Store is an in-memory implementation of all repositories, used when no
// database is configured. State does not survive a restart; the station's
// live queues never did either.
type Store struct {
	mu       sync.Mutex
	users    map[string]domain.User
	piles    map[string]domain.Pile
	requests map[string]domain.ChargeRequest
	sessions map[string]domain.ChargingSession
	bills    []domain.Bill
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		piles:    make(map[string]domain.Pile),
		requests: make(map[string]domain.ChargeRequest),
		sessions: make(map[string]domain.ChargingSession),
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() ports.UserRepository { return (*userRepo)(s) }

// Piles returns the pile repository view of the store.
func (s *Store) Piles() ports.PileRepository { return (*pileRepo)(s) }

// Requests returns the request repository view of the store.
func (s *Store) Requests() ports.RequestRepository { return (*requestRepo)(s) }

// Sessions returns the session repository view of the store.
func (s *Store) Sessions() ports.SessionRepository { return (*sessionRepo)(s) }

// Bills returns the bill repository view of the store.
func (s *Store) Bills() ports.BillRepository { return (*billRepo)(s) }

type userRepo Store

func (r *userRepo) Save(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

type pileRepo Store

func (r *pileRepo) Save(ctx context.Context, pile *domain.Pile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.piles[pile.ID] = *pile
	return nil
}

func (r *pileRepo) FindAll(ctx context.Context) ([]domain.Pile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Pile, 0, len(r.piles))
	for _, p := range r.piles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type requestRepo Store

func (r *requestRepo) Save(ctx context.Context, req *domain.ChargeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = *req
	return nil
}

func (r *requestRepo) FindByID(ctx context.Context, id string) (*domain.ChargeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		return &req, nil
	}
	return nil, nil
}

func (r *requestRepo) FindHistoryByUserID(ctx context.Context, userID string) ([]domain.ChargeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChargeRequest
	for _, req := range r.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type sessionRepo Store

func (r *sessionRepo) Save(ctx context.Context, session *domain.ChargingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*domain.ChargingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

type billRepo Store

func (r *billRepo) Insert(ctx context.Context, bill *domain.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bills = append(r.bills, *bill)
	return nil
}

func (r *billRepo) FindByID(ctx context.Context, id string) (*domain.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		if b.ID == id {
			bb := b
			return &bb, nil
		}
	}
	return nil, nil
}

func (r *billRepo) FindByUserID(ctx context.Context, userID string, q ports.RecordQuery) ([]domain.Bill, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Bill
	for _, b := range r.bills {
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

func (r *billRepo) CountForDay(ctx context.Context, day time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.bills {
		if b.CreatedAt.Year() == day.Year() && b.CreatedAt.YearDay() == day.YearDay() {
			n++
		}
	}
	return n, nil
}
