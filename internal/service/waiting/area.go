package waiting

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
)

// Area is the bounded admission queue in front of the piles: a FIFO per
// charge mode sharing one capacity. Requests wait here in status WAITING
// until the dispatcher moves them to a pile queue.
type Area struct {
	mu       sync.Mutex
	capacity int
	queues   map[domain.ChargeMode][]*domain.ChargeRequest
	counters map[domain.ChargeMode]int
	seqDay   string
	now      func() time.Time
	log      *zap.Logger
}

func NewArea(capacity int, log *zap.Logger) *Area {
	return &Area{
		capacity: capacity,
		queues: map[domain.ChargeMode][]*domain.ChargeRequest{
			domain.ChargeModeFast:    nil,
			domain.ChargeModeTrickle: nil,
		},
		counters: map[domain.ChargeMode]int{},
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the wall clock, for tests.
func (a *Area) WithClock(now func() time.Time) *Area {
	a.now = now
	return a
}

// Admit creates a new WAITING request at the tail of its mode partition.
// Fails with ErrWaitingAreaFull when both partitions together are at
// capacity, and with ErrDuplicateRequest if the user is already waiting.
func (a *Area) Admit(userID string, mode domain.ChargeMode, targetKWH float64) (*domain.ChargeRequest, error) {
	if targetKWH <= 0 {
		return nil, fmt.Errorf("%w: target energy must be positive", domain.ErrInvalidInput)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, q := range a.queues {
		for _, r := range q {
			if r.UserID == userID {
				return nil, domain.ErrDuplicateRequest
			}
		}
	}
	if a.sizeLocked() >= a.capacity {
		return nil, domain.ErrWaitingAreaFull
	}

	now := a.now()
	req := &domain.ChargeRequest{
		ID:          uuid.New().String(),
		UserID:      userID,
		Mode:        mode,
		TargetKWH:   targetKWH,
		QueueNumber: a.nextNumberLocked(mode, now),
		Status:      domain.RequestStatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	a.queues[mode] = append(a.queues[mode], req)

	a.log.Info("request admitted",
		zap.String("request_id", req.ID),
		zap.String("user_id", userID),
		zap.String("queue_number", req.QueueNumber),
		zap.Float64("target_kwh", targetKWH),
	)
	return req, nil
}

// nextNumberLocked increments the per-mode counter and formats F{n}/T{n}.
// Counters restart at 1 on a new calendar day; numbers stay unique within
// a day per prefix.
func (a *Area) nextNumberLocked(mode domain.ChargeMode, now time.Time) string {
	day := now.Format("20060102")
	if day != a.seqDay {
		a.seqDay = day
		a.counters = map[domain.ChargeMode]int{}
	}
	a.counters[mode]++
	return fmt.Sprintf("%s%d", mode.QueuePrefix(), a.counters[mode])
}

// Head returns the FIFO head of the mode partition without removing it.
func (a *Area) Head(mode domain.ChargeMode) *domain.ChargeRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	if q := a.queues[mode]; len(q) > 0 {
		return q[0]
	}
	return nil
}

// Remove takes the request out of the area, wherever it sits.
func (a *Area) Remove(requestID string) (*domain.ChargeRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeLocked(requestID)
}

func (a *Area) removeLocked(requestID string) (*domain.ChargeRequest, bool) {
	for mode, q := range a.queues {
		for i, r := range q {
			if r.ID == requestID {
				a.queues[mode] = append(q[:i:i], q[i+1:]...)
				return r, true
			}
		}
	}
	return nil, false
}

// PushFront returns a request to the head of its mode partition. Used by
// the fault coordinator: evicted cars keep their original queue numbers
// and outrank everything already waiting, so capacity is not re-checked.
func (a *Area) PushFront(req *domain.ChargeRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()

	req.Status = domain.RequestStatusWaiting
	req.AssignedPileID = ""
	req.UpdatedAt = a.now()
	a.queues[req.Mode] = append([]*domain.ChargeRequest{req}, a.queues[req.Mode]...)
}

// UpdateTarget changes the requested energy of a waiting request.
func (a *Area) UpdateTarget(requestID string, targetKWH float64) error {
	if targetKWH <= 0 {
		return fmt.Errorf("%w: target energy must be positive", domain.ErrInvalidInput)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, q := range a.queues {
		for _, r := range q {
			if r.ID == requestID {
				r.TargetKWH = targetKWH
				r.UpdatedAt = a.now()
				return nil
			}
		}
	}
	return domain.ErrNotInWaiting
}

// ChangeMode moves a waiting request to the tail of the other partition
// under a fresh queue number. The old counter is not rewound and the
// original admission time is preserved.
func (a *Area) ChangeMode(requestID string, mode domain.ChargeMode) (*domain.ChargeRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var found *domain.ChargeRequest
	for _, q := range a.queues {
		for _, r := range q {
			if r.ID == requestID {
				found = r
			}
		}
	}
	if found == nil {
		return nil, domain.ErrNotInWaiting
	}
	if found.Mode == mode {
		return nil, domain.ErrSameMode
	}
	req, _ := a.removeLocked(requestID)
	req.Mode = mode
	req.QueueNumber = a.nextNumberLocked(mode, a.now())
	req.UpdatedAt = a.now()
	a.queues[mode] = append(a.queues[mode], req)
	return req, nil
}

// AheadCount returns how many same-mode requests precede the given one.
func (a *Area) AheadCount(requestID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, q := range a.queues {
		for i, r := range q {
			if r.ID == requestID {
				return i
			}
		}
	}
	return 0
}

// List returns copies of the mode partition in FIFO order.
func (a *Area) List(mode domain.ChargeMode) []domain.ChargeRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.ChargeRequest, 0, len(a.queues[mode]))
	for _, r := range a.queues[mode] {
		out = append(out, *r)
	}
	return out
}

// Size returns the total number of waiting requests across both modes.
func (a *Area) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sizeLocked()
}

func (a *Area) sizeLocked() int {
	n := 0
	for _, q := range a.queues {
		n += len(q)
	}
	return n
}

// Capacity returns the configured waiting area capacity.
func (a *Area) Capacity() int {
	return a.capacity
}
