package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/queue"
	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/internal/ports"
	"github.com/seu-repo/echarge/internal/service/tariff"
)

// Store settles terminated sessions into bills: it prices the delivered
// energy, assigns the daily bill sequence and appends the session and bill
// rows. Bills are written exactly once and never mutated.
type Store struct {
	calc     *tariff.Calculator
	sessions ports.SessionRepository
	bills    ports.BillRepository
	mq       queue.MessageQueue
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	seqDay string
	seq    int
}

func NewStore(calc *tariff.Calculator, sessions ports.SessionRepository, bills ports.BillRepository, mq queue.MessageQueue, log *zap.Logger) *Store {
	return &Store{
		calc:     calc,
		sessions: sessions,
		bills:    bills,
		mq:       mq,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Settle persists the terminated session and, when any energy was
// delivered, prices and appends its bill. A zero-energy session produces
// no bill. The returned bill is nil in that case.
func (s *Store) Settle(ctx context.Context, session *domain.ChargingSession, powerKW float64) (*domain.Bill, error) {
	if session.EndAt == nil {
		return nil, fmt.Errorf("%w: settling an open session", domain.ErrInvalidInput)
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: saving session %s: %v", domain.ErrPersistenceFailure, session.ID, err)
	}
	if session.DeliveredKWH <= 0 {
		return nil, nil
	}

	energyCost, serviceCost := s.calc.Cost(session.DeliveredKWH, powerKW, session.StartAt, *session.EndAt)
	now := s.now()
	bill := &domain.Bill{
		SessionID:   session.ID,
		RequestID:   session.RequestID,
		UserID:      session.UserID,
		PileID:      session.PileID,
		EnergyKWH:   session.DeliveredKWH,
		StartAt:     session.StartAt,
		EndAt:       *session.EndAt,
		EnergyCost:  energyCost,
		ServiceCost: serviceCost,
		TotalCost:   energyCost.Add(serviceCost),
		Status:      domain.SessionBillStatus(session.Status),
		CreatedAt:   now,
	}

	id, err := s.nextID(ctx, now)
	if err != nil {
		return nil, err
	}
	bill.ID = id

	if err := s.bills.Insert(ctx, bill); err != nil {
		return nil, fmt.Errorf("%w: inserting bill %s: %v", domain.ErrPersistenceFailure, bill.ID, err)
	}

	telemetry.RecordBillSettled(bill.EnergyKWH, bill.TotalCost.InexactFloat64())
	s.publish("bill.created", bill)
	s.log.Info("bill settled",
		zap.String("bill_id", bill.ID),
		zap.String("session_id", session.ID),
		zap.Float64("energy_kwh", bill.EnergyKWH),
		zap.String("total_cost", bill.TotalCost.String()),
	)
	return bill, nil
}

// nextID hands out BILL{YYYYMMDD}{seq:04d}, monotonic within the day. The
// sequence reseeds from the store on the first bill of each day so
// restarts do not reuse numbers.
func (s *Store) nextID(ctx context.Context, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := now.Format("20060102")
	if day != s.seqDay {
		existing, err := s.bills.CountForDay(ctx, now)
		if err != nil {
			return "", fmt.Errorf("%w: counting bills for %s: %v", domain.ErrPersistenceFailure, day, err)
		}
		s.seqDay = day
		s.seq = int(existing)
	}
	s.seq++
	return domain.FormatBillID(now, s.seq), nil
}

// ListRecords returns the user's bill history under the given filters.
func (s *Store) ListRecords(ctx context.Context, userID string, q ports.RecordQuery) ([]domain.Bill, int64, error) {
	return s.bills.FindByUserID(ctx, userID, q)
}

func (s *Store) publish(subject string, payload interface{}) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
