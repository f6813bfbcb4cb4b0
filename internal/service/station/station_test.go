package station

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/mocks"
	"github.com/seu-repo/echarge/internal/ports"
	"github.com/seu-repo/echarge/internal/service/billing"
	"github.com/seu-repo/echarge/internal/service/tariff"
	"github.com/seu-repo/echarge/pkg/config"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	station  *Station
	clock    *fakeClock
	requests *mocks.MockRequestRepository
	sessions *mocks.MockSessionRepository
	bills    *mocks.MockBillRepository
	mq       *mocks.MockMessageQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2024, 6, 10, 10, 0, 0, 0, time.Local)}
	log := zap.NewNop()
	requests := mocks.NewMockRequestRepository()
	sessions := mocks.NewMockSessionRepository()
	bills := mocks.NewMockBillRepository()
	mq := mocks.NewMockMessageQueue()

	store := billing.NewStore(tariff.NewCalculator(config.DefaultBilling()), sessions, bills, mq, log)
	st, err := New(config.DefaultStation(), store, requests, mocks.NewMockPileRepository(), mq, log, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("station setup failed: %v", err)
	}
	return &fixture{station: st, clock: clock, requests: requests, sessions: sessions, bills: bills, mq: mq}
}

func (f *fixture) submit(t *testing.T, user string, mode domain.ChargeMode, kwh float64) *ports.SubmitResult {
	t.Helper()
	res, err := f.station.SubmitRequest(context.Background(), user, mode, kwh)
	if err != nil {
		t.Fatalf("submit %s failed: %v", user, err)
	}
	return res
}

func (f *fixture) status(t *testing.T, user string) *ports.UserStatus {
	t.Helper()
	st, err := f.station.GetStatus(context.Background(), user)
	if err != nil {
		t.Fatalf("status %s failed: %v", user, err)
	}
	return st
}

func TestSingleCarHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	if res.QueueNumber != "F1" {
		t.Errorf("expected F1, got %s", res.QueueNumber)
	}

	f.station.DispatchOnce(ctx)
	st := f.status(t, "u1")
	if st.State != domain.RequestStatusCharging || st.AssignedPile != "A" {
		t.Fatalf("expected charging on A, got %+v", st)
	}

	// One hour of peak charging at 30 kW completes the 30 kWh target.
	f.clock.Advance(time.Hour)
	f.station.ProgressTick(ctx)

	if len(f.bills.Bills) != 1 {
		t.Fatalf("expected one bill, got %d", len(f.bills.Bills))
	}
	bill := f.bills.Bills[0]
	if bill.EnergyKWH != 30.0 {
		t.Errorf("expected 30 kWh billed, got %f", bill.EnergyKWH)
	}
	if !bill.EnergyCost.Equal(decimal.NewFromFloat(30.00)) {
		t.Errorf("expected energy cost 30.00, got %s", bill.EnergyCost)
	}
	if !bill.ServiceCost.Equal(decimal.NewFromFloat(24.00)) {
		t.Errorf("expected service cost 24.00, got %s", bill.ServiceCost)
	}
	if !bill.TotalCost.Equal(decimal.NewFromFloat(54.00)) {
		t.Errorf("expected total 54.00, got %s", bill.TotalCost)
	}
	if bill.Status != domain.BillStatusCompleted {
		t.Errorf("expected COMPLETED bill, got %s", bill.Status)
	}

	stored, ok := f.requests.Stored(res.RequestID)
	if !ok || stored.Status != domain.RequestStatusCompleted {
		t.Errorf("request should be COMPLETED, got %+v", stored)
	}
}

func TestTieBreakLowerPileID(t *testing.T) {
	f := newFixture(t)

	f.submit(t, "u1", domain.ChargeModeFast, 10.0)
	f.station.DispatchOnce(context.Background())

	if st := f.status(t, "u1"); st.AssignedPile != "A" {
		t.Errorf("tie must break to the lower pile id, got %s", st.AssignedPile)
	}
}

func TestShortestCompletionSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Put a car on A and let it run down to 5 kWh remaining.
	f.submit(t, "u0", domain.ChargeModeFast, 30.0)
	f.station.DispatchOnce(ctx)
	f.clock.Advance(50 * time.Minute)
	f.station.ProgressTick(ctx)

	// T(A) = 5/30 + 10/30, T(B) = 10/30: B wins.
	f.submit(t, "u1", domain.ChargeModeFast, 10.0)
	f.station.DispatchOnce(ctx)

	st := f.status(t, "u1")
	if st.AssignedPile != "B" || st.State != domain.RequestStatusCharging {
		t.Errorf("expected charging on B, got %+v", st)
	}
}

func TestWaitingAreaFull(t *testing.T) {
	f := newFixture(t)

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, u := range users {
		f.submit(t, u, domain.ChargeModeFast, 10.0)
	}

	_, err := f.station.SubmitRequest(context.Background(), "u7", domain.ChargeModeTrickle, 10.0)
	if !errors.Is(err, domain.ErrWaitingAreaFull) {
		t.Errorf("expected waiting_area_full, got %v", err)
	}
}

func TestDuplicateActiveRequest(t *testing.T) {
	f := newFixture(t)

	f.submit(t, "u1", domain.ChargeModeFast, 10.0)
	if _, err := f.station.SubmitRequest(context.Background(), "u1", domain.ChargeModeFast, 5.0); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected duplicate_active_request, got %v", err)
	}

	// Still duplicate after dispatch onto a pile.
	f.station.DispatchOnce(context.Background())
	if _, err := f.station.SubmitRequest(context.Background(), "u1", domain.ChargeModeFast, 5.0); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected duplicate_active_request after dispatch, got %v", err)
	}
}

func TestFaultPriorityPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Park B in FAULT so both cars stack on A.
	if _, err := f.station.SetFault(ctx, "B", "maintenance"); err != nil {
		t.Fatalf("fault B failed: %v", err)
	}
	f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	f.submit(t, "u2", domain.ChargeModeFast, 20.0)
	f.station.DispatchOnce(ctx)

	if st := f.status(t, "u1"); st.State != domain.RequestStatusCharging || st.AssignedPile != "A" {
		t.Fatalf("u1 should charge on A, got %+v", st)
	}
	if st := f.status(t, "u2"); st.State != domain.RequestStatusQueued || st.AssignedPile != "A" {
		t.Fatalf("u2 should queue on A, got %+v", st)
	}

	// 24 minutes at 30 kW delivers 12 kWh, then A faults.
	f.clock.Advance(24 * time.Minute)
	res, err := f.station.SetFault(ctx, "A", "hardware")
	if err != nil {
		t.Fatalf("fault A failed: %v", err)
	}
	if len(res.AffectedRequests) != 2 {
		t.Fatalf("expected 2 affected requests, got %+v", res)
	}

	// u1's interrupted session is billed for the 12 kWh delivered.
	if len(f.bills.Bills) != 1 {
		t.Fatalf("expected one bill, got %d", len(f.bills.Bills))
	}
	bill := f.bills.Bills[0]
	if bill.EnergyKWH < 11.9 || bill.EnergyKWH > 12.1 {
		t.Errorf("expected ~12 kWh billed, got %f", bill.EnergyKWH)
	}
	if bill.Status != domain.BillStatusInterrupted {
		t.Errorf("expected INTERRUPTED bill, got %s", bill.Status)
	}

	// No fast pile is available: both return to the head of the fast
	// partition in original order, u1 owing only the remainder.
	st1 := f.status(t, "u1")
	if st1.State != domain.RequestStatusWaiting || st1.Ahead != 0 {
		t.Fatalf("u1 must head the waiting area, got %+v", st1)
	}
	if st1.TargetKWH < 17.9 || st1.TargetKWH > 18.1 {
		t.Errorf("u1 remaining should be ~18 kWh, got %f", st1.TargetKWH)
	}
	st2 := f.status(t, "u2")
	if st2.State != domain.RequestStatusWaiting || st2.Ahead != 1 {
		t.Fatalf("u2 must wait behind u1, got %+v", st2)
	}
	if st2.TargetKWH != 20.0 {
		t.Errorf("u2 keeps its full target, got %f", st2.TargetKWH)
	}

	// B recovers: dispatch fills its charging then waiting slot in order.
	if _, err := f.station.Recover(ctx, "B"); err != nil {
		t.Fatalf("recover B failed: %v", err)
	}
	f.station.DispatchOnce(ctx)

	st1 = f.status(t, "u1")
	if st1.State != domain.RequestStatusCharging || st1.AssignedPile != "B" {
		t.Errorf("u1 should charge on B, got %+v", st1)
	}
	st2 = f.status(t, "u2")
	if st2.State != domain.RequestStatusQueued || st2.AssignedPile != "B" {
		t.Errorf("u2 should queue on B, got %+v", st2)
	}
}

func TestFaultTimeOrderPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.station.SetDispatchPolicy("time_order"); err != nil {
		t.Fatalf("set policy failed: %v", err)
	}

	// Fill both fast piles: A has u1 charging + u4 waiting, B has u2
	// charging + u3 waiting.
	f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	f.station.DispatchOnce(ctx)
	f.submit(t, "u2", domain.ChargeModeFast, 20.0)
	f.station.DispatchOnce(ctx)
	f.submit(t, "u3", domain.ChargeModeFast, 10.0)
	f.station.DispatchOnce(ctx)
	f.submit(t, "u4", domain.ChargeModeFast, 10.0)
	f.station.DispatchOnce(ctx)

	if st := f.status(t, "u4"); st.AssignedPile != "A" || st.State != domain.RequestStatusQueued {
		t.Fatalf("setup wrong, u4 = %+v", st)
	}
	if st := f.status(t, "u3"); st.AssignedPile != "B" || st.State != domain.RequestStatusQueued {
		t.Fatalf("setup wrong, u3 = %+v", st)
	}

	if _, err := f.station.SetFault(ctx, "A", "hardware"); err != nil {
		t.Fatalf("fault failed: %v", err)
	}

	// Merged set {u1(F1), u4(F4)} + recalled {u3(F3)} replans in queue
	// number order: u1 takes B's waiting slot, u3 and u4 return to the
	// waiting area in sorted order. u2 keeps charging untouched.
	if st := f.status(t, "u2"); st.State != domain.RequestStatusCharging || st.AssignedPile != "B" {
		t.Errorf("u2 must not be disturbed, got %+v", st)
	}
	if st := f.status(t, "u1"); st.State != domain.RequestStatusQueued || st.AssignedPile != "B" {
		t.Errorf("u1 should hold B's waiting slot, got %+v", st)
	}
	if st := f.status(t, "u3"); st.State != domain.RequestStatusWaiting || st.Ahead != 0 {
		t.Errorf("u3 should head the waiting area, got %+v", st)
	}
	if st := f.status(t, "u4"); st.State != domain.RequestStatusWaiting || st.Ahead != 1 {
		t.Errorf("u4 should wait behind u3, got %+v", st)
	}
}

func TestRecoveryRebalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.station.SetFault(ctx, "A", "hardware"); err != nil {
		t.Fatalf("fault failed: %v", err)
	}
	f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	f.station.DispatchOnce(ctx)
	f.submit(t, "u3", domain.ChargeModeFast, 10.0)
	f.station.DispatchOnce(ctx)

	if st := f.status(t, "u3"); st.AssignedPile != "B" || st.State != domain.RequestStatusQueued {
		t.Fatalf("setup wrong, u3 = %+v", st)
	}

	// A recovers empty: u3 is recalled and T(A) < T(B) places it on A.
	res, err := f.station.Recover(ctx, "A")
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if len(res.RescheduledRequests) != 1 {
		t.Fatalf("expected one rescheduled request, got %+v", res)
	}

	st := f.status(t, "u3")
	if st.AssignedPile != "A" || st.State != domain.RequestStatusCharging {
		t.Errorf("u3 should charge on recovered A, got %+v", st)
	}
}

func TestStopChargingSettlesBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	f.station.DispatchOnce(ctx)
	f.clock.Advance(20 * time.Minute) // 10 kWh

	bill, err := f.station.StopCharging(ctx, "u1")
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if bill == nil || bill.EnergyKWH < 9.9 || bill.EnergyKWH > 10.1 {
		t.Fatalf("expected ~10 kWh bill, got %+v", bill)
	}
	if bill.Status != domain.BillStatusCancelled {
		t.Errorf("expected CANCELLED bill, got %s", bill.Status)
	}
	if !bill.TotalCost.Equal(bill.EnergyCost.Add(bill.ServiceCost)) {
		t.Errorf("total must equal energy+service: %+v", bill)
	}

	if _, err := f.station.StopCharging(ctx, "u1"); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("expected no_active_session, got %v", err)
	}
}

func TestStopWhileQueuedFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stack two cars on A with B faulted, then cancel the waiter.
	f.station.SetFault(ctx, "B", "maintenance")
	f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	res2 := f.submit(t, "u2", domain.ChargeModeFast, 20.0)
	f.station.DispatchOnce(ctx)

	if err := f.station.Cancel(ctx, "u2", res2.RequestID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	stored, _ := f.requests.Stored(res2.RequestID)
	if stored.Status != domain.RequestStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", stored.Status)
	}
	// No bill for a queued car.
	if len(f.bills.Bills) != 0 {
		t.Errorf("queued cancel must not bill, got %d bills", len(f.bills.Bills))
	}

	// The freed slot is reusable.
	f.submit(t, "u3", domain.ChargeModeFast, 10.0)
	f.station.DispatchOnce(ctx)
	if st := f.status(t, "u3"); st.State != domain.RequestStatusQueued || st.AssignedPile != "A" {
		t.Errorf("u3 should take the freed slot, got %+v", st)
	}
}

func TestCancelIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.submit(t, "u1", domain.ChargeModeFast, 10.0)
	if err := f.station.Cancel(ctx, "u1", res.RequestID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := f.station.Cancel(ctx, "u1", res.RequestID); err != nil {
		t.Errorf("repeated cancel must succeed, got %v", err)
	}
	if err := f.station.Cancel(ctx, "u1", "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestModifyRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, "u1", domain.ChargeModeFast, 10.0)
	if err := f.station.ModifyTarget(ctx, "u1", 25.0); err != nil {
		t.Fatalf("modify target failed: %v", err)
	}
	res, err := f.station.ModifyMode(ctx, "u1", domain.ChargeModeTrickle)
	if err != nil {
		t.Fatalf("modify mode failed: %v", err)
	}
	if res.NewQueueNumber != "T1" {
		t.Errorf("expected T1, got %s", res.NewQueueNumber)
	}
	if _, err := f.station.ModifyMode(ctx, "u1", domain.ChargeModeTrickle); !errors.Is(err, domain.ErrSameMode) {
		t.Errorf("expected same_mode, got %v", err)
	}

	// Once dispatched, modifications are refused.
	f.station.DispatchOnce(ctx)
	if err := f.station.ModifyTarget(ctx, "u1", 5.0); !errors.Is(err, domain.ErrNotInWaiting) {
		t.Errorf("expected not_in_waiting, got %v", err)
	}
}

func TestFaultIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.station.SetFault(ctx, "A", "hardware"); err != nil {
		t.Fatalf("fault failed: %v", err)
	}
	if _, err := f.station.SetFault(ctx, "A", "hardware"); err != nil {
		t.Errorf("repeated fault must succeed, got %v", err)
	}
	if _, err := f.station.SetFault(ctx, "Z", "hardware"); !errors.Is(err, domain.ErrPileNotFound) {
		t.Errorf("expected pile_not_found, got %v", err)
	}
}

func TestFIFOWithinMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Only trickle piles matter here; fill all three charging slots plus
	// waiters, then check order of assignment follows admission order.
	users := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, u := range users {
		f.submit(t, u, domain.ChargeModeTrickle, 7.0)
	}
	f.station.DispatchOnce(ctx)

	for i, u := range users[:3] {
		st := f.status(t, u)
		if st.State != domain.RequestStatusCharging {
			t.Errorf("user %d (%s) should charge first, got %+v", i, u, st)
		}
	}
	for _, u := range users[3:] {
		st := f.status(t, u)
		if st.State != domain.RequestStatusQueued {
			t.Errorf("%s should be queued, got %+v", u, st)
		}
	}
}

func TestStatisticsAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, "u1", domain.ChargeModeFast, 30.0)
	f.station.DispatchOnce(ctx)
	f.clock.Advance(time.Hour)
	f.station.ProgressTick(ctx)

	stats := f.station.Statistics(ctx)
	if stats.TotalSessions != 1 || stats.TotalEnergyKWH != 30.0 {
		t.Errorf("stats wrong: %+v", stats)
	}
}
