package pile

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
)

func fastPile(id string) domain.Pile {
	return domain.Pile{ID: id, Type: domain.PileTypeFast, PowerKW: 30, Status: domain.PileStatusAvailable}
}

func testRequest(id, userID string, target float64) *domain.ChargeRequest {
	return &domain.ChargeRequest{
		ID:        id,
		UserID:    userID,
		Mode:      domain.ChargeModeFast,
		TargetKWH: target,
		Status:    domain.RequestStatusWaiting,
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestUnit(t *testing.T) (*Unit, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 10, 10, 0, 0, 0, time.Local)}
	u := NewUnit(fastPile("A"), zap.NewNop()).WithClock(clock.Now)
	return u, clock
}

func TestTryReserve_FillsChargingThenWaiting(t *testing.T) {
	u, _ := newTestUnit(t)

	r1 := testRequest("r1", "u1", 30)
	s, slot, ok := u.TryReserve(r1)
	if !ok || slot != SlotCharging {
		t.Fatalf("expected charging slot, got %v ok=%v", slot, ok)
	}
	if s == nil || s.Status != domain.SessionStatusCharging {
		t.Fatalf("expected open session, got %+v", s)
	}
	if r1.Status != domain.RequestStatusCharging || r1.AssignedPileID != "A" {
		t.Errorf("request not updated: %+v", r1)
	}

	r2 := testRequest("r2", "u2", 20)
	s2, slot, ok := u.TryReserve(r2)
	if !ok || slot != SlotWaiting {
		t.Fatalf("expected waiting slot, got %v ok=%v", slot, ok)
	}
	if s2 != nil {
		t.Error("waiting slot must not open a session")
	}
	if r2.Status != domain.RequestStatusQueued {
		t.Errorf("expected QUEUED, got %s", r2.Status)
	}

	if _, _, ok := u.TryReserve(testRequest("r3", "u3", 10)); ok {
		t.Error("third reservation must be refused")
	}
}

func TestTryReserve_RefusedOnFault(t *testing.T) {
	u, _ := newTestUnit(t)
	u.SetFault("admin")

	if _, _, ok := u.TryReserve(testRequest("r1", "u1", 10)); ok {
		t.Error("faulted pile must refuse reservations")
	}
}

func TestAdvance_CompletesAtTarget(t *testing.T) {
	u, clock := newTestUnit(t)
	u.TryReserve(testRequest("r1", "u1", 30))

	clock.Advance(30 * time.Minute)
	if end := u.Advance(clock.Now()); end != nil {
		t.Fatalf("session should still be open at 15 kWh, got %+v", end)
	}
	if s := u.SessionView(); s.DeliveredKWH < 14.9 || s.DeliveredKWH > 15.1 {
		t.Errorf("expected ~15 kWh delivered, got %f", s.DeliveredKWH)
	}

	clock.Advance(31 * time.Minute)
	end := u.Advance(clock.Now())
	if end == nil {
		t.Fatal("expected completion")
	}
	if end.Session.DeliveredKWH != 30 {
		t.Errorf("delivered must clamp at target, got %f", end.Session.DeliveredKWH)
	}
	if end.Session.Status != domain.SessionStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", end.Session.Status)
	}
	if end.Reason != domain.EndReasonCompleted {
		t.Errorf("expected completed reason, got %s", end.Reason)
	}

	p := u.Snapshot()
	if p.TotalSessions != 1 || p.TotalEnergyKWH != 30 {
		t.Errorf("cumulative totals not updated: %+v", p)
	}
}

func TestSettlement_BlocksDispatchUntilFinished(t *testing.T) {
	u, clock := newTestUnit(t)
	u.TryReserve(testRequest("r1", "u1", 30))
	r2 := testRequest("r2", "u2", 20)
	u.TryReserve(r2)

	clock.Advance(61 * time.Minute)
	if end := u.Advance(clock.Now()); end == nil {
		t.Fatal("expected completion")
	}

	// Slot freed but bill not yet persisted: the pile must refuse work.
	if u.Dispatchable() {
		t.Error("settling pile must not be dispatchable")
	}
	if _, _, ok := u.TryReserve(testRequest("r3", "u3", 5)); ok {
		t.Error("settling pile must refuse reservations")
	}

	s, req, promoted := u.FinishSettlement()
	if !promoted {
		t.Fatal("waiting car should be promoted")
	}
	if req.ID != "r2" || s.RequestID != "r2" {
		t.Errorf("wrong car promoted: %+v", req)
	}
	if r2.Status != domain.RequestStatusCharging {
		t.Errorf("promoted request must be CHARGING, got %s", r2.Status)
	}
}

func TestStopCurrent_UserCancel(t *testing.T) {
	u, clock := newTestUnit(t)
	u.TryReserve(testRequest("r1", "u1", 30))

	clock.Advance(10 * time.Minute)
	end, ok := u.StopCurrent(domain.EndReasonUserCancel)
	if !ok {
		t.Fatal("expected open session to stop")
	}
	if end.Session.Status != domain.SessionStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", end.Session.Status)
	}
	if end.Session.DeliveredKWH < 4.9 || end.Session.DeliveredKWH > 5.1 {
		t.Errorf("expected ~5 kWh delivered, got %f", end.Session.DeliveredKWH)
	}

	if _, ok := u.StopCurrent(domain.EndReasonUserCancel); ok {
		t.Error("second stop must report no session")
	}
}

func TestEvictAll_ReturnsOccupantsInOrder(t *testing.T) {
	u, clock := newTestUnit(t)
	u.TryReserve(testRequest("r1", "u1", 30))
	u.TryReserve(testRequest("r2", "u2", 20))

	clock.Advance(24 * time.Minute) // 12 kWh delivered
	end, evicted := u.EvictAll(domain.EndReasonPileFault)

	if end == nil || end.Session.Status != domain.SessionStatusInterrupted {
		t.Fatalf("expected interrupted session, got %+v", end)
	}
	if end.Session.DeliveredKWH < 11.9 || end.Session.DeliveredKWH > 12.1 {
		t.Errorf("expected ~12 kWh delivered, got %f", end.Session.DeliveredKWH)
	}
	if len(evicted) != 2 || evicted[0].ID != "r1" || evicted[1].ID != "r2" {
		t.Fatalf("expected [r1 r2], got %+v", evicted)
	}

	c, w := u.SlotRequests()
	if c != nil || w != nil {
		t.Error("slots must be cleared after eviction")
	}
}

func TestSetFault_Idempotent(t *testing.T) {
	u, _ := newTestUnit(t)

	u.SetFault("admin")
	if st := u.Snapshot().Status; st != domain.PileStatusFault {
		t.Fatalf("expected FAULT, got %s", st)
	}
	u.SetFault("admin")
	if st := u.Snapshot().Status; st != domain.PileStatusFault {
		t.Fatalf("fault must be sticky, got %s", st)
	}

	if !u.Recover() {
		t.Fatal("recover should succeed")
	}
	if u.Recover() {
		t.Error("second recover must be a no-op")
	}
}

func TestProjectedCompletion(t *testing.T) {
	u, clock := newTestUnit(t)

	// Empty pile: just the candidate's own charge time.
	if got := u.ProjectedCompletion(10); !closeTo(got, 10.0/30) {
		t.Errorf("empty pile projection = %f", got)
	}

	// One car charging with 5 kWh remaining, no waiter.
	u.TryReserve(testRequest("r1", "u1", 30))
	clock.Advance(50 * time.Minute) // 25 kWh delivered
	if got := u.ProjectedCompletion(10); !closeTo(got, 5.0/30+10.0/30) {
		t.Errorf("projection with charging car = %f", got)
	}

	// Add a waiter: its full charge joins the schedule.
	u.TryReserve(testRequest("r2", "u2", 20))
	if got := u.ProjectedCompletion(10); !closeTo(got, 5.0/30+20.0/30+10.0/30) {
		t.Errorf("projection with waiter = %f", got)
	}
}

func TestHeartbeat_StalenessAndRecovery(t *testing.T) {
	u, clock := newTestUnit(t)

	u.MarkStale()
	if st := u.Snapshot().Status; st != domain.PileStatusOffline {
		t.Fatalf("idle stale pile must go OFFLINE, got %s", st)
	}
	if u.Dispatchable() {
		t.Error("offline pile must not be dispatchable")
	}

	u.Heartbeat(clock.Now())
	if st := u.Snapshot().Status; st != domain.PileStatusAvailable {
		t.Fatalf("heartbeat must bring pile back, got %s", st)
	}
	if !u.Dispatchable() {
		t.Error("pile must be dispatchable after heartbeat")
	}
}

func TestMarkStale_ChargingPileKeepsSession(t *testing.T) {
	u, _ := newTestUnit(t)
	u.TryReserve(testRequest("r1", "u1", 30))

	u.MarkStale()
	if st := u.Snapshot().Status; st != domain.PileStatusCharging {
		t.Fatalf("charging pile must hold its session view, got %s", st)
	}
	if u.Dispatchable() {
		t.Error("stale pile must be excluded from dispatch")
	}
	if u.SessionView() == nil {
		t.Error("session view must survive staleness")
	}
}

func closeTo(got, want float64) bool {
	d := got - want
	return d < 1e-9 && d > -1e-9
}
