package pile

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
)

// Slot identifies which reservation slot of a pile a request landed in.
type Slot string

const (
	SlotCharging Slot = "charging"
	SlotWaiting  Slot = "waiting"
)

// SessionEnd carries everything the station needs to settle a terminated
// session: the frozen session, the request that owned it and the reason.
type SessionEnd struct {
	Session *domain.ChargingSession
	Request *domain.ChargeRequest
	Reason  string
}

// Unit is the runtime of one charging pile: the AVAILABLE/CHARGING/FAULT/
// OFFLINE state machine, the two reservation slots (one charging car, one
// waiting car) and the energy integration of the open session.
//
// All operations hold the unit mutex; callers never see a half-applied
// transition. After a session ends the unit stays in a settling state —
// refusing new reservations and promotions — until FinishSettlement, so
// the freed slot only becomes visible once the bill is persisted.
type Unit struct {
	mu sync.Mutex

	pile     domain.Pile
	charging *domain.ChargeRequest
	waiting  *domain.ChargeRequest
	session  *domain.ChargingSession

	settling  bool
	linkStale bool

	now func() time.Time
	log *zap.Logger
}

func NewUnit(p domain.Pile, log *zap.Logger) *Unit {
	if p.Status == "" {
		p.Status = domain.PileStatusAvailable
	}
	return &Unit{
		pile: p,
		now:  time.Now,
		log:  log,
	}
}

// WithClock replaces the wall clock, for tests.
func (u *Unit) WithClock(now func() time.Time) *Unit {
	u.now = now
	return u
}

func (u *Unit) ID() string            { return u.pile.ID }
func (u *Unit) Type() domain.PileType { return u.pile.Type }
func (u *Unit) PowerKW() float64      { return u.pile.PowerKW }

// Snapshot returns a copy of the durable pile view.
func (u *Unit) Snapshot() domain.Pile {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pile
}

// SessionView returns a copy of the open session with delivered energy
// integrated up to now, or nil.
func (u *Unit) SessionView() *domain.ChargingSession {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session == nil {
		return nil
	}
	u.integrateLocked(u.now())
	s := *u.session
	return &s
}

// SlotRequests returns copies of the charging and waiting slot occupants.
func (u *Unit) SlotRequests() (charging, waiting *domain.ChargeRequest) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.charging != nil {
		c := *u.charging
		charging = &c
	}
	if u.waiting != nil {
		w := *u.waiting
		waiting = &w
	}
	return charging, waiting
}

// Dispatchable reports whether the dispatcher may offer this pile new
// reservations right now.
func (u *Unit) Dispatchable() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dispatchableLocked()
}

func (u *Unit) dispatchableLocked() bool {
	return u.pile.Dispatchable() && !u.settling && !u.linkStale
}

// HasFreeSlot reports whether a reservation attempt could succeed.
func (u *Unit) HasFreeSlot() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dispatchableLocked() && (u.charging == nil || u.waiting == nil)
}

// HoldsUser reports whether either slot is occupied by the user.
func (u *Unit) HoldsUser(userID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.charging != nil && u.charging.UserID == userID {
		return true
	}
	return u.waiting != nil && u.waiting.UserID == userID
}

// TryReserve installs the request into the first free slot. A request
// landing in the charging slot starts a session immediately; the returned
// session is nil for the waiting slot. The request's status and assigned
// pile are updated in place.
func (u *Unit) TryReserve(req *domain.ChargeRequest) (*domain.ChargingSession, Slot, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.dispatchableLocked() {
		return nil, "", false
	}
	if u.charging == nil {
		u.charging = req
		s := u.beginSessionLocked(req)
		return s, SlotCharging, true
	}
	if u.waiting == nil {
		u.waiting = req
		req.AssignedPileID = u.pile.ID
		req.Status = domain.RequestStatusQueued
		req.UpdatedAt = u.now()
		return nil, SlotWaiting, true
	}
	return nil, "", false
}

func (u *Unit) beginSessionLocked(req *domain.ChargeRequest) *domain.ChargingSession {
	now := u.now()
	u.session = &domain.ChargingSession{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		UserID:    req.UserID,
		PileID:    u.pile.ID,
		TargetKWH: req.TargetKWH,
		StartAt:   now,
		Status:    domain.SessionStatusCharging,
	}
	u.pile.Status = domain.PileStatusCharging
	u.pile.UpdatedAt = now
	req.AssignedPileID = u.pile.ID
	req.Status = domain.RequestStatusCharging
	req.UpdatedAt = now

	u.log.Info("session started",
		zap.String("pile_id", u.pile.ID),
		zap.String("session_id", u.session.ID),
		zap.String("user_id", req.UserID),
		zap.Float64("target_kwh", req.TargetKWH),
	)
	s := *u.session
	return &s
}

// integrateLocked advances delivered energy to the given instant. The
// value is monotonic and clamped at the target.
func (u *Unit) integrateLocked(now time.Time) {
	if u.session == nil {
		return
	}
	delivered := u.pile.PowerKW * now.Sub(u.session.StartAt).Hours()
	if delivered > u.session.TargetKWH {
		delivered = u.session.TargetKWH
	}
	if delivered > u.session.DeliveredKWH {
		u.session.DeliveredKWH = delivered
	}
}

// Advance integrates the open session up to now and, when the target is
// reached, ends the session with reason completed. The unit then waits in
// the settling state for the bill to be persisted.
func (u *Unit) Advance(now time.Time) *SessionEnd {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session == nil {
		return nil
	}
	u.integrateLocked(now)
	if u.session.DeliveredKWH < u.session.TargetKWH {
		return nil
	}
	return u.endSessionLocked(now, domain.EndReasonCompleted)
}

// StopCurrent ends the open session with the given reason, leaving the
// unit settling. Returns false if no session is open.
func (u *Unit) StopCurrent(reason string) (*SessionEnd, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session == nil {
		return nil, false
	}
	return u.endSessionLocked(u.now(), reason), true
}

func (u *Unit) endSessionLocked(now time.Time, reason string) *SessionEnd {
	u.integrateLocked(now)
	s := u.session
	s.EndAt = &now
	switch reason {
	case domain.EndReasonCompleted:
		s.Status = domain.SessionStatusCompleted
	case domain.EndReasonUserCancel:
		s.Status = domain.SessionStatusCancelled
	default:
		s.Status = domain.SessionStatusInterrupted
	}

	u.pile.TotalSessions++
	u.pile.TotalEnergyKWH += s.DeliveredKWH
	u.pile.TotalHours += now.Sub(s.StartAt).Hours()
	u.pile.Status = domain.PileStatusAvailable
	u.pile.UpdatedAt = now

	req := u.charging
	u.charging = nil
	u.session = nil
	u.settling = true

	u.log.Info("session ended",
		zap.String("pile_id", u.pile.ID),
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Float64("delivered_kwh", s.DeliveredKWH),
	)
	return &SessionEnd{Session: s, Request: req, Reason: reason}
}

// FinishSettlement leaves the settling state and promotes the waiting car
// into the freed charging slot, starting its session. Called after the
// ended session's bill has been persisted.
func (u *Unit) FinishSettlement() (*domain.ChargingSession, *domain.ChargeRequest, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.settling = false
	if u.pile.Status != domain.PileStatusAvailable || u.waiting == nil {
		return nil, nil, false
	}
	req := u.waiting
	u.waiting = nil
	u.charging = req
	s := u.beginSessionLocked(req)
	return s, req, true
}

// CancelWaiting frees the waiting slot if it holds the given request.
func (u *Unit) CancelWaiting(requestID string) (*domain.ChargeRequest, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.waiting == nil || u.waiting.ID != requestID {
		return nil, false
	}
	req := u.waiting
	u.waiting = nil
	return req, true
}

// TakeWaiting empties the waiting slot regardless of who holds it. Used
// by the fault coordinator when re-planning reservations across piles.
func (u *Unit) TakeWaiting() (*domain.ChargeRequest, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.waiting == nil {
		return nil, false
	}
	req := u.waiting
	u.waiting = nil
	return req, true
}

// EvictAll ends any open session with the given reason and clears both
// slots, returning the occupants in [charging, waiting] order. Used by the
// fault coordinator as a single atomic step.
func (u *Unit) EvictAll(reason string) (*SessionEnd, []*domain.ChargeRequest) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var end *SessionEnd
	var evicted []*domain.ChargeRequest
	if u.session != nil {
		end = u.endSessionLocked(u.now(), reason)
		u.settling = false
		evicted = append(evicted, end.Request)
	} else if u.charging != nil {
		evicted = append(evicted, u.charging)
		u.charging = nil
	}
	if u.waiting != nil {
		evicted = append(evicted, u.waiting)
		u.waiting = nil
	}
	u.settling = false
	return end, evicted
}

// SetFault moves the pile to FAULT, ending any open session first. Idempotent.
func (u *Unit) SetFault(reason string) *SessionEnd {
	u.mu.Lock()
	defer u.mu.Unlock()

	var end *SessionEnd
	if u.session != nil {
		end = u.endSessionLocked(u.now(), reason)
	}
	u.settling = false
	u.pile.Status = domain.PileStatusFault
	u.pile.UpdatedAt = u.now()
	return end
}

// Recover moves a faulted pile back to AVAILABLE. Idempotent.
func (u *Unit) Recover() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.pile.Status != domain.PileStatusFault {
		return false
	}
	u.pile.Status = domain.PileStatusAvailable
	u.pile.UpdatedAt = u.now()
	return true
}

// SetOffline parks an idle pile; refused while a session is open.
func (u *Unit) SetOffline() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.pile.Status != domain.PileStatusAvailable || u.charging != nil {
		return false
	}
	u.pile.Status = domain.PileStatusOffline
	u.pile.UpdatedAt = u.now()
	return true
}

// SetOnline brings an OFFLINE pile back into service.
func (u *Unit) SetOnline() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.pile.Status != domain.PileStatusOffline {
		return false
	}
	u.pile.Status = domain.PileStatusAvailable
	u.pile.UpdatedAt = u.now()
	return true
}

// Heartbeat records pile liveness and clears staleness. An OFFLINE pile
// returns to AVAILABLE when its heartbeat comes back.
func (u *Unit) Heartbeat(ts time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.pile.LastHeartbeat = ts
	u.linkStale = false
	if u.pile.Status == domain.PileStatusOffline {
		u.pile.Status = domain.PileStatusAvailable
		u.pile.UpdatedAt = ts
	}
}

// MarkStale excludes the pile from dispatch after heartbeat loss. An idle
// pile goes OFFLINE; a charging pile keeps its session view and only stops
// taking new reservations.
func (u *Unit) MarkStale() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.linkStale = true
	if u.pile.Status == domain.PileStatusAvailable {
		u.pile.Status = domain.PileStatusOffline
		u.pile.UpdatedAt = u.now()
	}
}

// LastHeartbeat returns the most recent heartbeat instant, zero if the
// pile never reported over the link.
func (u *Unit) LastHeartbeat() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pile.LastHeartbeat
}

// ProjectedCompletion returns the total completion time in hours a new
// request of candidateKWH would see on this pile: remaining time of the
// charging car, full charge time of the waiting car, then its own charge.
func (u *Unit) ProjectedCompletion(candidateKWH float64) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	total := candidateKWH / u.pile.PowerKW
	if u.session != nil {
		u.integrateLocked(u.now())
		remaining := u.session.TargetKWH - u.session.DeliveredKWH
		if remaining > 0 {
			total += remaining / u.pile.PowerKW
		}
	}
	if u.waiting != nil {
		total += u.waiting.TargetKWH / u.pile.PowerKW
	}
	return total
}
