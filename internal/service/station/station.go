package station

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/queue"
	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/internal/ports"
	"github.com/seu-repo/echarge/internal/service/billing"
	"github.com/seu-repo/echarge/internal/service/pile"
	"github.com/seu-repo/echarge/internal/service/waiting"
	"github.com/seu-repo/echarge/pkg/config"
)

// Station is the aggregate root of one charging station: the waiting
// area, the pile units, the dispatcher, the fault coordinator and the
// billing store, wired together behind the user and admin command
// contracts. Everything is instance state; tests build a Station per case.
type Station struct {
	cfg   config.StationConfig
	area  *waiting.Area
	units []*pile.Unit
	byID  map[string]*pile.Unit

	bills    *billing.Store
	requests ports.RequestRepository
	piles    ports.PileRepository
	mq       queue.MessageQueue
	link     ports.PileLink

	log *zap.Logger
	now func() time.Time

	// Dispatcher pause flag; the fault coordinator holds it while
	// re-planning reservations.
	pauseMu sync.RWMutex
	paused  bool

	policyMu sync.RWMutex
	policy   DispatchPolicy

	// Per-user active (non-terminal) request lookup.
	usersMu sync.Mutex
	active  map[string]*domain.ChargeRequest

	trigger chan struct{}
}

// Option tweaks a Station at construction time.
type Option func(*Station)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Station) {
		s.now = now
		for _, u := range s.units {
			u.WithClock(now)
		}
		s.area.WithClock(now)
		s.bills.WithClock(now)
	}
}

// WithPileLink attaches the transport used to command physical piles.
func WithPileLink(link ports.PileLink) Option {
	return func(s *Station) { s.link = link }
}

func New(
	cfg config.StationConfig,
	bills *billing.Store,
	requests ports.RequestRepository,
	piles ports.PileRepository,
	mq queue.MessageQueue,
	log *zap.Logger,
	opts ...Option,
) (*Station, error) {
	policy, err := ParseDispatchPolicy(cfg.DispatchPolicy)
	if err != nil {
		return nil, err
	}

	s := &Station{
		cfg:      cfg,
		area:     waiting.NewArea(cfg.WaitingAreaCapacity, log),
		byID:     make(map[string]*pile.Unit, len(cfg.Piles)),
		bills:    bills,
		requests: requests,
		piles:    piles,
		mq:       mq,
		log:      log,
		now:      time.Now,
		policy:   policy,
		active:   make(map[string]*domain.ChargeRequest),
		trigger:  make(chan struct{}, 1),
	}

	for _, pc := range cfg.Piles {
		p := domain.Pile{
			ID:      pc.ID,
			Name:    pc.Name,
			Type:    domain.PileType(pc.Type),
			PowerKW: pc.PowerKW,
			Status:  domain.PileStatusAvailable,
		}
		u := pile.NewUnit(p, log)
		s.units = append(s.units, u)
		s.byID[pc.ID] = u
	}
	// Deterministic tie-break: units are always scanned in pile-id order.
	sort.Slice(s.units, func(i, j int) bool { return s.units[i].ID() < s.units[j].ID() })

	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// AttachPileLink wires the pile command transport after construction;
// the commander needs the station for fault escalation, so the two are
// built in sequence.
func (s *Station) AttachPileLink(link ports.PileLink) {
	s.link = link
}

// Start launches the dispatch loop and the progress scanner. Both stop
// when the context is cancelled.
func (s *Station) Start(ctx context.Context) {
	go s.dispatchLoop(ctx)
	go s.progressLoop(ctx)
}

// Trigger nudges the dispatcher without blocking.
func (s *Station) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SubmitRequest admits a new charging request into the waiting area and
// wakes the dispatcher.
func (s *Station) SubmitRequest(ctx context.Context, userID string, mode domain.ChargeMode, targetKWH float64) (*ports.SubmitResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}

	s.usersMu.Lock()
	if r, ok := s.active[userID]; ok && !r.Status.Terminal() {
		s.usersMu.Unlock()
		return nil, domain.ErrDuplicateRequest
	}
	req, err := s.area.Admit(userID, mode, targetKWH)
	if err != nil {
		s.usersMu.Unlock()
		return nil, err
	}
	s.active[userID] = req
	s.usersMu.Unlock()

	if err := s.requests.Save(ctx, req); err != nil {
		s.area.Remove(req.ID)
		s.releaseUser(userID)
		return nil, fmt.Errorf("%w: saving request: %v", domain.ErrPersistenceFailure, err)
	}

	s.publish(queue.SubjectRequestAdmitted, map[string]interface{}{
		"request_id":   req.ID,
		"user_id":      userID,
		"mode":         mode,
		"queue_number": req.QueueNumber,
		"target_kwh":   targetKWH,
	})
	s.Trigger()

	return &ports.SubmitResult{
		RequestID:   req.ID,
		QueueNumber: req.QueueNumber,
		ETAMinutes:  s.estimateWaitingETA(req),
	}, nil
}

// GetStatus reports the live view of the user's current request.
func (s *Station) GetStatus(ctx context.Context, userID string) (*ports.UserStatus, error) {
	req := s.activeRequest(userID)
	if req == nil {
		return nil, domain.ErrNotFound
	}

	st := &ports.UserStatus{
		RequestID:    req.ID,
		State:        req.Status,
		QueueNumber:  req.QueueNumber,
		Mode:         req.Mode,
		TargetKWH:    req.TargetKWH,
		AssignedPile: req.AssignedPileID,
	}

	switch req.Status {
	case domain.RequestStatusWaiting:
		st.Ahead = s.area.AheadCount(req.ID)
		st.ETAMinutes = s.estimateWaitingETA(req)
	case domain.RequestStatusQueued:
		if u, ok := s.byID[req.AssignedPileID]; ok {
			// The queued car's completion is the remainder of the current
			// session plus its own full charge, which is exactly the
			// pile's projection for a zero-size newcomer.
			st.ETAMinutes = u.ProjectedCompletion(0) * 60
		}
	case domain.RequestStatusCharging:
		if u, ok := s.byID[req.AssignedPileID]; ok {
			if sv := u.SessionView(); sv != nil && sv.RequestID == req.ID {
				st.DeliveredKWH = sv.DeliveredKWH
				st.ETAMinutes = (sv.TargetKWH - sv.DeliveredKWH) / u.PowerKW() * 60
			}
		}
	}
	return st, nil
}

// ModifyTarget changes the requested energy; allowed only while WAITING.
func (s *Station) ModifyTarget(ctx context.Context, userID string, targetKWH float64) error {
	req := s.activeRequest(userID)
	if req == nil {
		return domain.ErrNotFound
	}
	if req.Status != domain.RequestStatusWaiting {
		return domain.ErrNotInWaiting
	}
	if err := s.area.UpdateTarget(req.ID, targetKWH); err != nil {
		return err
	}
	s.saveRequest(ctx, req)
	return nil
}

// ModifyMode moves a waiting request to the other mode's partition under
// a fresh queue number.
func (s *Station) ModifyMode(ctx context.Context, userID string, mode domain.ChargeMode) (*ports.ModifyModeResult, error) {
	req := s.activeRequest(userID)
	if req == nil {
		return nil, domain.ErrNotFound
	}
	if req.Status != domain.RequestStatusWaiting {
		return nil, domain.ErrNotInWaiting
	}
	changed, err := s.area.ChangeMode(req.ID, mode)
	if err != nil {
		return nil, err
	}
	s.saveRequest(ctx, changed)
	s.Trigger()
	return &ports.ModifyModeResult{RequestID: changed.ID, NewQueueNumber: changed.QueueNumber}, nil
}

// Cancel withdraws the request wherever it currently sits. Cancelling a
// request that already reached a terminal state succeeds with no effect.
func (s *Station) Cancel(ctx context.Context, userID, requestID string) error {
	req := s.activeRequest(userID)
	if req == nil || req.ID != requestID {
		stored, err := s.requests.FindByID(ctx, requestID)
		if err != nil || stored == nil || stored.UserID != userID {
			return domain.ErrNotFound
		}
		// Already terminal: cancel is idempotent.
		return nil
	}

	switch req.Status {
	case domain.RequestStatusWaiting:
		s.area.Remove(req.ID)
		s.finishRequest(ctx, req, domain.RequestStatusCancelled)
		s.publishCancelled(req)
		s.Trigger()
		return nil
	case domain.RequestStatusQueued:
		if u, ok := s.byID[req.AssignedPileID]; ok {
			u.CancelWaiting(req.ID)
		}
		s.finishRequest(ctx, req, domain.RequestStatusCancelled)
		s.publishCancelled(req)
		s.Trigger()
		return nil
	case domain.RequestStatusCharging:
		_, err := s.StopCharging(ctx, userID)
		return err
	default:
		// Terminal already; benign.
		return nil
	}
}

// StopCharging ends the user's open session and settles its bill. The
// bill is nil when no energy was delivered.
func (s *Station) StopCharging(ctx context.Context, userID string) (*domain.Bill, error) {
	req := s.activeRequest(userID)
	if req == nil || req.Status != domain.RequestStatusCharging {
		return nil, domain.ErrNoActiveSession
	}
	u, ok := s.byID[req.AssignedPileID]
	if !ok {
		return nil, domain.ErrNoActiveSession
	}

	end, stopped := u.StopCurrent(domain.EndReasonUserCancel)
	if !stopped || end.Request == nil || end.Request.ID != req.ID {
		// Lost the race against automatic completion; already terminal.
		return nil, domain.ErrNoActiveSession
	}

	bill, err := s.bills.Settle(ctx, end.Session, u.PowerKW())
	if err != nil {
		s.log.Error("failed to settle user stop", zap.Error(err))
	}
	telemetry.RecordSessionEnded(end.Session.DeliveredKWH, end.Session.Duration().Seconds())
	s.finishRequest(ctx, req, domain.RequestStatusCancelled)
	s.publish(queue.SubjectSessionCompleted, sessionEventPayload(end.Session, end.Reason))
	s.sendStopCommand(req.AssignedPileID)

	s.finishSettlement(ctx, u)
	s.Trigger()
	return bill, nil
}

// ListRecords returns the user's billing history.
func (s *Station) ListRecords(ctx context.Context, userID string, q ports.RecordQuery) ([]domain.Bill, int64, error) {
	return s.bills.ListRecords(ctx, userID, q)
}

// ---- internal helpers ----

func (s *Station) activeRequest(userID string) *domain.ChargeRequest {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	req, ok := s.active[userID]
	if !ok || req.Status.Terminal() {
		return nil
	}
	return req
}

func (s *Station) releaseUser(userID string) {
	s.usersMu.Lock()
	delete(s.active, userID)
	s.usersMu.Unlock()
}

// finishRequest stamps a terminal status, persists and releases the user.
func (s *Station) finishRequest(ctx context.Context, req *domain.ChargeRequest, status domain.RequestStatus) {
	req.Status = status
	req.UpdatedAt = s.now()
	s.saveRequest(ctx, req)
	s.releaseUser(req.UserID)
}

func (s *Station) saveRequest(ctx context.Context, req *domain.ChargeRequest) {
	if err := s.requests.Save(ctx, req); err != nil {
		s.log.Warn("failed to persist request",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}
}

func (s *Station) savePile(ctx context.Context, u *pile.Unit) {
	if s.piles == nil {
		return
	}
	snap := u.Snapshot()
	if err := s.piles.Save(ctx, &snap); err != nil {
		s.log.Warn("failed to persist pile", zap.String("pile_id", snap.ID), zap.Error(err))
	}
}

// finishSettlement releases the settling gate on the unit and starts the
// promoted waiter's session, if any. The freed slot becomes visible to the
// dispatcher only here, after the bill write.
func (s *Station) finishSettlement(ctx context.Context, u *pile.Unit) {
	session, req, promoted := u.FinishSettlement()
	if !promoted {
		return
	}
	s.saveRequest(ctx, req)
	telemetry.RecordSessionStarted()
	s.publish(queue.SubjectSessionStarted, sessionEventPayload(session, ""))
	s.sendStartCommand(session)
}

// estimateWaitingETA projects when a waiting request would finish if
// dispatched now: the best completion time any matching pile offers, plus
// the full-charge time of same-mode cars ahead of it in the area.
func (s *Station) estimateWaitingETA(req *domain.ChargeRequest) float64 {
	var best float64
	found := false
	var power float64
	for _, u := range s.units {
		if u.Type() != req.Mode.PileType() {
			continue
		}
		power = u.PowerKW()
		if !u.Dispatchable() {
			continue
		}
		t := u.ProjectedCompletion(req.TargetKWH)
		if !found || t < best {
			best = t
			found = true
		}
	}
	if !found || power == 0 {
		return 0
	}

	var aheadKWH float64
	for _, r := range s.area.List(req.Mode) {
		if r.ID == req.ID {
			break
		}
		aheadKWH += r.TargetKWH
	}
	return (best + aheadKWH/power) * 60
}

func (s *Station) publish(subject string, payload interface{}) {
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

func (s *Station) publishCancelled(req *domain.ChargeRequest) {
	s.publish(queue.SubjectRequestCancelled, map[string]interface{}{
		"request_id":   req.ID,
		"user_id":      req.UserID,
		"queue_number": req.QueueNumber,
	})
}

func sessionEventPayload(session *domain.ChargingSession, reason string) map[string]interface{} {
	p := map[string]interface{}{
		"session_id":    session.ID,
		"request_id":    session.RequestID,
		"user_id":       session.UserID,
		"pile_id":       session.PileID,
		"target_kwh":    session.TargetKWH,
		"delivered_kwh": session.DeliveredKWH,
		"start_at":      session.StartAt.Format(time.RFC3339),
		"status":        session.Status,
	}
	if reason != "" {
		p["reason"] = reason
	}
	return p
}

func (s *Station) sendStartCommand(session *domain.ChargingSession) {
	if s.link == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.link.StartCharging(ctx, session.PileID, session.UserID, session.TargetKWH); err != nil {
			s.log.Warn("start command not delivered",
				zap.String("pile_id", session.PileID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Station) sendStopCommand(pileID string) {
	if s.link == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.link.StopCharging(ctx, pileID); err != nil {
			s.log.Warn("stop command not delivered", zap.String("pile_id", pileID), zap.Error(err))
		}
	}()
}
