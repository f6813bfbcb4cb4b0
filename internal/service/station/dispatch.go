package station

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/queue"
	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/internal/service/pile"
)

// DispatchPolicy selects how reservations displaced by a pile fault are
// re-planned.
type DispatchPolicy string

const (
	// PolicyPriority re-dispatches the faulted pile's own cars ahead of
	// everything else.
	PolicyPriority DispatchPolicy = "priority"
	// PolicyTimeOrder additionally recalls the waiting cars of the other
	// piles and re-plans the merged set in queue-number order.
	PolicyTimeOrder DispatchPolicy = "time_order"
)

func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch DispatchPolicy(s) {
	case PolicyPriority, PolicyTimeOrder:
		return DispatchPolicy(s), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidDispatchPolicy, s)
}

// dispatchLoop drains the trigger channel and runs a safety tick so a
// missed wake-up never strands a waiting car.
func (s *Station) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DispatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-ticker.C:
		}
		s.DispatchOnce(ctx)
	}
}

func (s *Station) pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
}

func (s *Station) resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
}

func (s *Station) isPaused() bool {
	s.pauseMu.RLock()
	defer s.pauseMu.RUnlock()
	return s.paused
}

// DispatchOnce moves as many cars as the current headroom allows, fast
// mode first, preserving FIFO order within each mode.
func (s *Station) DispatchOnce(ctx context.Context) {
	if s.isPaused() {
		return
	}
	s.dispatchMode(ctx, domain.ChargeModeFast)
	s.dispatchMode(ctx, domain.ChargeModeTrickle)
}

func (s *Station) dispatchMode(ctx context.Context, mode domain.ChargeMode) {
	for {
		head := s.area.Head(mode)
		if head == nil {
			return
		}
		// Re-entrance guard: a user must never occupy two pile slots.
		if s.userOnPile(head.UserID) {
			s.log.Warn("head of queue already occupies a pile slot, holding dispatch",
				zap.String("user_id", head.UserID),
				zap.String("request_id", head.ID),
			)
			return
		}
		unit := s.selectUnit(mode, head.TargetKWH)
		if unit == nil {
			return
		}
		session, slot, ok := unit.TryReserve(head)
		if !ok {
			// Slot raced away; the next trigger retries.
			return
		}
		s.area.Remove(head.ID)
		s.saveRequest(ctx, head)
		telemetry.RecordDispatch(string(mode))
		s.publish(queue.SubjectRequestDispatched, map[string]interface{}{
			"request_id":   head.ID,
			"user_id":      head.UserID,
			"pile_id":      unit.ID(),
			"slot":         slot,
			"queue_number": head.QueueNumber,
		})
		if session != nil {
			telemetry.RecordSessionStarted()
			s.publish(queue.SubjectSessionStarted, sessionEventPayload(session, ""))
			s.sendStartCommand(session)
		}
	}
}

// selectUnit applies the shortest-total-completion-time rule over the
// matching piles with free capacity. Strict less-than keeps the lower
// pile id on ties, scanning in id order.
func (s *Station) selectUnit(mode domain.ChargeMode, targetKWH float64) *pile.Unit {
	var best *pile.Unit
	var bestT float64
	for _, u := range s.units {
		if u.Type() != mode.PileType() || !u.HasFreeSlot() {
			continue
		}
		t := u.ProjectedCompletion(targetKWH)
		if best == nil || t < bestT {
			best = u
			bestT = t
		}
	}
	return best
}

func (s *Station) userOnPile(userID string) bool {
	for _, u := range s.units {
		if u.HoldsUser(userID) {
			return true
		}
	}
	return false
}
