package station

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/queue"
	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/internal/ports"
	"github.com/seu-repo/echarge/internal/service/pile"
)

// SetFault marks a pile faulted, settles its interrupted session and
// re-plans the displaced reservations under the configured policy. The
// dispatcher is held paused for the whole re-plan.
func (s *Station) SetFault(ctx context.Context, pileID, reason string) (*ports.FaultResult, error) {
	unit, ok := s.byID[pileID]
	if !ok {
		return nil, domain.ErrPileNotFound
	}

	s.pause()
	defer func() {
		s.resume()
		s.Trigger()
	}()

	end, evicted := unit.EvictAll(domain.EndReasonPileFault)
	unit.SetFault(reason)
	telemetry.RecordFaultEvent("fault")
	s.publish(queue.SubjectPileFault, map[string]interface{}{
		"pile_id": pileID,
		"reason":  reason,
	})
	s.sendFaultCommand(pileID, reason)

	result := &ports.FaultResult{PileID: pileID}
	for _, r := range evicted {
		result.AffectedRequests = append(result.AffectedRequests, r.ID)
	}

	if end != nil {
		bill, err := s.bills.Settle(ctx, end.Session, unit.PowerKW())
		if err != nil {
			s.log.Error("failed to settle interrupted session", zap.Error(err))
		} else if bill != nil {
			result.SettledBillID = bill.ID
		}
		telemetry.RecordSessionEnded(end.Session.DeliveredKWH, end.Session.Duration().Seconds())
		s.publish(queue.SubjectSessionCompleted, sessionEventPayload(end.Session, end.Reason))
		// The request re-enters the queue owing only the remainder, so the
		// resumed session cannot bill energy twice.
		end.Request.TargetKWH -= end.Session.DeliveredKWH
		if end.Request.TargetKWH <= 1e-9 {
			s.finishRequest(ctx, end.Request, domain.RequestStatusCompleted)
			evicted = evicted[1:]
		}
	}
	s.savePile(ctx, unit)

	switch s.DispatchPolicyValue() {
	case PolicyTimeOrder:
		s.redispatchTimeOrder(ctx, unit, evicted)
	default:
		s.redispatch(ctx, evicted)
	}
	return result, nil
}

// Recover brings a faulted pile back and rebalances: the waiting cars of
// the other matching piles are recalled and re-planned so the recovered
// pile can take its share.
func (s *Station) Recover(ctx context.Context, pileID string) (*ports.RecoverResult, error) {
	unit, ok := s.byID[pileID]
	if !ok {
		return nil, domain.ErrPileNotFound
	}

	result := &ports.RecoverResult{PileID: pileID}
	if !unit.Recover() {
		// Not faulted; recover is idempotent.
		return result, nil
	}

	s.pause()
	defer func() {
		s.resume()
		s.Trigger()
	}()

	telemetry.RecordFaultEvent("recover")
	s.publish(queue.SubjectPileRecovered, map[string]interface{}{"pile_id": pileID})
	s.sendRecoverCommand(pileID)

	var recalled []*domain.ChargeRequest
	for _, u := range s.units {
		if u == unit || u.Type() != unit.Type() {
			continue
		}
		if w, ok := u.TakeWaiting(); ok {
			recalled = append(recalled, w)
		}
	}
	sortByQueueNumber(recalled)

	placed, returned := s.placeAll(ctx, recalled)
	result.RescheduledRequests = placed
	result.ReturnedToWaitingIDs = returned
	return result, nil
}

// redispatch re-plans the faulted pile's own cars ahead of everything
// else, in their original queue-number order. Cars that find no slot go
// back to the head of their waiting-area partition, keeping their numbers.
func (s *Station) redispatch(ctx context.Context, cars []*domain.ChargeRequest) {
	sortByQueueNumber(cars)
	s.placeAll(ctx, cars)
}

// redispatchTimeOrder recalls the waiting car of every other matching
// pile, merges them with the faulted pile's cars and re-plans the whole
// set in queue-number order. Charging cars of healthy piles are not
// disturbed.
func (s *Station) redispatchTimeOrder(ctx context.Context, faulted *pile.Unit, cars []*domain.ChargeRequest) {
	for _, u := range s.units {
		if u == faulted || u.Type() != faulted.Type() {
			continue
		}
		if w, ok := u.TakeWaiting(); ok {
			cars = append(cars, w)
		}
	}
	sortByQueueNumber(cars)
	s.placeAll(ctx, cars)
}

// placeAll runs the dispatcher's selection rule over the given cars in
// order. Leftovers return to the head of the waiting area, smallest queue
// number in front.
func (s *Station) placeAll(ctx context.Context, cars []*domain.ChargeRequest) (placed, returned []string) {
	var leftovers []*domain.ChargeRequest
	for _, r := range cars {
		unit := s.selectUnit(r.Mode, r.TargetKWH)
		if unit == nil {
			leftovers = append(leftovers, r)
			continue
		}
		session, slot, ok := unit.TryReserve(r)
		if !ok {
			leftovers = append(leftovers, r)
			continue
		}
		placed = append(placed, r.ID)
		s.saveRequest(ctx, r)
		telemetry.RecordDispatch(string(r.Mode))
		s.publish(queue.SubjectRequestDispatched, map[string]interface{}{
			"request_id":   r.ID,
			"user_id":      r.UserID,
			"pile_id":      unit.ID(),
			"slot":         slot,
			"queue_number": r.QueueNumber,
		})
		if session != nil {
			telemetry.RecordSessionStarted()
			s.publish(queue.SubjectSessionStarted, sessionEventPayload(session, ""))
			s.sendStartCommand(session)
		}
	}

	for i := len(leftovers) - 1; i >= 0; i-- {
		s.area.PushFront(leftovers[i])
		s.saveRequest(ctx, leftovers[i])
		returned = append([]string{leftovers[i].ID}, returned...)
	}
	return placed, returned
}

// sortByQueueNumber orders requests by the numeric part of their queue
// numbers; fast and trickle sequences are independent but never compete
// for the same piles.
func sortByQueueNumber(cars []*domain.ChargeRequest) {
	sort.SliceStable(cars, func(i, j int) bool {
		return queueNumberValue(cars[i].QueueNumber) < queueNumberValue(cars[j].QueueNumber)
	})
}

func queueNumberValue(qn string) int {
	if len(qn) < 2 {
		return 0
	}
	n, err := strconv.Atoi(qn[1:])
	if err != nil {
		return 0
	}
	return n
}

func (s *Station) sendFaultCommand(pileID, reason string) {
	if s.link == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.link.SetFault(ctx, pileID, reason); err != nil {
			s.log.Warn("fault command not delivered", zap.String("pile_id", pileID), zap.Error(err))
		}
	}()
}

func (s *Station) sendRecoverCommand(pileID string) {
	if s.link == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.link.RecoverFault(ctx, pileID); err != nil {
			s.log.Warn("recover command not delivered", zap.String("pile_id", pileID), zap.Error(err))
		}
	}()
}
