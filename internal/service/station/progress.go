package station

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/queue"
	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/internal/service/pile"
)

// progressLoop is the single scanner task: once per tick it advances every
// open session under the pile's own lock, completes sessions that reached
// their target and applies heartbeat staleness.
func (s *Station) progressLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ProgressTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ProgressTick(ctx)
		}
	}
}

// ProgressTick advances all piles to the current instant. Exported so
// tests can drive time explicitly.
func (s *Station) ProgressTick(ctx context.Context) {
	now := s.now()
	for _, u := range s.units {
		if end := u.Advance(now); end != nil {
			s.settleCompleted(ctx, u, end)
		}

		if hb := u.LastHeartbeat(); !hb.IsZero() && now.Sub(hb) > s.cfg.HeartbeatTimeout {
			u.MarkStale()
		}

		if sv := u.SessionView(); sv != nil {
			s.publish(queue.SubjectSessionProgress, map[string]interface{}{
				"pile_id":       sv.PileID,
				"user_id":       sv.UserID,
				"session_id":    sv.ID,
				"delivered_kwh": sv.DeliveredKWH,
				"target_kwh":    sv.TargetKWH,
				"progress_pct":  progressPct(sv),
			})
		}
	}
	s.updateGauges()
}

// settleCompleted finishes a session that reached its target: bill first,
// then the terminal request write, and only then the freed slot becomes
// dispatchable.
func (s *Station) settleCompleted(ctx context.Context, u *pile.Unit, end *pile.SessionEnd) {
	if _, err := s.bills.Settle(ctx, end.Session, u.PowerKW()); err != nil {
		s.log.Error("failed to settle completed session",
			zap.String("session_id", end.Session.ID),
			zap.Error(err),
		)
	}
	telemetry.RecordSessionEnded(end.Session.DeliveredKWH, end.Session.Duration().Seconds())
	if end.Request != nil {
		s.finishRequest(ctx, end.Request, domain.RequestStatusCompleted)
	}
	s.publish(queue.SubjectSessionCompleted, sessionEventPayload(end.Session, end.Reason))
	s.savePile(ctx, u)
	s.sendStopCommand(u.ID())

	s.finishSettlement(ctx, u)
	s.Trigger()
}

func (s *Station) updateGauges() {
	counts := map[domain.PileStatus]int{}
	for _, u := range s.units {
		counts[u.Snapshot().Status]++
	}
	for _, st := range []domain.PileStatus{
		domain.PileStatusAvailable,
		domain.PileStatusCharging,
		domain.PileStatusFault,
		domain.PileStatusOffline,
	} {
		telemetry.PilesTotal.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
	telemetry.WaitingAreaDepth.WithLabelValues(string(domain.ChargeModeFast)).
		Set(float64(len(s.area.List(domain.ChargeModeFast))))
	telemetry.WaitingAreaDepth.WithLabelValues(string(domain.ChargeModeTrickle)).
		Set(float64(len(s.area.List(domain.ChargeModeTrickle))))
}

func progressPct(sv *domain.ChargingSession) float64 {
	if sv.TargetKWH <= 0 {
		return 0
	}
	return sv.DeliveredKWH / sv.TargetKWH * 100
}

// Heartbeat records a pile heartbeat from the pile link.
func (s *Station) Heartbeat(pileID string, ts time.Time) error {
	u, ok := s.byID[pileID]
	if !ok {
		return domain.ErrPileNotFound
	}
	u.Heartbeat(ts)
	return nil
}
