package station

import (
	"context"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

// SetDispatchPolicy switches the post-fault re-planning policy at runtime.
func (s *Station) SetDispatchPolicy(policy string) error {
	p, err := ParseDispatchPolicy(policy)
	if err != nil {
		return err
	}
	s.policyMu.Lock()
	s.policy = p
	s.policyMu.Unlock()
	return nil
}

// DispatchPolicy returns the active policy name.
func (s *Station) DispatchPolicy() string {
	return string(s.DispatchPolicyValue())
}

// DispatchPolicyValue returns the active policy.
func (s *Station) DispatchPolicyValue() DispatchPolicy {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.policy
}

// StartPile brings an OFFLINE pile back into service.
func (s *Station) StartPile(ctx context.Context, pileID string) error {
	u, ok := s.byID[pileID]
	if !ok {
		return domain.ErrPileNotFound
	}
	if u.SetOnline() {
		s.savePile(ctx, u)
		s.Trigger()
	}
	return nil
}

// StopPile parks an idle pile; refused while a session is open.
func (s *Station) StopPile(ctx context.Context, pileID string) error {
	u, ok := s.byID[pileID]
	if !ok {
		return domain.ErrPileNotFound
	}
	if !u.SetOffline() {
		return domain.ErrInvalidInput
	}
	s.savePile(ctx, u)
	return nil
}

// Piles lists the durable pile views in id order.
func (s *Station) Piles(ctx context.Context) []domain.Pile {
	out := make([]domain.Pile, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u.Snapshot())
	}
	return out
}

// PileDetail returns one pile's slots and live session.
func (s *Station) PileDetail(ctx context.Context, pileID string) (*ports.PileQueueView, error) {
	u, ok := s.byID[pileID]
	if !ok {
		return nil, domain.ErrPileNotFound
	}
	charging, waiting := u.SlotRequests()
	return &ports.PileQueueView{
		Pile:     u.Snapshot(),
		Charging: charging,
		Waiting:  waiting,
		Session:  u.SessionView(),
	}, nil
}

// WaitingAreaView lists the admitted requests per mode in FIFO order.
func (s *Station) WaitingAreaView(ctx context.Context) map[domain.ChargeMode][]domain.ChargeRequest {
	return map[domain.ChargeMode][]domain.ChargeRequest{
		domain.ChargeModeFast:    s.area.List(domain.ChargeModeFast),
		domain.ChargeModeTrickle: s.area.List(domain.ChargeModeTrickle),
	}
}

// Statistics aggregates station-wide counters.
func (s *Station) Statistics(ctx context.Context) ports.StationStats {
	stats := ports.StationStats{
		WaitingCount: s.area.Size(),
		GeneratedAt:  s.now(),
	}
	for _, u := range s.units {
		p := u.Snapshot()
		stats.TotalSessions += p.TotalSessions
		stats.TotalEnergyKWH += p.TotalEnergyKWH
		stats.TotalHours += p.TotalHours
		if p.Status == domain.PileStatusCharging {
			stats.ChargingCount++
		}
	}
	return stats
}
