package domain

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusCharging    SessionStatus = "CHARGING"
	SessionStatusCompleted   SessionStatus = "COMPLETED"
	SessionStatusInterrupted SessionStatus = "INTERRUPTED"
	SessionStatusCancelled   SessionStatus = "CANCELLED"
)

// Session end reasons used by the pile runtime.
const (
	EndReasonCompleted      = "completed"
	EndReasonUserCancel     = "user_cancel"
	EndReasonPileFault      = "pile_fault"
	EndReasonCommandTimeout = "command_timeout"
)

// ChargingSession is one open charging interval of one request on one pile.
// DeliveredKWH is monotonic non-decreasing while the session is open and
// never exceeds TargetKWH by more than one tick's worth of energy.
type ChargingSession struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	RequestID    string        `json:"request_id" gorm:"index"`
	UserID       string        `json:"user_id" gorm:"index"`
	PileID       string        `json:"pile_id" gorm:"index"`
	TargetKWH    float64       `json:"target_kwh"`
	DeliveredKWH float64       `json:"delivered_kwh"`
	StartAt      time.Time     `json:"start_at"`
	EndAt        *time.Time    `json:"end_at,omitempty"`
	Status       SessionStatus `json:"status"`
}

// Duration returns the session length, zero while still open.
func (s *ChargingSession) Duration() time.Duration {
	if s.EndAt == nil {
		return 0
	}
	return s.EndAt.Sub(s.StartAt)
}
