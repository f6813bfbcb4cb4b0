package domain

import (
	"fmt"
	"time"
)

type ChargeMode string

const (
	ChargeModeFast    ChargeMode = "fast"
	ChargeModeTrickle ChargeMode = "trickle"
)

// QueuePrefix returns the human-readable queue number prefix for the mode.
func (m ChargeMode) QueuePrefix() string {
	if m == ChargeModeFast {
		return "F"
	}
	return "T"
}

// PileType maps the charge mode onto the matching pile type.
func (m ChargeMode) PileType() PileType {
	if m == ChargeModeFast {
		return PileTypeFast
	}
	return PileTypeTrickle
}

func ParseChargeMode(s string) (ChargeMode, error) {
	switch ChargeMode(s) {
	case ChargeModeFast, ChargeModeTrickle:
		return ChargeMode(s), nil
	}
	return "", fmt.Errorf("%w: unknown charge mode %q", ErrInvalidInput, s)
}

type RequestStatus string

const (
	RequestStatusWaiting     RequestStatus = "WAITING"
	RequestStatusQueued      RequestStatus = "QUEUED"
	RequestStatusCharging    RequestStatus = "CHARGING"
	RequestStatusCompleted   RequestStatus = "COMPLETED"
	RequestStatusCancelled   RequestStatus = "CANCELLED"
	RequestStatusInterrupted RequestStatus = "INTERRUPTED"
)

// Terminal reports whether the status is sticky: once reached the request
// never changes again.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusCancelled, RequestStatusInterrupted:
		return true
	}
	return false
}

// ChargeRequest is one admitted charging request. TargetKWH tracks the
// energy still owed to the user: after a fault interrupts a session the
// request re-enters the queue with the delivered amount subtracted.
type ChargeRequest struct {
	ID             string        `json:"id" gorm:"primaryKey"`
	UserID         string        `json:"user_id" gorm:"index"`
	Mode           ChargeMode    `json:"mode"`
	TargetKWH      float64       `json:"target_kwh"`
	QueueNumber    string        `json:"queue_number"`
	Status         RequestStatus `json:"status"`
	AssignedPileID string        `json:"assigned_pile_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
