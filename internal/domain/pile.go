package domain

import (
	"time"
)

type PileType string

const (
	PileTypeFast    PileType = "fast"
	PileTypeTrickle PileType = "trickle"
)

type PileStatus string

const (
	PileStatusAvailable PileStatus = "AVAILABLE"
	PileStatusCharging  PileStatus = "CHARGING"
	PileStatusFault     PileStatus = "FAULT"
	PileStatusOffline   PileStatus = "OFFLINE"
)

// Pile is the durable view of a charging pile: configuration plus
// cumulative counters. Live slot occupancy is runtime state and is not
// stored here.
type Pile struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	Name           string     `json:"name"`
	Type           PileType   `json:"type"`
	PowerKW        float64    `json:"power_kw"`
	Status         PileStatus `json:"status"`
	TotalSessions  int64      `json:"total_sessions"`
	TotalEnergyKWH float64    `json:"total_energy_kwh"`
	TotalHours     float64    `json:"total_hours"`
	LastHeartbeat  time.Time  `json:"last_heartbeat"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Dispatchable reports whether the pile may receive new reservations.
func (p *Pile) Dispatchable() bool {
	return p.Status == PileStatusAvailable || p.Status == PileStatusCharging
}
