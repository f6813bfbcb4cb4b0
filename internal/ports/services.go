package ports

import (
	"context"
	"time"

	"github.com/seu-repo/echarge/internal/domain"
)

// SubmitResult is the answer to a successful charging request submission.
type SubmitResult struct {
	RequestID   string  `json:"request_id"`
	QueueNumber string  `json:"queue_number"`
	ETAMinutes  float64 `json:"eta_minutes"`
}

// ModifyModeResult carries the fresh queue number after a mode change.
type ModifyModeResult struct {
	RequestID      string `json:"request_id"`
	NewQueueNumber string `json:"new_queue_number"`
}

// UserStatus is the live view of a user's current request.
type UserStatus struct {
	RequestID    string               `json:"request_id"`
	State        domain.RequestStatus `json:"state"`
	QueueNumber  string               `json:"queue_number"`
	Mode         domain.ChargeMode    `json:"mode"`
	TargetKWH    float64              `json:"target_kwh"`
	DeliveredKWH float64              `json:"delivered_kwh,omitempty"`
	ETAMinutes   float64              `json:"eta_minutes,omitempty"`
	Ahead        int                  `json:"ahead"`
	AssignedPile string               `json:"assigned_pile,omitempty"`
}

// ChargingService is the user-facing command contract.
type ChargingService interface {
	SubmitRequest(ctx context.Context, userID string, mode domain.ChargeMode, targetKWH float64) (*SubmitResult, error)
	GetStatus(ctx context.Context, userID string) (*UserStatus, error)
	ModifyTarget(ctx context.Context, userID string, targetKWH float64) error
	ModifyMode(ctx context.Context, userID string, mode domain.ChargeMode) (*ModifyModeResult, error)
	Cancel(ctx context.Context, userID, requestID string) error
	StopCharging(ctx context.Context, userID string) (*domain.Bill, error)
	ListRecords(ctx context.Context, userID string, q RecordQuery) ([]domain.Bill, int64, error)
}

// FaultResult summarizes a pile fault: which requests were displaced and
// the bill settled for the interrupted session, if any.
type FaultResult struct {
	PileID           string   `json:"pile_id"`
	AffectedRequests []string `json:"affected_requests"`
	SettledBillID    string   `json:"settled_bill_id,omitempty"`
}

// RecoverResult summarizes a pile recovery rebalance.
type RecoverResult struct {
	PileID               string   `json:"pile_id"`
	RescheduledRequests  []string `json:"rescheduled_requests"`
	ReturnedToWaitingIDs []string `json:"returned_to_waiting,omitempty"`
}

// PileQueueView is the admin view of one pile's reservation slots.
type PileQueueView struct {
	Pile     domain.Pile             `json:"pile"`
	Charging *domain.ChargeRequest   `json:"charging,omitempty"`
	Waiting  *domain.ChargeRequest   `json:"waiting,omitempty"`
	Session  *domain.ChargingSession `json:"session,omitempty"`
}

// StationStats aggregates station-wide cumulative counters.
type StationStats struct {
	TotalSessions  int64     `json:"total_sessions"`
	TotalEnergyKWH float64   `json:"total_energy_kwh"`
	TotalHours     float64   `json:"total_hours"`
	WaitingCount   int       `json:"waiting_count"`
	ChargingCount  int       `json:"charging_count"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// AdminService is the operator-facing contract.
type AdminService interface {
	SetFault(ctx context.Context, pileID, reason string) (*FaultResult, error)
	Recover(ctx context.Context, pileID string) (*RecoverResult, error)
	SetDispatchPolicy(policy string) error
	DispatchPolicy() string
	StartPile(ctx context.Context, pileID string) error
	StopPile(ctx context.Context, pileID string) error
	Piles(ctx context.Context) []domain.Pile
	PileDetail(ctx context.Context, pileID string) (*PileQueueView, error)
	WaitingAreaView(ctx context.Context) map[domain.ChargeMode][]domain.ChargeRequest
	Statistics(ctx context.Context) StationStats
}

// PileLink sends commands to physical piles over the pile-link protocol.
// Implementations retry with backoff; persistent failure of a start or stop
// command escalates through the fault path.
type PileLink interface {
	StartCharging(ctx context.Context, pileID, userID string, targetKWH float64) error
	StopCharging(ctx context.Context, pileID string) error
	SetFault(ctx context.Context, pileID, reason string) error
	RecoverFault(ctx context.Context, pileID string) error
	Shutdown(ctx context.Context, pileID string) error
}
