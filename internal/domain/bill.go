package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillStatusCompleted   BillStatus = "COMPLETED"
	BillStatusInterrupted BillStatus = "INTERRUPTED"
	BillStatusCancelled   BillStatus = "CANCELLED"
)

// Bill is the final priced record of a terminated session. Rows are
// immutable after insert; EnergyCost + ServiceCost = TotalCost to cent
// precision.
type Bill struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	SessionID   string          `json:"session_id" gorm:"index"`
	RequestID   string          `json:"request_id" gorm:"index"`
	UserID      string          `json:"user_id" gorm:"index"`
	PileID      string          `json:"pile_id"`
	EnergyKWH   float64         `json:"energy_kwh"`
	StartAt     time.Time       `json:"start_at"`
	EndAt       time.Time       `json:"end_at"`
	EnergyCost  decimal.Decimal `json:"energy_cost" gorm:"type:numeric(12,2)"`
	ServiceCost decimal.Decimal `json:"service_cost" gorm:"type:numeric(12,2)"`
	TotalCost   decimal.Decimal `json:"total_cost" gorm:"type:numeric(12,2)"`
	Status      BillStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

const billIDLayout = "20060102"

// FormatBillID builds a bill identifier: BILL{YYYYMMDD}{seq:04d}.
func FormatBillID(day time.Time, seq int) string {
	return fmt.Sprintf("BILL%s%04d", day.Format(billIDLayout), seq)
}

// ParseBillID splits a bill identifier back into its day and sequence.
func ParseBillID(id string) (time.Time, int, error) {
	if len(id) != 4+8+4 || id[:4] != "BILL" {
		return time.Time{}, 0, fmt.Errorf("%w: malformed bill id %q", ErrInvalidInput, id)
	}
	day, err := time.ParseInLocation(billIDLayout, id[4:12], time.Local)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: malformed bill id %q", ErrInvalidInput, id)
	}
	seq, err := strconv.Atoi(id[12:])
	if err != nil || seq < 0 {
		return time.Time{}, 0, fmt.Errorf("%w: malformed bill id %q", ErrInvalidInput, id)
	}
	return day, seq, nil
}

// SessionBillStatus maps a terminal session status onto the bill status.
func SessionBillStatus(s SessionStatus) BillStatus {
	switch s {
	case SessionStatusInterrupted:
		return BillStatusInterrupted
	case SessionStatusCancelled:
		return BillStatusCancelled
	default:
		return BillStatusCompleted
	}
}
