package tariff

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/echarge/pkg/config"
)

// Period is the time-of-use tariff period a wall-clock instant falls in.
type Period string

const (
	PeriodPeak   Period = "peak"
	PeriodNormal Period = "normal"
	PeriodValley Period = "valley"
)

// Calculator prices charging sessions against a fixed time-of-use rate
// table. It is a pure component: no state changes, safe for concurrent use.
type Calculator struct {
	peakRate    decimal.Decimal
	normalRate  decimal.Decimal
	valleyRate  decimal.Decimal
	serviceRate decimal.Decimal
	peakHours   []config.HourRange
	normalHours []config.HourRange
}

func NewCalculator(cfg config.BillingConfig) *Calculator {
	return &Calculator{
		peakRate:    decimal.NewFromFloat(cfg.PeakRate),
		normalRate:  decimal.NewFromFloat(cfg.NormalRate),
		valleyRate:  decimal.NewFromFloat(cfg.ValleyRate),
		serviceRate: decimal.NewFromFloat(cfg.ServiceRate),
		peakHours:   cfg.PeakHours,
		normalHours: cfg.NormalHours,
	}
}

// PeriodAt returns the tariff period covering t. The three periods
// partition the day; hours in neither peak nor normal ranges are valley.
func (c *Calculator) PeriodAt(t time.Time) Period {
	h := t.Hour()
	if hourIn(h, c.peakHours) {
		return PeriodPeak
	}
	if hourIn(h, c.normalHours) {
		return PeriodNormal
	}
	return PeriodValley
}

// RateAt returns the per-kWh energy rate at t.
func (c *Calculator) RateAt(t time.Time) decimal.Decimal {
	switch c.PeriodAt(t) {
	case PeriodPeak:
		return c.peakRate
	case PeriodNormal:
		return c.normalRate
	default:
		return c.valleyRate
	}
}

// ServiceRate returns the flat per-kWh service fee.
func (c *Calculator) ServiceRate() decimal.Decimal {
	return c.serviceRate
}

// Cost prices a session of energyKWH delivered over [start, end) at
// constant powerKW. The interval is split at every hour boundary; each
// segment's energy is powerKW times the segment duration, priced at the
// rate in force at the segment's start. Sessions shorter than one hour are
// priced entirely at the start rate. Both returned costs are rounded to
// cents independently.
//
// Negative energy or end before start is a programmer error and panics.
func (c *Calculator) Cost(energyKWH, powerKW float64, start, end time.Time) (energyCost, serviceCost decimal.Decimal) {
	if energyKWH < 0 {
		panic(fmt.Sprintf("tariff: negative energy %.3f kWh", energyKWH))
	}
	if end.Before(start) {
		panic(fmt.Sprintf("tariff: session ends %s before it starts %s", end, start))
	}

	energy := decimal.NewFromFloat(energyKWH)
	serviceCost = c.serviceRate.Mul(energy).Round(2)

	if end.Sub(start) < time.Hour {
		energyCost = c.RateAt(start).Mul(energy).Round(2)
		return energyCost, serviceCost
	}

	power := decimal.NewFromFloat(powerKW)
	total := decimal.Zero
	for cur := start; cur.Before(end); {
		next := nextHour(cur)
		if next.After(end) {
			next = end
		}
		segHours := decimal.NewFromFloat(next.Sub(cur).Hours())
		total = total.Add(c.RateAt(cur).Mul(power).Mul(segHours))
		cur = next
	}
	return total.Round(2), serviceCost
}

// nextHour returns the next wall-clock hour boundary after t in t's
// location. Truncate would misalign in zones with fractional offsets.
func nextHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
}
