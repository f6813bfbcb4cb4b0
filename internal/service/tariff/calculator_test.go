package tariff

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seu-repo/echarge/pkg/config"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 6, 10, hour, min, 0, 0, time.Local)
}

func TestPeriodAt(t *testing.T) {
	c := NewCalculator(config.DefaultBilling())

	cases := []struct {
		hour int
		want Period
	}{
		{0, PeriodValley},
		{6, PeriodValley},
		{7, PeriodNormal},
		{9, PeriodNormal},
		{10, PeriodPeak},
		{14, PeriodPeak},
		{15, PeriodNormal},
		{17, PeriodNormal},
		{18, PeriodPeak},
		{20, PeriodPeak},
		{21, PeriodNormal},
		{22, PeriodNormal},
		{23, PeriodValley},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.PeriodAt(at(tc.hour, 0)), "hour %d", tc.hour)
	}
}

func TestCost_SingleHourPeak(t *testing.T) {
	// 30 kWh at 30 kW from 10:00 to 11:00, entirely peak.
	c := NewCalculator(config.DefaultBilling())

	energy, service := c.Cost(30.0, 30.0, at(10, 0), at(11, 0))

	assert.True(t, decimal.NewFromFloat(30.00).Equal(energy), "energy cost %s", energy)
	assert.True(t, decimal.NewFromFloat(24.00).Equal(service), "service cost %s", service)
}

func TestCost_CrossesPeakIntoNormal(t *testing.T) {
	// 60 kWh at 30 kW from 14:00 to 16:00: one peak hour, one normal hour.
	c := NewCalculator(config.DefaultBilling())

	energy, service := c.Cost(60.0, 30.0, at(14, 0), at(16, 0))

	// 30*1.00 + 30*0.70
	assert.True(t, decimal.NewFromFloat(51.00).Equal(energy), "energy cost %s", energy)
	assert.True(t, decimal.NewFromFloat(48.00).Equal(service), "service cost %s", service)
}

func TestCost_ShortSessionUsesStartRate(t *testing.T) {
	// 40 minutes straddling the 15:00 peak->normal boundary; rate pinned
	// to the one in force at start.
	c := NewCalculator(config.DefaultBilling())

	energy, _ := c.Cost(10.0, 30.0, at(14, 40), at(15, 20))

	assert.True(t, decimal.NewFromFloat(10.00).Equal(energy), "energy cost %s", energy)
}

func TestCost_ValleyWrapsMidnight(t *testing.T) {
	start := time.Date(2024, 6, 10, 23, 0, 0, 0, time.Local)
	end := time.Date(2024, 6, 11, 1, 0, 0, 0, time.Local)
	c := NewCalculator(config.DefaultBilling())

	energy, service := c.Cost(14.0, 7.0, start, end)

	// Two valley hours at 7 kW: 14 kWh * 0.40.
	assert.True(t, decimal.NewFromFloat(5.60).Equal(energy), "energy cost %s", energy)
	assert.True(t, decimal.NewFromFloat(11.20).Equal(service), "service cost %s", service)
}

func TestCost_PartialSegments(t *testing.T) {
	// 90 minutes from 09:30: half a normal hour then a full peak hour.
	c := NewCalculator(config.DefaultBilling())

	energy, _ := c.Cost(45.0, 30.0, at(9, 30), at(11, 0))

	// 15*0.70 + 30*1.00 = 40.50
	assert.True(t, decimal.NewFromFloat(40.50).Equal(energy), "energy cost %s", energy)
}

func TestCost_ZeroEnergy(t *testing.T) {
	c := NewCalculator(config.DefaultBilling())

	energy, service := c.Cost(0, 30.0, at(10, 0), at(10, 0))

	assert.True(t, energy.IsZero())
	assert.True(t, service.IsZero())
}

func TestCost_SumEqualsTotalToCent(t *testing.T) {
	c := NewCalculator(config.DefaultBilling())

	// Awkward fractions: 3.333 kWh over 28 minutes.
	energy, service := c.Cost(3.333, 7.0, at(22, 47), at(23, 15))

	total := energy.Add(service)
	require.Equal(t, int32(-2), total.Exponent(), "costs must stay at cent precision")
	assert.True(t, energy.Round(2).Equal(energy))
	assert.True(t, service.Round(2).Equal(service))
}

func TestCost_NegativeEnergyPanics(t *testing.T) {
	c := NewCalculator(config.DefaultBilling())

	assert.Panics(t, func() { c.Cost(-1, 30.0, at(10, 0), at(11, 0)) })
}

func TestCost_EndBeforeStartPanics(t *testing.T) {
	c := NewCalculator(config.DefaultBilling())

	assert.Panics(t, func() { c.Cost(1, 30.0, at(11, 0), at(10, 0)) })
}
