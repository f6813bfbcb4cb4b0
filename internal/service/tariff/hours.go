package tariff

import "github.com/seu-repo/echarge/pkg/config"

// hourIn reports whether wall-clock hour h falls in any of the ranges.
// A range with From > To wraps past midnight, like the 23:00-07:00 valley.
func hourIn(h int, ranges []config.HourRange) bool {
	for _, r := range ranges {
		if r.From > r.To {
			if h >= r.From || h < r.To {
				return true
			}
			continue
		}
		if h >= r.From && h < r.To {
			return true
		}
	}
	return false
}
