package aggregator

import (
	"math"
	"strconv"
	"strings"
)

func isOnValue(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ON", "TRUE":
		return true
	default:
		return false
	}
}

// parseCounterValue reads integer payloads; decimal payloads are truncated.
func parseCounterValue(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
