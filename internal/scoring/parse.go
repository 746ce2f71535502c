package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SentinelRawScore replaces raw scores that are missing, non-numeric or not
// finite. It sits at the bottom of the 60 band, so a malformed answer never
// crashes a session and never counts as a good read.
const SentinelRawScore = 1.0

// ParseRaw interprets the score field of a scoring response. Numbers and
// numeric strings are used as is; everything else, including NaN and ±Inf,
// yields [SentinelRawScore].
func ParseRaw(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return SentinelRawScore
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return SentinelRawScore
		}
		f = p
	default:
		return SentinelRawScore
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return SentinelRawScore
	}
	return f
}
