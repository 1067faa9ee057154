package domain

import (
	"encoding/json"
	"math"
)

// RateState is the per-client failed login record.
type RateState struct {
	FailCount     int   `json:"failCount"`
	WindowStartMs int64 `json:"windowStartMs"`
	LockUntilMs   int64 `json:"lockUntilMs"`
}

// Locked reports whether the lockout is still active at nowMs.
func (s RateState) Locked(nowMs int64) bool {
	return s.LockUntilMs > nowMs
}

// DecodeRateState reads a stored record. Missing or non-numeric fields read as
// zero; anything that is not a JSON object is rejected.
func DecodeRateState(raw []byte) (RateState, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return RateState{}, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return RateState{}, false
	}
	return RateState{
		FailCount:     int(numberField(obj, "failCount")),
		WindowStartMs: int64(numberField(obj, "windowStartMs")),
		LockUntilMs:   int64(numberField(obj, "lockUntilMs")),
	}, true
}

func numberField(obj map[string]any, key string) float64 {
	n, ok := obj[key].(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}
