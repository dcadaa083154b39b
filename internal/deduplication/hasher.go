package deduplication

import (
	"encoding/json"

	"courier/pkg/models"
)

const hashMultiplier = 397

// ErrorHash folds the message and stack trace of every error in the chain,
// outermost first, into a 32-bit hash. Errors with neither hash to 0.
func ErrorHash(info *models.ErrorInfo, includeType bool) int32 {
	var hash int32
	for e := info; e != nil; e = e.Inner {
		if includeType && e.Type != "" {
			hash = hash*hashMultiplier ^ stringHash(e.Type)
		}
		if e.Message != "" {
			hash = hash*hashMultiplier ^ stringHash(e.Message)
		}
		if len(e.StackTrace) > 0 {
			stack, err := json.Marshal(e.StackTrace)
			if err == nil {
				hash = hash*hashMultiplier ^ stringHash(string(stack))
			}
		}
	}
	return hash
}

// stringHash is the classic 31-multiplier string hash with 32-bit overflow.
func stringHash(s string) int32 {
	var h int32
	for _, r := range s {
		h = 31*h + int32(r)
	}
	return h
}
