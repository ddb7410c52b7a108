package recommend

import (
	"errors"
	"fmt"
)

// MalformedResponseError indicates that a recommendation payload lacks the
// expected structure. It is returned before any state is touched.
type MalformedResponseError struct {
	// Reason describes the missing or invalid part of the payload.
	Reason string
	// Err is the underlying decode error, if any.
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return "malformed recommendation response"
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed recommendation response: %s: %v", e.Reason, e.Err)
	}
	return "malformed recommendation response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsMalformedResponse reports whether err is a MalformedResponseError.
func IsMalformedResponse(err error) bool {
	var target *MalformedResponseError
	return errors.As(err, &target)
}

// RecommendationFetchError wraps a transport or service failure for the request
// tagged Seq. The diff store and the tree are left untouched.
type RecommendationFetchError struct {
	Seq uint64
	Err error
}

func (e *RecommendationFetchError) Error() string {
	if e == nil || e.Err == nil {
		return "recommendation request failed"
	}
	return fmt.Sprintf("recommendation request #%d failed: %v", e.Seq, e.Err)
}

func (e *RecommendationFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsFetchError reports whether err is a RecommendationFetchError.
func IsFetchError(err error) bool {
	var target *RecommendationFetchError
	return errors.As(err, &target)
}

// StaleResponseError is returned when a response arrives for a request that has
// since been superseded. Its effects are suppressed.
type StaleResponseError struct {
	Seq    uint64
	Latest uint64
}

func (e *StaleResponseError) Error() string {
	if e == nil {
		return "stale recommendation response"
	}
	return fmt.Sprintf("recommendation response #%d superseded by request #%d", e.Seq, e.Latest)
}

// IsStaleResponse reports whether err is a StaleResponseError.
func IsStaleResponse(err error) bool {
	var target *StaleResponseError
	return errors.As(err, &target)
}
