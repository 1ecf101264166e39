package checker

import "errors"

// ErrRateLimited marks a rejection by the upstream registry's query quota.
// The gate backs off the affected protocol when it sees this error.
var ErrRateLimited = errors.New("upstream rate limit exceeded")

// ErrAmbiguous marks a response that completed but could not be classified
// as registered or unregistered.
var ErrAmbiguous = errors.New("ambiguous registry response")

// ErrBackingOff marks a probe that was skipped because its protocol is
// inside an active backoff window. The checker treats it as inconclusive
// and falls through to the next protocol.
var ErrBackingOff = errors.New("protocol is backing off")

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsBackingOff(err error) bool {
	return errors.Is(err, ErrBackingOff)
}
