package models

// RetryPolicy governs backoff behavior for a (ServiceName, StageName) pair.
// StageName is nil for a service-wide policy; both nil for the global
// default row synthesized in-process when no DB row matches.
type RetryPolicy struct {
	ServiceName      string
	StageName        *StageName
	MaxAttempts      int
	BaseDelaySeconds float64
	MaxDelaySeconds  float64
	BackoffMultiplier float64
	JitterFactor     float64
	Priority         int
}

// DefaultRetryPolicy is used when no (service, stage), (service, nil), or
// (nil, stage) row resolves.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelaySeconds:  2,
		MaxDelaySeconds:   60,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
	}
}
