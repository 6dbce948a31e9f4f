package worker

import (
	"time"

	"renderhub/internal/config"
)

// Policy holds the retry, dedup and deadline knobs of the coordinator.
type Policy struct {
	// UniqueFor is the uniqueness lock TTL. It runs independently of
	// RetryWindow.
	UniqueFor time.Duration
	// RetryDelay is the fixed delay after a failed attempt.
	RetryDelay time.Duration
	// RetryWindow bounds the whole job from EnqueuedAt; no attempt starts
	// at or after EnqueuedAt+RetryWindow.
	RetryWindow  time.Duration
	ThumbnailTTL time.Duration
	Throttle     ThrottleConfig
	// VerifyOutput checks the shared store for the rendered image before
	// committing.
	VerifyOutput bool
}

func DefaultPolicy() Policy {
	return Policy{
		UniqueFor:    900 * time.Second,
		RetryDelay:   60 * time.Second,
		RetryWindow:  5 * time.Minute,
		ThumbnailTTL: 365 * 24 * time.Hour,
		Throttle: ThrottleConfig{
			MaxFailures: 2,
			Window:      3 * time.Second,
			Backoff:     time.Second,
		},
	}
}

func PolicyFromConfig(c config.Jobs) Policy {
	return Policy{
		UniqueFor:    c.UniqueFor,
		RetryDelay:   c.RetryDelay,
		RetryWindow:  c.RetryWindow,
		ThumbnailTTL: c.ThumbnailTTL,
		Throttle: ThrottleConfig{
			MaxFailures: c.ThrottleMaxFailures,
			Window:      c.ThrottleWindow,
			Backoff:     c.ThrottleBackoff,
		},
		VerifyOutput: c.VerifyOutput,
	}
}

func (p Policy) Deadline(j Job) time.Time {
	return j.EnqueuedAt.Add(p.RetryWindow)
}

// NextAttempt is the later of now+RetryDelay and the throttle suspension end.
func (p Policy) NextAttempt(now, suspendedUntil time.Time) time.Time {
	next := now.Add(p.RetryDelay)
	if suspendedUntil.After(next) {
		return suspendedUntil
	}
	return next
}
