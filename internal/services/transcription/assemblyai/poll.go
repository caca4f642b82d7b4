package assemblyai

import "time"

// PollPolicy controls the wait between transcript status queries.
// Interval is multiplied by Multiplier after every non-terminal status and
// capped at MaxInterval. Timeout bounds the whole poll loop; zero means no
// bound beyond the caller's context.
type PollPolicy struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	Timeout     time.Duration
}

// DefaultPollPolicy polls every 3 seconds without backoff.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    3 * time.Second,
		Multiplier:  1,
		MaxInterval: 3 * time.Second,
	}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = 3 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Timeout < 0 {
		p.Timeout = 0
	}
	return p
}

func (p PollPolicy) next(current time.Duration) time.Duration {
	n := time.Duration(float64(current) * p.Multiplier)
	if n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}
