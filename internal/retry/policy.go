package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction and safe to share across tasks.
type Policy struct {
	Mode        config.RetryBackoffMode // fixed|linear|exponential
	Initial     time.Duration           // base delay
	Max         time.Duration           // cap for growth
	MaxAttempts int                     // total attempts including the first
	Multiplier  float64                 // growth factor for exponential mode; <=1 means 2
	Jitter      bool                    // add up to 25% random jitter to each delay

	// Classify overrides the default transient-vs-terminal classification.
	// Nil means the classified-error taxonomy decides.
	Classify func(error) bool

	// OnRetry is invoked before each retry sleep (metrics hook). May be nil.
	OnRetry func(op string, attempt int)
}

// DefaultPolicy returns a sensible default policy (exponential, 2s initial, 30s cap, 4 attempts).
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffExponential, Initial: 2 * time.Second, Max: 30 * time.Second, MaxAttempts: 4, Multiplier: 2}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxAttempts int) Policy {
	p := DefaultPolicy()
	if maxAttempts >= 1 {
		p.MaxAttempts = maxAttempts
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	default:
		// unknown -> keep default
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds a policy from the shared retry configuration block.
func FromConfig(rc config.RetryConfig) Policy {
	p := NewPolicy(config.NormalizeRetryBackoff(rc.Backoff), rc.InitialDelay, rc.MaxDelay, rc.MaxAttempts)
	if rc.Multiplier > 1 {
		p.Multiplier = rc.Multiplier
	}
	return p
}

// Delay returns the backoff delay for the given retry number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		factor := p.Multiplier
		if factor <= 1 {
			factor = 2
		}
		d = time.Duration(float64(p.Initial) * math.Pow(factor, float64(retryCount-1)))
	default: // linear
		d = time.Duration(retryCount) * p.Initial
	}
	if d > p.Max || d < 0 {
		d = p.Max
	}
	if p.Jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}

// Validate ensures invariants; returns an error if the policy cannot be applied.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}
