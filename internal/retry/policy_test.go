package retry

import (
	"testing"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffExponential {
		t.Fatalf("expected exponential default mode got %s", p.Mode)
	}
	if p.Initial != 2*time.Second {
		t.Fatalf("expected initial 2s got %v", p.Initial)
	}
	if p.Max != 30*time.Second {
		t.Fatalf("expected max 30s got %v", p.Max)
	}
	if p.MaxAttempts != 4 {
		t.Fatalf("expected max attempts 4 got %d", p.MaxAttempts)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	// initial > max -> clamped
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Max != 2*time.Second {
		t.Fatalf("expected max 2s got %v", p.Max)
	}
	if p.Mode != config.RetryBackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxAttempts != 5 {
		t.Fatalf("expected maxAttempts 5 got %d", p.MaxAttempts)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect the cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed retry %d expected 100ms got %v", i, d)
		}
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		retry int
		want  time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range cases {
		if got := linear.Delay(c.retry); got != c.want {
			t.Fatalf("linear retry %d expected %v got %v", c.retry, c.want, got)
		}
	}

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	expCases := []struct {
		retry int
		want  time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {4, 160 * time.Millisecond}}
	for _, c := range expCases {
		if got := exp.Delay(c.retry); got != c.want {
			t.Fatalf("exp retry %d expected %v got %v", c.retry, c.want, got)
		}
	}
}

// TestCustomMultiplier verifies the growth factor applies to the exponential schedule.
func TestCustomMultiplier(t *testing.T) {
	p := NewPolicy(config.RetryBackoffExponential, 100*time.Millisecond, 2*time.Second, 5)
	p.Multiplier = 3
	cases := []struct {
		retry int
		want  time.Duration
	}{{1, 100 * time.Millisecond}, {2, 300 * time.Millisecond}, {3, 900 * time.Millisecond}, {4, 2 * time.Second}}
	for _, c := range cases {
		if got := p.Delay(c.retry); got != c.want {
			t.Fatalf("multiplier 3 retry %d expected %v got %v", c.retry, c.want, got)
		}
	}
}

// TestDelayEdgeCases ensures non-positive retry counts yield zero and don't panic.
func TestDelayEdgeCases(t *testing.T) {
	p := NewPolicy(config.RetryBackoffLinear, 10*time.Millisecond, 20*time.Millisecond, 1)
	if d := p.Delay(0); d != 0 {
		t.Fatalf("retry 0 expected 0 got %v", d)
	}
	if d := p.Delay(-1); d != 0 {
		t.Fatalf("retry -1 expected 0 got %v", d)
	}
}

// TestJitterStaysBounded verifies jittered delays stay within +25% of the base.
func TestJitterStaysBounded(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, time.Second, 3)
	p.Jitter = true
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		if d < 100*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %v", d)
		}
	}
}

// TestValidate covers validation error paths.
func TestValidate(t *testing.T) {
	badInitial := Policy{Mode: config.RetryBackoffLinear, Initial: 0, Max: time.Second, MaxAttempts: 1}
	if err := badInitial.Validate(); err == nil {
		t.Fatalf("expected error for zero initial")
	}
	badMax := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 0, MaxAttempts: 1}
	if err := badMax.Validate(); err == nil {
		t.Fatalf("expected error for zero max")
	}
	badAttempts := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxAttempts: 0}
	if err := badAttempts.Validate(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
	good := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxAttempts: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

// TestUnknownModeFallsBack leaves mode default when an unknown string is supplied.
func TestUnknownModeFallsBack(t *testing.T) {
	p := NewPolicy("weird", 250*time.Millisecond, 500*time.Millisecond, 1)
	if p.Mode != config.RetryBackoffExponential {
		t.Fatalf("unknown mode should fall back to exponential got %s", p.Mode)
	}
}

// TestFromConfig maps the shared config block onto a policy.
func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second, Backoff: "linear"})
	if p.MaxAttempts != 3 || p.Mode != config.RetryBackoffLinear {
		t.Fatalf("unexpected policy from config: %+v", p)
	}
	if p.Multiplier != 2 {
		t.Fatalf("unset multiplier should default to 2 got %v", p.Multiplier)
	}

	custom := FromConfig(config.RetryConfig{Backoff: "exponential", Multiplier: 1.5})
	if custom.Multiplier != 1.5 {
		t.Fatalf("expected multiplier 1.5 got %v", custom.Multiplier)
	}
}
