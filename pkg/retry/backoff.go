package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before the next attempt. attempt is the number of
// the attempt that just failed, starting at 1.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same interval after every failure.
type Fixed time.Duration

func (f Fixed) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(f)
}

// Linear grows the delay by Step per attempt, capped at Max.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

func (l Linear) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := l.Step * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		d = l.Max
	}
	return d
}

// Exponential multiplies Initial by Multiplier for every failed attempt and
// spreads the result by +/- Jitter (a fraction, 0.1 means 10%). Without Max
// the delay saturates at the largest time.Duration.
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := e.Initial
	if initial == 0 {
		initial = time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*e.Jitter
	}
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
