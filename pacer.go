package speechstream

import (
	"context"
	"time"
)

// Pacer delays delivery of audio chunks so that streaming approximates
// capture speed. Pace is called once per chunk with the payload and the
// audio time it represents, and blocks until the next chunk may be sent.
type Pacer interface {
	Pace(ctx context.Context, chunk []byte, d time.Duration) error
}

// PacerFunc adapts a function to the Pacer interface.
type PacerFunc func(ctx context.Context, chunk []byte, d time.Duration) error

func (f PacerFunc) Pace(ctx context.Context, chunk []byte, d time.Duration) error {
	return f(ctx, chunk, d)
}

// SleepPacer waits the full chunk duration after every chunk.
func SleepPacer() Pacer {
	return PacerFunc(func(ctx context.Context, _ []byte, d time.Duration) error {
		return sleepContext(ctx, d)
	})
}

// RealTimePacer keeps the cumulative audio time sent in step with the wall
// clock measured from the first chunk, so time spent reading and writing is
// not added on top of the audio duration.
type RealTimePacer struct {
	now   func() time.Time
	start time.Time
	sent  time.Duration
}

func NewRealTimePacer() *RealTimePacer {
	return &RealTimePacer{now: time.Now}
}

func (p *RealTimePacer) Pace(ctx context.Context, _ []byte, d time.Duration) error {
	if p.start.IsZero() {
		p.start = p.now()
	}
	p.sent += d
	wait := p.sent - p.now().Sub(p.start)
	return sleepContext(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
