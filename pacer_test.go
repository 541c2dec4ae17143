package speechstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealTimePacerCompensatesDrift(t *testing.T) {
	clock := time.Unix(0, 0)
	p := &RealTimePacer{now: func() time.Time { return clock }}

	// The first call anchors the clock.
	start := time.Now()
	require.NoError(t, p.Pace(context.Background(), nil, 0))

	// 300ms of wall time already passed while only 100ms of audio was sent:
	// no wait is needed.
	clock = clock.Add(300 * time.Millisecond)
	require.NoError(t, p.Pace(context.Background(), nil, 100*time.Millisecond))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, p.sent)
}

func TestRealTimePacerWaits(t *testing.T) {
	p := NewRealTimePacer()
	start := time.Now()
	require.NoError(t, p.Pace(context.Background(), nil, 20*time.Millisecond))
	require.NoError(t, p.Pace(context.Background(), nil, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestSleepPacerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepPacer().Pace(ctx, nil, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacerFunc(t *testing.T) {
	var got time.Duration
	p := PacerFunc(func(_ context.Context, _ []byte, d time.Duration) error {
		got = d
		return nil
	})
	require.NoError(t, p.Pace(context.Background(), []byte{1, 2}, 42*time.Millisecond))
	assert.Equal(t, 42*time.Millisecond, got)
}
