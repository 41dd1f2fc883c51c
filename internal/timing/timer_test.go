package timing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rendersphere/internal/diagnostics"
)

func newTestTimer(t *testing.T, src EdgeSource, sink diagnostics.Sink) (*Timer, *Pacing) {
	t.Helper()
	p := NewPacing(DefaultMaxInterval, 224)
	tm, err := NewTimer(Config{Slices: 224, Debounce: time.Millisecond}, src, p, zerolog.Nop(), sink)
	require.NoError(t, err)
	return tm, p
}

func TestPulseIntervals(t *testing.T) {
	cases := []struct {
		name     string
		period   time.Duration
		interval time.Duration
		rps      float64
	}{
		{"ten rps", 100 * time.Millisecond, 100 * time.Millisecond / 224, 10},
		{"twenty rps", 50 * time.Millisecond, 50 * time.Millisecond / 224, 20},
		{"clamped", 30 * time.Second, DefaultMaxInterval, 1e9 / float64(DefaultMaxInterval*224)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tm, p := newTestTimer(t, &scripted{}, nil)
			base := time.Unix(1000, 0)
			require.True(t, tm.Pulse(base))
			p.ClearNewFrame()

			require.True(t, tm.Pulse(base.Add(tc.period)))
			assert.Equal(t, tc.interval, p.Interval())
			assert.InEpsilon(t, tc.rps, p.RPS(), 0.001)
			assert.True(t, p.NewFrame())
		})
	}
}

func TestFirstPulseUsesMaxInterval(t *testing.T) {
	tm, p := newTestTimer(t, &scripted{}, nil)
	p.Set(time.Microsecond, 0)
	require.True(t, tm.Pulse(time.Unix(5, 0)))
	assert.Equal(t, DefaultMaxInterval, p.Interval())
	assert.True(t, p.NewFrame())
	assert.EqualValues(t, 1, p.Pulses())
}

func TestPulseDebounce(t *testing.T) {
	tm, p := newTestTimer(t, &scripted{}, nil)
	base := time.Unix(1000, 0)
	require.True(t, tm.Pulse(base))
	require.True(t, tm.Pulse(base.Add(100*time.Millisecond)))
	before := p.Interval()

	assert.False(t, tm.Pulse(base.Add(100*time.Millisecond+500*time.Microsecond)))
	assert.False(t, tm.Pulse(base))
	assert.Equal(t, before, p.Interval())
	assert.EqualValues(t, 2, p.Pulses())
}

func TestNewFrameWakesRenderer(t *testing.T) {
	p := NewPacing(time.Millisecond, 224)
	assert.InDelta(t, 1e9/float64(224*time.Millisecond), p.RPS(), 1e-9)
	p.RaiseNewFrame()
	p.RaiseNewFrame()
	select {
	case <-p.Notify():
	default:
		t.Fatal("expected wake-up")
	}
	p.RaiseNewFrame()
	p.ClearNewFrame()
	assert.False(t, p.NewFrame())
	select {
	case <-p.Notify():
		t.Fatal("notification should be drained")
	default:
	}
}

// scripted replays edges; once exhausted it reports timeouts.
type scripted struct {
	mu    sync.Mutex
	steps []step
	err   error
}

type step struct {
	edge bool
}

func (s *scripted) WaitForEdge(time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		if s.err != nil {
			return false, s.err
		}
		time.Sleep(time.Millisecond)
		return false, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.edge, nil
}

func TestRunReturnsSensorError(t *testing.T) {
	boom := errors.New("gpio gone")
	var got []diagnostics.Diagnostic
	tm, _ := newTestTimer(t, &scripted{err: boom}, func(d diagnostics.Diagnostic) { got = append(got, d) })
	err := tm.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Len(t, got, 1)
	assert.Equal(t, diagnostics.SensorFailed, got[0].Code)
}

func TestRunStaleAndRecovery(t *testing.T) {
	base := time.Unix(2000, 0)
	// start, three timeouts (the second goes stale), then a pulse
	clock := []time.Time{
		base,
		base.Add(1 * time.Second),
		base.Add(4 * time.Second),
		base.Add(5 * time.Second),
		base.Add(5*time.Second + time.Millisecond),
	}
	src := &scripted{steps: []step{{}, {}, {}, {edge: true}}}

	var mu sync.Mutex
	var codes []string
	tm, p := newTestTimer(t, src, func(d diagnostics.Diagnostic) {
		mu.Lock()
		codes = append(codes, d.Code)
		mu.Unlock()
	})
	i := 0
	tm.now = func() time.Time {
		if i < len(clock) {
			i++
			return clock[i-1]
		}
		return clock[len(clock)-1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tm.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Pulses() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{diagnostics.SensorStale, diagnostics.SensorOK}, codes)
}

func TestNewTimerValidates(t *testing.T) {
	_, err := NewTimer(Config{Slices: 0}, &scripted{}, NewPacing(0, 4), zerolog.Nop(), nil)
	assert.Error(t, err)
	_, err = NewTimer(Config{Slices: 4}, nil, NewPacing(0, 4), zerolog.Nop(), nil)
	assert.Error(t, err)
}
