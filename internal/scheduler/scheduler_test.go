package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"datasync/internal/testutil"

	"github.com/stretchr/testify/assert"
)

type counter struct {
	n atomic.Int32
}

func (c *counter) tick(ctx context.Context) {
	c.n.Add(1)
}

func TestStartNonPositiveStaysStopped(t *testing.T) {
	var c counter
	s := New(c.tick, nil, WithUnit(time.Millisecond))

	s.Start(0)
	assert.Equal(t, State{}, s.State())
	s.Start(-3)
	assert.False(t, s.State().Running)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.n.Load())
}

func TestTicksFire(t *testing.T) {
	var c counter
	s := New(c.tick, nil, WithUnit(5*time.Millisecond))
	s.Start(1)
	defer s.Stop()

	assert.Equal(t, State{Running: true, Interval: 1}, s.State())
	testutil.NewTestHelper(t).WaitFor(func() bool { return c.n.Load() >= 2 }, time.Second, "ticks did not fire")
}

func TestStopIsIdempotentAndHalts(t *testing.T) {
	var c counter
	s := New(c.tick, nil, WithUnit(5*time.Millisecond))
	s.Start(1)
	testutil.NewTestHelper(t).WaitFor(func() bool { return c.n.Load() >= 1 }, time.Second, "first tick")

	s.Stop()
	s.Stop()
	assert.False(t, s.State().Running)

	// Allow a tick that raced with Stop to land.
	time.Sleep(10 * time.Millisecond)
	after := c.n.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, c.n.Load())
}

func TestRestartKeepsOneTimer(t *testing.T) {
	var c counter
	s := New(c.tick, nil, WithUnit(20*time.Millisecond))
	s.Start(1)
	s.Start(1)
	s.Start(1)
	defer s.Stop()

	time.Sleep(70 * time.Millisecond)
	// One timer yields about three ticks; three live timers would give about nine.
	assert.LessOrEqual(t, c.n.Load(), int32(5))
	assert.GreaterOrEqual(t, c.n.Load(), int32(1))
}

func TestTicksNeverOverlap(t *testing.T) {
	var running, overlap atomic.Int32
	var c counter
	tick := func(ctx context.Context) {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		c.tick(ctx)
		time.Sleep(25 * time.Millisecond)
		running.Add(-1)
	}
	s := New(tick, nil, WithUnit(5*time.Millisecond))
	s.Start(1)
	time.Sleep(80 * time.Millisecond)
	s.Stop()

	assert.Zero(t, overlap.Load())
	assert.LessOrEqual(t, c.n.Load(), int32(5))
}

func TestTickContextOutlivesStop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, 1)

	var once atomic.Bool
	tick := func(ctx context.Context) {
		if !once.CompareAndSwap(false, true) {
			return
		}
		close(started)
		<-release
		errs <- ctx.Err()
	}
	s := New(tick, nil, WithUnit(5*time.Millisecond))
	s.Start(1)

	<-started
	s.Stop()
	close(release)
	assert.NoError(t, <-errs)
}

func TestStartOverflowingIntervalStaysStopped(t *testing.T) {
	var c counter
	s := New(c.tick, nil)

	assert.NotPanics(t, func() { s.Start(153722868) })
	assert.Equal(t, State{}, s.State())

	s.Start(1)
	defer s.Stop()
	assert.True(t, s.State().Running)
}
