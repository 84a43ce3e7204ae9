package looper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type LooperTestSuite struct {
	suite.Suite

	clock  *clockwork.FakeClock
	looper *Looper
}

func (s *LooperTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	s.clock = clockwork.NewFakeClock()
	s.looper = New("test-looper", s.clock, logger)
	s.Require().NoError(s.looper.Start(context.Background()), "looper MUST start")
}

func (s *LooperTestSuite) TearDownTest() {
	s.looper.Stop()
}

// sync waits until everything posted so far has run.
func (s *LooperTestSuite) sync() {
	s.Require().NoError(s.looper.Invoke(context.Background(), func() {}))
}

func (s *LooperTestSuite) TestPost_RunsInArrivalOrder() {
	// GOAL: Verify callbacks run one at a time in the order they were posted
	//
	// TEST SCENARIO: Post 100 callbacks from one goroutine → recorded order is 0..99

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		s.True(s.looper.Post(func() { got = append(got, i) }))
	}
	s.sync()

	s.Len(got, 100)
	for i, v := range got {
		s.Equal(i, v, "callback order MUST match post order")
	}
}

func (s *LooperTestSuite) TestPost_NeverInline() {
	// GOAL: Verify a callback posted from the home goroutine runs after the current one returns

	var order []string
	s.Require().NoError(s.looper.Invoke(context.Background(), func() {
		s.looper.Post(func() { order = append(order, "posted") })
		order = append(order, "current")
	}))
	s.sync()

	s.Equal([]string{"current", "posted"}, order)
}

func (s *LooperTestSuite) TestPost_NoConcurrentCallbacks() {
	// GOAL: Verify callbacks posted from many goroutines never overlap

	var (
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.looper.Post(func() {
					active++
					if active > maxSeen {
						maxSeen = active
					}
					active--
				})
			}
		}()
	}
	wg.Wait()
	s.sync()

	s.Equal(1, maxSeen, "at most one callback MUST run at a time")
	s.GreaterOrEqual(s.looper.GetStats().Processed, int64(400))
}

func (s *LooperTestSuite) TestPostDelayed_FiresAfterDelay() {
	fired := make(chan struct{}, 1)
	s.looper.PostDelayed(8*time.Second, func() { fired <- struct{}{} })

	s.clock.BlockUntil(1)
	s.clock.Advance(7 * time.Second)
	s.sync()
	s.Empty(fired, "timer MUST NOT fire early")

	s.clock.Advance(time.Second)
	s.Eventually(func() bool { return len(fired) == 1 }, time.Second, 5*time.Millisecond, "timer MUST fire at the deadline")
}

func (s *LooperTestSuite) TestPostDelayed_Cancel() {
	// GOAL: Verify a canceled timer never runs, even if its fire was already queued
	//
	// TEST SCENARIO: Fire queued behind a blocker → cancel from the blocker → callback skipped

	ran := false
	started := make(chan struct{})
	release := make(chan struct{})

	timer := s.looper.PostDelayed(time.Second, func() { ran = true })
	s.looper.Post(func() {
		close(started)
		<-release
		timer.Cancel()
	})
	<-started

	s.clock.Advance(time.Second)
	s.Eventually(func() bool { return s.looper.GetStats().Pending >= 1 }, time.Second, time.Millisecond,
		"fire MUST be queued behind the blocker")

	close(release)
	s.sync()

	s.True(timer.Canceled())
	s.False(ran, "canceled timer MUST NOT run")
}

func (s *LooperTestSuite) TestPanicIsContained() {
	s.looper.Post(func() { panic("boom") })
	s.sync()

	s.Equal(int64(1), s.looper.GetStats().Panics, "panic MUST be counted")
	s.True(s.looper.Post(func() {}), "looper MUST keep running after a panic")
}

func (s *LooperTestSuite) TestStop_Idempotent() {
	s.looper.Stop()
	s.looper.Stop()

	s.False(s.looper.Post(func() {}), "post after stop MUST be rejected")
	s.ErrorIs(s.looper.Invoke(context.Background(), func() {}), ErrStopped)

	select {
	case <-s.looper.Done():
	default:
		s.Fail("Done MUST be closed after Stop")
	}
}

func (s *LooperTestSuite) TestStart_Twice() {
	s.Error(s.looper.Start(context.Background()), "second start MUST fail")
}

func (s *LooperTestSuite) TestInvoke_ContextCanceled() {
	release := make(chan struct{})
	s.looper.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s.ErrorIs(s.looper.Invoke(ctx, func() {}), context.DeadlineExceeded)
}

func TestLooperTestSuite(t *testing.T) {
	suite.Run(t, new(LooperTestSuite))
}

func TestLooper_StopsWithContext(t *testing.T) {
	l := New("ctx-looper", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("looper MUST exit when its context is canceled")
	}
	if l.Post(func() {}) {
		t.Error("post after context exit MUST be rejected")
	}
	l.Stop()
}
