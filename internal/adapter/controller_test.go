package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/tracktag/internal/looper"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/sim"
	"github.com/srg/tracktag/internal/policy"
)

type ControllerTestSuite struct {
	suite.Suite

	looper     *looper.Looper
	sim        *sim.Platform
	controller *Controller
	answers    []bool
}

func (s *ControllerTestSuite) setup(version policy.Version, present, enabled bool) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if s.looper != nil {
		s.looper.Stop()
	}
	clock := clockwork.NewFakeClock()
	s.looper = looper.New("adapter-test", clock, logger)
	s.Require().NoError(s.looper.Start(context.Background()))

	cfg := sim.DefaultConfig()
	cfg.Version = version
	cfg.AdapterPresent = present
	cfg.AdapterEnabled = enabled
	s.sim = sim.New(cfg, clock, logger)
	s.controller = NewController(policy.For(version), s.sim.Adapter(), s.looper, logger)
	s.answers = nil
}

func (s *ControllerTestSuite) SetupTest() {
	s.setup(34, true, false)
}

func (s *ControllerTestSuite) TearDownTest() {
	s.looper.Stop()
}

func (s *ControllerTestSuite) onHome(fn func()) {
	s.Require().NoError(s.looper.Invoke(context.Background(), fn))
}

func (s *ControllerTestSuite) record(enabled bool) {
	s.answers = append(s.answers, enabled)
}

func (s *ControllerTestSuite) enable() (EnableResult, error) {
	var (
		res EnableResult
		err error
	)
	s.onHome(func() { res, err = s.controller.Enable(s.record) })
	return res, err
}

func (s *ControllerTestSuite) TestEnable_AlreadyEnabled() {
	// GOAL: Verify an enabled adapter never launches a prompt
	for _, v := range []policy.Version{21, 30, 31, 34} {
		s.setup(v, true, true)

		res, err := s.enable()
		s.NoError(err)
		s.Equal(EnableCompleted, res, "enabled adapter MUST complete synchronously (version %d)", v)
		s.Equal(0, s.sim.SimAdapter().PromptsShown(), "enabled adapter MUST NOT prompt (version %d)", v)
		s.Equal(0, s.sim.SimAdapter().EnableNowCalls())
	}
}

func (s *ControllerTestSuite) TestEnable_LegacyIsSynchronous() {
	// GOAL: Verify legacy versions enable in-process without any asynchronous event
	//
	// TEST SCENARIO: version 30, adapter off → Enable → Completed, IsEnabled true, no callback

	s.setup(30, true, false)

	res, err := s.enable()
	s.Require().NoError(err)
	s.Equal(EnableCompleted, res)
	s.onHome(func() { s.True(s.controller.IsEnabled(), "adapter MUST be on when Enable returns") })

	s.Equal(0, s.sim.SimAdapter().PromptsShown())
	s.Empty(s.answers, "legacy path MUST NOT deliver an asynchronous answer")
}

func (s *ControllerTestSuite) TestEnable_InteractiveIsSubmitted() {
	// GOAL: Verify the interactive path acknowledges immediately and answers exactly once
	//
	// TEST SCENARIO: version 34, adapter off → Submitted → user confirms → one answer

	res, err := s.enable()
	s.Require().NoError(err)
	s.Equal(EnableSubmitted, res)
	s.onHome(func() {
		s.True(s.controller.Awaiting())
		s.False(s.controller.IsEnabled(), "submitted MUST NOT imply enabled")
	})
	s.Empty(s.answers)

	s.sim.SimAdapter().ResolveEnable(true)
	s.onHome(func() {})

	s.Equal([]bool{true}, s.answers, "answer MUST arrive exactly once")
	s.onHome(func() { s.True(s.controller.IsEnabled()) })
}

func (s *ControllerTestSuite) TestEnable_InteractiveDeclined() {
	_, err := s.enable()
	s.Require().NoError(err)

	s.sim.SimAdapter().ResolveEnable(false)
	s.onHome(func() {})

	s.Equal([]bool{false}, s.answers)
	s.onHome(func() { s.False(s.controller.IsEnabled()) })
}

func (s *ControllerTestSuite) TestEnable_SecondPromptSupersedesFirst() {
	_, err := s.enable()
	s.Require().NoError(err)
	_, err = s.enable()
	s.Require().NoError(err)

	s.Equal(2, s.sim.SimAdapter().ResolveEnable(true))
	s.onHome(func() {})

	s.Equal([]bool{true}, s.answers, "only the newest prompt MUST be answered")
}

func (s *ControllerTestSuite) TestAbandon_DropsAnswer() {
	_, err := s.enable()
	s.Require().NoError(err)
	s.onHome(s.controller.Abandon)

	s.sim.SimAdapter().ResolveEnable(true)
	s.onHome(func() {})
	s.Empty(s.answers)
}

func (s *ControllerTestSuite) TestEnable_Absent() {
	s.setup(34, false, false)

	s.Equal(Absent, s.controller.Presence())
	_, err := s.enable()
	s.ErrorIs(err, platform.ErrAdapterAbsent, "absent adapter MUST fail immediately")
	s.Equal(0, s.sim.SimAdapter().PromptsShown())
}

func (s *ControllerTestSuite) TestState() {
	st, err := s.controller.State()
	s.NoError(err)
	s.Equal(StateDisabled, st)

	s.sim.SimAdapter().SetEnabled(true)
	st, err = s.controller.State()
	s.NoError(err)
	s.Equal(StateEnabled, st)

	s.sim.SimAdapter().FailQueries(errors.New("hci0: not powered"))
	st, err = s.controller.State()
	s.NoError(err, "known backend errors MUST be normalized")
	s.Equal(StateDisabled, st)

	boom := errors.New("dbus: connection closed")
	s.sim.SimAdapter().FailQueries(boom)
	_, err = s.controller.State()
	s.ErrorIs(err, boom)
	s.False(s.controller.IsEnabled(), "failed query MUST count as disabled")
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}
