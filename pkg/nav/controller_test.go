package nav

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/config"
	"github.com/pyroscout/controller/pkg/spatial"
)

// nopLogger discards all log output in tests.
type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

// fakeSender records sent commands.
type fakeSender struct {
	mu        sync.Mutex
	commands  []interface{}
	connected bool
}

func (f *fakeSender) Send(command interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.commands = append(f.commands, command)
	return true
}

func (f *fakeSender) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) sent() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *fakeSender) lastMovement() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.commands) - 1; i >= 0; i-- {
		if cmd, ok := f.commands[i].(bridge.RobotControlCommand); ok && cmd.Action != "set_speed" {
			return cmd.Action, true
		}
	}
	return "", false
}

// fakePerception is a scripted stand-in for the lidar service.
type fakePerception struct {
	hasScan     bool
	scanActive  bool
	best        float64
	scanStarted int
	alerts      chan spatial.Alert
}

func newFakePerception() *fakePerception {
	return &fakePerception{alerts: make(chan spatial.Alert, 16)}
}

func (f *fakePerception) HasScan() bool    { return f.hasScan }
func (f *fakePerception) ScanActive() bool { return f.scanActive }
func (f *fakePerception) StartScan() bool {
	f.scanStarted++
	return true
}
func (f *fakePerception) BestDirection(current float64, resolution int) float64 { return f.best }
func (f *fakePerception) Alerts() <-chan spatial.Alert                          { return f.alerts }

func testNavConfig() config.NavigationConfig {
	return config.NavigationConfig{
		DefaultSpeed:      150,
		AutoStopTimeout:   30,
		ObstacleThreshold: 500,
	}
}

func newTestController() (*Controller, *fakeSender, *fakePerception) {
	sender := &fakeSender{connected: true}
	perception := newFakePerception()
	c := NewController(testNavConfig(), sender, perception, nopLogger{})
	return c, sender, perception
}

func TestInitialState(t *testing.T) {
	c, _, _ := newTestController()
	state := c.Snapshot()
	assert.Equal(t, ModeManual, state.Mode)
	assert.Equal(t, DirectionStop, state.Direction)
	assert.Equal(t, 150, state.Speed)
	assert.False(t, state.IsMoving)
}

func TestMoveUpdatesStateAndSends(t *testing.T) {
	c, sender, _ := newTestController()

	require.True(t, c.Move(DirectionForward))
	state := c.Snapshot()
	assert.Equal(t, DirectionForward, state.Direction)
	assert.True(t, state.IsMoving)

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "forward", action)

	require.True(t, c.Move(DirectionStop))
	assert.False(t, c.Snapshot().IsMoving)
}

func TestMoveRejectedWhenDisconnected(t *testing.T) {
	c, sender, _ := newTestController()
	sender.mu.Lock()
	sender.connected = false
	sender.mu.Unlock()

	require.False(t, c.Move(DirectionForward))
	assert.False(t, c.Snapshot().IsMoving)
}

func TestMoveRejectsInvalidDirection(t *testing.T) {
	c, _, _ := newTestController()
	require.False(t, c.Move(Direction("sideways")))
}

func TestModeSwitchAlwaysStopsFirst(t *testing.T) {
	modes := []Mode{ModeManual, ModeAssisted, ModeAutonomous}
	for _, from := range modes {
		for _, to := range modes {
			if from == to {
				continue
			}
			c, sender, _ := newTestController()
			require.True(t, c.SetMode(from))
			if from != ModeAutonomous {
				require.True(t, c.Move(DirectionForward))
				require.True(t, c.Snapshot().IsMoving)
			}

			require.True(t, c.SetMode(to))
			state := c.Snapshot()
			assert.Equal(t, to, state.Mode)
			assert.False(t, state.IsMoving, "%s -> %s must leave the robot stopped", from, to)

			action, ok := sender.lastMovement()
			require.True(t, ok)
			assert.Equal(t, "stop", action, "%s -> %s must issue a stop", from, to)
		}
	}
}

func TestModeSwitchForcesStopWhenDisconnected(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.Move(DirectionForward))

	sender.mu.Lock()
	sender.connected = false
	sender.mu.Unlock()

	// The stop command cannot be delivered, but the local state still must
	// not carry movement across the mode switch.
	require.True(t, c.SetMode(ModeAssisted))
	state := c.Snapshot()
	assert.Equal(t, ModeAssisted, state.Mode)
	assert.False(t, state.IsMoving)
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	c, _, _ := newTestController()
	require.False(t, c.SetMode(Mode("cruise")))
	assert.Equal(t, ModeManual, c.Snapshot().Mode)
}

func TestSetModeNoOpWhenUnchanged(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.SetMode(ModeManual))
	assert.Empty(t, sender.sent(), "re-entering the current mode must not issue commands")
}

func TestAutonomousEntryStartsScan(t *testing.T) {
	c, _, perception := newTestController()

	require.True(t, c.SetMode(ModeAutonomous))
	assert.Equal(t, 1, perception.scanStarted)

	// Entering again with scanning already active does not re-request.
	require.True(t, c.SetMode(ModeManual))
	perception.scanActive = true
	require.True(t, c.SetMode(ModeAutonomous))
	assert.Equal(t, 1, perception.scanStarted)
}

func TestAutonomousLocksOutDirectMoves(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.SetMode(ModeAutonomous))

	before := len(sender.sent())
	require.False(t, c.Move(DirectionForward))
	assert.Len(t, sender.sent(), before)

	// Stop is always allowed.
	require.True(t, c.Move(DirectionStop))
}

func TestSetSpeed(t *testing.T) {
	c, sender, _ := newTestController()

	require.True(t, c.SetSpeed(200))
	assert.Equal(t, 200, c.Snapshot().Speed)

	sent := sender.sent()
	require.NotEmpty(t, sent)
	cmd, ok := sent[len(sent)-1].(bridge.RobotControlCommand)
	require.True(t, ok)
	assert.Equal(t, "set_speed", cmd.Action)
	require.NotNil(t, cmd.Value)
	assert.Equal(t, 200, *cmd.Value)

	require.False(t, c.SetSpeed(-1))
	require.False(t, c.SetSpeed(256))
	assert.Equal(t, 200, c.Snapshot().Speed)
}

func TestAutoStepDecisionTable(t *testing.T) {
	cases := []struct {
		name string
		best float64
		want string
	}{
		{"straight", 0.1, "forward"},
		{"straight negative", -0.15, "forward"},
		{"soft left", 0.35, "soft_left"},
		{"soft right", -0.35, "soft_right"},
		{"hard left", 1.2, "left"},
		{"hard right", -1.2, "right"},
		{"hard turn behind", 3.0, "left"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, sender, perception := newTestController()
			perception.hasScan = true
			perception.scanActive = true
			require.True(t, c.SetMode(ModeAutonomous))
			perception.best = tc.best

			c.autoStep()

			action, ok := sender.lastMovement()
			require.True(t, ok)
			assert.Equal(t, tc.want, action)
		})
	}
}

func TestAutoStepWrapsHeadingDifference(t *testing.T) {
	c, sender, perception := newTestController()
	perception.hasScan = true
	perception.scanActive = true
	require.True(t, c.SetMode(ModeAutonomous))

	// Target near pi, best near -pi: the wrapped difference is small, so
	// this is straight ahead, not a full turn.
	c.SetAutoTarget(math.Pi - 0.05)
	perception.best = -math.Pi + 0.05

	c.autoStep()

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "forward", action)
}

func TestAutoStepStopsWithoutScanData(t *testing.T) {
	c, sender, perception := newTestController()
	require.True(t, c.SetMode(ModeAutonomous))
	perception.hasScan = false

	c.autoStep()

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "stop", action)
	assert.False(t, c.Snapshot().IsMoving)
}

func TestWatchdogStopsStaleMovement(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.Move(DirectionForward))

	c.mu.Lock()
	c.lastCommandAt = time.Now().Add(-31 * time.Second)
	c.mu.Unlock()

	c.checkAutoStop()

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "stop", action)
	assert.False(t, c.Snapshot().IsMoving)
}

func TestWatchdogLeavesFreshMovementAlone(t *testing.T) {
	c, _, _ := newTestController()
	require.True(t, c.Move(DirectionForward))

	c.checkAutoStop()
	assert.True(t, c.Snapshot().IsMoving)
}

func TestAssistedStopsWhenVeryClose(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.SetMode(ModeAssisted))
	require.True(t, c.Move(DirectionForward))

	// Below half the obstacle threshold.
	c.handleAlert(spatial.Alert{Angle: 0.1, Distance: 200})

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "stop", action)
	assert.False(t, c.Snapshot().IsMoving)
}

func TestAssistedSteersAwayFromFrontalObstacle(t *testing.T) {
	cases := []struct {
		angle float64
		want  string
	}{
		{0.2, "soft_right"}, // obstacle to the left, steer right
		{-0.2, "soft_left"}, // obstacle to the right, steer left
	}
	for _, tc := range cases {
		c, sender, _ := newTestController()
		require.True(t, c.SetMode(ModeAssisted))
		require.True(t, c.Move(DirectionForward))

		c.handleAlert(spatial.Alert{Angle: tc.angle, Distance: 400})

		action, ok := sender.lastMovement()
		require.True(t, ok)
		assert.Equal(t, tc.want, action)
	}
}

func TestAssistedIgnoresAlertWhenStopped(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.SetMode(ModeAssisted))

	before := len(sender.sent())
	c.handleAlert(spatial.Alert{Angle: 0, Distance: 100})
	assert.Len(t, sender.sent(), before)
}

func TestManualModeIgnoresAlertOverride(t *testing.T) {
	c, _, _ := newTestController()
	require.True(t, c.Move(DirectionForward))

	c.handleAlert(spatial.Alert{Angle: 0, Distance: 100})
	state := c.Snapshot()
	assert.True(t, state.IsMoving)
	assert.Equal(t, DirectionForward, state.Direction)
}

func TestAlertSideClassification(t *testing.T) {
	c, _, _ := newTestController()

	var mu sync.Mutex
	var events []ObstacleEvent
	c.OnObstacle(func(ev ObstacleEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	c.handleAlert(spatial.Alert{Angle: 0.1, Distance: 400})
	c.handleAlert(spatial.Alert{Angle: 1.0, Distance: 400})
	c.handleAlert(spatial.Alert{Angle: -1.0, Distance: 400})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, "front", events[0].Side)
	assert.Equal(t, "left", events[1].Side)
	assert.Equal(t, "right", events[2].Side)
}

func TestStatusEventsOnModeChange(t *testing.T) {
	c, _, _ := newTestController()

	var mu sync.Mutex
	var events []StatusEvent
	c.OnStatus(func(ev StatusEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.True(t, c.SetMode(ModeAssisted))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, ModeAssisted, last.Mode)
	assert.Equal(t, ModeManual, last.PreviousMode)
	assert.False(t, last.IsMoving)
}

func TestRunLoopReactsToAlerts(t *testing.T) {
	c, sender, perception := newTestController()
	require.True(t, c.SetMode(ModeAssisted))
	require.True(t, c.Move(DirectionForward))

	c.Start()
	defer c.Shutdown()

	perception.alerts <- spatial.Alert{Angle: 0, Distance: 100}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !c.Snapshot().IsMoving {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, c.Snapshot().IsMoving)

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "stop", action)
}

func TestShutdownIssuesFinalStop(t *testing.T) {
	c, sender, _ := newTestController()
	require.True(t, c.Move(DirectionForward))

	c.Start()
	c.Shutdown()

	action, ok := sender.lastMovement()
	require.True(t, ok)
	assert.Equal(t, "stop", action)
}

func TestParseHelpers(t *testing.T) {
	for _, s := range []string{"manual", "assisted", "autonomous"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.True(t, m.Valid())
	}
	_, err := ParseMode("turbo")
	require.Error(t, err)

	for _, s := range []string{"stop", "forward", "backward", "left", "right", "soft_left", "soft_right"} {
		d, err := ParseDirection(s)
		require.NoError(t, err)
		assert.True(t, d.Valid())
	}
	_, err = ParseDirection("up")
	require.Error(t, err)
}
