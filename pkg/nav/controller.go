package nav

import (
	"math"
	"sync"
	"time"

	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
	"github.com/pyroscout/controller/pkg/spatial"
)

const (
	// autoStepPeriod is the autonomous decision cycle, 5 Hz.
	autoStepPeriod = 200 * time.Millisecond

	// watchdogPeriod is how often the auto-stop watchdog runs.
	watchdogPeriod = time.Second

	// Heading difference bands of the autonomous decision table, radians.
	headingStraight = 0.2
	headingSoftTurn = 0.5

	// frontalCone is the angular window treated as a frontal obstacle by
	// the assisted handler.
	frontalCone = 0.5
)

// CommandSender issues commands to the bridge device.
type CommandSender interface {
	Send(command interface{}) bool
	Connected() bool
}

// Perception is the spatial interface the controller consults; implemented
// by the lidar service.
type Perception interface {
	HasScan() bool
	ScanActive() bool
	StartScan() bool
	BestDirection(current float64, resolution int) float64
	Alerts() <-chan spatial.Alert
}

// Controller is the movement state machine. It fuses the transport and the
// perception layer into movement decisions, with safety overrides: every
// mode switch stops the robot first, autonomous mode locks out direct
// moves, a watchdog stops a robot that received no command for too long,
// and the assisted mode steers away from close obstacles.
//
// The periodic behaviors run on a single goroutine; the controller only
// ever invokes non-blocking send/query operations from it.
type Controller struct {
	cfg    config.NavigationConfig
	sender CommandSender
	lidar  Perception
	logger customlog.Logger

	mu            sync.Mutex
	mode          Mode
	direction     Direction
	speed         int
	isMoving      bool
	lastCommandAt time.Time
	autoTarget    float64 // radians
	statusSubs    []func(StatusEvent)
	obstacleSubs  []func(ObstacleEvent)

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewController creates the motion controller in manual mode.
func NewController(cfg config.NavigationConfig, sender CommandSender, lidar Perception, logger customlog.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		sender:    sender,
		lidar:     lidar,
		logger:    logger,
		mode:      ModeManual,
		direction: DirectionStop,
		speed:     cfg.DefaultSpeed,
	}
}

// OnStatus registers a subscriber for navigation status events.
func (c *Controller) OnStatus(f func(StatusEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusSubs = append(c.statusSubs, f)
}

// OnObstacle registers a subscriber for obstacle alerts seen by the
// controller.
func (c *Controller) OnObstacle(f func(ObstacleEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obstacleSubs = append(c.obstacleSubs, f)
}

// Start launches the control loop: autonomous stepping, the auto-stop
// watchdog and obstacle alert handling.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return
	}
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(stop)
	c.logger.Infof("Motion controller started")
}

// Shutdown issues a final stop command and halts the control loop.
func (c *Controller) Shutdown() {
	c.Move(DirectionStop)

	c.mu.Lock()
	if c.stop == nil {
		c.mu.Unlock()
		return
	}
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Infof("Motion controller stopped")
}

// Snapshot returns a copy of the current navigation state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Mode:       c.mode,
		Direction:  c.direction,
		Speed:      c.speed,
		IsMoving:   c.isMoving,
		AutoTarget: c.autoTarget,
	}
}

// Mode returns the current control mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the control mode. The robot is always stopped before the
// mode value changes; entering autonomous mode ensures scanning is active.
// A no-op when already in the requested mode.
func (c *Controller) SetMode(mode Mode) bool {
	if !mode.Valid() {
		c.logger.Errorf("Invalid navigation mode: %q", mode)
		return false
	}

	c.mu.Lock()
	if mode == c.mode {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	// Safety: stop before the mode value changes. The stop state is forced
	// locally even when the link is down and the command cannot be sent.
	c.Move(DirectionStop)
	c.mu.Lock()
	c.direction = DirectionStop
	c.isMoving = false
	previous := c.mode
	c.mode = mode
	speed := c.speed
	c.mu.Unlock()

	if mode == ModeAutonomous {
		if !c.lidar.ScanActive() {
			c.lidar.StartScan()
		}
		c.logger.Infof("Autonomous navigation enabled")
	}

	c.logger.Infof("Navigation mode changed from %s to %s", previous, mode)
	c.notifyStatus(StatusEvent{
		Mode:         mode,
		PreviousMode: previous,
		Speed:        speed,
		IsMoving:     false,
	})
	return true
}

// Move commands the robot in the given direction. Rejected in autonomous
// mode for anything but stop, and whenever the transport is disconnected.
func (c *Controller) Move(direction Direction) bool {
	if !direction.Valid() {
		c.logger.Errorf("Invalid direction: %q", direction)
		return false
	}

	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	if mode == ModeAutonomous && direction != DirectionStop {
		c.logger.Warnf("Direct moves are locked out in autonomous mode")
		return false
	}
	if !c.sender.Connected() {
		c.logger.Errorf("Cannot move: not connected")
		return false
	}

	c.mu.Lock()
	c.direction = direction
	if direction == DirectionStop {
		c.isMoving = false
	} else {
		c.isMoving = true
		c.lastCommandAt = time.Now()
	}
	ev := StatusEvent{
		Mode:      c.mode,
		Direction: direction,
		Speed:     c.speed,
		IsMoving:  c.isMoving,
	}
	c.mu.Unlock()

	ok := c.sender.Send(bridge.NewMovementCommand(string(direction)))
	if ok {
		c.logger.Infof("Movement %s sent", direction)
		c.notifyStatus(ev)
	} else {
		c.logger.Errorf("Error sending movement command %s", direction)
	}
	return ok
}

// SetSpeed updates the speed setting, valid range [0, 255], and forwards it
// to the bridge when connected.
func (c *Controller) SetSpeed(value int) bool {
	if value < 0 || value > 255 {
		c.logger.Errorf("Invalid speed: %d", value)
		return false
	}

	c.mu.Lock()
	c.speed = value
	c.mu.Unlock()

	if c.sender.Connected() {
		c.sender.Send(bridge.NewSpeedCommand(value))
		c.logger.Infof("Speed changed to %d", value)
	}
	return true
}

// SetAutoTarget sets the target heading for autonomous navigation.
func (c *Controller) SetAutoTarget(rad float64) {
	c.mu.Lock()
	c.autoTarget = rad
	c.mu.Unlock()
	c.logger.Debugf("Autonomous target heading set to %.2f rad", rad)
}

func (c *Controller) run(stop chan struct{}) {
	defer c.wg.Done()

	autoTick := time.NewTicker(autoStepPeriod)
	defer autoTick.Stop()
	watchdog := time.NewTicker(watchdogPeriod)
	defer watchdog.Stop()

	for {
		select {
		case <-stop:
			return
		case <-autoTick.C:
			if c.Mode() == ModeAutonomous {
				c.autoStep()
			}
		case <-watchdog.C:
			c.checkAutoStop()
		case alert := <-c.lidar.Alerts():
			c.handleAlert(alert)
		}
	}
}

// autoStep executes one autonomous decision cycle: find the safest heading
// near the target and translate the heading difference into a movement.
func (c *Controller) autoStep() {
	if !c.lidar.HasScan() {
		c.logger.Warnf("No lidar data available, stopping robot")
		c.Move(DirectionStop)
		return
	}

	c.mu.Lock()
	target := c.autoTarget
	c.mu.Unlock()

	best := c.lidar.BestDirection(target, 16)
	diff := wrapAngle(best - target)

	var direction Direction
	switch {
	case math.Abs(diff) < headingStraight:
		direction = DirectionForward
	case math.Abs(diff) < headingSoftTurn:
		if diff > 0 {
			direction = DirectionSoftLeft
		} else {
			direction = DirectionSoftRight
		}
	default:
		if diff > 0 {
			direction = DirectionLeft
		} else {
			direction = DirectionRight
		}
	}

	c.moveAutonomous(direction)
	c.logger.Debugf("Autonomous step: best=%.2f diff=%.2f move=%s", best, diff, direction)
}

// moveAutonomous issues a movement decided by the autonomous stepper,
// bypassing the direct-move lockout.
func (c *Controller) moveAutonomous(direction Direction) bool {
	if !c.sender.Connected() {
		return false
	}

	c.mu.Lock()
	c.direction = direction
	if direction == DirectionStop {
		c.isMoving = false
	} else {
		c.isMoving = true
		c.lastCommandAt = time.Now()
	}
	ev := StatusEvent{
		Mode:      c.mode,
		Direction: direction,
		Speed:     c.speed,
		IsMoving:  c.isMoving,
	}
	c.mu.Unlock()

	ok := c.sender.Send(bridge.NewMovementCommand(string(direction)))
	if ok {
		c.notifyStatus(ev)
	}
	return ok
}

// handleAlert reacts to a proximity alert. In assisted mode while moving,
// a very close obstacle stops the robot; a frontal one while driving
// forward steers away from the obstacle's side.
func (c *Controller) handleAlert(alert spatial.Alert) {
	side := "front"
	if alert.Angle > frontalCone {
		side = "left"
	} else if alert.Angle < -frontalCone {
		side = "right"
	}
	c.notifyObstacle(ObstacleEvent{Side: side, Angle: alert.Angle, Distance: alert.Distance})

	c.mu.Lock()
	mode := c.mode
	moving := c.isMoving
	direction := c.direction
	c.mu.Unlock()

	if mode != ModeAssisted || !moving {
		return
	}

	if alert.Distance < c.cfg.ObstacleThreshold/2 {
		c.logger.Warnf("Obstacle very close (%.0f mm), stopping robot", alert.Distance)
		c.Move(DirectionStop)
		return
	}
	if direction == DirectionForward && math.Abs(alert.Angle) < frontalCone {
		if alert.Angle > 0 {
			c.logger.Infof("Frontal obstacle (%.0f mm), steering right", alert.Distance)
			c.Move(DirectionSoftRight)
		} else {
			c.logger.Infof("Frontal obstacle (%.0f mm), steering left", alert.Distance)
			c.Move(DirectionSoftLeft)
		}
	}
}

// checkAutoStop stops the robot when it has been moving without a fresh
// command for longer than the auto-stop timeout.
func (c *Controller) checkAutoStop() {
	c.mu.Lock()
	moving := c.isMoving
	last := c.lastCommandAt
	c.mu.Unlock()

	if !moving {
		return
	}
	if time.Since(last) > c.cfg.AutoStopTimeoutDuration() {
		c.logger.Warnf("Auto-stop after %.0fs of inactivity", c.cfg.AutoStopTimeout)
		c.Move(DirectionStop)
	}
}

func (c *Controller) notifyStatus(ev StatusEvent) {
	c.mu.Lock()
	subs := make([]func(StatusEvent), len(c.statusSubs))
	copy(subs, c.statusSubs)
	c.mu.Unlock()

	for _, f := range subs {
		f(ev)
	}
}

func (c *Controller) notifyObstacle(ev ObstacleEvent) {
	c.mu.Lock()
	subs := make([]func(ObstacleEvent), len(c.obstacleSubs))
	copy(subs, c.obstacleSubs)
	c.mu.Unlock()

	for _, f := range subs {
		f(ev)
	}
}

// wrapAngle normalizes an angle difference into [-pi, pi).
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
