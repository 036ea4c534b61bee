package drive

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	viamutils "go.viam.com/utils"

	"swddrive/smc"
)

const (
	safetyPollInterval = 200 * time.Millisecond
	powerPollInterval  = time.Second
	closeGraceTimeout  = 2 * time.Second
)

// ErrWrongControlMode is returned by a command ingress that the configured
// control mode does not accept.
var ErrWrongControlMode = errors.New("command rejected by control mode")

// Controller owns the two wheel drives. All mutable control state lives in a
// single loop goroutine; commands and brake requests enter through channels,
// telemetry leaves through mutex-guarded snapshots.
type Controller struct {
	logger logging.Logger
	cfg    *Config
	clk    clock.Clock

	left  smc.Controller
	right smc.Controller

	kin      *KinematicModel
	integ    *Integrator
	watchdog *commandWatchdog
	safety   *safetyMonitor
	power    *powerSupervisor

	cmdCh   chan WheelSpeeds
	brakeCh chan bool

	odomTicker   *clock.Ticker
	safetyTicker *clock.Ticker
	powerTicker  *clock.Ticker

	mu          sync.RWMutex
	pose        Pose2D
	twist       TwistEstimate
	safetyState SafetyState
	powerState  PowerState
	moving      bool

	cancel    func()
	workers   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and starts the control loop. Both drives must already be
// initialized.
func New(ctx context.Context, cfg *Config, left, right smc.Controller, logger logging.Logger) (*Controller, error) {
	return newWithClock(ctx, cfg, left, right, logger, clock.New())
}

func newWithClock(
	ctx context.Context,
	cfg *Config,
	left, right smc.Controller,
	logger logging.Logger,
	clk clock.Clock,
) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		logger:   logger,
		cfg:      cfg,
		clk:      clk,
		left:     left,
		right:    right,
		kin:      NewKinematicModel(cfg),
		integ:    NewIntegrator(cfg, logger),
		watchdog: newCommandWatchdog(clk, cfg.WatchdogTimeout),
		safety:   newSafetyMonitor(logger, left, right, cfg.RefWheel),
		power:    newPowerSupervisor(logger, left, right),
		cmdCh:    make(chan WheelSpeeds, 1),
		brakeCh:  make(chan bool, 1),

		odomTicker:   clk.Ticker(time.Second / time.Duration(cfg.PublishFreqHz)),
		safetyTicker: clk.Ticker(safetyPollInterval),
		powerTicker:  clk.Ticker(powerPollInterval),
	}

	// Prime odometry from the counters' power-on values so the first tick
	// does not integrate a phantom displacement.
	leftMm, errL := left.PositionValue(ctx)
	rightMm, errR := right.PositionValue(ctx)
	if errL != nil || errR != nil {
		logger.Warnw("initial position read failed, odometry primes on first tick",
			"left_error", errL, "right_error", errR)
	} else {
		c.integ.Prime(leftMm, rightMm, clk.Now())
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.workers.Add(1)
	viamutils.ManagedGo(func() {
		c.run(cancelCtx)
	}, c.workers.Done)

	logger.Infow("drive controller started",
		"control_mode", cfg.ControlMode,
		"ref_wheel", cfg.RefWheel,
		"pub_freq_hz", cfg.PublishFreqHz,
		"watchdog", cfg.WatchdogTimeout)
	return c, nil
}

// run is the single loop that owns all control state.
func (c *Controller) run(ctx context.Context) {
	defer c.odomTicker.Stop()
	defer c.safetyTicker.Stop()
	defer c.powerTicker.Stop()
	defer c.watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case speeds := <-c.cmdCh:
			c.watchdog.Feed()
			c.dispatchSpeeds(ctx, speeds)
		case halt := <-c.brakeCh:
			c.applyBrake(ctx, halt)
		case <-c.watchdog.Expired():
			c.logger.Warnw("command stream timed out, forcing stop",
				"timeout", c.cfg.WatchdogTimeout)
			c.dispatchSpeeds(ctx, WheelSpeeds{})
			c.watchdog.Rearm()
		case <-c.odomTicker.C:
			c.odomTick(ctx)
		case <-c.safetyTicker.C:
			c.safetyTick(ctx)
		case <-c.powerTicker.C:
			c.powerTick(ctx)
		}
	}
}

// dispatchSpeeds converts wheel speeds to motor setpoints, applies the speed
// ceilings and writes both drives. A left-side failure aborts the call
// before the right wheel is touched, so the pair is never half-updated; the
// watchdog's periodic zeroing bounds the stale-setpoint exposure.
func (c *Controller) dispatchSpeeds(ctx context.Context, speeds WheelSpeeds) {
	leftRPM, rightRPM := c.kin.motorRPMs(speeds)

	c.mu.RLock()
	sls := c.safetyState.SafetyLimitedSpeed
	c.mu.RUnlock()
	leftRPM = c.clampRPM(leftRPM, sls)
	rightRPM = c.clampRPM(rightRPM, sls)

	if err := c.left.SetTargetVelocity(ctx, leftRPM); err != nil {
		c.logger.Errorw("left setpoint dispatch failed, right not attempted",
			"left_rpm", leftRPM, "right_rpm", rightRPM, "error", err)
		return
	}
	if err := c.right.SetTargetVelocity(ctx, rightRPM); err != nil {
		c.logger.Errorw("right setpoint dispatch failed",
			"right_rpm", rightRPM, "error", err)
		return
	}

	c.mu.Lock()
	c.moving = leftRPM != 0 || rightRPM != 0
	c.mu.Unlock()
}

// clampRPM applies the safety-limited-speed ceiling and the absolute speed
// ceiling to one motor setpoint.
func (c *Controller) clampRPM(rpm int32, sls bool) int32 {
	if sls && c.cfg.SafetyLimitedSpeedRPM > 0 {
		limit := c.cfg.SafetyLimitedSpeedRPM
		switch {
		case rpm > limit:
			rpm = limit
		case rpm < 0 && !c.cfg.HaveBackwardSLS:
			// Without a backward limited-speed function the drive
			// cannot guarantee a safe reverse ceiling.
			rpm = 0
		case rpm < -limit:
			rpm = -limit
		}
	}
	if max := c.cfg.MaxSpeedRPM; max > 0 {
		if rpm > max {
			rpm = max
		} else if rpm < -max {
			rpm = -max
		}
	}
	return rpm
}

func (c *Controller) applyBrake(ctx context.Context, halt bool) {
	errL := c.left.SetHalt(ctx, halt)
	errR := c.right.SetHalt(ctx, halt)
	if errL != nil || errR != nil {
		c.logger.Errorw("brake request failed",
			"halt", halt, "left_error", errL, "right_error", errR)
		return
	}
	c.logger.Infow("brake state changed", "halt", halt)
}

func (c *Controller) odomTick(ctx context.Context) {
	leftMm, errL := c.left.PositionValue(ctx)
	rightMm, errR := c.right.PositionValue(ctx)
	if errL != nil || errR != nil {
		c.logger.Warnw("position read failed, skipping odometry step",
			"left_error", errL, "right_error", errR)
		return
	}
	pose, twist := c.integ.Tick(leftMm, rightMm, c.clk.Now())

	c.mu.Lock()
	c.pose = pose
	c.twist = twist
	c.mu.Unlock()
}

func (c *Controller) safetyTick(ctx context.Context) {
	next := c.safety.poll(ctx)

	c.mu.Lock()
	prev := c.safetyState
	c.safetyState = next
	c.mu.Unlock()

	if next.SafeTorqueOff && !prev.SafeTorqueOff {
		c.logger.Warnw("safe torque off asserted")
	}
}

func (c *Controller) powerTick(ctx context.Context) {
	state := c.power.tick(ctx)

	c.mu.Lock()
	c.powerState = state
	c.mu.Unlock()
}

// SubmitTwist queues a robot-frame velocity command. Only accepted in twist
// control mode.
func (c *Controller) SubmitTwist(t Twist) error {
	if c.cfg.ControlMode != ControlModeTwist {
		return errors.Wrapf(ErrWrongControlMode, "mode is %v", c.cfg.ControlMode)
	}
	c.submit(c.kin.WheelSpeedsFromTwist(t))
	return nil
}

// SubmitWheelSpeeds queues a per-wheel speed command. Only accepted in
// left/right speeds control mode.
func (c *Controller) SubmitWheelSpeeds(s WheelSpeeds) error {
	if c.cfg.ControlMode != ControlModeLeftRightSpeeds {
		return errors.Wrapf(ErrWrongControlMode, "mode is %v", c.cfg.ControlMode)
	}
	c.submit(s)
	return nil
}

// submit replaces any not-yet-dispatched command: the newest command wins.
func (c *Controller) submit(s WheelSpeeds) {
	for {
		select {
		case c.cmdCh <- s:
			return
		default:
		}
		select {
		case <-c.cmdCh:
		default:
		}
	}
}

// SubmitBrake queues a parking-brake request. Brake requests bypass the
// control mode gate and the watchdog.
func (c *Controller) SubmitBrake(halt bool) {
	for {
		select {
		case c.brakeCh <- halt:
			return
		default:
		}
		select {
		case <-c.brakeCh:
		default:
		}
	}
}

// PoseSnapshot returns the latest dead-reckoned pose and velocity estimate.
func (c *Controller) PoseSnapshot() (Pose2D, TwistEstimate) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose, c.twist
}

// SafetySnapshot returns the latest aggregated safety-function state.
func (c *Controller) SafetySnapshot() SafetyState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.safetyState
}

// PowerSnapshot returns the latest power-stage state pair.
func (c *Controller) PowerSnapshot() PowerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.powerState
}

// IsMoving reports whether the last dispatched setpoint was nonzero.
func (c *Controller) IsMoving() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.moving
}

// Config returns the immutable configuration.
func (c *Controller) Config() *Config {
	return c.cfg
}

// Close stops the control loop, zeroes both setpoints and closes the drives.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.workers.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), closeGraceTimeout)
		defer cancel()
		if err := c.left.SetTargetVelocity(ctx, 0); err != nil {
			c.logger.Warnw("zeroing left setpoint on close failed", "error", err)
		}
		if err := c.right.SetTargetVelocity(ctx, 0); err != nil {
			c.logger.Warnw("zeroing right setpoint on close failed", "error", err)
		}

		c.closeErr = multierr.Combine(c.left.Close(), c.right.Close())
	})
	return c.closeErr
}
