// Package drive implements the control core of a differential-drive vehicle:
// it converts velocity commands into per-wheel setpoints, dead-reckons a pose
// from wheel displacement counters, enforces a command-loss fail-safe and
// aggregates the wheels' safety-function and power-stage state.
package drive

import (
	"fmt"
	"time"
)

// ControlMode selects which command ingress the vehicle accepts.
type ControlMode int

const (
	// ControlModeTwist accepts robot-frame linear/angular velocity.
	ControlModeTwist ControlMode = iota
	// ControlModeLeftRightSpeeds accepts per-wheel angular speed directly.
	ControlModeLeftRightSpeeds
)

func (m ControlMode) String() string {
	if m == ControlModeLeftRightSpeeds {
		return "LeftRightSpeeds"
	}
	return "Twist"
}

// Wheel names one side of the vehicle. The reference wheel fixes the sign
// convention mapping wheel-speed differential to rotation direction.
type Wheel int

const (
	// WheelRight is the default reference: positive differential turns
	// counter-clockwise.
	WheelRight Wheel = iota
	WheelLeft
)

func (w Wheel) String() string {
	if w == WheelLeft {
		return "Left"
	}
	return "Right"
}

// RotationSign is the multiplier applied to the angular-displacement term in
// odometry. This is the single place the rotation-sign convention enters.
func (w Wheel) RotationSign() float64 {
	if w == WheelLeft {
		return -1
	}
	return 1
}

// WheelParams is the geometry of one wheel.
type WheelParams struct {
	DiameterM float64
	Reduction float64
}

// Config is the controller configuration. It is immutable after
// construction.
type Config struct {
	// BaselineM is the track width in meters.
	BaselineM float64
	// PublishFreqHz is the odometry tick rate.
	PublishFreqHz int
	// WatchdogTimeout is how long the command stream may go quiet before
	// both wheels are forced to zero. Zero disables the watchdog.
	WatchdogTimeout time.Duration

	BaseFrame string
	OdomFrame string

	ControlMode ControlMode
	RefWheel    Wheel

	Left  WheelParams
	Right WheelParams

	// MaxSpeedRPM, when > 0, clamps every dispatched setpoint's magnitude.
	MaxSpeedRPM int32
	// SafetyLimitedSpeedRPM, when > 0, clamps setpoints while SLS is
	// asserted. HaveBackwardSLS extends the clamp to backward motion;
	// without it backward motion under SLS is forbidden.
	SafetyLimitedSpeedRPM int32
	HaveBackwardSLS       bool

	PublishOdom   bool
	PublishTF     bool
	PublishSafety bool
}

// ConfigError is a fatal configuration problem: construction must abort.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Validate checks the hard-required invariants.
func (c *Config) Validate() error {
	if c.BaselineM <= 0 {
		return &ConfigError{Field: "baseline_m", Reason: "is mandatory and must be > 0"}
	}
	if c.PublishFreqHz <= 0 {
		return &ConfigError{Field: "pub_freq_hz", Reason: "must be > 0"}
	}
	if c.WatchdogTimeout < 0 {
		return &ConfigError{Field: "watchdog_receive_ms", Reason: "must be >= 0"}
	}
	if c.Left.DiameterM <= 0 || c.Left.Reduction <= 0 {
		return &ConfigError{Field: "left wheel", Reason: "diameter and reduction must be > 0"}
	}
	if c.Right.DiameterM <= 0 || c.Right.Reduction <= 0 {
		return &ConfigError{Field: "right wheel", Reason: "diameter and reduction must be > 0"}
	}
	if c.MaxSpeedRPM < 0 || c.SafetyLimitedSpeedRPM < 0 {
		return &ConfigError{Field: "wheel speed limits", Reason: "must be >= 0"}
	}
	return nil
}
