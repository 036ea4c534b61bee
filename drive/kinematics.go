package drive

import "math"

// WheelSpeeds is a per-wheel angular speed pair in rad/s, positive forward.
type WheelSpeeds struct {
	LeftRadPerSec  float64
	RightRadPerSec float64
}

// Twist is a robot-frame velocity: linear along x (m/s) and angular about z
// (rad/s, counter-clockwise positive).
type Twist struct {
	LinearMPerSec    float64
	AngularRadPerSec float64
}

// KinematicModel converts between robot-frame twists and per-wheel speeds for
// a differential drive with per-wheel geometry.
type KinematicModel struct {
	baselineM float64
	left      WheelParams
	right     WheelParams
}

// NewKinematicModel builds the model from the controller configuration.
func NewKinematicModel(cfg *Config) *KinematicModel {
	return &KinematicModel{
		baselineM: cfg.BaselineM,
		left:      cfg.Left,
		right:     cfg.Right,
	}
}

// WheelSpeedsFromTwist inverts the differential-drive kinematics:
//
//	left  = (2v - wb) / dLeft
//	right = (2v + wb) / dRight
//
// with v in m/s, w in rad/s, b the baseline and d each wheel's diameter.
func (k *KinematicModel) WheelSpeedsFromTwist(t Twist) WheelSpeeds {
	return WheelSpeeds{
		LeftRadPerSec:  (2*t.LinearMPerSec - t.AngularRadPerSec*k.baselineM) / k.left.DiameterM,
		RightRadPerSec: (2*t.LinearMPerSec + t.AngularRadPerSec*k.baselineM) / k.right.DiameterM,
	}
}

// MotorRPM converts a wheel angular speed to a motor-shaft setpoint through
// the wheel's gear reduction. The result is truncated toward zero to match
// the drive's integer setpoint register.
func MotorRPM(wheelRadPerSec float64, reduction float64) int32 {
	return int32(wheelRadPerSec * reduction * 60 / (2 * math.Pi))
}

// motorRPMs applies each wheel's own reduction.
func (k *KinematicModel) motorRPMs(s WheelSpeeds) (left, right int32) {
	return MotorRPM(s.LeftRadPerSec, k.left.Reduction), MotorRPM(s.RightRadPerSec, k.right.Reduction)
}
