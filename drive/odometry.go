package drive

import (
	"math"
	"time"

	"go.viam.com/rdk/logging"
)

// defaultResyncJumpMm is the per-tick displacement delta beyond which a
// wheel counter is assumed to have been reset or to have wrapped; the
// integrator resynchronizes on it instead of integrating the jump.
const defaultResyncJumpMm = 1000

// Pose2D is the dead-reckoned pose in the odometry frame.
type Pose2D struct {
	XM       float64
	YM       float64
	ThetaRad float64
}

// TwistEstimate is the velocity estimate derived from the last integration
// step.
type TwistEstimate struct {
	LinearMPerSec    float64
	AngularRadPerSec float64
}

// Integrator dead-reckons a planar pose from the wheels' cumulative
// displacement counters. It is not safe for concurrent use; the controller
// loop owns it.
type Integrator struct {
	logger       logging.Logger
	baselineM    float64
	rotationSign float64
	resyncJumpMm float64

	primed  bool
	leftMm  int32
	rightMm int32
	last    time.Time

	pose  Pose2D
	twist TwistEstimate
}

// NewIntegrator builds an integrator for the configured geometry and
// reference-wheel sign convention.
func NewIntegrator(cfg *Config, logger logging.Logger) *Integrator {
	return &Integrator{
		logger:       logger,
		baselineM:    cfg.BaselineM,
		rotationSign: cfg.RefWheel.RotationSign(),
		resyncJumpMm: defaultResyncJumpMm,
	}
}

// Prime records the initial counter values without integrating, so the first
// Tick measures displacement from power-on rather than from zero.
func (o *Integrator) Prime(leftMm, rightMm int32, now time.Time) {
	o.leftMm = leftMm
	o.rightMm = rightMm
	o.last = now
	o.primed = true
}

// Tick integrates one sampling step. Counter deltas larger than the resync
// threshold are treated as counter resets: the integrator resynchronizes to
// the new values and reports zero motion for the step.
func (o *Integrator) Tick(leftMm, rightMm int32, now time.Time) (Pose2D, TwistEstimate) {
	if !o.primed {
		o.Prime(leftMm, rightMm, now)
		return o.pose, o.twist
	}

	dLeftMm := float64(leftMm - o.leftMm)
	dRightMm := float64(rightMm - o.rightMm)
	elapsed := now.Sub(o.last).Seconds()
	o.leftMm = leftMm
	o.rightMm = rightMm
	o.last = now

	if math.Abs(dLeftMm) > o.resyncJumpMm || math.Abs(dRightMm) > o.resyncJumpMm {
		o.logger.Warnw("wheel counter jump, resynchronizing odometry",
			"left_delta_mm", dLeftMm, "right_delta_mm", dRightMm)
		o.twist = TwistEstimate{}
		return o.pose, o.twist
	}

	dLeft := dLeftMm / 1000
	dRight := dRightMm / 1000
	dCenter := (dLeft + dRight) / 2
	dTheta := o.rotationSign * (dRight - dLeft) / o.baselineM

	// Euler step at the pre-update heading.
	o.pose.XM += dCenter * math.Cos(o.pose.ThetaRad)
	o.pose.YM += dCenter * math.Sin(o.pose.ThetaRad)
	o.pose.ThetaRad = normalizeAngle(o.pose.ThetaRad + dTheta)

	if elapsed > 0 {
		o.twist = TwistEstimate{
			LinearMPerSec:    dCenter / elapsed,
			AngularRadPerSec: dTheta / elapsed,
		}
	} else {
		o.twist = TwistEstimate{}
	}
	return o.pose, o.twist
}

// Pose returns the current dead-reckoned pose.
func (o *Integrator) Pose() Pose2D {
	return o.pose
}

// normalizeAngle wraps an angle into (-pi, pi].
func normalizeAngle(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}
