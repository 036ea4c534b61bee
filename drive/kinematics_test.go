package drive

import (
	"testing"

	"go.viam.com/test"
)

func kinTestConfig() *Config {
	return &Config{
		BaselineM:     0.5,
		PublishFreqHz: 50,
		Left:          WheelParams{DiameterM: 0.2, Reduction: 1},
		Right:         WheelParams{DiameterM: 0.2, Reduction: 1},
	}
}

func TestWheelSpeedsFromTwistStraight(t *testing.T) {
	k := NewKinematicModel(kinTestConfig())
	s := k.WheelSpeedsFromTwist(Twist{LinearMPerSec: 1})
	test.That(t, s.LeftRadPerSec, test.ShouldAlmostEqual, 10)
	test.That(t, s.RightRadPerSec, test.ShouldAlmostEqual, 10)
}

func TestWheelSpeedsFromTwistPureRotation(t *testing.T) {
	// Equal diameters: pure rotation is equal magnitude, opposite sign,
	// right wheel forward for counter-clockwise.
	k := NewKinematicModel(kinTestConfig())
	s := k.WheelSpeedsFromTwist(Twist{AngularRadPerSec: 1})
	test.That(t, s.LeftRadPerSec, test.ShouldAlmostEqual, -2.5)
	test.That(t, s.RightRadPerSec, test.ShouldAlmostEqual, 2.5)
	test.That(t, s.LeftRadPerSec, test.ShouldAlmostEqual, -s.RightRadPerSec)
}

func TestWheelSpeedsFromTwistMixedDiameters(t *testing.T) {
	cfg := kinTestConfig()
	cfg.Right.DiameterM = 0.1
	k := NewKinematicModel(cfg)
	s := k.WheelSpeedsFromTwist(Twist{LinearMPerSec: 1})
	test.That(t, s.LeftRadPerSec, test.ShouldAlmostEqual, 10)
	test.That(t, s.RightRadPerSec, test.ShouldAlmostEqual, 20)
}

func TestMotorRPMTruncatesTowardZero(t *testing.T) {
	// 1 rad/s through a 9.56 reduction is 91.29... motor RPM.
	test.That(t, MotorRPM(1, 9.56), test.ShouldEqual, int32(91))
	test.That(t, MotorRPM(-1, 9.56), test.ShouldEqual, int32(-91))
	test.That(t, MotorRPM(0, 9.56), test.ShouldEqual, int32(0))
}

func TestMotorRPMsUsePerWheelReduction(t *testing.T) {
	cfg := kinTestConfig()
	cfg.Left.Reduction = 10
	cfg.Right.Reduction = 20
	k := NewKinematicModel(cfg)
	left, right := k.motorRPMs(WheelSpeeds{LeftRadPerSec: 1, RightRadPerSec: 1})
	test.That(t, left, test.ShouldEqual, int32(95))
	test.That(t, right, test.ShouldEqual, int32(190))
}
