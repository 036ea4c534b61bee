package models

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"swddrive/drive"
	"swddrive/smc"
	"swddrive/smc/fake"
)

func TestConfigValidate(t *testing.T) {
	good := &Config{LeftConfigFile: "l.json", RightConfigFile: "r.json", BaselineM: 0.485}
	deps, err := good.Validate("attributes")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldBeEmpty)

	for name, cfg := range map[string]*Config{
		"missing left file":  {RightConfigFile: "r.json", BaselineM: 0.485},
		"missing right file": {LeftConfigFile: "l.json", BaselineM: 0.485},
		"missing baseline":   {LeftConfigFile: "l.json", RightConfigFile: "r.json"},
		"negative baseline":  {LeftConfigFile: "l.json", RightConfigFile: "r.json", BaselineM: -1},
		"negative pub freq":  {LeftConfigFile: "l.json", RightConfigFile: "r.json", BaselineM: 0.485, PubFreqHz: -1},
		"negative watchdog":  {LeftConfigFile: "l.json", RightConfigFile: "r.json", BaselineM: 0.485, WatchdogReceiveMs: intPtr(-1)},
		"negative max speed": {LeftConfigFile: "l.json", RightConfigFile: "r.json", BaselineM: 0.485, WheelMaxSpeedRPM: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.Validate("attributes")
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func wheelConfigs() (*smc.DriveConfig, *smc.DriveConfig) {
	left := &smc.DriveConfig{CANInterface: "can0", NodeID: 1, WheelDiameterMm: 200, Reduction: 9.56}
	right := &smc.DriveConfig{CANInterface: "can0", NodeID: 2, WheelDiameterMm: 210, Reduction: 10.71}
	return left, right
}

func TestDriveConfigDefaults(t *testing.T) {
	left, right := wheelConfigs()
	cfg := &Config{LeftConfigFile: "l", RightConfigFile: "r", BaselineM: 0.485}
	dc := cfg.driveConfig(left, right, logging.NewTestLogger(t))

	test.That(t, dc.BaselineM, test.ShouldEqual, 0.485)
	test.That(t, dc.PublishFreqHz, test.ShouldEqual, defaultPubFreqHz)
	test.That(t, dc.WatchdogTimeout, test.ShouldEqual, defaultWatchdogMs*time.Millisecond)
	test.That(t, dc.BaseFrame, test.ShouldEqual, defaultBaseFrame)
	test.That(t, dc.OdomFrame, test.ShouldEqual, defaultOdomFrame)
	test.That(t, dc.ControlMode, test.ShouldEqual, drive.ControlModeTwist)
	test.That(t, dc.RefWheel, test.ShouldEqual, drive.WheelRight)
	test.That(t, dc.Left.DiameterM, test.ShouldAlmostEqual, 0.2)
	test.That(t, dc.Right.DiameterM, test.ShouldAlmostEqual, 0.21)
	test.That(t, dc.Left.Reduction, test.ShouldEqual, 9.56)
	test.That(t, dc.Right.Reduction, test.ShouldEqual, 10.71)
	test.That(t, dc.PublishOdom, test.ShouldBeTrue)
	test.That(t, dc.PublishTF, test.ShouldBeTrue)
	test.That(t, dc.PublishSafety, test.ShouldBeTrue)
	test.That(t, dc.Validate(), test.ShouldBeNil)
}

func TestDriveConfigExplicitValues(t *testing.T) {
	left, right := wheelConfigs()
	cfg := &Config{
		LeftConfigFile:        "l",
		RightConfigFile:       "r",
		BaselineM:             0.5,
		PubFreqHz:             20,
		WatchdogReceiveMs:     intPtr(0),
		BaseFrame:             "chassis",
		OdomFrame:             "map",
		ControlMode:           "LeftRightSpeeds",
		RefWheel:              "Left",
		WheelMaxSpeedRPM:      800,
		SafetyLimitedSpeedRPM: 200,
		HaveBackwardSLS:       true,
		PublishOdom:           boolPtr(false),
		PublishTF:             boolPtr(false),
		PublishSafety:         boolPtr(false),
	}
	dc := cfg.driveConfig(left, right, logging.NewTestLogger(t))

	test.That(t, dc.PublishFreqHz, test.ShouldEqual, 20)
	test.That(t, dc.WatchdogTimeout, test.ShouldEqual, time.Duration(0))
	test.That(t, dc.BaseFrame, test.ShouldEqual, "chassis")
	test.That(t, dc.OdomFrame, test.ShouldEqual, "map")
	test.That(t, dc.ControlMode, test.ShouldEqual, drive.ControlModeLeftRightSpeeds)
	test.That(t, dc.RefWheel, test.ShouldEqual, drive.WheelLeft)
	test.That(t, dc.MaxSpeedRPM, test.ShouldEqual, int32(800))
	test.That(t, dc.SafetyLimitedSpeedRPM, test.ShouldEqual, int32(200))
	test.That(t, dc.HaveBackwardSLS, test.ShouldBeTrue)
	test.That(t, dc.PublishOdom, test.ShouldBeFalse)
	test.That(t, dc.PublishTF, test.ShouldBeFalse)
	test.That(t, dc.PublishSafety, test.ShouldBeFalse)
}

func TestDriveConfigUnknownEnumsFallBackWithWarning(t *testing.T) {
	left, right := wheelConfigs()
	logger, observed := logging.NewObservedTestLogger(t)
	cfg := &Config{
		LeftConfigFile:  "l",
		RightConfigFile: "r",
		BaselineM:       0.485,
		ControlMode:     "Teleport",
		RefWheel:        "Middle",
	}
	dc := cfg.driveConfig(left, right, logger)

	test.That(t, dc.ControlMode, test.ShouldEqual, drive.ControlModeTwist)
	test.That(t, dc.RefWheel, test.ShouldEqual, drive.WheelRight)
	test.That(t, observed.FilterMessageSnippet("unknown control_mode").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessageSnippet("unknown ref_wheel").Len(), test.ShouldEqual, 1)
}

func TestControllerRegistry(t *testing.T) {
	_, err := lookupController("ghost")
	test.That(t, err, test.ShouldNotBeNil)

	ctrl := testDriveController(t, drive.ControlModeTwist, 0)
	registerController("swd", ctrl)
	got, err := lookupController("swd")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, ctrl)

	deregisterController("swd")
	_, err = lookupController("swd")
	test.That(t, err, test.ShouldNotBeNil)
}

// testDriveController builds a controller over fake drives so the resource
// methods can be exercised without a CAN bus.
func testDriveController(t *testing.T, mode drive.ControlMode, maxRPM int32) *drive.Controller {
	t.Helper()
	dc := &drive.Config{
		BaselineM:     0.485,
		PublishFreqHz: 50,
		BaseFrame:     defaultBaseFrame,
		OdomFrame:     defaultOdomFrame,
		ControlMode:   mode,
		MaxSpeedRPM:   maxRPM,
		Left:          drive.WheelParams{DiameterM: 0.2, Reduction: 1},
		Right:         drive.WheelParams{DiameterM: 0.2, Reduction: 1},
		PublishOdom:   true,
		PublishTF:     true,
		PublishSafety: true,
	}
	ctrl, err := drive.New(context.Background(), dc, &fake.Controller{}, &fake.Controller{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, ctrl.Close(), test.ShouldBeNil)
	})
	return ctrl
}

func testBase(t *testing.T, mode drive.ControlMode, maxRPM int32) *swdBase {
	t.Helper()
	ctrl := testDriveController(t, mode, maxRPM)
	return &swdBase{
		Named:  base.Named("test").AsNamed(),
		logger: logging.NewTestLogger(t),
		ctrl:   ctrl,
		kin:    drive.NewKinematicModel(ctrl.Config()),
	}
}

func TestBaseSetVelocityGatedByMode(t *testing.T) {
	ctx := context.Background()
	b := testBase(t, drive.ControlModeTwist, 0)
	test.That(t, b.SetVelocity(ctx, r3.Vector{Y: 500}, r3.Vector{Z: 30}, nil), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		moving, err := b.IsMoving(ctx)
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, moving, test.ShouldBeTrue)
	})

	b2 := testBase(t, drive.ControlModeLeftRightSpeeds, 0)
	err := b2.SetVelocity(ctx, r3.Vector{Y: 500}, r3.Vector{}, nil)
	test.That(t, errors.Is(err, drive.ErrWrongControlMode), test.ShouldBeTrue)
}

func TestBaseStopInEitherMode(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []drive.ControlMode{drive.ControlModeTwist, drive.ControlModeLeftRightSpeeds} {
		b := testBase(t, mode, 0)
		test.That(t, b.Stop(ctx, nil), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			moving, err := b.IsMoving(ctx)
			test.That(tb, err, test.ShouldBeNil)
			test.That(tb, moving, test.ShouldBeFalse)
		})
	}
}

func TestBaseSetPowerNeedsSpeedCeiling(t *testing.T) {
	ctx := context.Background()
	b := testBase(t, drive.ControlModeTwist, 0)
	err := b.SetPower(ctx, r3.Vector{Y: 1}, r3.Vector{}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "wheel_max_speed_rpm")

	b2 := testBase(t, drive.ControlModeTwist, 60)
	test.That(t, b2.SetPower(ctx, r3.Vector{Y: 1}, r3.Vector{}, nil), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		moving, err := b2.IsMoving(ctx)
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, moving, test.ShouldBeTrue)
	})
}

func TestBaseDoCommandSoftBrake(t *testing.T) {
	ctx := context.Background()
	b := testBase(t, drive.ControlModeTwist, 0)

	resp, err := b.DoCommand(ctx, map[string]interface{}{"soft_brake": true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["soft_brake"], test.ShouldBeTrue)

	_, err = b.DoCommand(ctx, map[string]interface{}{"soft_brake": "yes"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBaseDoCommandSetSpeed(t *testing.T) {
	ctx := context.Background()
	b := testBase(t, drive.ControlModeLeftRightSpeeds, 0)

	resp, err := b.DoCommand(ctx, map[string]interface{}{
		"set_speed": map[string]interface{}{
			"left_rad_per_sec":  math.Pi,
			"right_rad_per_sec": math.Pi,
		},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["left_rad_per_sec"], test.ShouldEqual, math.Pi)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		moving, err := b.IsMoving(ctx)
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, moving, test.ShouldBeTrue)
	})

	_, err = b.DoCommand(ctx, map[string]interface{}{"set_speed": "fast"})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = b.DoCommand(ctx, map[string]interface{}{"warp": 9})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBaseProperties(t *testing.T) {
	ctx := context.Background()
	b := testBase(t, drive.ControlModeTwist, 0)
	props, err := b.Properties(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, props.WidthMeters, test.ShouldEqual, 0.485)
	test.That(t, props.WheelCircumferenceMeters, test.ShouldAlmostEqual, math.Pi*0.2)
}
