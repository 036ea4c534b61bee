package models

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/components/base/kinematicbase"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"swddrive/canopen"
	"swddrive/drive"
	"swddrive/smc"
)

// BaseModel is the differential-drive base resource.
var BaseModel = resource.NewModel("ezwheel", "swd", "diff-drive")

const (
	defaultPubFreqHz       = 50
	defaultWatchdogMs      = 500
	defaultBaseFrame       = "base_link"
	defaultOdomFrame       = "odom"
	fallbackResubmitPeriod = 100 * time.Millisecond
)

// Config is the base resource configuration.
type Config struct {
	LeftConfigFile  string `json:"left_config_file"`
	RightConfigFile string `json:"right_config_file"`

	BaselineM float64 `json:"baseline_m"`
	PubFreqHz int     `json:"pub_freq_hz,omitempty"`
	// WatchdogReceiveMs bounds the command-stream quiet period. Explicit 0
	// disables the watchdog; absent selects the default.
	WatchdogReceiveMs *int `json:"watchdog_receive_ms,omitempty"`

	BaseFrame string `json:"base_frame,omitempty"`
	OdomFrame string `json:"odom_frame,omitempty"`

	ControlMode string `json:"control_mode,omitempty"`
	RefWheel    string `json:"ref_wheel,omitempty"`

	WheelMaxSpeedRPM      int  `json:"wheel_max_speed_rpm,omitempty"`
	SafetyLimitedSpeedRPM int  `json:"wheel_safety_limited_speed_rpm,omitempty"`
	HaveBackwardSLS       bool `json:"have_backward_sls,omitempty"`

	PublishOdom   *bool `json:"publish_odom,omitempty"`
	PublishTF     *bool `json:"publish_tf,omitempty"`
	PublishSafety *bool `json:"publish_safety_functions,omitempty"`
}

// Validate checks the fields the resource cannot start without.
func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.LeftConfigFile == "" {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "left_config_file")
	}
	if cfg.RightConfigFile == "" {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "right_config_file")
	}
	if cfg.BaselineM <= 0 {
		return nil, resource.NewConfigValidationError(path, errors.New("baseline_m must be > 0"))
	}
	if cfg.PubFreqHz < 0 {
		return nil, resource.NewConfigValidationError(path, errors.New("pub_freq_hz must be >= 0"))
	}
	if cfg.WatchdogReceiveMs != nil && *cfg.WatchdogReceiveMs < 0 {
		return nil, resource.NewConfigValidationError(path, errors.New("watchdog_receive_ms must be >= 0"))
	}
	if cfg.WheelMaxSpeedRPM < 0 || cfg.SafetyLimitedSpeedRPM < 0 {
		return nil, resource.NewConfigValidationError(path, errors.New("wheel speed limits must be >= 0"))
	}
	return nil, nil
}

// driveConfig maps the resource configuration onto the controller
// configuration, applying defaults and tolerating unknown enum values with a
// warning.
func (cfg *Config) driveConfig(left, right *smc.DriveConfig, logger logging.Logger) *drive.Config {
	dc := &drive.Config{
		BaselineM:             cfg.BaselineM,
		PublishFreqHz:         cfg.PubFreqHz,
		BaseFrame:             cfg.BaseFrame,
		OdomFrame:             cfg.OdomFrame,
		MaxSpeedRPM:           int32(cfg.WheelMaxSpeedRPM),
		SafetyLimitedSpeedRPM: int32(cfg.SafetyLimitedSpeedRPM),
		HaveBackwardSLS:       cfg.HaveBackwardSLS,
		Left: drive.WheelParams{
			DiameterM: left.WheelDiameterMm / 1000,
			Reduction: left.Reduction,
		},
		Right: drive.WheelParams{
			DiameterM: right.WheelDiameterMm / 1000,
			Reduction: right.Reduction,
		},
		PublishOdom:   boolOrDefault(cfg.PublishOdom, true),
		PublishTF:     boolOrDefault(cfg.PublishTF, true),
		PublishSafety: boolOrDefault(cfg.PublishSafety, true),
	}

	if dc.PublishFreqHz == 0 {
		dc.PublishFreqHz = defaultPubFreqHz
	}
	watchdogMs := defaultWatchdogMs
	if cfg.WatchdogReceiveMs != nil {
		watchdogMs = *cfg.WatchdogReceiveMs
	}
	dc.WatchdogTimeout = time.Duration(watchdogMs) * time.Millisecond

	if dc.BaseFrame == "" {
		dc.BaseFrame = defaultBaseFrame
	}
	if dc.OdomFrame == "" {
		dc.OdomFrame = defaultOdomFrame
	}

	switch cfg.ControlMode {
	case "", "Twist":
		dc.ControlMode = drive.ControlModeTwist
	case "LeftRightSpeeds":
		dc.ControlMode = drive.ControlModeLeftRightSpeeds
	default:
		logger.Warnw("unknown control_mode, falling back to Twist", "control_mode", cfg.ControlMode)
		dc.ControlMode = drive.ControlModeTwist
	}

	switch cfg.RefWheel {
	case "", "Right":
		dc.RefWheel = drive.WheelRight
	case "Left":
		dc.RefWheel = drive.WheelLeft
	default:
		logger.Warnw("unknown ref_wheel, falling back to Right", "ref_wheel", cfg.RefWheel)
		dc.RefWheel = drive.WheelRight
	}

	return dc
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func init() {
	resource.RegisterComponent(
		base.API,
		BaseModel,
		resource.Registration[base.Base, *Config]{Constructor: newSwdBase})
}

type swdBase struct {
	resource.Named
	resource.AlwaysRebuild

	logger     logging.Logger
	ctrl       *drive.Controller
	kin        *drive.KinematicModel
	geometries []spatialmath.Geometry
}

func newSwdBase(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (base.Base, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	leftCfg, err := smc.LoadDriveConfig(cfg.LeftConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "left wheel")
	}
	rightCfg, err := smc.LoadDriveConfig(cfg.RightConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "right wheel")
	}

	leftCtl := canopen.New(logger)
	if err := leftCtl.Init(ctx, leftCfg); err != nil {
		viamutils.UncheckedError(leftCtl.Close())
		return nil, errors.Wrap(err, "initializing left drive")
	}
	rightCtl := canopen.New(logger)
	if err := rightCtl.Init(ctx, rightCfg); err != nil {
		viamutils.UncheckedError(leftCtl.Close())
		viamutils.UncheckedError(rightCtl.Close())
		return nil, errors.Wrap(err, "initializing right drive")
	}

	dc := cfg.driveConfig(leftCfg, rightCfg, logger)
	ctrl, err := drive.New(ctx, dc, leftCtl, rightCtl, logger)
	if err != nil {
		viamutils.UncheckedError(leftCtl.Close())
		viamutils.UncheckedError(rightCtl.Close())
		return nil, err
	}

	b := &swdBase{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		ctrl:   ctrl,
		kin:    drive.NewKinematicModel(dc),
	}
	if conf.Frame != nil {
		geometries, err := kinematicbase.CollisionGeometry(conf.Frame)
		if err != nil {
			logger.Warnw("no collision geometry for base", "error", err)
		}
		b.geometries = geometries
	}

	registerController(b.Name().ShortName(), ctrl)
	return b, nil
}

// SetVelocity commands a robot-frame twist. linear is mm/s along Y, angular
// is deg/s about Z.
func (b *swdBase) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	return b.ctrl.SubmitTwist(drive.Twist{
		LinearMPerSec:    linear.Y / 1000,
		AngularRadPerSec: angular.Z * math.Pi / 180,
	})
}

// SetPower commands open-loop power fractions in [-1, 1], scaled onto the
// configured wheel speed ceiling.
func (b *swdBase) SetPower(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	cfg := b.ctrl.Config()
	if cfg.MaxSpeedRPM <= 0 {
		return errors.New("wheel_max_speed_rpm must be configured for power control")
	}
	lin := clampUnit(linear.Y)
	ang := clampUnit(angular.Z)

	if cfg.ControlMode == drive.ControlModeLeftRightSpeeds {
		leftFrac := lin - ang
		if cfg.RefWheel == drive.WheelLeft {
			leftFrac = lin + ang
		}
		rightFrac := 2*lin - leftFrac
		if m := math.Max(math.Abs(leftFrac), math.Abs(rightFrac)); m > 1 {
			leftFrac /= m
			rightFrac /= m
		}
		return b.ctrl.SubmitWheelSpeeds(drive.WheelSpeeds{
			LeftRadPerSec:  leftFrac * maxWheelRadPerSec(cfg.MaxSpeedRPM, cfg.Left.Reduction),
			RightRadPerSec: rightFrac * maxWheelRadPerSec(cfg.MaxSpeedRPM, cfg.Right.Reduction),
		})
	}

	vMax := b.maxLinearMPerSec(cfg)
	wMax := 2 * vMax / cfg.BaselineM
	return b.ctrl.SubmitTwist(drive.Twist{
		LinearMPerSec:    lin * vMax,
		AngularRadPerSec: ang * wMax,
	})
}

// MoveStraight drives straight for distanceMm at mmPerSec by streaming the
// corresponding twist until the travel time elapses.
func (b *swdBase) MoveStraight(ctx context.Context, distanceMm int, mmPerSec float64, extra map[string]interface{}) error {
	if mmPerSec == 0 {
		return errors.New("mmPerSec must be nonzero")
	}
	speed := math.Abs(mmPerSec) / 1000
	if distanceMm < 0 {
		speed = -speed
	}
	duration := time.Duration(math.Abs(float64(distanceMm)/mmPerSec) * float64(time.Second))
	return b.driveFor(ctx, drive.Twist{LinearMPerSec: speed}, duration)
}

// Spin rotates in place by angleDeg at degsPerSec.
func (b *swdBase) Spin(ctx context.Context, angleDeg, degsPerSec float64, extra map[string]interface{}) error {
	if degsPerSec == 0 {
		return errors.New("degsPerSec must be nonzero")
	}
	omega := math.Abs(degsPerSec) * math.Pi / 180
	if angleDeg < 0 {
		omega = -omega
	}
	duration := time.Duration(math.Abs(angleDeg/degsPerSec) * float64(time.Second))
	return b.driveFor(ctx, drive.Twist{AngularRadPerSec: omega}, duration)
}

// driveFor streams a constant twist until duration elapses, re-submitting
// often enough to keep the command watchdog fed, then stops.
func (b *swdBase) driveFor(ctx context.Context, t drive.Twist, duration time.Duration) error {
	resubmit := fallbackResubmitPeriod
	if wd := b.ctrl.Config().WatchdogTimeout; wd > 0 && wd/2 < resubmit {
		resubmit = wd / 2
	}

	deadline := time.Now().Add(duration)
	for {
		if err := b.submitTwistAnyMode(t); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining < resubmit {
			if !viamutils.SelectContextOrWait(ctx, remaining) {
				break
			}
			continue
		}
		if !viamutils.SelectContextOrWait(ctx, resubmit) {
			break
		}
	}
	stopErr := b.submitTwistAnyMode(drive.Twist{})
	if err := ctx.Err(); err != nil {
		return err
	}
	return stopErr
}

// submitTwistAnyMode routes a twist through whichever ingress the configured
// control mode accepts. Internal motions must work in both modes.
func (b *swdBase) submitTwistAnyMode(t drive.Twist) error {
	if b.ctrl.Config().ControlMode == drive.ControlModeLeftRightSpeeds {
		return b.ctrl.SubmitWheelSpeeds(b.kin.WheelSpeedsFromTwist(t))
	}
	return b.ctrl.SubmitTwist(t)
}

// Stop zeroes both wheel setpoints.
func (b *swdBase) Stop(ctx context.Context, extra map[string]interface{}) error {
	return b.submitTwistAnyMode(drive.Twist{})
}

// IsMoving reports whether the last dispatched setpoint was nonzero.
func (b *swdBase) IsMoving(ctx context.Context) (bool, error) {
	return b.ctrl.IsMoving(), nil
}

// DoCommand handles the commands beyond the Base interface: soft_brake and
// set_speed.
func (b *swdBase) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if v, ok := cmd["soft_brake"]; ok {
		halt, ok := v.(bool)
		if !ok {
			return nil, errors.New("soft_brake takes a boolean")
		}
		b.ctrl.SubmitBrake(halt)
		return map[string]interface{}{"soft_brake": halt}, nil
	}
	if v, ok := cmd["set_speed"]; ok {
		speeds, ok := v.(map[string]interface{})
		if !ok {
			return nil, errors.New("set_speed takes an object with left_rad_per_sec and right_rad_per_sec")
		}
		left, okL := speeds["left_rad_per_sec"].(float64)
		right, okR := speeds["right_rad_per_sec"].(float64)
		if !okL || !okR {
			return nil, errors.New("set_speed takes numeric left_rad_per_sec and right_rad_per_sec")
		}
		if err := b.ctrl.SubmitWheelSpeeds(drive.WheelSpeeds{
			LeftRadPerSec:  left,
			RightRadPerSec: right,
		}); err != nil {
			return nil, err
		}
		return map[string]interface{}{"left_rad_per_sec": left, "right_rad_per_sec": right}, nil
	}
	return nil, errors.Errorf("unknown command, expected soft_brake or set_speed: %v", cmd)
}

func (b *swdBase) Properties(ctx context.Context, extra map[string]interface{}) (base.Properties, error) {
	cfg := b.ctrl.Config()
	return base.Properties{
		WidthMeters:              cfg.BaselineM,
		WheelCircumferenceMeters: math.Pi * (cfg.Left.DiameterM + cfg.Right.DiameterM) / 2,
	}, nil
}

func (b *swdBase) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return b.geometries, nil
}

func (b *swdBase) Close(ctx context.Context) error {
	deregisterController(b.Name().ShortName())
	return b.ctrl.Close()
}

func (b *swdBase) maxLinearMPerSec(cfg *drive.Config) float64 {
	reduction := math.Max(cfg.Left.Reduction, cfg.Right.Reduction)
	diameter := math.Min(cfg.Left.DiameterM, cfg.Right.DiameterM)
	return maxWheelRadPerSec(cfg.MaxSpeedRPM, reduction) * diameter / 2
}

func maxWheelRadPerSec(maxRPM int32, reduction float64) float64 {
	return float64(maxRPM) / reduction * 2 * math.Pi / 60
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
