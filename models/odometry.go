package models

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"

	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"swddrive/drive"
)

// OdometryModel exposes the dead-reckoned pose as a movement sensor.
var OdometryModel = resource.NewModel("ezwheel", "swd", "odometry")

type odometryConfig struct {
	// Base names the drive base resource to read odometry from.
	Base string `json:"base"`
}

func (cfg *odometryConfig) Validate(path string) ([]string, error) {
	if cfg.Base == "" {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "base")
	}
	return []string{cfg.Base}, nil
}

func init() {
	resource.RegisterComponent(
		movementsensor.API,
		OdometryModel,
		resource.Registration[movementsensor.MovementSensor, *odometryConfig]{Constructor: newOdometry})
}

type swdOdometry struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	logger logging.Logger
	ctrl   *drive.Controller
}

func newOdometry(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (movementsensor.MovementSensor, error) {
	cfg, err := resource.NativeConfig[*odometryConfig](conf)
	if err != nil {
		return nil, err
	}
	ctrl, err := lookupController(cfg.Base)
	if err != nil {
		return nil, err
	}
	if !ctrl.Config().PublishOdom {
		return nil, errors.New("publish_odom is disabled on the base")
	}
	return &swdOdometry{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		ctrl:   ctrl,
	}, nil
}

// Orientation reports the dead-reckoned heading as a yaw-only orientation.
func (s *swdOdometry) Orientation(ctx context.Context, extra map[string]interface{}) (spatialmath.Orientation, error) {
	pose, _ := s.ctrl.PoseSnapshot()
	return &spatialmath.EulerAngles{Yaw: pose.ThetaRad}, nil
}

// LinearVelocity reports the forward velocity estimate along Y in m/s.
func (s *swdOdometry) LinearVelocity(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	_, twist := s.ctrl.PoseSnapshot()
	return r3.Vector{Y: twist.LinearMPerSec}, nil
}

// AngularVelocity reports the rotation rate estimate about Z in deg/s.
func (s *swdOdometry) AngularVelocity(ctx context.Context, extra map[string]interface{}) (spatialmath.AngularVelocity, error) {
	_, twist := s.ctrl.PoseSnapshot()
	return spatialmath.AngularVelocity{Z: twist.AngularRadPerSec * 180 / math.Pi}, nil
}

// CompassHeading derives a clockwise-from-north heading from the yaw.
func (s *swdOdometry) CompassHeading(ctx context.Context, extra map[string]interface{}) (float64, error) {
	pose, _ := s.ctrl.PoseSnapshot()
	heading := math.Mod(360-pose.ThetaRad*180/math.Pi, 360)
	if heading < 0 {
		heading += 360
	}
	return heading, nil
}

// Position is unavailable: wheel odometry has no global reference.
func (s *swdOdometry) Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error) {
	return geo.NewPoint(0, 0), 0, movementsensor.ErrMethodUnimplementedPosition
}

func (s *swdOdometry) LinearAcceleration(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	return r3.Vector{}, movementsensor.ErrMethodUnimplementedLinearAcceleration
}

func (s *swdOdometry) Accuracy(ctx context.Context, extra map[string]interface{}) (map[string]float32, error) {
	return map[string]float32{}, nil
}

func (s *swdOdometry) Properties(ctx context.Context, extra map[string]interface{}) (*movementsensor.Properties, error) {
	return &movementsensor.Properties{
		OrientationSupported:     true,
		LinearVelocitySupported:  true,
		AngularVelocitySupported: true,
		CompassHeadingSupported:  true,
	}, nil
}

// Readings returns the full planar pose and twist, with the transform to the
// base frame when transform publication is enabled.
func (s *swdOdometry) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	cfg := s.ctrl.Config()
	pose, twist := s.ctrl.PoseSnapshot()

	readings := map[string]interface{}{
		"x_m":               pose.XM,
		"y_m":               pose.YM,
		"theta_rad":         pose.ThetaRad,
		"linear_m_per_s":    twist.LinearMPerSec,
		"angular_rad_per_s": twist.AngularRadPerSec,
		"odom_frame":        cfg.OdomFrame,
		"base_frame":        cfg.BaseFrame,
		"timestamp":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	if cfg.PublishTF {
		readings["transform"] = map[string]interface{}{
			"parent": cfg.OdomFrame,
			"child":  cfg.BaseFrame,
			"x_m":    pose.XM,
			"y_m":    pose.YM,
			"z_m":    0.0,
			"qw":     math.Cos(pose.ThetaRad / 2),
			"qx":     0.0,
			"qy":     0.0,
			"qz":     math.Sin(pose.ThetaRad / 2),
		}
	}
	return readings, nil
}
