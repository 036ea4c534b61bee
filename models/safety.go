package models

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"swddrive/drive"
)

// SafetyModel exposes the aggregated safety-function state as a sensor.
var SafetyModel = resource.NewModel("ezwheel", "swd", "safety-functions")

type safetyConfig struct {
	// Base names the drive base resource to read safety state from.
	Base string `json:"base"`
}

func (cfg *safetyConfig) Validate(path string) ([]string, error) {
	if cfg.Base == "" {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "base")
	}
	return []string{cfg.Base}, nil
}

func init() {
	resource.RegisterComponent(
		sensor.API,
		SafetyModel,
		resource.Registration[sensor.Sensor, *safetyConfig]{Constructor: newSafetySensor})
}

type swdSafety struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	logger logging.Logger
	ctrl   *drive.Controller
}

func newSafetySensor(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	cfg, err := resource.NativeConfig[*safetyConfig](conf)
	if err != nil {
		return nil, err
	}
	ctrl, err := lookupController(cfg.Base)
	if err != nil {
		return nil, err
	}
	if !ctrl.Config().PublishSafety {
		return nil, errors.New("publish_safety_functions is disabled on the base")
	}
	return &swdSafety{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		ctrl:   ctrl,
	}, nil
}

// Readings reports the commanded safety functions and both power stages.
func (s *swdSafety) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	safety := s.ctrl.SafetySnapshot()
	power := s.ctrl.PowerSnapshot()
	return map[string]interface{}{
		"safe_torque_off":           safety.SafeTorqueOff,
		"safe_direction_indication": safety.SafeDirectionIndication,
		"safety_limited_speed":      safety.SafetyLimitedSpeed,
		"power_stage_left":          power.Left.String(),
		"power_stage_right":         power.Right.String(),
		"operational":               power.Operational(),
		"timestamp":                 time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
