package smc

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// DriveConfig describes one wheel drive. It is loaded from the per-wheel
// config file referenced by the module configuration and handed opaquely to
// the Controller implementation.
type DriveConfig struct {
	// ContextID tags log messages when several drives share a bus.
	ContextID int `json:"context_id,omitempty"`

	CANInterface string `json:"can_interface"`
	NodeID       uint8  `json:"node_id"`

	WheelDiameterMm float64 `json:"wheel_diameter_mm"`
	Reduction       float64 `json:"reduction"`

	// SDOTimeoutMs bounds a single request/response round trip on the bus.
	// Zero selects the implementation default.
	SDOTimeoutMs int `json:"sdo_timeout_ms,omitempty"`
}

// LoadDriveConfig reads and validates a wheel drive config file.
func LoadDriveConfig(path string) (*DriveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading drive config file %q", path)
	}
	var cfg DriveConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing drive config file %q", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid drive config file %q", path)
	}
	return &cfg, nil
}

func (cfg *DriveConfig) validate() error {
	if cfg.CANInterface == "" {
		return errors.New("can_interface is required")
	}
	if cfg.NodeID < 1 || cfg.NodeID > 127 {
		return errors.Errorf("node_id must be in [1, 127], got %d", cfg.NodeID)
	}
	if cfg.WheelDiameterMm <= 0 {
		return errors.New("wheel_diameter_mm must be > 0")
	}
	if cfg.Reduction <= 0 {
		return errors.New("reduction must be > 0")
	}
	if cfg.SDOTimeoutMs < 0 {
		return errors.New("sdo_timeout_ms must be >= 0")
	}
	return nil
}
