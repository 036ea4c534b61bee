package smc

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func writeDriveConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wheel.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestLoadDriveConfig(t *testing.T) {
	path := writeDriveConfig(t, `{
		"context_id": 1,
		"can_interface": "can0",
		"node_id": 4,
		"wheel_diameter_mm": 200,
		"reduction": 9.56,
		"sdo_timeout_ms": 100
	}`)
	cfg, err := LoadDriveConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.CANInterface, test.ShouldEqual, "can0")
	test.That(t, cfg.NodeID, test.ShouldEqual, uint8(4))
	test.That(t, cfg.WheelDiameterMm, test.ShouldEqual, 200.0)
	test.That(t, cfg.Reduction, test.ShouldEqual, 9.56)
	test.That(t, cfg.SDOTimeoutMs, test.ShouldEqual, 100)
}

func TestLoadDriveConfigMissingFile(t *testing.T) {
	_, err := LoadDriveConfig(filepath.Join(t.TempDir(), "nope.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadDriveConfigBadJSON(t *testing.T) {
	path := writeDriveConfig(t, `{"can_interface": `)
	_, err := LoadDriveConfig(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "parsing")
}

func TestLoadDriveConfigValidation(t *testing.T) {
	for name, contents := range map[string]string{
		"missing interface": `{"node_id": 1, "wheel_diameter_mm": 200, "reduction": 9.56}`,
		"node id zero":      `{"can_interface": "can0", "node_id": 0, "wheel_diameter_mm": 200, "reduction": 9.56}`,
		"node id too big":   `{"can_interface": "can0", "node_id": 128, "wheel_diameter_mm": 200, "reduction": 9.56}`,
		"zero diameter":     `{"can_interface": "can0", "node_id": 1, "wheel_diameter_mm": 0, "reduction": 9.56}`,
		"zero reduction":    `{"can_interface": "can0", "node_id": 1, "wheel_diameter_mm": 200, "reduction": 0}`,
		"negative timeout":  `{"can_interface": "can0", "node_id": 1, "wheel_diameter_mm": 200, "reduction": 9.56, "sdo_timeout_ms": -1}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := writeDriveConfig(t, contents)
			_, err := LoadDriveConfig(path)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}
