package drive

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	good := controllerTestConfig()
	test.That(t, good.Validate(), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero baseline", func(c *Config) { c.BaselineM = 0 }},
		{"negative baseline", func(c *Config) { c.BaselineM = -1 }},
		{"zero pub freq", func(c *Config) { c.PublishFreqHz = 0 }},
		{"negative watchdog", func(c *Config) { c.WatchdogTimeout = -time.Second }},
		{"zero left diameter", func(c *Config) { c.Left.DiameterM = 0 }},
		{"zero right reduction", func(c *Config) { c.Right.Reduction = 0 }},
		{"negative max speed", func(c *Config) { c.MaxSpeedRPM = -1 }},
		{"negative sls speed", func(c *Config) { c.SafetyLimitedSpeedRPM = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := controllerTestConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "configuration error")
		})
	}
}

func TestWheelRotationSign(t *testing.T) {
	test.That(t, WheelRight.RotationSign(), test.ShouldEqual, 1.0)
	test.That(t, WheelLeft.RotationSign(), test.ShouldEqual, -1.0)
	test.That(t, WheelRight.String(), test.ShouldEqual, "Right")
	test.That(t, WheelLeft.String(), test.ShouldEqual, "Left")
	test.That(t, ControlModeTwist.String(), test.ShouldEqual, "Twist")
	test.That(t, ControlModeLeftRightSpeeds.String(), test.ShouldEqual, "LeftRightSpeeds")
}
