// Package main serves the differential-drive base and its odometry and
// safety-function sensors as a viam module.
package main

import (
	"context"

	goutils "go.viam.com/utils"

	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"

	"swddrive/models"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewDebugLogger("swddrive"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	mod, err := module.NewModuleFromArgs(ctx, logger)
	if err != nil {
		return err
	}

	if err := mod.AddModelFromRegistry(ctx, base.API, models.BaseModel); err != nil {
		return err
	}
	if err := mod.AddModelFromRegistry(ctx, movementsensor.API, models.OdometryModel); err != nil {
		return err
	}
	if err := mod.AddModelFromRegistry(ctx, sensor.API, models.SafetyModel); err != nil {
		return err
	}

	err = mod.Start(ctx)
	defer mod.Close(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
