package drive

import (
	"context"

	"go.viam.com/rdk/logging"

	"swddrive/smc"
)

// PowerState is the supervisor's view of both power stages.
type PowerState struct {
	Left  smc.PDSState
	Right smc.PDSState
}

// Operational reports whether both power stages can execute setpoints.
func (p PowerState) Operational() bool {
	return p.Left == smc.PDSOperationEnabled && p.Right == smc.PDSOperationEnabled
}

// powerSupervisor nudges the drives' power stages toward operation enabled.
// A drive can drop out on its own, e.g. when a safety function fires or bus
// power browns out, and needs to be walked back up.
type powerSupervisor struct {
	logger logging.Logger
	left   smc.Controller
	right  smc.Controller
}

func newPowerSupervisor(logger logging.Logger, left, right smc.Controller) *powerSupervisor {
	return &powerSupervisor{logger: logger, left: left, right: right}
}

// tick reads both power stages and, when neither is operation enabled,
// fire-and-forgets one enable request per drive. A failed read counts as
// non-operational. The enable handshake itself is the drive's business; the
// supervisor only re-issues the request on later ticks if the state has not
// converged.
func (s *powerSupervisor) tick(ctx context.Context) PowerState {
	state := PowerState{
		Left:  s.readOne(ctx, s.left, "left"),
		Right: s.readOne(ctx, s.right, "right"),
	}
	if state.Left == smc.PDSOperationEnabled || state.Right == smc.PDSOperationEnabled {
		return state
	}

	s.logger.Infow("drives not operational, requesting operation enabled",
		"left", state.Left, "right", state.Right)
	if err := s.left.RequestOperationEnabled(ctx); err != nil {
		s.logger.Warnw("operation enable request failed", "side", "left", "error", err)
	}
	if err := s.right.RequestOperationEnabled(ctx); err != nil {
		s.logger.Warnw("operation enable request failed", "side", "right", "error", err)
	}
	return state
}

func (s *powerSupervisor) readOne(ctx context.Context, ctl smc.Controller, side string) smc.PDSState {
	state, err := ctl.PowerStageState(ctx)
	if err != nil {
		// Unreachable drives count as non-operational.
		s.logger.Warnw("power stage state read failed", "side", side, "error", err)
		return smc.PDSNotReadyToSwitchOn
	}
	return state
}
