package drive

import (
	"context"

	"go.viam.com/rdk/logging"

	"swddrive/smc"
)

// SafetyState is one aggregated snapshot of the vehicle-level safety
// functions, rebuilt from a fresh poll each tick. A field whose reads failed
// stays false for that tick.
type SafetyState struct {
	// SafeTorqueOff is asserted when either drive has cut torque.
	SafeTorqueOff bool
	// SafeDirectionIndication is asserted when either drive commands the
	// direction-monitoring function for the vehicle's positive direction.
	SafeDirectionIndication bool
	// SafetyLimitedSpeed is asserted when either drive enforces a speed
	// ceiling.
	SafetyLimitedSpeed bool
}

// safetyMonitor polls both drives' safety functions and ORs them into a
// vehicle-level snapshot. The drives are mounted mirrored, so the vehicle's
// positive direction is the positive-rotation function on the wheel opposite
// the reference and the negative-rotation function on the reference wheel
// itself; the monitor never blocks motion, it only observes.
type safetyMonitor struct {
	logger logging.Logger
	left   smc.Controller
	right  smc.Controller
	ref    Wheel
}

func newSafetyMonitor(logger logging.Logger, left, right smc.Controller, ref Wheel) *safetyMonitor {
	return &safetyMonitor{logger: logger, left: left, right: right, ref: ref}
}

// poll builds one snapshot. Left/right disagreement on a function is a
// wiring or sensor fault: it is logged once per mismatched tick and the
// OR'd value is still reported.
func (m *safetyMonitor) poll(ctx context.Context) SafetyState {
	var state SafetyState

	state.SafeTorqueOff = m.pollPair(ctx, smc.STO, smc.STO, "safe torque off")

	leftSDI, rightSDI := smc.SDIPos1, smc.SDINeg1
	if m.ref == WheelLeft {
		leftSDI, rightSDI = smc.SDINeg1, smc.SDIPos1
	}
	state.SafeDirectionIndication = m.pollPair(ctx, leftSDI, rightSDI, "safe direction indication")

	state.SafetyLimitedSpeed = m.pollPair(ctx, smc.SLS1, smc.SLS1, "safety limited speed")

	return state
}

func (m *safetyMonitor) pollPair(ctx context.Context, leftID, rightID smc.SafetyFunctionID, what string) bool {
	leftV, leftOK := m.read(ctx, m.left, "left", leftID)
	rightV, rightOK := m.read(ctx, m.right, "right", rightID)
	if leftOK && rightOK && leftV != rightV {
		m.logger.Warnw(what+" mismatch between drives", "left", leftV, "right", rightV)
	}
	return leftV || rightV
}

func (m *safetyMonitor) read(ctx context.Context, ctl smc.Controller, side string, id smc.SafetyFunctionID) (bool, bool) {
	v, err := ctl.SafetyFunctionState(ctx, id)
	if err != nil {
		m.logger.Errorw("safety function read failed", "side", side, "function", id, "error", err)
		return false, false
	}
	return v, true
}
