// Package smc defines the capability boundary to a safe motion controller,
// the per-wheel actuator of a differential-drive vehicle. Implementations
// live in the canopen (real device) and fake (test double) packages.
package smc

import (
	"context"
	"fmt"
)

// SafetyFunctionID identifies one of the drive's integrated safety functions.
type SafetyFunctionID int

// Safety functions reported by the drive.
const (
	// STO is Safe Torque Off: motor torque removed.
	STO SafetyFunctionID = iota
	// SDIPos1 is Safe Direction Indication, positive rotation.
	SDIPos1
	// SDINeg1 is Safe Direction Indication, negative rotation.
	SDINeg1
	// SLS1 is Safe Limited Speed: a speed ceiling is in force.
	SLS1
)

func (id SafetyFunctionID) String() string {
	switch id {
	case STO:
		return "STO"
	case SDIPos1:
		return "SDIP_1"
	case SDINeg1:
		return "SDIN_1"
	case SLS1:
		return "SLS_1"
	default:
		return fmt.Sprintf("SafetyFunctionID(%d)", int(id))
	}
}

// PDSState is the power drive system state machine state (CiA 402).
type PDSState int

// Power drive system states. Only OperationEnabled accepts motion commands.
const (
	PDSNotReadyToSwitchOn PDSState = iota
	PDSSwitchOnDisabled
	PDSReadyToSwitchOn
	PDSSwitchedOn
	PDSOperationEnabled
	PDSQuickStopActive
	PDSFaultReactionActive
	PDSFault
)

func (s PDSState) String() string {
	switch s {
	case PDSNotReadyToSwitchOn:
		return "NotReadyToSwitchOn"
	case PDSSwitchOnDisabled:
		return "SwitchOnDisabled"
	case PDSReadyToSwitchOn:
		return "ReadyToSwitchOn"
	case PDSSwitchedOn:
		return "SwitchedOn"
	case PDSOperationEnabled:
		return "OperationEnabled"
	case PDSQuickStopActive:
		return "QuickStopActive"
	case PDSFaultReactionActive:
		return "FaultReactionActive"
	case PDSFault:
		return "Fault"
	default:
		return fmt.Sprintf("PDSState(%d)", int(s))
	}
}

// Controller is one wheel's motion controller. All calls are synchronous and
// expected to complete within a bounded time; steady-state failures are
// reported, never retried internally.
type Controller interface {
	// Init connects to the drive described by cfg. A Controller that fails
	// Init must not be used for any other call.
	Init(ctx context.Context, cfg *DriveConfig) error

	// PositionValue returns the cumulative linear displacement counter in
	// millimeters. The counter is monotonic within int32 range during a
	// session; wraps are not handled here.
	PositionValue(ctx context.Context) (int32, error)

	// SetTargetVelocity sets the motor velocity setpoint in RPM.
	SetTargetVelocity(ctx context.Context, rpm int32) error

	// SetHalt engages (true) or releases (false) the drive's soft brake.
	SetHalt(ctx context.Context, halt bool) error

	// SafetyFunctionState reports whether the given safety function is
	// currently commanded.
	SafetyFunctionState(ctx context.Context, id SafetyFunctionID) (bool, error)

	// PowerStageState returns the drive's current PDS state.
	PowerStageState(ctx context.Context) (PDSState, error)

	// RequestOperationEnabled asks the drive to transition towards
	// OperationEnabled. Fire and forget: the caller polls PowerStageState to
	// observe progress.
	RequestOperationEnabled(ctx context.Context) error

	// Close releases the underlying transport.
	Close() error
}
