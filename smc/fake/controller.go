// Package fake implements an in-memory smc.Controller for tests.
package fake

import (
	"context"
	"sync"

	"swddrive/smc"
)

// Controller is a fake wheel drive. The zero value is usable: it reports
// position 0, all safety functions clear and PDS state NotReadyToSwitchOn;
// Init moves the PDS state to SwitchOnDisabled as a powered drive would.
// Error fields, when set, are returned by the corresponding call.
type Controller struct {
	mu sync.Mutex

	positionMm int32
	targetRPM  int32
	halted     bool
	safety     map[smc.SafetyFunctionID]bool
	pdsState   smc.PDSState

	initCalls      int
	velocityCalls  int
	enableRequests int
	closed         bool

	InitErr     error
	PositionErr error
	VelocityErr error
	HaltErr     error
	SafetyErr   error
	PDSErr      error
	EnableErr   error
}

var _ smc.Controller = (*Controller)(nil)

// Init records the call.
func (c *Controller) Init(ctx context.Context, cfg *smc.DriveConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InitErr != nil {
		return c.InitErr
	}
	c.initCalls++
	if c.pdsState == 0 {
		c.pdsState = smc.PDSSwitchOnDisabled
	}
	return nil
}

// PositionValue returns the injected displacement counter.
func (c *Controller) PositionValue(ctx context.Context) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PositionErr != nil {
		return 0, c.PositionErr
	}
	return c.positionMm, nil
}

// SetTargetVelocity records the setpoint.
func (c *Controller) SetTargetVelocity(ctx context.Context, rpm int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VelocityErr != nil {
		return c.VelocityErr
	}
	c.velocityCalls++
	c.targetRPM = rpm
	return nil
}

// SetHalt records the brake state.
func (c *Controller) SetHalt(ctx context.Context, halt bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HaltErr != nil {
		return c.HaltErr
	}
	c.halted = halt
	return nil
}

// SafetyFunctionState returns the injected state for id.
func (c *Controller) SafetyFunctionState(ctx context.Context, id smc.SafetyFunctionID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SafetyErr != nil {
		return false, c.SafetyErr
	}
	return c.safety[id], nil
}

// PowerStageState returns the injected PDS state.
func (c *Controller) PowerStageState(ctx context.Context) (smc.PDSState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PDSErr != nil {
		return smc.PDSSwitchOnDisabled, c.PDSErr
	}
	return c.pdsState, nil
}

// RequestOperationEnabled counts the request.
func (c *Controller) RequestOperationEnabled(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EnableErr != nil {
		return c.EnableErr
	}
	c.enableRequests++
	return nil
}

// Close marks the controller closed.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SetPositionMm injects the displacement counter value.
func (c *Controller) SetPositionMm(mm int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positionMm = mm
}

// SetPDSState injects the PDS state.
func (c *Controller) SetPDSState(s smc.PDSState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pdsState = s
}

// SetSafety injects one safety function state.
func (c *Controller) SetSafety(id smc.SafetyFunctionID, asserted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.safety == nil {
		c.safety = map[smc.SafetyFunctionID]bool{}
	}
	c.safety[id] = asserted
}

// TargetRPM returns the last velocity setpoint.
func (c *Controller) TargetRPM() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetRPM
}

// VelocityCalls returns how many setpoints were accepted.
func (c *Controller) VelocityCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.velocityCalls
}

// EnableRequests returns how many operation-enable requests were accepted.
func (c *Controller) EnableRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableRequests
}

// Halted reports the brake state.
func (c *Controller) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
