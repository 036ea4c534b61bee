package canopen

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	viamutils "go.viam.com/utils"
	"golang.org/x/sys/unix"

	"swddrive/smc"
)

const defaultSDOTimeout = 250 * time.Millisecond

// Controller drives one wheel over SocketCAN. One SDO transfer is in flight
// at a time; concurrent callers serialize on an internal mutex.
type Controller struct {
	logger logging.Logger

	mu      sync.Mutex
	cfg     *smc.DriveConfig
	sock    *canbus.Socket
	rx      chan canbus.Frame
	timeout time.Duration

	cancel  func()
	workers sync.WaitGroup
}

var _ smc.Controller = (*Controller)(nil)

// New returns an unconnected Controller. Init must succeed before any other
// call.
func New(logger logging.Logger) *Controller {
	return &Controller{logger: logger}
}

// Init opens the CAN socket, filters it down to this node's traffic, starts
// the node and verifies it answers SDO requests.
func (c *Controller) Init(ctx context.Context, cfg *smc.DriveConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock != nil {
		return errors.New("already initialized")
	}

	sock, err := canbus.New()
	if err != nil {
		return errors.Wrap(err, "opening CAN socket")
	}
	err = sock.SetFilters([]unix.CanFilter{
		{Id: sdoResponseBase + uint32(cfg.NodeID), Mask: unix.CAN_SFF_MASK},
		{Id: emcyBase + uint32(cfg.NodeID), Mask: unix.CAN_SFF_MASK},
	})
	if err != nil {
		viamutils.UncheckedError(sock.Close())
		return errors.Wrap(err, "setting CAN filters")
	}
	if err := sock.Bind(cfg.CANInterface); err != nil {
		viamutils.UncheckedError(sock.Close())
		return errors.Wrapf(err, "binding CAN interface %q", cfg.CANInterface)
	}

	c.cfg = cfg
	c.sock = sock
	c.rx = make(chan canbus.Frame, 16)
	c.timeout = defaultSDOTimeout
	if cfg.SDOTimeoutMs > 0 {
		c.timeout = time.Duration(cfg.SDOTimeoutMs) * time.Millisecond
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.workers.Add(1)
	viamutils.ManagedGo(func() {
		c.receiveLoop(cancelCtx, sock)
	}, c.workers.Done)

	if _, err := c.sock.Send(nmtStartFrame(cfg.NodeID)); err != nil {
		return errors.Wrap(err, "sending NMT start")
	}
	// A device type read doubles as a liveness probe.
	if _, err := c.roundTripLocked(ctx, uploadFrame(cfg.NodeID, objDeviceType, 0), objDeviceType, 0); err != nil {
		return errors.Wrapf(err, "node %d did not answer device type read", cfg.NodeID)
	}
	return nil
}

// receiveLoop moves frames from the socket into the rx queue and surfaces
// emergency frames in the log.
func (c *Controller) receiveLoop(ctx context.Context, sock *canbus.Socket) {
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Errorw("CAN RX error", "context_id", c.cfg.ContextID, "error", err)
			if !viamutils.SelectContextOrWait(ctx, 100*time.Millisecond) {
				return
			}
			continue
		}
		if frame.ID == emcyBase+uint32(c.cfg.NodeID) {
			c.logger.Warnw("drive emergency frame", "context_id", c.cfg.ContextID, "data", frame.Data)
			continue
		}
		select {
		case c.rx <- frame:
		default:
			c.logger.Debugw("dropping CAN frame, RX queue full", "id", frame.ID)
		}
	}
}

// roundTripLocked sends req and waits for the matching SDO response. The
// caller must hold c.mu.
func (c *Controller) roundTripLocked(ctx context.Context, req canbus.Frame, index uint16, sub uint8) (sdoResponse, error) {
	// Discard responses from a previously timed-out transfer.
	for {
		select {
		case <-c.rx:
			continue
		default:
		}
		break
	}

	if _, err := c.sock.Send(req); err != nil {
		return sdoResponse{}, errors.Wrap(err, "SDO send")
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return sdoResponse{}, ctx.Err()
		case <-deadline.C:
			return sdoResponse{}, errors.Errorf("SDO timeout reading %#04x:%d", index, sub)
		case frame := <-c.rx:
			resp, err := parseSDOResponse(frame)
			if err != nil {
				return sdoResponse{}, err
			}
			if resp.index != index || resp.sub != sub {
				// Stale response from an aborted transfer; keep waiting.
				continue
			}
			return resp, nil
		}
	}
}

func (c *Controller) upload(ctx context.Context, index uint16, sub uint8) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return nil, errors.New("not initialized")
	}
	resp, err := c.roundTripLocked(ctx, uploadFrame(c.cfg.NodeID, index, sub), index, sub)
	if err != nil {
		return nil, err
	}
	if resp.data == nil {
		return nil, errors.Errorf("expected upload response for %#04x:%d", index, sub)
	}
	return resp.data, nil
}

func (c *Controller) download(ctx context.Context, index uint16, sub uint8, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return errors.New("not initialized")
	}
	req, err := downloadFrame(c.cfg.NodeID, index, sub, value)
	if err != nil {
		return err
	}
	_, err = c.roundTripLocked(ctx, req, index, sub)
	return err
}

// PositionValue reads the cumulative displacement counter (mm).
func (c *Controller) PositionValue(ctx context.Context) (int32, error) {
	data, err := c.upload(ctx, objPositionValue, 0)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, errors.Errorf("position value has %d bytes, want 4", len(data))
	}
	return int32(binary.LittleEndian.Uint32(data)), nil
}

// SetTargetVelocity writes the velocity setpoint (RPM).
func (c *Controller) SetTargetVelocity(ctx context.Context, rpm int32) error {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, uint32(rpm))
	return c.download(ctx, objTargetVelocity, 0, value)
}

// SetHalt sets or clears the controlword halt bit.
func (c *Controller) SetHalt(ctx context.Context, halt bool) error {
	data, err := c.upload(ctx, objControlword, 0)
	if err != nil {
		return err
	}
	if len(data) < 2 {
		return errors.Errorf("controlword has %d bytes, want 2", len(data))
	}
	cw := binary.LittleEndian.Uint16(data)
	if halt {
		cw |= cwHaltBit
	} else {
		cw &^= cwHaltBit
	}
	value := make([]byte, 2)
	binary.LittleEndian.PutUint16(value, cw)
	return c.download(ctx, objControlword, 0, value)
}

// SafetyFunctionState reads one safety function's commanded state.
func (c *Controller) SafetyFunctionState(ctx context.Context, id smc.SafetyFunctionID) (bool, error) {
	sub, err := safetySubIndex(id)
	if err != nil {
		return false, err
	}
	data, err := c.upload(ctx, objSafetyFunction, sub)
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// PowerStageState reads and decodes the statusword.
func (c *Controller) PowerStageState(ctx context.Context) (smc.PDSState, error) {
	data, err := c.upload(ctx, objStatusword, 0)
	if err != nil {
		return smc.PDSSwitchOnDisabled, err
	}
	if len(data) < 2 {
		return smc.PDSSwitchOnDisabled, errors.Errorf("statusword has %d bytes, want 2", len(data))
	}
	return pdsStateFromStatusword(binary.LittleEndian.Uint16(data)), nil
}

// RequestOperationEnabled walks the CiA 402 enable sequence. The drive
// advances one edge per controlword write; issuing the full sequence is
// idempotent from any non-fault state.
func (c *Controller) RequestOperationEnabled(ctx context.Context) error {
	for _, cw := range []uint16{cwShutdown, cwSwitchOn, cwEnableOperation} {
		value := make([]byte, 2)
		binary.LittleEndian.PutUint16(value, cw)
		if err := c.download(ctx, objControlword, 0, value); err != nil {
			return errors.Wrapf(err, "writing controlword %#04x", cw)
		}
	}
	return nil
}

// Close tears down the receive loop and the socket.
func (c *Controller) Close() error {
	c.mu.Lock()
	sock := c.sock
	cancel := c.cancel
	c.sock = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sock != nil {
		// Closing the socket unblocks the receive loop.
		err = sock.Close()
	}
	c.workers.Wait()
	return err
}
