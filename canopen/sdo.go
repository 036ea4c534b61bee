// Package canopen implements smc.Controller for wheel drives speaking CiA 301
// expedited SDO / CiA 402 velocity mode over SocketCAN.
package canopen

import (
	"encoding/binary"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"

	"swddrive/smc"
)

// Function code bases for the default CANopen predefined connection set.
const (
	nmtID           uint32 = 0x000
	emcyBase        uint32 = 0x080
	sdoRequestBase  uint32 = 0x600
	sdoResponseBase uint32 = 0x580
	heartbeatBase   uint32 = 0x700
)

// SDO command specifiers (expedited transfers only).
const (
	csUpload       byte = 0x40
	csDownload1    byte = 0x2F
	csDownload2    byte = 0x2B
	csDownload4    byte = 0x23
	csUploadResp1  byte = 0x4F
	csUploadResp2  byte = 0x4B
	csUploadResp4  byte = 0x43
	csDownloadResp byte = 0x60
	csAbort        byte = 0x80
)

// Object dictionary entries used by this driver.
const (
	objDeviceType     uint16 = 0x1000
	objControlword    uint16 = 0x6040
	objStatusword     uint16 = 0x6041
	objPositionValue  uint16 = 0x6064
	objTargetVelocity uint16 = 0x60FF

	// Manufacturer object: commanded state of the integrated safety
	// functions, one sub-index per function.
	objSafetyFunction uint16 = 0x2110
)

// Controlword values for the CiA 402 enable sequence and the halt bit.
const (
	cwShutdown        uint16 = 0x0006
	cwSwitchOn        uint16 = 0x0007
	cwEnableOperation uint16 = 0x000F
	cwHaltBit         uint16 = 0x0100
)

// nmtStartFrame builds the NMT "start remote node" command for a node.
func nmtStartFrame(node uint8) canbus.Frame {
	return canbus.Frame{
		ID:   nmtID,
		Data: []byte{0x01, node},
		Kind: canbus.SFF,
	}
}

// uploadFrame builds an expedited SDO upload (read) request.
func uploadFrame(node uint8, index uint16, sub uint8) canbus.Frame {
	data := make([]byte, 8)
	data[0] = csUpload
	binary.LittleEndian.PutUint16(data[1:3], index)
	data[3] = sub
	return canbus.Frame{ID: sdoRequestBase + uint32(node), Data: data, Kind: canbus.SFF}
}

// downloadFrame builds an expedited SDO download (write) request for a 1, 2
// or 4 byte value.
func downloadFrame(node uint8, index uint16, sub uint8, value []byte) (canbus.Frame, error) {
	data := make([]byte, 8)
	switch len(value) {
	case 1:
		data[0] = csDownload1
	case 2:
		data[0] = csDownload2
	case 4:
		data[0] = csDownload4
	default:
		return canbus.Frame{}, errors.Errorf("unsupported SDO payload size %d", len(value))
	}
	binary.LittleEndian.PutUint16(data[1:3], index)
	data[3] = sub
	copy(data[4:], value)
	return canbus.Frame{ID: sdoRequestBase + uint32(node), Data: data, Kind: canbus.SFF}, nil
}

// sdoResponse is a parsed expedited SDO response.
type sdoResponse struct {
	index uint16
	sub   uint8
	data  []byte // payload for uploads, nil for download confirmations
}

// parseSDOResponse validates a frame received on the node's SDO response
// COB-ID and extracts its payload. Abort transfers become errors.
func parseSDOResponse(frame canbus.Frame) (sdoResponse, error) {
	if len(frame.Data) < 8 {
		return sdoResponse{}, errors.Errorf("short SDO response (%d bytes)", len(frame.Data))
	}
	resp := sdoResponse{
		index: binary.LittleEndian.Uint16(frame.Data[1:3]),
		sub:   frame.Data[3],
	}
	switch frame.Data[0] {
	case csAbort:
		code := binary.LittleEndian.Uint32(frame.Data[4:8])
		return resp, errors.Errorf("SDO abort for %#04x:%d, code %#08x", resp.index, resp.sub, code)
	case csUploadResp1:
		resp.data = frame.Data[4:5]
	case csUploadResp2:
		resp.data = frame.Data[4:6]
	case csUploadResp4:
		resp.data = frame.Data[4:8]
	case csDownloadResp:
	default:
		return resp, errors.Errorf("unexpected SDO command specifier %#02x", frame.Data[0])
	}
	return resp, nil
}

// pdsStateFromStatusword maps a CiA 402 statusword to the PDS state machine
// state using the standard bit masks.
func pdsStateFromStatusword(sw uint16) smc.PDSState {
	switch {
	case sw&0x4F == 0x00:
		return smc.PDSNotReadyToSwitchOn
	case sw&0x4F == 0x40:
		return smc.PDSSwitchOnDisabled
	case sw&0x6F == 0x21:
		return smc.PDSReadyToSwitchOn
	case sw&0x6F == 0x23:
		return smc.PDSSwitchedOn
	case sw&0x6F == 0x27:
		return smc.PDSOperationEnabled
	case sw&0x6F == 0x07:
		return smc.PDSQuickStopActive
	case sw&0x4F == 0x0F:
		return smc.PDSFaultReactionActive
	case sw&0x4F == 0x08:
		return smc.PDSFault
	default:
		return smc.PDSNotReadyToSwitchOn
	}
}

// safetySubIndex maps a safety function to its sub-index under
// objSafetyFunction.
func safetySubIndex(id smc.SafetyFunctionID) (uint8, error) {
	switch id {
	case smc.STO:
		return 1, nil
	case smc.SDIPos1:
		return 2, nil
	case smc.SDINeg1:
		return 3, nil
	case smc.SLS1:
		return 4, nil
	default:
		return 0, errors.Errorf("unknown safety function %v", id)
	}
}
