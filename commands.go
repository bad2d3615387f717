package radcap

import (
	"encoding/binary"
	"fmt"
	"time"
)

// CommandCode identifies one of the board's fixed configuration commands.
type CommandCode uint16

// The board's command set. Codes travel little-endian on the wire.
const (
	ResetFPGA        CommandCode = 0x01
	ResetSensor      CommandCode = 0x02
	ConfigFPGAGen    CommandCode = 0x03
	ConfigEEPROM     CommandCode = 0x04
	RecordStart      CommandCode = 0x05
	RecordStop       CommandCode = 0x06
	PlaybackStart    CommandCode = 0x07
	PlaybackStop     CommandCode = 0x08
	SystemConnect    CommandCode = 0x09
	SystemError      CommandCode = 0x0a
	ConfigPacketData CommandCode = 0x0b
	ConfigDataMode   CommandCode = 0x0c
	InitFPGAPlayback CommandCode = 0x0d
	ReadFPGAVersion  CommandCode = 0x0e
)

var commandNames = map[CommandCode]string{
	ResetFPGA:        "RESET_FPGA",
	ResetSensor:      "RESET_SENSOR",
	ConfigFPGAGen:    "CONFIG_FPGA_GEN",
	ConfigEEPROM:     "CONFIG_EEPROM",
	RecordStart:      "RECORD_START",
	RecordStop:       "RECORD_STOP",
	PlaybackStart:    "PLAYBACK_START",
	PlaybackStop:     "PLAYBACK_STOP",
	SystemConnect:    "SYSTEM_CONNECT",
	SystemError:      "SYSTEM_ERROR",
	ConfigPacketData: "CONFIG_PACKET_DATA",
	ConfigDataMode:   "CONFIG_DATA_MODE",
	InitFPGAPlayback: "INIT_FPGA_PLAYBACK",
	ReadFPGAVersion:  "READ_FPGA_VERSION",
}

func (c CommandCode) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND(0x%04x)", uint16(c))
}

// Command framing magic. Every command is
// HEADER(2) || CODE(2, LE) || LENGTH(2, LE) || BODY(LENGTH) || FOOTER(2).
var (
	commandHeader = []byte{0x5a, 0xa5}
	commandFooter = []byte{0xaa, 0xee}
)

// BuildCommand frames a command code and its body for the wire.
func BuildCommand(code CommandCode, body []byte) []byte {
	msg := make([]byte, 0, 8+len(body))
	msg = append(msg, commandHeader...)
	msg = binary.LittleEndian.AppendUint16(msg, uint16(code))
	msg = binary.LittleEndian.AppendUint16(msg, uint16(len(body)))
	msg = append(msg, body...)
	msg = append(msg, commandFooter...)
	return msg
}

// SendCommand transmits one command over the control channel and waits up to
// timeout for the board's response datagram. The board goes silent rather
// than NAKing in several states, so a timeout is the expected outcome for
// some commands: it yields an empty response and a nil error. Callers that
// care about the response must check for emptiness themselves.
func SendCommand(ctrl ControlChannel, code CommandCode, body []byte, timeout time.Duration) ([]byte, error) {
	if err := ctrl.Send(BuildCommand(code, body)); err != nil {
		return nil, fmt.Errorf("sending %v: %w", code, err)
	}
	resp, err := ctrl.ReceiveTimeout(MaxPacketSize, timeout)
	if err != nil {
		if isTimeout(err) {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("awaiting response to %v: %w", code, err)
	}
	return resp, nil
}
