package radcap

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// DeviceConfig holds the network endpoints of a capture board. The board
// ships with fixed factory addresses, which are the defaults here.
type DeviceConfig struct {
	LocalIP    string // IP the board streams to (this host)
	BoardIP    string // IP the board reads commands on
	DataPort   int
	ConfigPort int
	Verbose    bool
}

// DefaultDeviceConfig is the board's factory network setup.
var DefaultDeviceConfig = DeviceConfig{
	LocalIP:    "192.168.33.30",
	BoardIP:    "192.168.33.180",
	DataPort:   4098,
	ConfigPort: 4096,
}

// Device drives one capture board: a control channel for the command
// protocol and a data channel for the sample stream. Both channels carry at
// most one in-flight operation at a time.
type Device struct {
	config DeviceConfig
	params *DerivedParams
	ctrl   ControlChannel
	data   DataChannel
	rx     *Reassembler

	// command bring-up bodies, fixed by the FPGA image
	fpgaGenBody    []byte
	packetDataBody []byte
}

// NewDevice opens control and data channels to the board described by
// config, for a stream with the given geometry.
func NewDevice(config DeviceConfig, params StreamParams) (*Device, error) {
	derived, err := params.Derive()
	if err != nil {
		return nil, err
	}
	dev := &Device{
		config:         config,
		params:         derived,
		fpgaGenBody:    []byte{0x01, 0x02, 0x01, 0x02, 0x03, 0x1e},
		packetDataBody: []byte{0xc0, 0x05, 0x35, 0x0c, 0x00, 0x00},
	}
	local := fmt.Sprintf("%s:%d", config.LocalIP, config.ConfigPort)
	remote := fmt.Sprintf("%s:%d", config.BoardIP, config.ConfigPort)
	if dev.ctrl, err = NewUDPChannel(local, remote); err != nil {
		return nil, fmt.Errorf("opening control channel: %w", err)
	}
	dataLocal := fmt.Sprintf("%s:%d", config.LocalIP, config.DataPort)
	if dev.data, err = NewUDPChannel(dataLocal, ""); err != nil {
		dev.ctrl.Close()
		return nil, fmt.Errorf("opening data channel: %w", err)
	}
	dev.rx = NewReassembler(derived, dev.data)
	if config.Verbose {
		log.Println(spew.Sdump(dev.params))
	}
	return dev, nil
}

// Params returns the derived stream geometry the device was opened with.
func (dev *Device) Params() *DerivedParams {
	return dev.params
}

// Configure runs the board's bring-up sequence: connect, read the FPGA
// version, then program the generator and packet-delay registers. The board
// answers some of these commands with silence, so empty responses are not
// errors.
func (dev *Device) Configure(timeout time.Duration) error {
	sequence := []struct {
		code CommandCode
		body []byte
	}{
		{SystemConnect, nil},
		{ReadFPGAVersion, nil},
		{ConfigFPGAGen, dev.fpgaGenBody},
		{ConfigPacketData, dev.packetDataBody},
	}
	for _, cmd := range sequence {
		resp, err := SendCommand(dev.ctrl, cmd.code, cmd.body, timeout)
		if err != nil {
			return fmt.Errorf("configure step %v: %w", cmd.code, err)
		}
		if dev.config.Verbose {
			log.Printf("%v response: % x", cmd.code, resp)
		}
	}
	return nil
}

// StartStream tells the board to begin streaming data packets.
func (dev *Device) StartStream(timeout time.Duration) error {
	_, err := SendCommand(dev.ctrl, RecordStart, nil, timeout)
	return err
}

// StopStream tells the board to stop streaming.
func (dev *Device) StopStream(timeout time.Duration) error {
	_, err := SendCommand(dev.ctrl, RecordStop, nil, timeout)
	return err
}

// ReadFrame reassembles the next complete frame from the data stream.
func (dev *Device) ReadFrame(timeout time.Duration) (*Frame, error) {
	return dev.rx.ReadFrame(timeout)
}

// ReadFrames reassembles numFrames raw frames, threading the caller's
// leftover samples from the previous call.
func (dev *Device) ReadFrames(numFrames int, leftover []uint16, timeout time.Duration) (*FrameBatch, error) {
	return dev.rx.ReadFrames(numFrames, leftover, timeout)
}

// ListenForError blocks up to timeout for the board's asynchronous
// SYSTEM_ERROR notification. It reports whether one arrived.
func (dev *Device) ListenForError(timeout time.Duration) (bool, error) {
	msg, err := dev.ctrl.ReceiveTimeout(MaxPacketSize, timeout)
	if err != nil {
		if isTimeout(err) {
			return false, nil
		}
		return false, err
	}
	// Responses carry a 2-byte status where commands carry a length:
	// HEADER || CODE || STATUS || FOOTER.
	stopped := []byte{0x5a, 0xa5, 0x0a, 0x00, 0x03, 0x00, 0xaa, 0xee}
	if bytes.Equal(msg, stopped) {
		ProblemLogger.Printf("board reported SYSTEM_ERROR: % x", msg)
		return true, nil
	}
	return false, nil
}

// Close closes both channels, aborting any blocked receive.
func (dev *Device) Close() error {
	errCtrl := dev.ctrl.Close()
	errData := dev.data.Close()
	if errCtrl != nil {
		return errCtrl
	}
	return errData
}
