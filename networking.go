package radcap

import (
	"fmt"
	"strconv"

	sysctl "github.com/lorenzosaino/go-sysctl"
)

// Portnumbers holds the TCP port numbers radcap itself serves on (the
// board's UDP ports live in DeviceConfig).
type Portnumbers struct {
	Frames int // ZMQ PUB socket for assembled frames
	Status int
}

// Ports globally holds all TCP port numbers used by radcap.
var Ports Portnumbers

func setPortnumbers(base int) {
	Ports.Frames = base
	Ports.Status = base + 1
}

func init() {
	setPortnumbers(5600)
}

// minReceiveBuffer is the kernel receive-buffer size below which a
// full-rate stream drops packets faster than the reassembler can flag them.
const minReceiveBuffer = 4 << 20

// CheckReceiveBufferSize reads net.core.rmem_max and warns via the
// ProblemLogger when the kernel cannot buffer a burst of stream packets.
// Only root can raise the limit, so this is advice, not enforcement.
func CheckReceiveBufferSize() error {
	val, err := sysctl.Get("net.core.rmem_max")
	if err != nil {
		return fmt.Errorf("reading net.core.rmem_max: %w", err)
	}
	rmem, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("parsing net.core.rmem_max value %q: %w", val, err)
	}
	if rmem < minReceiveBuffer {
		ProblemLogger.Printf("net.core.rmem_max is %d; data packets may be dropped in the kernel. "+
			"Consider: sudo sysctl -w net.core.rmem_max=%d", rmem, minReceiveBuffer)
	}
	return nil
}
