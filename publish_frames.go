package radcap

import (
	"encoding/binary"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/openradarlab/radcap/internal/rawbytes"
)

// PublishedFrame is one assembled frame queued for the PUB socket.
type PublishedFrame struct {
	SessionID  string
	FrameIndex uint64
	Lost       uint32
	Samples    []uint16
}

// PublishFrames broadcasts assembled frames on a ZMQ PUB socket until the
// abort channel closes. Each message is two parts: a header frame with the
// session ID, frame index, loss count and sample count, then the raw
// little-endian samples. Subscribers that fall behind simply miss frames,
// which matches the lossy character of the stream itself.
func PublishFrames(frames <-chan PublishedFrame, abort <-chan struct{}, portnum int) error {
	hostname := fmt.Sprintf("tcp://*:%d", portnum)
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	defer pubSocket.Close()
	if err = pubSocket.Bind(hostname); err != nil {
		return err
	}

	for {
		select {
		case <-abort:
			return nil
		case f := <-frames:
			header := frameHeader(&f)
			if _, err := pubSocket.SendBytes(header, zmq.SNDMORE); err != nil {
				ProblemLogger.Printf("ZMQ send of frame header failed: %v", err)
				continue
			}
			if _, err := pubSocket.SendBytes(rawbytes.FromUint16s(f.Samples), 0); err != nil {
				ProblemLogger.Printf("ZMQ send of frame payload failed: %v", err)
			}
		}
	}
}

func frameHeader(f *PublishedFrame) []byte {
	h := make([]byte, 0, 16+len(f.SessionID))
	h = binary.LittleEndian.AppendUint64(h, f.FrameIndex)
	h = binary.LittleEndian.AppendUint32(h, f.Lost)
	h = binary.LittleEndian.AppendUint32(h, uint32(len(f.Samples)))
	h = append(h, f.SessionID...)
	return h
}
