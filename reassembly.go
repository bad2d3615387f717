package radcap

import (
	"errors"
	"fmt"
	"time"

	"github.com/openradarlab/radcap/packets"
)

// Reassembler rebuilds contiguous sample buffers from the board's UDP
// packet stream. It holds no state between read calls: the only thing
// carried across calls is the leftover slice that ReadFrames hands back to
// the caller, and the caller must thread it into the next call itself.
// Concurrent reads on one Reassembler are not supported.
type Reassembler struct {
	params *DerivedParams
	data   DataChannel
}

// NewReassembler wraps a data channel with frame reassembly for the given
// stream geometry.
func NewReassembler(params *DerivedParams, data DataChannel) *Reassembler {
	return &Reassembler{params: params, data: data}
}

// Frame is one reassembled capture frame in clipped-packet units.
// Lost counts packets that never arrived; their slots hold zeros.
type Frame struct {
	Data []uint16
	Lost int
}

// FrameBatch is the result of a multi-frame read. Data holds whole raw
// frames; Leftover holds trailing samples already received that belong to
// the next batch. Misaligned reports that the batch did not begin on a raw
// frame boundary, which taints the frame decomposition but not the data.
type FrameBatch struct {
	Data       []uint16
	Leftover   []uint16
	Lost       int
	Misaligned bool
}

// nextPacket receives and decodes one data packet. Undersized datagrams are
// dropped without aborting the stream; they consume part of the timeout
// budget but are otherwise invisible to callers.
func (r *Reassembler) nextPacket(timeout time.Duration) (*packets.Packet, error) {
	for {
		datagram, err := r.data.ReceiveTimeout(MaxPacketSize, timeout)
		if err != nil {
			return nil, err
		}
		p, err := packets.Decode(datagram)
		if errors.Is(err, packets.ErrMalformedPacket) {
			ProblemLogger.Printf("dropping %d-byte datagram: %v", len(datagram), err)
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// placeBySlot copies a packet's samples into its sequence-numbered slot of a
// single-frame buffer. Writes that would run past the buffer are dropped:
// during an overrun the stream has already cost us this frame, and forward
// progress beats a fatal error.
func (r *Reassembler) placeBySlot(buf []uint16, p *packets.Packet) {
	n := r.params.PacketsPerFrame
	slot := (int(p.SequenceNumber-1)%n + n) % n
	start := slot * Uint16PerPacket
	if start+len(p.Samples) > len(buf) {
		ProblemLogger.Printf("dropping write of %d samples at slot %d (%v)", len(p.Samples), slot, p)
		return
	}
	copy(buf[start:], p.Samples)
}

// ReadFrame blocks until one complete frame has been reassembled and
// returns it with its loss count.
//
// The stream carries no frame markers, so the frame boundary is detected
// from the running byte counter: a packet whose counter is a multiple of the
// clipped frame size opens a frame. Everything received before that first
// aligned packet is discarded. The next aligned packet closes the frame (it
// belongs to the following frame and is not counted against this one).
func (r *Reassembler) ReadFrame(timeout time.Duration) (*Frame, error) {
	frame := &Frame{Data: make([]uint16, r.params.Uint16PerFrameClipped)}
	clipped := uint64(r.params.FrameBytesClipped)

	// Seek alignment.
	var observed int
	for {
		p, err := r.nextPacket(timeout)
		if err != nil {
			return nil, err
		}
		if p.ByteCount%clipped != 0 {
			continue
		}
		// The aligned packet opens the frame at slot 0 no matter what its
		// sequence number claims; the byte counter is the authority here.
		n := len(p.Samples)
		if n > len(frame.Data) {
			n = len(frame.Data)
		}
		copy(frame.Data[:n], p.Samples)
		observed = 1
		break
	}

	// Accumulate until the next aligned packet arrives.
	for {
		p, err := r.nextPacket(timeout)
		if err != nil {
			return nil, err
		}
		if p.ByteCount%clipped == 0 {
			frame.Lost = r.params.PacketsPerFrame - observed
			return frame, nil
		}
		r.placeBySlot(frame.Data, p)
		observed++
		if observed > r.params.PacketsPerFrame {
			// The aligned boundary packet itself was lost, so this "frame"
			// is already straddling two real ones. Reset the count and keep
			// accumulating rather than re-seeking.
			ProblemLogger.Printf("observed %d packets without a frame boundary; resetting count", observed)
			observed = 0
		}
	}
}

// ReadFrames blocks until numFrames whole raw frames beyond the supplied
// leftover have been reassembled. Unlike ReadFrame, completion is driven by
// an absolute byte-offset target computed from the first packet received,
// and the packet that crosses that target is split: the head completes the
// batch and the tail comes back as FrameBatch.Leftover, to be passed into
// the next call. Call with a nil leftover to start a stream.
func (r *Reassembler) ReadFrames(numFrames int, leftover []uint16, timeout time.Duration) (*FrameBatch, error) {
	if numFrames < 1 {
		return nil, fmt.Errorf("ReadFrames needs numFrames >= 1, have %d", numFrames)
	}
	preread := len(leftover)
	if preread > numFrames*r.params.Uint16PerFrame {
		return nil, fmt.Errorf("leftover of %d samples exceeds the %d-frame batch", preread, numFrames)
	}
	batch := &FrameBatch{Data: make([]uint16, numFrames*r.params.Uint16PerFrame)}
	copy(batch.Data, leftover)

	first, err := r.nextPacket(timeout)
	if err != nil {
		return nil, err
	}
	packetsRead := 1

	// The batch region starts with the leftover bytes, which immediately
	// precede the first packet in the sender's byte stream.
	dataStartByte := int64(first.ByteCount) - int64(2*preread)
	if dataStartByte%int64(r.params.FrameBytes) != 0 {
		batch.Misaligned = true
		ProblemLogger.Printf("not reading from the start of a frame: stream offset %d, frame size %d",
			dataStartByte, r.params.FrameBytes)
	}
	dataEndByte := dataStartByte + int64(numFrames)*int64(r.params.FrameBytes)
	expectedPackets := int((dataEndByte-dataStartByte-int64(2*preread))/BytesPerPacket) + 1

	place := func(p *packets.Packet) (done bool) {
		offsetByte := int64(p.ByteCount) - dataStartByte
		if offsetByte < 0 {
			ProblemLogger.Printf("dropping packet before batch start (%v)", p)
			return false
		}
		idx := int(offsetByte / 2)
		keep := len(p.Samples)
		if int64(p.ByteCount)+int64(2*len(p.Samples)) > dataEndByte {
			// This packet crosses the batch boundary; its tail seeds the
			// next call.
			keep = int(dataEndByte-int64(p.ByteCount)) / 2
			if keep < 0 {
				keep = 0
			}
			batch.Leftover = append([]uint16{}, p.Samples[keep:]...)
			done = true
		}
		if idx+keep > len(batch.Data) {
			ProblemLogger.Printf("dropping write of %d samples at offset %d (%v)", keep, idx, p)
			return done
		}
		copy(batch.Data[idx:], p.Samples[:keep])
		return done
	}

	if place(first) {
		batch.Lost = expectedPackets - packetsRead
		return batch, nil
	}
	for {
		p, err := r.nextPacket(timeout)
		if err != nil {
			return nil, err
		}
		packetsRead++
		if place(p) {
			batch.Lost = expectedPackets - packetsRead
			return batch, nil
		}
	}
}
