// Package packets decodes the raw data packets the capture board streams
// over UDP. Each datagram is a 10-byte header followed by ADC samples:
//
//	bytes      type            meaning
//	0-3        int32 (LE)      sequence number, starts at 1, wraps mod 2^32
//	4-9        uint48 (LE)     payload bytes sent through the end of this packet
//	10-end     uint16 (LE)     ADC samples
//
// The byte counter is the stream's only synchronization signal: the board
// emits no frame markers, so frame boundaries are found by arithmetic on it.
package packets

import (
	"encoding/binary"
	"fmt"
)

// HeaderLength is the number of bytes preceding the sample payload.
const HeaderLength = 10

// ErrMalformedPacket means a datagram was too short to hold a packet header.
var ErrMalformedPacket = fmt.Errorf("malformed packet: shorter than %d-byte header", HeaderLength)

// MaxByteCount is the largest value the 6-byte counter can carry.
const MaxByteCount = 1<<48 - 1

// Packet is one decoded data packet.
type Packet struct {
	SequenceNumber int32    // monotonic per sender session, starts at 1
	ByteCount      uint64   // 48-bit running payload byte counter
	Samples        []uint16 // payload as little-endian 16-bit words
}

// Decode parses a raw datagram into a Packet the caller owns. No range
// validation happens here: oversized or undersized payloads are the
// reassembler's concern.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderLength {
		return nil, ErrMalformedPacket
	}
	p := new(Packet)
	p.SequenceNumber = int32(binary.LittleEndian.Uint32(data[0:4]))
	p.ByteCount = byteCounter(data[4:10])
	payload := data[HeaderLength:]
	p.Samples = make([]uint16, len(payload)/2)
	for i := range p.Samples {
		p.Samples[i] = binary.LittleEndian.Uint16(payload[2*i:])
	}
	return p, nil
}

// byteCounter reads the 6-byte little-endian running counter. The wire
// format truncates the sender's 64-bit counter to its low 48 bits; the
// missing top 16 bits are always zero and carry no signal.
func byteCounter(b []byte) uint64 {
	var count uint64
	for i := 5; i >= 0; i-- {
		count = count<<8 | uint64(b[i])
	}
	return count
}

// Encode builds the wire form of p, for test streams and the mock board.
func Encode(p *Packet) ([]byte, error) {
	if p.ByteCount > MaxByteCount {
		return nil, fmt.Errorf("byte count %d does not fit in 48 bits", p.ByteCount)
	}
	data := make([]byte, HeaderLength+2*len(p.Samples))
	binary.LittleEndian.PutUint32(data[0:4], uint32(p.SequenceNumber))
	for i := 0; i < 6; i++ {
		data[4+i] = byte(p.ByteCount >> (8 * i))
	}
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(data[HeaderLength+2*i:], s)
	}
	return data, nil
}

// String summarizes the header for probes and logs.
func (p *Packet) String() string {
	return fmt.Sprintf("packet seq %d, byte count %d, %d samples",
		p.SequenceNumber, p.ByteCount, len(p.Samples))
}
