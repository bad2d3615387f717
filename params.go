package radcap

import "fmt"

// MaxPacketSize is the receive buffer size for a single datagram from the board.
const MaxPacketSize = 4096

// BytesPerPacket is the fixed payload size of every full data packet. The
// board fills the link MTU and never fragments, so this is a constant of the
// wire protocol, not a configurable.
const BytesPerPacket = 1456

// Uint16PerPacket is the number of 16-bit ADC words in a full packet payload.
const Uint16PerPacket = BytesPerPacket / 2

// StreamParams describes the sampling geometry the sensor is configured for.
// All fields must be positive. The derived byte/packet counts are computed by
// Derive and cached in a DerivedParams.
type StreamParams struct {
	ChirpsPerFrame  int
	NumRx           int
	NumTx           int
	IQComponents    int
	SamplesPerChirp int
	BytesPerSample  int
}

// DerivedParams caches the frame and packet arithmetic implied by a
// StreamParams. A frame rarely divides evenly into packets, so most of the
// engine works in "clipped" units: the largest whole number of packets that
// fit in one frame.
type DerivedParams struct {
	StreamParams

	FrameBytes            int // raw frame size: chirps*rx*tx*IQ*samples*bytes
	FrameBytesClipped     int // frame size rounded down to whole packets
	PacketsPerFrame       int // == FrameBytesClipped / BytesPerPacket
	Uint16PerFrame        int // 16-bit words in a raw frame
	Uint16PerFrameClipped int
}

// Derive validates p and computes the derived constants.
func (p StreamParams) Derive() (*DerivedParams, error) {
	fields := []struct {
		name  string
		value int
	}{
		{"ChirpsPerFrame", p.ChirpsPerFrame},
		{"NumRx", p.NumRx},
		{"NumTx", p.NumTx},
		{"IQComponents", p.IQComponents},
		{"SamplesPerChirp", p.SamplesPerChirp},
		{"BytesPerSample", p.BytesPerSample},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return nil, fmt.Errorf("StreamParams.%s is %d, must be positive", f.name, f.value)
		}
	}

	d := &DerivedParams{StreamParams: p}
	d.FrameBytes = p.ChirpsPerFrame * p.NumRx * p.NumTx * p.IQComponents *
		p.SamplesPerChirp * p.BytesPerSample
	d.PacketsPerFrame = d.FrameBytes / BytesPerPacket
	d.FrameBytesClipped = d.PacketsPerFrame * BytesPerPacket
	if d.PacketsPerFrame < 1 {
		return nil, fmt.Errorf("frame of %d bytes is smaller than one %d-byte packet", d.FrameBytes, BytesPerPacket)
	}
	d.Uint16PerFrame = d.FrameBytes / 2
	d.Uint16PerFrameClipped = d.FrameBytesClipped / 2
	return d, nil
}
