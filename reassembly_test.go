package radcap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openradarlab/radcap/packets"
)

// testParams is a small geometry: 4560-byte frames that clip to 3 packets
// (4368 bytes), so the clipped and raw frame sizes genuinely differ.
func testParams(t *testing.T) *DerivedParams {
	t.Helper()
	d, err := StreamParams{ChirpsPerFrame: 2, NumRx: 2, NumTx: 1,
		IQComponents: 1, SamplesPerChirp: 570, BytesPerSample: 2}.Derive()
	require.NoError(t, err)
	require.Equal(t, 3, d.PacketsPerFrame)
	return d
}

// synthDatagram builds the i-th packet of a continuous, lossless stream:
// sequence numbers from 1, the byte counter advancing one full payload per
// packet, and a per-packet sample pattern that makes misplacement visible.
func synthDatagram(t *testing.T, i int) []byte {
	t.Helper()
	samples := make([]uint16, Uint16PerPacket)
	for j := range samples {
		samples[j] = uint16(i*31 + j)
	}
	data, err := packets.Encode(&packets.Packet{
		SequenceNumber: int32(i + 1),
		ByteCount:      uint64(i) * BytesPerPacket,
		Samples:        samples,
	})
	require.NoError(t, err)
	return data
}

func synthStream(t *testing.T, indices ...int) [][]byte {
	t.Helper()
	var stream [][]byte
	for _, i := range indices {
		stream = append(stream, synthDatagram(t, i))
	}
	return stream
}

// scriptChannel replays a fixed sequence of datagrams, then times out.
type scriptChannel struct {
	datagrams [][]byte
	pos       int
}

func (c *scriptChannel) ReceiveTimeout(maxBytes int, timeout time.Duration) ([]byte, error) {
	if c.pos >= len(c.datagrams) {
		return nil, ErrReceiveTimeout
	}
	d := c.datagrams[c.pos]
	c.pos++
	return d, nil
}

func (c *scriptChannel) Close() error { return nil }

func wantSamples(t *testing.T, indices ...int) []uint16 {
	t.Helper()
	var want []uint16
	for _, i := range indices {
		for j := 0; j < Uint16PerPacket; j++ {
			want = append(want, uint16(i*31+j))
		}
	}
	return want
}

func TestReadFrameNoLoss(t *testing.T) {
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 1, 2, 3)})
	frame, err := rb.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, frame.Lost)
	assert.Equal(t, wantSamples(t, 0, 1, 2), frame.Data)
}

func TestReadFrameWithLoss(t *testing.T) {
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 2, 3)})
	frame, err := rb.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Lost)

	// The lost packet's slot stays zeroed; its neighbors are intact.
	assert.Equal(t, wantSamples(t, 0), frame.Data[:Uint16PerPacket])
	assert.Equal(t, make([]uint16, Uint16PerPacket), frame.Data[Uint16PerPacket:2*Uint16PerPacket])
	assert.Equal(t, wantSamples(t, 2), frame.Data[2*Uint16PerPacket:])
}

func TestReadFrameReordered(t *testing.T) {
	params := testParams(t)
	inOrder := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 1, 2, 3)})
	want, err := inOrder.ReadFrame(time.Second)
	require.NoError(t, err)

	shuffled := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 2, 1, 3)})
	got, err := shuffled.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)
}

func TestReadFrameDiscardsUnaligned(t *testing.T) {
	// Joining mid-frame: packets 1 and 2 precede the first aligned packet
	// (byte counter 3*1456 = 4368 = one clipped frame) and must be dropped.
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 1, 2, 3, 4, 5, 6)})
	frame, err := rb.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, frame.Lost)
	assert.Equal(t, wantSamples(t, 3, 4, 5), frame.Data)
}

func TestReadFrameSkipsMalformedDatagrams(t *testing.T) {
	params := testParams(t)
	stream := [][]byte{{0x01, 0x02, 0x03}} // too short for a header
	stream = append(stream, synthDatagram(t, 0))
	stream = append(stream, []byte{})
	stream = append(stream, synthStream(t, 1, 2, 3)...)
	rb := NewReassembler(params, &scriptChannel{datagrams: stream})
	frame, err := rb.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, frame.Lost)
	assert.Equal(t, wantSamples(t, 0, 1, 2), frame.Data)
}

func TestReadFrameTimeout(t *testing.T) {
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{})
	_, err := rb.ReadFrame(time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestReadFrameOverrunResets(t *testing.T) {
	// The boundary packet (index 3) is lost outright, so the reassembler
	// sees more packets than fit in a frame. It must reset its count and
	// finish at the next boundary instead of running away.
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 1, 2, 4, 5, 6)})
	frame, err := rb.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Lost)
	assert.Len(t, frame.Data, params.Uint16PerFrameClipped)
}

func TestReadFramesLeftoverEquivalence(t *testing.T) {
	// Two single-frame reads with the leftover threaded between them must
	// produce exactly the same two frames as one two-frame read.
	params := testParams(t)
	stream := synthStream(t, 0, 1, 2, 3, 4, 5, 6, 7)

	rb := NewReassembler(params, &scriptChannel{datagrams: stream})
	first, err := rb.ReadFrames(1, nil, time.Second)
	require.NoError(t, err)
	second, err := rb.ReadFrames(1, first.Leftover, time.Second)
	require.NoError(t, err)

	whole := NewReassembler(params, &scriptChannel{datagrams: stream})
	both, err := whole.ReadFrames(2, nil, time.Second)
	require.NoError(t, err)

	assert.False(t, first.Misaligned)
	assert.False(t, second.Misaligned)
	assert.Equal(t, 0, first.Lost+second.Lost)
	assert.Equal(t, both.Data, append(append([]uint16{}, first.Data...), second.Data...))
	assert.Equal(t, both.Leftover, second.Leftover)
}

func TestReadFramesLoss(t *testing.T) {
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 1, 3)})
	batch, err := rb.ReadFrames(1, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Lost)
	assert.Len(t, batch.Data, params.Uint16PerFrame)

	// Packet 2 covered stream words [1456, 2184); that region stays zero.
	assert.Equal(t, make([]uint16, Uint16PerPacket), batch.Data[2*Uint16PerPacket:3*Uint16PerPacket])
	// The boundary-crossing packet still fills the batch's tail.
	tail := wantSamples(t, 3)[:params.Uint16PerFrame-3*Uint16PerPacket]
	assert.Equal(t, tail, batch.Data[3*Uint16PerPacket:])
}

func TestReadFramesMisaligned(t *testing.T) {
	// A stream joined one packet late cannot start on a raw frame
	// boundary; the batch is flagged but still returned in full.
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 1, 2, 3, 4)})
	batch, err := rb.ReadFrames(1, nil, time.Second)
	require.NoError(t, err)
	assert.True(t, batch.Misaligned)
	assert.Equal(t, 0, batch.Lost)
	assert.Len(t, batch.Data, params.Uint16PerFrame)
}

func TestReadFramesTimeout(t *testing.T) {
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{datagrams: synthStream(t, 0, 1)})
	_, err := rb.ReadFrames(1, nil, time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestReadFramesRejectsBadArguments(t *testing.T) {
	params := testParams(t)
	rb := NewReassembler(params, &scriptChannel{})
	_, err := rb.ReadFrames(0, nil, time.Second)
	assert.Error(t, err)

	oversized := make([]uint16, params.Uint16PerFrame+1)
	_, err = rb.ReadFrames(1, oversized, time.Second)
	assert.Error(t, err)
}
