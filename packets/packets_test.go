package packets

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		seq     int32
		count   uint64
		samples []uint16
	}{
		{1, 0, []uint16{0xbeef, 0x1234}},
		{360, 524160, []uint16{}},
		{-1, MaxByteCount, []uint16{7}},
		{1 << 30, 1 << 40, []uint16{0, 0xffff, 0x8000}},
	}
	for _, tt := range tests {
		p1 := &Packet{SequenceNumber: tt.seq, ByteCount: tt.count, Samples: tt.samples}
		data, err := Encode(p1)
		if err != nil {
			t.Fatalf("Encode(%v) returns error %v", p1, err)
		}
		p2, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() returns error %v", err)
		}
		if p2.SequenceNumber != tt.seq {
			t.Errorf("sequence number is %d, want %d", p2.SequenceNumber, tt.seq)
		}
		if p2.ByteCount != tt.count {
			t.Errorf("byte count is %d, want %d", p2.ByteCount, tt.count)
		}
		if len(p2.Samples) != len(tt.samples) {
			t.Errorf("decoded %d samples, want %d", len(p2.Samples), len(tt.samples))
			continue
		}
		for i, s := range tt.samples {
			if p2.Samples[i] != s {
				t.Errorf("sample %d is 0x%x, want 0x%x", i, p2.Samples[i], s)
			}
		}
	}
}

func TestByteCounterWireOrder(t *testing.T) {
	// Counter 0x0000_0102_0304_0506 appears on the wire least-significant
	// byte first, directly after the 4-byte sequence number.
	p := &Packet{SequenceNumber: 1, ByteCount: 0x010203040506}
	data, err := Encode(p)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(data[4:10], want) {
		t.Errorf("counter bytes are % x, want % x", data[4:10], want)
	}
}

func TestEncodeOverflow(t *testing.T) {
	p := &Packet{ByteCount: MaxByteCount + 1}
	if _, err := Encode(p); err == nil {
		t.Error("Encode accepted a byte count wider than 48 bits")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for size := 0; size < HeaderLength; size++ {
		if _, err := Decode(make([]byte, size)); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("Decode of %d bytes returns %v, want ErrMalformedPacket", size, err)
		}
	}
	if _, err := Decode(make([]byte, HeaderLength)); err != nil {
		t.Errorf("Decode of a bare header returns error %v", err)
	}
}
