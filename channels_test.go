package radcap

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPChannelSendReceive(t *testing.T) {
	receiver, err := NewUDPChannel("127.0.0.1:0", "")
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewUDPChannel("127.0.0.1:0", receiver.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	msg := []byte{0x5a, 0xa5, 0x09, 0x00, 0x00, 0x00, 0xaa, 0xee}
	require.NoError(t, sender.Send(msg))
	got, err := receiver.ReceiveTimeout(MaxPacketSize, time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestUDPChannelSendWithoutDestination(t *testing.T) {
	ch, err := NewUDPChannel("127.0.0.1:0", "")
	require.NoError(t, err)
	defer ch.Close()
	assert.Error(t, ch.Send([]byte{1, 2, 3}))
}

func TestUDPChannelTimeout(t *testing.T) {
	ch, err := NewUDPChannel("127.0.0.1:0", "")
	require.NoError(t, err)
	defer ch.Close()

	start := time.Now()
	_, err = ch.ReceiveTimeout(64, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUDPChannelCloseAbortsReceive(t *testing.T) {
	ch, err := NewUDPChannel("127.0.0.1:0", "")
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := ch.ReceiveTimeout(64, 10*time.Second)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ch.Close())

	select {
	case err := <-errs:
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrReceiveTimeout)
	case <-time.After(2 * time.Second):
		t.Error("Close did not abort the blocked receive")
	}
}

// TestLoopbackFrameRead drives the reassembler over a real UDP socket,
// with a goroutine standing in for the board.
func TestLoopbackFrameRead(t *testing.T) {
	params := testParams(t)
	receiver, err := NewUDPChannel("127.0.0.1:0", "")
	require.NoError(t, err)
	defer receiver.Close()

	raddr, err := net.ResolveUDPAddr("udp", receiver.LocalAddr().String())
	require.NoError(t, err)
	conn, err := net.DialUDP("udp", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	stream := synthStream(t, 0, 1, 2, 3)
	go func() {
		for _, d := range stream {
			conn.Write(d)
			time.Sleep(time.Millisecond)
		}
	}()

	rb := NewReassembler(params, receiver)
	frame, err := rb.ReadFrame(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, frame.Lost)
	assert.Equal(t, wantSamples(t, 0, 1, 2), frame.Data)
}
