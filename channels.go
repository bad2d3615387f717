package radcap

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrReceiveTimeout means no datagram arrived within the caller's timeout.
// It is recoverable: the stream state (leftover samples, alignment) is
// unchanged and the caller may simply call again.
var ErrReceiveTimeout = errors.New("receive timed out")

// DataChannel is the one-way stream of data packets from the board.
type DataChannel interface {
	// ReceiveTimeout blocks for one datagram of at most maxBytes, or until
	// timeout elapses, in which case it returns ErrReceiveTimeout.
	ReceiveTimeout(maxBytes int, timeout time.Duration) ([]byte, error)
	Close() error
}

// ControlChannel is the bidirectional command endpoint of the board.
type ControlChannel interface {
	Send([]byte) error
	ReceiveTimeout(maxBytes int, timeout time.Duration) ([]byte, error)
	Close() error
}

// UDPChannel is a DataChannel/ControlChannel over a bound UDP socket.
// Closing the channel aborts any blocked receive.
type UDPChannel struct {
	conn *net.UDPConn
	dest *net.UDPAddr // nil for receive-only data channels
}

// NewUDPChannel binds localAddr ("ip:port") for receiving. If destAddr is
// nonempty, Send directs datagrams there.
func NewUDPChannel(localAddr, destAddr string) (*UDPChannel, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	ch := new(UDPChannel)
	if destAddr != "" {
		if ch.dest, err = net.ResolveUDPAddr("udp", destAddr); err != nil {
			return nil, err
		}
	}
	if ch.conn, err = net.ListenUDP("udp", laddr); err != nil {
		return nil, err
	}
	return ch, nil
}

// LocalAddr returns the bound address, useful when binding to port 0.
func (ch *UDPChannel) LocalAddr() net.Addr {
	return ch.conn.LocalAddr()
}

// Send transmits one datagram to the channel's destination.
func (ch *UDPChannel) Send(msg []byte) error {
	if ch.dest == nil {
		return fmt.Errorf("UDP channel on %v has no destination address", ch.conn.LocalAddr())
	}
	_, err := ch.conn.WriteToUDP(msg, ch.dest)
	return err
}

// ReceiveTimeout blocks for a single datagram, for at most timeout.
func (ch *UDPChannel) ReceiveTimeout(maxBytes int, timeout time.Duration) ([]byte, error) {
	if err := ch.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, maxBytes)
	n, _, err := ch.conn.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fmt.Errorf("%w after %v", ErrReceiveTimeout, timeout)
		}
		return nil, err
	}
	return buf[:n], nil
}

// Close closes the socket, waking any goroutine blocked in ReceiveTimeout.
func (ch *UDPChannel) Close() error {
	return ch.conn.Close()
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrReceiveTimeout)
}
