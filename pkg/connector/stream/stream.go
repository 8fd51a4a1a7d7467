// Package stream implements connector.Connector over a byte stream such as a socket.Socket.
//
// Each datagram is prefixed with its length as a 16-bit big-endian integer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/connector"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

const (
	headerLength = 2
	readSize     = 512

	// timeoutBackoff spaces out reads that time out immediately, as on a non-blocking socket.
	timeoutBackoff = 10 * time.Millisecond
)

var (
	ErrMessageTooLarge = fmt.Errorf("message exceeds %d bytes", connector.MaxMessageSize)
	ErrClosed          = errors.New("connection closed")
)

// writeTimeouter is implemented by socket.Socket.
type writeTimeouter interface {
	SetWriteTimeout(time.Duration) error
}

// Connection frames datagrams over rwc. It owns rwc and closes it on Close.
type Connection struct {
	peer        string
	rwc         io.ReadWriteCloser
	inbox       chan []byte
	inputBuffer []byte

	lock sync.Mutex

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	err       error
}

var _ connector.Connector = (*Connection)(nil)

// New starts receiving datagrams from rwc. A blocking socket gives the lowest latency; with a
// read timeout or in non-blocking mode, reads that time out are retried after a short pause.
func New(rwc io.ReadWriteCloser, peer string) *Connection {
	c := &Connection{
		peer:    peer,
		rwc:     rwc,
		inbox:   make(chan []byte, connector.BufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.receive()
	return c
}

func (c *Connection) Peer() string {
	return c.peer
}

func (c *Connection) Receive() <-chan []byte {
	return c.inbox
}

// Err returns the error that stopped the receiver, or nil if it is still running or the peer
// closed the connection cleanly.
func (c *Connection) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Connection) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Connection) receive() {
	// done is closed first so that Err is final once the inbox is closed.
	defer close(c.inbox)
	defer close(c.done)
	buf := make([]byte, readSize)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			if rxErr := c.rx(buf[:n]); rxErr != nil {
				c.err = rxErr
				log.Warning("Dropping connection to %s: %s", c.peer, rxErr)
				c.rwc.Close()
				return
			}
		}
		if err == nil {
			continue
		}
		if protocol.ShouldRetry(err) {
			continue
		}
		if protocol.IsTimeout(err) {
			select {
			case <-c.closing:
				return
			case <-time.After(timeoutBackoff):
			}
			continue
		}
		if !errors.Is(err, io.EOF) && !c.isClosing() {
			c.err = err
			log.Warning("Error reading from %s: %s", c.peer, err)
		}
		return
	}
}

// rx appends p to the input buffer and delivers every complete message.
func (c *Connection) rx(p []byte) error {
	c.inputBuffer = append(c.inputBuffer, p...)
	for len(c.inputBuffer) >= headerLength {
		msgLength := 256*int(c.inputBuffer[0]) + int(c.inputBuffer[1])
		if msgLength > connector.MaxMessageSize {
			c.inputBuffer = nil
			return ErrMessageTooLarge
		}
		if len(c.inputBuffer) < headerLength+msgLength {
			return nil
		}
		buffer := make([]byte, msgLength)
		copy(buffer, c.inputBuffer[headerLength:])
		c.inputBuffer = c.inputBuffer[headerLength+msgLength:]
		log.Debug("RX: %02x", buffer)
		select {
		case c.inbox <- buffer:
		case <-c.closing:
			return nil
		}
	}
	return nil
}

func (c *Connection) Send(ctx context.Context, buffer []byte) error {
	if len(buffer) > connector.MaxMessageSize {
		return ErrMessageTooLarge
	}
	if c.isClosing() {
		return ErrClosed
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if w, ok := c.rwc.(writeTimeouter); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return context.DeadlineExceeded
			}
			if err := w.SetWriteTimeout(remaining); err != nil {
				return err
			}
			defer w.SetWriteTimeout(0)
		}
	}

	log.Debug("TX: %02x", buffer)
	out := make([]byte, 0, headerLength+len(buffer))
	out = append(out, uint8(len(buffer)>>8), uint8(len(buffer)))
	out = append(out, buffer...)
	_, err := c.rwc.Write(out)
	return err
}

// Close closes the underlying stream and waits for the receiver to exit.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		if err := c.rwc.Close(); err != nil {
			log.Debug("Closing connection to %s: %s", c.peer, err)
		}
	})
	<-c.done
}
