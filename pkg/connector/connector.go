// Package connector defines a datagram interface on top of Bluetooth stream sockets.
package connector

import (
	"context"
)

// BufferSize is the number of inbound messages that can be queued.
const BufferSize = 5

// MaxMessageSize caps the byte-length of a single datagram.
const MaxMessageSize = 1024

// Connector sends and receives raw datagrams ([]byte) to and from a remote device.
type Connector interface {
	// Receive returns a read-only channel used to receive datagrams sent by the peer. The channel
	// is closed when the connection terminates.
	//
	// Implementations must be thread safe.
	Receive() <-chan []byte

	// Send sends a buffer to the peer.
	//
	// If the returned error is a protocol.Error with Timeout() true, the peer may have received a
	// prefix of the message and the connection should be closed.
	//
	// Implementations must be thread safe.
	Send(ctx context.Context, buffer []byte) error

	// Peer returns a description of the remote endpoint.
	Peer() string

	// Close terminates the connection.
	//
	// Repeated calls to Close() must be idempotent, but the behavior of the interface is otherwise
	// undefined after calling this method.
	Close()
}
