package stream_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teslamotors/btsocket/internal/shim/loopback"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/connector"
	"github.com/teslamotors/btsocket/pkg/connector/stream"
	"github.com/teslamotors/btsocket/pkg/protocol"
	"github.com/teslamotors/btsocket/pkg/socket"
)

var _ = Describe("Connection", func() {
	var (
		local  net.Conn
		remote net.Conn
		conn   *stream.Connection
	)

	BeforeEach(func() {
		local, remote = net.Pipe()
		conn = stream.New(local, "test peer")
		DeferCleanup(func() {
			conn.Close()
			remote.Close()
		})
	})

	It("prefixes each datagram with its length", func() {
		errs := make(chan error, 1)
		go func() {
			errs <- conn.Send(context.Background(), []byte("hello"))
		}()
		buf := make([]byte, 7)
		_, err := io.ReadFull(remote, buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf).To(Equal([]byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}))
		Eventually(errs).Should(Receive(BeNil()))
	})

	It("reassembles datagrams split across reads", func() {
		_, err := remote.Write([]byte{0x00, 0x03, 'a'})
		Expect(err).ToNot(HaveOccurred())
		_, err = remote.Write([]byte{'b', 'c', 0x00, 0x01, 'd', 0x00})
		Expect(err).ToNot(HaveOccurred())
		Eventually(conn.Receive()).Should(Receive(Equal([]byte("abc"))))
		Eventually(conn.Receive()).Should(Receive(Equal([]byte("d"))))
		Consistently(conn.Receive(), 20*time.Millisecond).ShouldNot(Receive())
	})

	It("delivers empty datagrams", func() {
		_, err := remote.Write([]byte{0x00, 0x00})
		Expect(err).ToNot(HaveOccurred())
		Eventually(conn.Receive()).Should(Receive(BeEmpty()))
	})

	It("refuses to send oversized datagrams", func() {
		err := conn.Send(context.Background(), make([]byte, connector.MaxMessageSize+1))
		Expect(err).To(MatchError(stream.ErrMessageTooLarge))
	})

	It("honors a canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(conn.Send(ctx, []byte("x"))).To(MatchError(context.Canceled))
	})

	It("drops the connection when the peer announces an oversized datagram", func() {
		_, err := remote.Write([]byte{0xff, 0xff})
		Expect(err).ToNot(HaveOccurred())
		Eventually(conn.Receive()).Should(BeClosed())
		Expect(conn.Err()).To(MatchError(stream.ErrMessageTooLarge))
	})

	It("closes the inbox when the peer hangs up", func() {
		Expect(remote.Close()).To(Succeed())
		Eventually(conn.Receive()).Should(BeClosed())
		Expect(conn.Err()).ToNot(HaveOccurred())
	})

	It("can be closed repeatedly", func() {
		conn.Close()
		conn.Close()
		Eventually(conn.Receive()).Should(BeClosed())
		Expect(conn.Send(context.Background(), []byte("x"))).To(MatchError(stream.ErrClosed))
	})

	It("reports its peer", func() {
		Expect(conn.Peer()).To(Equal("test peer"))
	})
})

var _ = Describe("Connection over sockets", func() {
	It("exchanges datagrams in both directions", func() {
		network := loopback.NewNetwork(loopback.WithMTU(3))
		serverAddr := btaddr.MustParse("B8:27:EB:00:00:01")
		dialer := socket.Dialer{Platform: network.Host(btaddr.MustParse("00:1A:7D:DA:71:13"))}
		config := socket.ListenConfig{Platform: network.Host(serverAddr)}

		listener, err := config.Listen(btaddr.Any, protocol.RFCOMM, 3)
		Expect(err).ToNot(HaveOccurred())
		defer listener.Close()
		sock, err := dialer.Dial(serverAddr, protocol.RFCOMM, 3)
		Expect(err).ToNot(HaveOccurred())
		accepted, err := listener.Accept()
		Expect(err).ToNot(HaveOccurred())

		client := stream.New(sock, sock.PeerAddr().String())
		defer client.Close()
		server := stream.New(accepted, accepted.PeerAddr().String())
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		large := bytes.Repeat([]byte{0xa5}, connector.MaxMessageSize)
		Expect(client.Send(ctx, []byte("ping"))).To(Succeed())
		Expect(client.Send(ctx, large)).To(Succeed())
		Eventually(server.Receive()).Should(Receive(Equal([]byte("ping"))))
		Eventually(server.Receive()).Should(Receive(Equal(large)))

		Expect(server.Send(ctx, []byte("pong"))).To(Succeed())
		Eventually(client.Receive()).Should(Receive(Equal([]byte("pong"))))

		client.Close()
		Eventually(server.Receive()).Should(BeClosed())
		Expect(server.Err()).ToNot(HaveOccurred())
	})
})

// idleStream never has data; every Read times out immediately.
type idleStream struct {
	reads  atomic.Int32
	closed chan struct{}
}

func (s *idleStream) Read([]byte) (int, error) {
	s.reads.Add(1)
	select {
	case <-s.closed:
		return 0, io.EOF
	default:
		return 0, protocol.NewError(protocol.Timeout, "recv", nil)
	}
}

func (s *idleStream) Write(b []byte) (int, error) {
	return len(b), nil
}

func (s *idleStream) Close() error {
	close(s.closed)
	return nil
}

var _ = Describe("Connection over a non-blocking stream", func() {
	It("does not spin while no data arrives", func() {
		rwc := &idleStream{closed: make(chan struct{})}
		conn := stream.New(rwc, "idle")
		time.Sleep(100 * time.Millisecond)
		Expect(rwc.reads.Load()).To(BeNumerically("<", 50))

		conn.Close()
		Eventually(conn.Receive()).Should(BeClosed())
		Expect(conn.Err()).ToNot(HaveOccurred())
	})
})
