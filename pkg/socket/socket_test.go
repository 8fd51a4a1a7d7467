package socket_test

import (
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/internal/shim/loopback"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
	"github.com/teslamotors/btsocket/pkg/socket"
)

var (
	clientAddr = btaddr.MustParse("00:1A:7D:DA:71:13")
	serverAddr = btaddr.MustParse("B8:27:EB:00:00:01")
)

const (
	channel       = 5
	socketTimeout = 50 * time.Millisecond
)

var _ = Describe("Socket", func() {
	var (
		network  *loopback.Network
		client   *loopback.Host
		server   *loopback.Host
		dialer   socket.Dialer
		config   socket.ListenConfig
		listener *socket.Listener
	)

	connect := func() (*socket.Socket, *socket.Socket) {
		conn, err := dialer.Dial(serverAddr, protocol.RFCOMM, channel)
		Expect(err).ToNot(HaveOccurred())
		accepted, err := listener.Accept()
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			conn.Close()
			accepted.Close()
		})
		return conn, accepted
	}

	readFull := func(conn *socket.Socket, size int) []byte {
		buf := make([]byte, size)
		_, err := io.ReadFull(conn, buf)
		Expect(err).ToNot(HaveOccurred())
		return buf
	}

	BeforeEach(func() {
		network = loopback.NewNetwork()
		client = network.Host(clientAddr)
		server = network.Host(serverAddr)
		dialer = socket.Dialer{Platform: client}
		config = socket.ListenConfig{Platform: server}
		var err error
		listener, err = config.Listen(btaddr.Any, protocol.RFCOMM, channel)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			listener.Close()
		})
	})

	Describe("Listen", func() {
		It("reports the bound endpoint", func() {
			Expect(listener.LocalAddr()).To(Equal(socket.Endpoint{Protocol: protocol.RFCOMM, Addr: serverAddr, Port: channel}))
			Expect(listener.Protocol()).To(Equal(protocol.RFCOMM))
		})

		It("fails with AddressInUse when the channel is taken", func() {
			_, err := config.Listen(serverAddr, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.AddressInUse))
			Expect(server.OpenHandles()).To(Equal(1))
		})

		It("allows the channel to be reused after close", func() {
			Expect(listener.Close()).To(Succeed())
			again, err := config.Listen(serverAddr, protocol.RFCOMM, channel)
			Expect(err).ToNot(HaveOccurred())
			Expect(again.Close()).To(Succeed())
		})

		It("allocates a port when none is given", func() {
			dynamic, err := config.Listen(btaddr.Any, protocol.L2CAP, 0)
			Expect(err).ToNot(HaveOccurred())
			defer dynamic.Close()
			psm := dynamic.LocalAddr().Port
			Expect(protocol.ValidatePort(protocol.L2CAP, psm, false)).To(Succeed())
		})

		It("rejects invalid ports before opening a handle", func() {
			_, err := config.Listen(btaddr.Any, protocol.RFCOMM, 31)
			Expect(err).To(MatchError(protocol.InvalidAddress))
			_, err = config.Listen(btaddr.Any, protocol.L2CAP, 0x1002)
			Expect(err).To(MatchError(protocol.InvalidAddress))
			Expect(server.OpenHandles()).To(Equal(1))
		})

		It("rejects addresses of other adapters", func() {
			_, err := config.Listen(clientAddr, protocol.RFCOMM, 7)
			Expect(err).To(MatchError(protocol.InvalidAddress))
			Expect(server.OpenHandles()).To(Equal(1))
		})
	})

	Describe("Accept", func() {
		It("returns a socket whose peer is the dialer's local endpoint", func() {
			conn, accepted := connect()
			Expect(accepted.PeerAddr()).To(Equal(conn.LocalAddr()))
			Expect(accepted.PeerAddr().Addr).To(Equal(clientAddr))
			Expect(accepted.LocalAddr()).To(Equal(conn.PeerAddr()))
		})

		It("times out when nothing connects", func() {
			Expect(listener.SetAcceptTimeout(20 * time.Millisecond)).To(Succeed())
			_, err := listener.Accept()
			Expect(err).To(MatchError(protocol.Timeout))
			Expect(protocol.IsTimeout(err)).To(BeTrue())
		})

		It("fails with Closed after the listener is closed", func() {
			Expect(listener.Close()).To(Succeed())
			_, err := listener.Accept()
			Expect(err).To(MatchError(protocol.Closed))
			Expect(listener.Close()).To(MatchError(protocol.Closed))
		})

		It("is woken by Close from another goroutine", func() {
			done := make(chan error)
			go func() {
				_, err := listener.Accept()
				done <- err
			}()
			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())
			Expect(listener.Close()).To(Succeed())
			Eventually(done).Should(Receive(MatchError(protocol.Closed)))
		})
	})

	Describe("Dial", func() {
		It("fails with ConnectionRefused when nothing is listening", func() {
			_, err := dialer.Dial(serverAddr, protocol.RFCOMM, channel+1)
			Expect(err).To(MatchError(protocol.ConnectionRefused))
			Expect(client.OpenHandles()).To(BeZero())
		})

		It("fails with HostUnreachable for unknown devices", func() {
			_, err := dialer.Dial(btaddr.MustParse("11:22:33:44:55:66"), protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.HostUnreachable))
			Expect(client.OpenHandles()).To(BeZero())
		})

		It("fails with Timeout and releases the handle when the device does not answer", func() {
			network.Silence(serverAddr)
			baseline := client.OpenHandles()
			dialer.Timeout = 20 * time.Millisecond
			_, err := dialer.Dial(serverAddr, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.Timeout))
			Expect(client.OpenHandles()).To(Equal(baseline))
		})

		It("rejects the wildcard address and invalid channels", func() {
			_, err := dialer.Dial(btaddr.Any, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.InvalidAddress))
			_, err = dialer.Dial(serverAddr, protocol.RFCOMM, 0)
			Expect(err).To(MatchError(protocol.InvalidAddress))
			_, err = dialer.Dial(serverAddr, protocol.Protocol(9), 1)
			Expect(err).To(MatchError(protocol.Unsupported))
			Expect(client.OpenHandles()).To(BeZero())
		})

		It("applies configured timeouts", func() {
			dialer.ReadTimeout = time.Second
			dialer.WriteTimeout = 2 * time.Second
			conn, _ := connect()
			Expect(conn.ReadTimeout()).To(Equal(time.Second))
			Expect(conn.WriteTimeout()).To(Equal(2 * time.Second))
		})

		It("connects over L2CAP", func() {
			l2, err := config.Listen(btaddr.Any, protocol.L2CAP, 0x1001)
			Expect(err).ToNot(HaveOccurred())
			defer l2.Close()
			conn, err := dialer.Dial(serverAddr, protocol.L2CAP, 0x1001)
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			accepted, err := l2.Accept()
			Expect(err).ToNot(HaveOccurred())
			defer accepted.Close()
			Expect(conn.Protocol()).To(Equal(protocol.L2CAP))
			Expect(accepted.PeerAddr()).To(Equal(conn.LocalAddr()))
		})
	})

	Describe("Read and Write", func() {
		It("transmits bytes unmodified and in order", func() {
			conn, accepted := connect()
			payload := []byte("The quick brown fox jumps over the lazy dog")
			Expect(conn.Write(payload)).To(Equal(len(payload)))

			var received []byte
			buf := make([]byte, 5)
			for len(received) < len(payload) {
				n, err := accepted.Read(buf)
				Expect(err).ToNot(HaveOccurred())
				Expect(n).To(BeNumerically(">", 0))
				received = append(received, buf[:n]...)
			}
			Expect(received).To(Equal(payload))
		})

		It("writes everything when the stack accepts partial writes", func() {
			network = loopback.NewNetwork(loopback.WithMTU(4))
			client = network.Host(clientAddr)
			server = network.Host(serverAddr)
			dialer.Platform = client
			config.Platform = server
			var err error
			listener, err = config.Listen(btaddr.Any, protocol.RFCOMM, channel)
			Expect(err).ToNot(HaveOccurred())

			conn, accepted := connect()
			Expect(conn.Raw().Write([]byte("0123456789"))).To(Equal(4))
			Expect(conn.Write([]byte("abcdefghij"))).To(Equal(10))
			Expect(readFull(accepted, 14)).To(Equal([]byte("0123abcdefghij")))
		})

		It("times out a read and leaves the socket open", func() {
			conn, accepted := connect()
			Expect(accepted.SetReadTimeout(20 * time.Millisecond)).To(Succeed())
			_, err := accepted.Read(make([]byte, 8))
			Expect(err).To(MatchError(protocol.Timeout))

			Expect(conn.Write([]byte("late"))).To(Equal(4))
			Expect(readFull(accepted, 4)).To(Equal([]byte("late")))
		})

		It("fails immediately in non-blocking mode", func() {
			_, accepted := connect()
			Expect(accepted.SetNonBlocking(true)).To(Succeed())
			Expect(accepted.Raw().NonBlocking()).To(BeTrue())
			_, err := accepted.Read(make([]byte, 8))
			Expect(err).To(MatchError(protocol.Timeout))
		})

		It("returns EOF after the peer closes", func() {
			conn, accepted := connect()
			Expect(conn.Write([]byte("bye"))).To(Equal(3))
			Expect(conn.Close()).To(Succeed())
			Expect(readFull(accepted, 3)).To(Equal([]byte("bye")))
			_, err := accepted.Read(make([]byte, 8))
			Expect(err).To(Equal(io.EOF))
		})

		It("fails with BrokenPipe when writing to a closed peer", func() {
			conn, accepted := connect()
			Expect(accepted.Close()).To(Succeed())
			_, err := conn.Write([]byte("anyone?"))
			Expect(err).To(MatchError(protocol.BrokenPipe))
		})

		It("wakes a blocked reader on close", func() {
			conn, _ := connect()
			done := make(chan error)
			go func() {
				_, err := conn.Read(make([]byte, 8))
				done <- err
			}()
			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())
			Expect(conn.Close()).To(Succeed())
			Eventually(done).Should(Receive(HaveOccurred()))
		})

		It("peeks without consuming", func() {
			conn, accepted := connect()
			Expect(conn.Write([]byte("peekaboo"))).To(Equal(8))

			buf := make([]byte, 4)
			Expect(accepted.Peek(buf)).To(Equal(4))
			Expect(buf).To(Equal([]byte("peek")))
			Expect(accepted.Peek(buf)).To(Equal(4))
			Expect(buf).To(Equal([]byte("peek")))
			Expect(readFull(accepted, 8)).To(Equal([]byte("peekaboo")))

			Expect(accepted.SetNonBlocking(true)).To(Succeed())
			_, err := accepted.Peek(buf)
			Expect(err).To(MatchError(protocol.Timeout))
		})

		It("reports end of stream and closure from Peek like Read", func() {
			conn, accepted := connect()
			Expect(accepted.Shutdown(shim.ShutdownRead)).To(Succeed())
			n, err := accepted.Peek(make([]byte, 8))
			Expect(n).To(BeZero())
			Expect(err).To(Equal(io.EOF))

			Expect(conn.Close()).To(Succeed())
			_, err = conn.Peek(make([]byte, 8))
			Expect(err).To(MatchError(protocol.Closed))
		})

		It("reports pending errors once", func() {
			conn, _ := connect()
			network.Inject(conn.Raw().Handle(), protocol.HostUnreachable)
			Expect(conn.TakeError()).To(MatchError(protocol.HostUnreachable))
			Expect(conn.TakeError()).To(Succeed())
		})
	})

	Describe("Close", func() {
		It("makes every operation fail with Closed without blocking", func() {
			conn, _ := connect()
			Expect(conn.Close()).To(Succeed())

			_, err := conn.Read(make([]byte, 8))
			Expect(err).To(MatchError(protocol.Closed))
			_, err = conn.Write([]byte("x"))
			Expect(err).To(MatchError(protocol.Closed))
			Expect(conn.Shutdown(shim.ShutdownRead)).To(MatchError(protocol.Closed))
			Expect(conn.SetReadTimeout(time.Second)).To(MatchError(protocol.Closed))
			Expect(conn.TakeError()).To(MatchError(protocol.Closed))
			Expect(conn.Close()).To(MatchError(protocol.Closed))
		})

		It("releases every handle", func() {
			conn, accepted := connect()
			Expect(client.OpenHandles()).To(Equal(1))
			Expect(server.OpenHandles()).To(Equal(2))
			Expect(conn.Close()).To(Succeed())
			Expect(accepted.Close()).To(Succeed())
			Expect(client.OpenHandles()).To(BeZero())
			Expect(server.OpenHandles()).To(Equal(1))
		})

		It("is safe to call concurrently", func() {
			conn, _ := connect()
			results := make(chan error, 4)
			for i := 0; i < 4; i++ {
				go func() {
					results <- conn.Close()
				}()
			}
			succeeded := 0
			for i := 0; i < 4; i++ {
				if err := <-results; err == nil {
					succeeded++
				} else {
					Expect(err).To(MatchError(protocol.Closed))
				}
			}
			Expect(succeeded).To(Equal(1))
		})

		It("can race with Shutdown", func() {
			conn, _ := connect()
			shutdown := make(chan error, 1)
			go func() {
				shutdown <- conn.Shutdown(shim.ShutdownWrite)
			}()
			Expect(conn.Close()).To(Succeed())
			if err := <-shutdown; err != nil {
				Expect(protocol.KindOf(err)).To(BeElementOf(protocol.Closed, protocol.InvalidState))
			}
		})
	})

	Describe("Shutdown", func() {
		It("returns EOF after shutting down reads", func() {
			conn, accepted := connect()
			Expect(accepted.Shutdown(shim.ShutdownRead)).To(Succeed())
			Expect(conn.Write([]byte("ignored"))).To(Equal(7))
			n, err := accepted.Read(make([]byte, 8))
			Expect(n).To(BeZero())
			Expect(err).To(Equal(io.EOF))
		})

		It("fails writes with InvalidState after shutting down writes", func() {
			conn, accepted := connect()
			Expect(conn.Shutdown(shim.ShutdownWrite)).To(Succeed())
			_, err := conn.Write([]byte("x"))
			Expect(err).To(MatchError(protocol.InvalidState))

			_, err = accepted.Read(make([]byte, 8))
			Expect(err).To(Equal(io.EOF))
			Expect(accepted.Write([]byte("reply"))).To(Equal(5))
			Expect(readFull(conn, 5)).To(Equal([]byte("reply")))
		})

		It("wakes a reader blocked in another goroutine", func() {
			_, accepted := connect()
			done := make(chan error, 1)
			go func() {
				_, err := accepted.Read(make([]byte, 8))
				done <- err
			}()
			Consistently(done, 20*time.Millisecond).ShouldNot(Receive())
			Expect(accepted.Shutdown(shim.ShutdownRead)).To(Succeed())
			Eventually(done).Should(Receive(Equal(io.EOF)))
		})

		It("rejects shutting down the same direction twice", func() {
			conn, _ := connect()
			Expect(conn.Shutdown(shim.ShutdownWrite)).To(Succeed())
			Expect(conn.Shutdown(shim.ShutdownWrite)).To(MatchError(protocol.InvalidState))
			Expect(conn.Shutdown(shim.ShutdownBoth)).To(Succeed())
			Expect(conn.Shutdown(shim.ShutdownRead)).To(MatchError(protocol.InvalidState))
			Expect(conn.Shutdown(shim.ShutdownBoth)).To(MatchError(protocol.InvalidState))
		})
	})

	Describe("Endpoint", func() {
		It("implements net.Addr", func() {
			e := socket.Endpoint{Protocol: protocol.L2CAP, Addr: serverAddr, Port: 0x1001}
			Expect(e.Network()).To(Equal("l2cap"))
			Expect(e.String()).To(Equal("[B8:27:EB:00:00:01]:4097"))
		})
	})
})
