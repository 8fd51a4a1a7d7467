package socket_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/mocks"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
	"github.com/teslamotors/btsocket/pkg/socket"
)

var _ = Describe("Platform failures", func() {
	const handle = shim.Handle(42)

	var (
		ctrl     *gomock.Controller
		platform *mocks.Platform
	)

	nativeErr := func(kind protocol.ErrorKind, op string) error {
		return protocol.NewError(kind, op, errors.New("native failure"))
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		platform = mocks.NewPlatform(ctrl)
	})

	Describe("Peek", func() {
		It("uses the non-consuming receive and keeps its error kind", func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil)
			platform.EXPECT().Connect(handle, serverAddr, uint16(channel), gomock.Any()).Return(nil)
			platform.EXPECT().LocalAddr(handle).Return(clientAddr, uint16(1), nil)
			d := socket.Dialer{Platform: platform}
			conn, err := d.Dial(serverAddr, protocol.RFCOMM, channel)
			Expect(err).ToNot(HaveOccurred())

			platform.EXPECT().Peek(handle, gomock.Any()).DoAndReturn(func(_ shim.Handle, b []byte) (int, error) {
				return copy(b, "hi"), nil
			})
			buf := make([]byte, 8)
			Expect(conn.Peek(buf)).To(Equal(2))
			Expect(buf[:2]).To(Equal([]byte("hi")))

			platform.EXPECT().Peek(handle, gomock.Any()).Return(0, nativeErr(protocol.BrokenPipe, shim.OpPeek))
			_, err = conn.Peek(buf)
			Expect(err).To(MatchError(protocol.BrokenPipe))
		})
	})

	Describe("Dial", func() {
		It("does not close a handle that was never opened", func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(shim.Handle(0), nativeErr(protocol.ResourceExhausted, shim.OpOpen))
			d := socket.Dialer{Platform: platform}
			_, err := d.Dial(serverAddr, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.ResourceExhausted))
		})

		It("closes the handle exactly once when connect fails", func() {
			gomock.InOrder(
				platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil),
				platform.EXPECT().Connect(handle, serverAddr, uint16(channel), gomock.Any()).Return(nativeErr(protocol.HostUnreachable, shim.OpConnect)),
				platform.EXPECT().Close(handle).Return(nil),
			)
			d := socket.Dialer{Platform: platform}
			_, err := d.Dial(serverAddr, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.HostUnreachable))
			var sockErr *protocol.SocketError
			Expect(errors.As(err, &sockErr)).To(BeTrue())
			Expect(sockErr.Op).To(Equal(shim.OpConnect))
		})

		It("passes the timeout to the platform", func() {
			platform.EXPECT().Open(protocol.L2CAP).Return(handle, nil)
			platform.EXPECT().Connect(handle, serverAddr, uint16(0x1001), socketTimeout).Return(nativeErr(protocol.Timeout, shim.OpConnect))
			platform.EXPECT().Close(handle).Return(nil)
			d := socket.Dialer{Platform: platform, Timeout: socketTimeout}
			_, err := d.Dial(serverAddr, protocol.L2CAP, 0x1001)
			Expect(protocol.IsTimeout(err)).To(BeTrue())
		})

		It("closes the handle when a timeout cannot be applied", func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil)
			platform.EXPECT().Connect(handle, serverAddr, uint16(channel), gomock.Any()).Return(nil)
			platform.EXPECT().SetOption(handle, shim.OptionReadTimeout, int64(socketTimeout)).Return(nativeErr(protocol.Unsupported, shim.OpSetOpt))
			platform.EXPECT().Close(handle).Return(nil)
			d := socket.Dialer{Platform: platform, ReadTimeout: socketTimeout}
			_, err := d.Dial(serverAddr, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.Unsupported))
		})

		It("returns the original error when cleanup also fails", func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil)
			platform.EXPECT().Connect(handle, serverAddr, uint16(channel), gomock.Any()).Return(nativeErr(protocol.ConnectionRefused, shim.OpConnect))
			platform.EXPECT().Close(handle).Return(nativeErr(protocol.Closed, shim.OpClose))
			d := socket.Dialer{Platform: platform}
			_, err := d.Dial(serverAddr, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.ConnectionRefused))
		})
	})

	Describe("Listen", func() {
		It("closes the handle when bind fails", func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil)
			platform.EXPECT().Bind(handle, btaddr.Any, uint16(channel)).Return(nativeErr(protocol.AddressInUse, shim.OpBind))
			platform.EXPECT().Close(handle).Return(nil)
			lc := socket.ListenConfig{Platform: platform}
			_, err := lc.Listen(btaddr.Any, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.AddressInUse))
		})

		It("uses the default backlog and closes the handle when listen fails", func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil)
			platform.EXPECT().Bind(handle, btaddr.Any, uint16(channel)).Return(nil)
			platform.EXPECT().Listen(handle, shim.DefaultBacklog).Return(nativeErr(protocol.ResourceExhausted, shim.OpListen))
			platform.EXPECT().Close(handle).Return(nil)
			lc := socket.ListenConfig{Platform: platform}
			_, err := lc.Listen(btaddr.Any, protocol.RFCOMM, channel)
			Expect(err).To(MatchError(protocol.ResourceExhausted))
		})
	})

	Describe("Accept", func() {
		var listener *socket.Listener

		BeforeEach(func() {
			platform.EXPECT().Open(protocol.RFCOMM).Return(handle, nil)
			platform.EXPECT().Bind(handle, btaddr.Any, uint16(channel)).Return(nil)
			platform.EXPECT().Listen(handle, 4).Return(nil)
			platform.EXPECT().LocalAddr(handle).Return(serverAddr, uint16(channel), nil)
			lc := socket.ListenConfig{Platform: platform, Backlog: 4}
			var err error
			listener, err = lc.Listen(btaddr.Any, protocol.RFCOMM, channel)
			Expect(err).ToNot(HaveOccurred())
		})

		It("returns Interrupted unchanged so the caller can retry", func() {
			const conn = shim.Handle(43)
			gomock.InOrder(
				platform.EXPECT().Accept(handle).Return(shim.Handle(0), btaddr.Any, uint16(0), nativeErr(protocol.Interrupted, shim.OpAccept)),
				platform.EXPECT().Accept(handle).Return(conn, clientAddr, uint16(0), nil),
			)
			platform.EXPECT().LocalAddr(conn).Return(serverAddr, uint16(channel), nil)

			_, err := listener.Accept()
			Expect(err).To(MatchError(protocol.Interrupted))
			Expect(protocol.ShouldRetry(err)).To(BeTrue())

			accepted, err := listener.Accept()
			Expect(err).ToNot(HaveOccurred())
			Expect(accepted.PeerAddr().Addr).To(Equal(clientAddr))
			Expect(accepted.Raw().Handle()).To(Equal(conn))
		})

		It("closes the accepted handle when its address cannot be read", func() {
			const conn = shim.Handle(44)
			platform.EXPECT().Accept(handle).Return(conn, clientAddr, uint16(0), nil)
			platform.EXPECT().LocalAddr(conn).Return(btaddr.Any, uint16(0), nativeErr(protocol.BrokenPipe, shim.OpSockname))
			platform.EXPECT().Close(conn).Return(nil)
			_, err := listener.Accept()
			Expect(err).To(MatchError(protocol.BrokenPipe))
		})

		It("closes the native handle once", func() {
			platform.EXPECT().Shutdown(handle, shim.ShutdownBoth).Return(nativeErr(protocol.InvalidState, shim.OpShutdown))
			platform.EXPECT().Close(handle).Return(nil).Times(1)
			Expect(listener.Close()).To(Succeed())
			Expect(listener.Close()).To(MatchError(protocol.Closed))
			_, err := listener.Accept()
			Expect(err).To(MatchError(protocol.Closed))
		})
	})
})
