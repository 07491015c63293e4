//go:build linux

package pipeline

import (
	"net"

	"golang.org/x/sys/unix"
)

// sockBufBytes is the receive/send buffer size requested on the ingress and
// egress UDP sockets, large enough to absorb a burst of packets without
// kernel-level drops ahead of processPacket's single-threaded hot path.
const sockBufBytes = 4 << 20

// tuneSocketBuffers raises SO_RCVBUF/SO_SNDBUF on conn's underlying file
// descriptor (§6 "Sockets"). Best-effort: a failure here only means the
// kernel default stays in effect, never a fatal condition.
func tuneSocketBuffers(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, sockBufBytes)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sockBufBytes)
	})
}
