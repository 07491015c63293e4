//go:build !linux

package pipeline

import "net"

// tuneSocketBuffers is a no-op outside Linux; the socket buffer tuning in
// sockbuf_linux.go is an optimization, not a correctness requirement.
func tuneSocketBuffers(conn *net.UDPConn) {}
