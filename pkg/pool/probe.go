package pool

import (
	"net"
	"syscall"
)

var probeBuf = []byte{0}

// connReusable reports whether an idle connection can carry another request.
// It peeks the socket with MSG_PEEK|MSG_DONTWAIT, so a healthy connection
// costs nothing to check and no payload byte is consumed.
//
// The socket must be open with no unread bytes: data showing up on an idle
// connection means the peer closed it or the stream desynced, and either way
// the next response parse would read garbage.
//
// Requires syscall.Conn access to the descriptor (Linux, macOS); connections
// that cannot be probed report not reusable.
//
// See https://stackoverflow.com/a/58664631/3200607
func connReusable(conn net.Conn) bool {
	// unwrap *tls.Conn and similar wrappers
	for {
		v, ok := conn.(interface{ NetConn() net.Conn })
		if !ok {
			break
		}
		conn = v.NetConn()
	}

	sconn, ok := conn.(syscall.Conn)
	if !ok {
		return false
	}

	rc, err := sconn.SyscallConn()
	if err != nil {
		return false
	}

	reusable := false
	if rc.Read(func(fd uintptr) bool {
		_, _, err := syscall.Recvfrom(int(fd), probeBuf, syscall.MSG_PEEK|syscall.MSG_DONTWAIT)

		// EWOULDBLOCK means established with nothing pending. A zero-length
		// read is the peer's FIN; readable bytes are a desynced stream.
		reusable = err == syscall.EWOULDBLOCK || err == syscall.EAGAIN

		return true
	}) != nil {
		return false
	}

	return reusable
}
