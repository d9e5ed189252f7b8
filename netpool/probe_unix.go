//go:build darwin || linux

package netpool

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// probeIdle checks whether an idle connection is still quiet. A readable or
// errored socket means the peer closed it (or sent unsolicited bytes) while
// it sat in the pool, either way it must not be reused.
func probeIdle(conn net.Conn) bool {
	raw := conn
	if t, ok := raw.(interface{ NetConn() net.Conn }); ok {
		// unwrap *tls.Conn and polyfilled TLS connections
		raw = t.NetConn()
	}
	sc, ok := raw.(syscall.Conn)
	if !ok {
		return true
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return true
	}
	alive := true
	cerr := rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		if err != nil {
			return
		}
		if n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			alive = false
		}
	})
	return cerr == nil && alive
}
