package endpoint

import (
	"net"

	"golang.org/x/sys/unix"
)

// Conn is the minimal socket surface an Endpoint needs: byte transfer
// plus the out-of-band fd passing Wayland relies on for shared memory
// and other kernel objects. UnixConn is the production implementation;
// tests substitute an in-memory fake.
type Conn interface {
	// ReadMessage performs one blocking read into buf,
	// returning the bytes read and any fds received via SCM_RIGHTS
	// ancillary data attached to that read.
	ReadMessage(buf []byte) (n int, fds []int, err error)
	// WriteMessage writes buf, attaching fds as SCM_RIGHTS ancillary
	// data when non-empty.
	WriteMessage(buf []byte, fds []int) (n int, err error)
	Close() error
}

// unixConn adapts *net.UnixConn to the Conn interface using
// golang.org/x/sys/unix to build and parse SCM_RIGHTS control
// messages, since net.UnixConn's own Read/Write don't carry ancillary
// data.
type unixConn struct {
	conn *net.UnixConn
}

// NewUnixConn wraps an established Unix domain socket connection.
func NewUnixConn(conn *net.UnixConn) Conn {
	return &unixConn{conn: conn}
}

// maxAncillaryFds bounds how many fds we ever expect attached to a
// single read; Wayland messages carry at most a handful (e.g. a
// wl_shm.create_pool fd, or the fd list of a data offer).
const maxAncillaryFds = 32

func (u *unixConn) ReadMessage(buf []byte) (int, []int, error) {
	oob := make([]byte, unix.CmsgSpace(maxAncillaryFds*4))
	n, oobn, _, _, err := u.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return n, nil, err
	}

	var fds []int
	if oobn > 0 {
		scms, parseErr := unix.ParseSocketControlMessage(oob[:oobn])
		if parseErr == nil {
			for _, scm := range scms {
				got, rightsErr := unix.ParseUnixRights(&scm)
				if rightsErr == nil {
					fds = append(fds, got...)
				}
			}
		}
	}

	return n, fds, nil
}

func (u *unixConn) WriteMessage(buf []byte, fds []int) (int, error) {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	n, _, err := u.conn.WriteMsgUnix(buf, oob, nil)
	return n, err
}

func (u *unixConn) Close() error {
	return u.conn.Close()
}
