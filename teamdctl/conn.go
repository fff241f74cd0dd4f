package teamdctl

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// seqpacketConn is a connected AF_UNIX SOCK_SEQPACKET socket, the
// transport teamd listens on. Each Send and Recv moves exactly one
// message.
type seqpacketConn struct {
	fd int
}

// dialSeqpacket connects to the socket at path. A positive timeout
// bounds every later Send and Recv.
func dialSeqpacket(path string, timeout time.Duration) (*seqpacketConn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	c := &seqpacketConn{fd: fd}

	if timeout > 0 {
		tv := unix.NsecToTimeval(max(timeout, minTimeout).Nanoseconds())
		for _, opt := range []int{unix.SO_RCVTIMEO, unix.SO_SNDTIMEO} {
			if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv); err != nil {
				c.Close()
				return nil, fmt.Errorf("setsockopt: %w", err)
			}
		}
	}

	for {
		err = unix.Connect(fd, &unix.SockaddrUnix{Name: path})
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return c, nil
}

func (c *seqpacketConn) Send(msg []byte) error {
	for {
		err := unix.Sendmsg(c.fd, msg, nil, nil, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("sendmsg: %w", err)
		}
		return nil
	}
}

// Recv returns one message of at most MaxMessageSize bytes. An orderly
// shutdown by the peer is reported as an error.
func (c *seqpacketConn) Recv() ([]byte, error) {
	buf := make([]byte, MaxMessageSize)
	var n int
	var err error
	for {
		n, _, _, _, err = unix.Recvmsg(c.fd, buf, nil, 0)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("recvmsg: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("recvmsg: empty message")
	}
	return buf[:n], nil
}

func (c *seqpacketConn) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}
