package sensors

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrNotReady is returned by Node.Read when no sample is queued.
var ErrNotReady = errors.New("sensors: no data ready")

// Node is an open sensor lowerhalf.
type Node struct {
	path string
	fd   int
}

// OpenNode opens a lowerhalf read-only and non-blocking.
func OpenNode(path string) (*Node, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Node{path: path, fd: fd}, nil
}

// NewNode wraps an already open descriptor. The Node takes ownership of fd.
func NewNode(fd int, path string) *Node {
	return &Node{path: path, fd: fd}
}

func (n *Node) Fd() int { return n.fd }

func (n *Node) Path() string { return n.path }

// Read reads one record. A drained node yields ErrNotReady.
func (n *Node) Read(p []byte) (int, error) {
	for {
		m, err := unix.Read(n.fd, p)
		switch {
		case err == nil:
			return m, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrNotReady
		default:
			return 0, fmt.Errorf("read %s: %w", n.path, err)
		}
	}
}

// Ioctl issues a control request with arg passed by pointer.
func (n *Node) Ioctl(req uint, arg []byte) error {
	var ptr unsafe.Pointer
	if len(arg) > 0 {
		ptr = unsafe.Pointer(&arg[0])
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(n.fd), uintptr(req), uintptr(ptr)); errno != 0 {
		return fmt.Errorf("ioctl %#x on %s: %w", req, n.path, errno)
	}
	return nil
}

// Close releases the descriptor. Closing twice is a no-op.
func (n *Node) Close() error {
	if n == nil || n.fd < 0 {
		return nil
	}
	err := unix.Close(n.fd)
	n.fd = -1
	if err != nil {
		return fmt.Errorf("close %s: %w", n.path, err)
	}
	return nil
}

// Poll waits up to timeout for any of nodes to become readable and reports
// which ones are.
func Poll(nodes []*Node, timeout time.Duration) ([]bool, error) {
	fds := make([]unix.PollFd, len(nodes))
	for i, n := range nodes {
		fds[i] = unix.PollFd{Fd: int32(n.fd), Events: unix.POLLIN}
	}
	if _, err := unix.Poll(fds, int(timeout/time.Millisecond)); err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	ready := make([]bool, len(nodes))
	for i := range fds {
		ready[i] = fds[i].Revents&unix.POLLIN != 0
	}
	return ready, nil
}
