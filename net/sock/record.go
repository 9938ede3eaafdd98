package sock

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsgames/netterm/pool/bytespool"
	"github.com/hsgames/netterm/safe"
	"github.com/pkg/errors"
)

// completion is the result of a record's single outstanding read.
type completion struct {
	rec  *record
	n    int
	addr net.Addr
	err  error
}

type peerAddr struct {
	addr net.Addr
}

type record struct {
	handle   Handle
	typ      SockType
	conn     net.Conn
	pconn    net.PacketConn
	buf      []byte
	peer     atomic.Pointer[peerAddr]
	detached atomic.Bool
	writeMu  sync.Mutex
	closed   chan struct{}
	ackOnce  sync.Once
	relOnce  sync.Once

	// detachChan wakes a read waiting out a retry delay.
	detachChan chan struct{}
	detachOnce sync.Once
}

func newStreamRecord(h Handle, conn net.Conn, buf []byte) *record {
	return &record{
		handle:     h,
		typ:        Stream,
		conn:       conn,
		buf:        buf,
		closed:     make(chan struct{}),
		detachChan: make(chan struct{}),
	}
}

func newPacketRecord(h Handle, pconn net.PacketConn, buf []byte) *record {
	return &record{
		handle:     h,
		typ:        Datagram,
		pconn:      pconn,
		buf:        buf,
		closed:     make(chan struct{}),
		detachChan: make(chan struct{}),
	}
}

func (r *record) String() string {
	if r.typ == Datagram {
		var remote string
		if p := r.peer.Load(); p != nil {
			remote = p.addr.String()
		}
		return fmt.Sprintf("[handle:%s][local_addr:%s][peer_addr:%s]",
			r.handle, r.pconn.LocalAddr(), remote)
	}
	return fmt.Sprintf("[handle:%s][local_addr:%s][remote_addr:%s]",
		r.handle, r.conn.LocalAddr(), r.conn.RemoteAddr())
}

// arm issues the record's next read. The result goes to completions, or,
// once the reactor is gone, straight to the closed ack since nobody else
// will touch the record's buffer again.
func (r *record) arm(completions chan<- completion, reactorDone <-chan struct{}) {
	r.armAfter(0, completions, reactorDone)
}

// armAfter is arm with the read held back for delay. A detach cuts the
// wait short.
func (r *record) armAfter(delay time.Duration, completions chan<- completion, reactorDone <-chan struct{}) {
	safe.Go(func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-r.detachChan:
				timer.Stop()
			case <-reactorDone:
				timer.Stop()
				r.ack()
				return
			}
		}
		c := completion{rec: r}
		if r.pconn != nil {
			c.n, c.addr, c.err = r.pconn.ReadFrom(r.buf)
		} else {
			c.n, c.err = r.conn.Read(r.buf)
		}
		select {
		case completions <- c:
		case <-reactorDone:
			r.ack()
		}
	})
}

func (r *record) ack() {
	r.ackOnce.Do(func() {
		close(r.closed)
	})
}

func (r *record) setPeer(addr net.Addr) {
	if addr != nil {
		r.peer.Store(&peerAddr{addr: addr})
	}
}

func (r *record) closeSocket() error {
	var err error
	if r.pconn != nil {
		err = r.pconn.Close()
	} else {
		err = r.conn.Close()
	}
	if err != nil && !isLocalShutdown(err) {
		return errors.Wrapf(err, "sock: record %s close", r)
	}
	return nil
}

// detach marks the record as owned by a closer and invalidates its
// socket so the outstanding read completes with a local shutdown.
func (r *record) detach() error {
	r.detached.Store(true)
	r.detachOnce.Do(func() {
		close(r.detachChan)
	})
	return r.closeSocket()
}

// release frees the record. The buffer goes back to the pool only when
// no read can still be writing into it.
func (r *record) release(reuseBuf bool) {
	r.relOnce.Do(func() {
		if err := r.closeSocket(); err != nil {
			slog.Error("sock: record release", slog.Any("error", err))
		}
		if reuseBuf {
			bytespool.Put(r.buf)
		}
		r.ack()
	})
}

func (r *record) write(data []byte, timeout time.Duration) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	var (
		n   int
		err error
	)
	if r.pconn != nil {
		p := r.peer.Load()
		if p == nil {
			return 0, fmt.Errorf("sock: record %s no peer to write to [%w]", r, ErrInvalidArgument)
		}
		if err = r.pconn.SetWriteDeadline(deadline); err == nil {
			n, err = r.pconn.WriteTo(data, p.addr)
		}
	} else {
		if err = r.conn.SetWriteDeadline(deadline); err == nil {
			n, err = r.conn.Write(data)
		}
	}
	switch {
	case err == nil:
		return n, nil
	case isTimeout(err):
		return n, fmt.Errorf("sock: record %s write [%w]", r, ErrOperationTimedOut)
	case isLocalShutdown(err):
		return n, fmt.Errorf("sock: record %s write [%w]", r, ErrLocalShutdown)
	case isPeerClosed(err):
		return n, fmt.Errorf("sock: record %s write err [%w]: %w", r, ErrPeerClosed, err)
	default:
		return n, errors.Wrapf(err, "sock: record %s write", r)
	}
}
