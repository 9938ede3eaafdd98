package sock

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// brokenPacketConn fails every read without blocking.
type brokenPacketConn struct {
	reads  atomic.Int32
	closed atomic.Bool
}

func (c *brokenPacketConn) ReadFrom(_ []byte) (int, net.Addr, error) {
	c.reads.Add(1)
	if c.closed.Load() {
		return 0, nil, net.ErrClosed
	}
	return 0, nil, errors.New("broken")
}

func (c *brokenPacketConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	return len(p), nil
}

func (c *brokenPacketConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *brokenPacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func (c *brokenPacketConn) SetDeadline(time.Time) error      { return nil }
func (c *brokenPacketConn) SetReadDeadline(time.Time) error  { return nil }
func (c *brokenPacketConn) SetWriteDeadline(time.Time) error { return nil }

func TestBackoff(t *testing.T) {
	var d time.Duration
	var got []time.Duration
	for i := 0; i < 10; i++ {
		d = backoff(d)
		got = append(got, d)
	}
	require.Equal(t, 5*time.Millisecond, got[0])
	require.Equal(t, 10*time.Millisecond, got[1])
	require.Equal(t, time.Second, got[9])
}

func TestDatagramReadErrorBacksOff(t *testing.T) {
	s, err := NewServer("test")
	require.NoError(t, err)
	s.bufSize = 16
	s.cb = CallbackFunc(func(Handle, any, []byte) {})
	s.startReactor()

	pc := &brokenPacketConn{}
	rec := newPacketRecord(Handle(s.ids.Next()), pc, make([]byte, s.bufSize+1))
	require.True(t, s.reg.Insert(rec))
	rec.arm(s.completions, s.reactorDone)

	time.Sleep(200 * time.Millisecond)
	// 5, 10, 20, 40 and 80ms of back-off fit in the window.
	require.Less(t, pc.reads.Load(), int32(10))

	// A close wakes the record out of its retry delay.
	start := time.Now()
	require.NoError(t, s.closeRecord(s.reg.RemoveHandle(rec.handle)))
	require.Less(t, time.Since(start), 500*time.Millisecond)

	s.terminating.Store(true)
	s.reg.pulse()
	select {
	case <-s.reactorDone:
	case <-time.After(time.Second):
		t.Fatal("reactor did not exit")
	}
}
