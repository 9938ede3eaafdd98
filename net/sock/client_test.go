package sock_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hsgames/netterm/net/sock"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, typ sock.SockType, port string, opt ...sock.ClientOption) *sock.Client {
	t.Helper()
	c, err := sock.NewClient("test", opt...)
	require.NoError(t, err)
	require.NoError(t, c.Init("127.0.0.1", port, sock.FamilyIPv4, typ, sock.ProtoDefault))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestClientRetriesRefusedConnect(t *testing.T) {
	// Reserve a port, then leave nothing listening on it for a while.
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	accepted := make(chan net.Conn, 1)
	go func() {
		time.Sleep(2 * time.Second)
		l, err := net.Listen("tcp4", addr)
		if err != nil {
			t.Errorf("late listen: %v", err)
			return
		}
		defer l.Close()
		conn, err := l.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	c := newClient(t, sock.Stream, portOf(t, addr), sock.WithRetryInterval(100*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, c.Connect(ctx))
	require.GreaterOrEqual(t, time.Since(start), time.Second)

	n, err := c.SyncWrite([]byte("hello"), time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(3 * time.Second):
		t.Fatal("not accepted")
	}
	defer conn.Close()
	buf := make([]byte, 8)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestClientConnectCancelled(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := newClient(t, sock.Stream, portOf(t, addr), sock.WithRetryInterval(50*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = c.Connect(ctx)
	require.ErrorIs(t, err, sock.ErrConnectFailed)

	done := make(chan error, 1)
	go func() {
		done <- c.Connect(context.Background())
	}()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, c.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, sock.ErrLocalShutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("connect not interrupted by close")
	}
}

func TestClientReadTimeoutNoStaleData(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := newClient(t, sock.Stream, portOf(t, l.Addr().String()))
	require.NoError(t, c.Connect(context.Background()))
	peer := <-accepted
	defer peer.Close()

	buf := make([]byte, 16)
	start := time.Now()
	_, err = c.SyncRead(buf, 200*time.Millisecond)
	require.ErrorIs(t, err, sock.ErrOperationTimedOut)
	require.Less(t, time.Since(start), time.Second)

	_, err = peer.Write([]byte("fresh"))
	require.NoError(t, err)
	n, err := c.SyncRead(buf, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(buf[:n]))
}

func TestClientReconnectsAfterPeerClose(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	c := newClient(t, sock.Stream, portOf(t, l.Addr().String()))
	_, err = c.SyncWrite([]byte("one"), time.Second)
	require.NoError(t, err)
	first := <-accepted
	require.NoError(t, first.Close())

	_, err = c.SyncRead(make([]byte, 8), 2*time.Second)
	require.ErrorIs(t, err, sock.ErrPeerClosed)

	_, err = c.SyncWrite([]byte("two"), time.Second)
	require.NoError(t, err)
	second := <-accepted
	defer second.Close()
	buf := make([]byte, 8)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := second.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "two", string(buf[:n]))
}

func TestClientRoundTripThroughServer(t *testing.T) {
	got := make(chan []byte, 16)
	s := startServer(t, sock.Stream, 256, func(s *sock.Server, h sock.Handle, data []byte) {
		b := make([]byte, len(data))
		copy(b, data)
		got <- b
	})
	c := newClient(t, sock.Stream, portOf(t, s.Addr()))

	msgs := []string{"first", "second", "third"}
	for _, m := range msgs {
		_, err := c.SyncWrite([]byte(m), time.Second)
		require.NoError(t, err)
		var b []byte
		select {
		case b = <-got:
		case <-time.After(3 * time.Second):
			t.Fatal("no callback")
		}
		require.Equal(t, m, string(b))
	}
}

func TestClientErrors(t *testing.T) {
	c, err := sock.NewClient("errors")
	require.NoError(t, err)
	_, err = c.SyncWrite([]byte("x"), time.Second)
	require.ErrorIs(t, err, sock.ErrNotInitialized)

	require.NoError(t, c.Init("host.invalid", "6668", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault))
	require.ErrorIs(t, c.Init("host.invalid", "6668", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault),
		sock.ErrAlreadyInitialized)
	require.ErrorIs(t, c.Connect(context.Background()), sock.ErrAddressResolutionFailed)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.SyncRead(make([]byte, 1), time.Second)
	require.ErrorIs(t, err, sock.ErrLocalShutdown)

	_, err = sock.NewClient("bad", sock.WithRetryInterval(0))
	require.Error(t, err)
}
