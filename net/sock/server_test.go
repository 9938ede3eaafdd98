package sock_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hsgames/netterm/net/sock"
	"github.com/stretchr/testify/require"
)

type event struct {
	h    sock.Handle
	data string
}

func portOf(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return port
}

func startServer(t *testing.T, typ sock.SockType, bufSize int,
	cb func(s *sock.Server, h sock.Handle, data []byte)) *sock.Server {
	t.Helper()
	s, err := sock.NewServer("test", sock.WithTeardownTimeout(2*time.Second))
	require.NoError(t, err)
	require.NoError(t, s.Init("0", sock.FamilyIPv4, typ, sock.ProtoDefault))
	require.NoError(t, s.Start(sock.CallbackFunc(func(h sock.Handle, ctx any, data []byte) {
		if ctx != "ctx" {
			t.Errorf("callback ctx %v", ctx)
		}
		cb(s, h, data)
	}), "ctx", bufSize, sock.Async))
	t.Cleanup(func() {
		_ = s.Stop()
	})
	return s
}

func recv(t *testing.T, events <-chan event) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no callback")
		return event{}
	}
}

func TestDatagramPing(t *testing.T) {
	events := make(chan event, 8)
	s := startServer(t, sock.Datagram, 1024, func(s *sock.Server, h sock.Handle, data []byte) {
		events <- event{h, string(data)}
		_, _ = s.Write(h, []byte("PONG"), time.Second)
	})

	c, err := sock.NewClient("test")
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Init("127.0.0.1", portOf(t, s.Addr()), sock.FamilyIPv4, sock.Datagram, sock.ProtoDefault))

	n, err := c.SyncWrite([]byte("PING"), time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	ev := recv(t, events)
	require.Equal(t, "PING", ev.data)

	buf := make([]byte, 1024)
	n, err = c.SyncRead(buf, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "PONG", string(buf[:n]))
	require.Equal(t, 1, s.ConnNum())
}

func TestDatagramOversizeRejected(t *testing.T) {
	events := make(chan event, 8)
	s := startServer(t, sock.Datagram, 8, func(s *sock.Server, h sock.Handle, data []byte) {
		events <- event{h, string(data)}
	})

	conn, err := net.Dial("udp4", "127.0.0.1:"+portOf(t, s.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("12345678"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("ok"))
	require.NoError(t, err)

	require.Equal(t, "12345678", recv(t, events).data)
	require.Equal(t, "ok", recv(t, events).data)
	select {
	case ev := <-events:
		t.Fatalf("unexpected callback %q", ev.data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamClientsIndependent(t *testing.T) {
	events := make(chan event, 16)
	s := startServer(t, sock.Stream, 1024, func(s *sock.Server, h sock.Handle, data []byte) {
		events <- event{h, string(data)}
	})
	addr := "127.0.0.1:" + portOf(t, s.Addr())

	a, err := net.Dial("tcp4", addr)
	require.NoError(t, err)
	b, err := net.Dial("tcp4", addr)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Write([]byte("a1"))
	require.NoError(t, err)
	evA := recv(t, events)
	require.Equal(t, "a1", evA.data)

	_, err = b.Write([]byte("b1"))
	require.NoError(t, err)
	evB := recv(t, events)
	require.Equal(t, "b1", evB.data)
	require.NotEqual(t, evA.h, evB.h)
	require.Equal(t, []sock.Handle{evA.h, evB.h}, s.Handles())

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return s.ConnNum() == 1
	}, 3*time.Second, 10*time.Millisecond)

	_, err = b.Write([]byte("b2"))
	require.NoError(t, err)
	ev := recv(t, events)
	require.Equal(t, event{evB.h, "b2"}, ev)

	_, err = s.Write(evA.h, []byte("x"), time.Second)
	require.ErrorIs(t, err, sock.ErrInvalidConnectionHandle)
	n, err := s.Write(evB.h, []byte("hi"), time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, 8)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestStreamOrderlyAndAbortivePeerClose(t *testing.T) {
	events := make(chan event, 16)
	s := startServer(t, sock.Stream, 64, func(s *sock.Server, h sock.Handle, data []byte) {
		events <- event{h, string(data)}
	})
	addr := "127.0.0.1:" + portOf(t, s.Addr())

	for _, abort := range []bool{false, true} {
		conn, err := net.Dial("tcp4", addr)
		require.NoError(t, err)
		_, err = conn.Write([]byte("x"))
		require.NoError(t, err)
		ev := recv(t, events)

		if abort {
			require.NoError(t, conn.(*net.TCPConn).SetLinger(0))
		}
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool {
			return s.ConnNum() == 0
		}, 3*time.Second, 10*time.Millisecond)
		_, err = s.Write(ev.h, []byte("x"), time.Second)
		require.ErrorIs(t, err, sock.ErrInvalidConnectionHandle)
	}
	require.Empty(t, events)
}

func TestServerCloseConnection(t *testing.T) {
	events := make(chan event, 16)
	s := startServer(t, sock.Stream, 64, func(s *sock.Server, h sock.Handle, data []byte) {
		events <- event{h, string(data)}
	})

	conn, err := net.Dial("tcp4", "127.0.0.1:"+portOf(t, s.Addr()))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	ev := recv(t, events)

	start := time.Now()
	require.NoError(t, s.Close(ev.h))
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, 0, s.ConnNum())
	require.ErrorIs(t, s.Close(ev.h), sock.ErrInvalidConnectionHandle)

	buf := make([]byte, 8)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(buf)
	require.Error(t, err)
	require.Empty(t, events)
}

func TestServerStop(t *testing.T) {
	events := make(chan event, 16)
	s := startServer(t, sock.Stream, 64, func(s *sock.Server, h sock.Handle, data []byte) {
		events <- event{h, string(data)}
	})
	addr := "127.0.0.1:" + portOf(t, s.Addr())

	var conns []net.Conn
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp4", addr)
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte("x"))
		require.NoError(t, err)
		recv(t, events)
		conns = append(conns, conn)
	}
	require.Equal(t, 3, s.ConnNum())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Equal(t, 0, s.ConnNum())

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err := conn.Read(make([]byte, 1))
		require.Error(t, err)
	}
	_, err := net.DialTimeout("tcp4", addr, time.Second)
	require.Error(t, err)

	err = s.Start(sock.CallbackFunc(func(sock.Handle, any, []byte) {}), nil, 64, sock.Async)
	require.ErrorIs(t, err, sock.ErrServerStopped)
}

func TestServerSyncMode(t *testing.T) {
	s, err := sock.NewServer("sync")
	require.NoError(t, err)
	require.NoError(t, s.Init("0", sock.FamilyIPv4, sock.Stream, sock.ProtoTCP))

	done := make(chan error, 1)
	go func() {
		done <- s.Start(sock.CallbackFunc(func(sock.Handle, any, []byte) {}), nil, 64, sock.Sync)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp4", "127.0.0.1:"+portOf(t, s.Addr()))
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("sync start did not return")
	}
}

func TestServerLifecycleErrors(t *testing.T) {
	s, err := sock.NewServer("errors")
	require.NoError(t, err)
	defer s.Stop()

	cb := sock.CallbackFunc(func(sock.Handle, any, []byte) {})
	require.ErrorIs(t, s.Start(cb, nil, 64, sock.Async), sock.ErrNotInitialized)
	require.ErrorIs(t, s.Init("no-such-service-netterm", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault),
		sock.ErrAddressResolutionFailed)
	require.ErrorIs(t, s.Init("0", sock.FamilyIPv4, sock.Datagram, sock.ProtoTCP), sock.ErrInvalidArgument)
	require.NoError(t, s.Init("0", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault))
	require.ErrorIs(t, s.Init("0", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault), sock.ErrAlreadyInitialized)
	require.ErrorIs(t, s.Start(nil, nil, 64, sock.Async), sock.ErrInvalidArgument)
	require.ErrorIs(t, s.Start(cb, nil, 0, sock.Async), sock.ErrInvalidArgument)
	require.NoError(t, s.Start(cb, nil, 64, sock.Async))
	require.ErrorIs(t, s.Start(cb, nil, 64, sock.Async), sock.ErrAlreadyInitialized)

	other, err := sock.NewServer("other")
	require.NoError(t, err)
	defer other.Stop()
	require.ErrorIs(t, other.Init(portOf(t, s.Addr()), sock.FamilyIPv4, sock.Stream, sock.ProtoDefault),
		sock.ErrBindFailed)

	_, err = sock.NewServer("bad", sock.WithTeardownTimeout(0))
	require.Error(t, err)
}

func TestServerMaxConnNum(t *testing.T) {
	events := make(chan event, 16)
	s, err := sock.NewServer("limit", sock.WithMaxConnNum(1))
	require.NoError(t, err)
	require.NoError(t, s.Init("0", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault))
	require.NoError(t, s.Start(sock.CallbackFunc(func(h sock.Handle, _ any, data []byte) {
		events <- event{h, string(data)}
	}), nil, 64, sock.Async))
	defer s.Stop()
	addr := "127.0.0.1:" + portOf(t, s.Addr())

	a, err := net.Dial("tcp4", addr)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Write([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "a", recv(t, events).data)

	// The second connection completes in the kernel backlog but is not
	// accepted until the first one goes away.
	b, err := net.Dial("tcp4", addr)
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Write([]byte("b"))
	require.NoError(t, err)
	select {
	case ev := <-events:
		t.Fatalf("unexpected callback %q", ev.data)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, a.Close())
	require.Equal(t, "b", recv(t, events).data)
}

func TestServerCloseAckTimeout(t *testing.T) {
	const teardown = 200 * time.Millisecond
	s, err := sock.NewServer("test", sock.WithTeardownTimeout(teardown))
	require.NoError(t, err)
	require.NoError(t, s.Init("0", sock.FamilyIPv4, sock.Stream, sock.ProtoDefault))

	type closeResult struct {
		elapsed time.Duration
		err     error
	}
	results := make(chan closeResult, 1)
	require.NoError(t, s.Start(sock.CallbackFunc(func(h sock.Handle, _ any, _ []byte) {
		// The reactor is inside this call, so nothing acknowledges the close.
		start := time.Now()
		err := s.Close(h)
		results <- closeResult{elapsed: time.Since(start), err: err}
	}), nil, 64, sock.Async))
	defer s.Stop()

	conn, err := net.Dial("tcp", "127.0.0.1:"+portOf(t, s.Addr()))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)

	var res closeResult
	select {
	case res = <-results:
	case <-time.After(3 * time.Second):
		t.Fatal("close did not return")
	}
	require.ErrorIs(t, res.err, sock.ErrOperationTimedOut)
	require.GreaterOrEqual(t, res.elapsed, teardown)
	require.Equal(t, 0, s.ConnNum())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(t, netErr.Timeout(), "peer socket still open")
	}

	// The reactor is free again and the server stops cleanly.
	require.NoError(t, s.Stop())
}
