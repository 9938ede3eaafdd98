package http_test

import (
	"io"
	nethttp "net/http"
	"testing"

	"github.com/hsgames/netterm/net/http"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (*nethttp.Response, string) {
	t.Helper()
	resp, err := nethttp.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestServerServeAndRecover(t *testing.T) {
	trace := func(name string) http.Middleware {
		return func(h http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				w.Header().Add("X-Trace", name)
				h(w, r)
			}
		}
	}
	s := http.NewServer("test", "tcp", "127.0.0.1:0",
		http.ServerMiddlewares(trace("outer"), trace("inner"), http.NewAccessLogMiddleware()))
	s.Handle("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	s.Handle("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	require.Error(t, s.Serve())
	require.NoError(t, s.Listen())
	require.Error(t, s.Listen())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve()
	}()

	resp, body := get(t, "http://"+s.Addr()+"/ok")
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body)
	require.Equal(t, []string{"outer", "inner"}, resp.Header.Values("X-Trace"))

	resp, _ = get(t, "http://"+s.Addr()+"/panic")
	require.Equal(t, nethttp.StatusInternalServerError, resp.StatusCode)

	s.Shutdown()
	s.Shutdown()
	require.NoError(t, <-done)
	require.Error(t, s.Serve())
	require.Error(t, s.Listen())
}

func TestPProfServer(t *testing.T) {
	s := http.NewPProfServer("pprof", "tcp", "127.0.0.1:0")
	require.NoError(t, s.Listen())
	go func() {
		_ = s.Serve()
	}()
	defer s.Shutdown()

	resp, _ := get(t, "http://"+s.Addr()+"/debug/pprof/cmdline")
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
}

func TestShutdownWithoutServe(t *testing.T) {
	s := http.NewServer("idle", "tcp", "127.0.0.1:0")
	require.NoError(t, s.Listen())
	addr := s.Addr()
	s.Shutdown()

	// The port is free again.
	s = http.NewServer("again", "tcp", addr)
	require.NoError(t, s.Listen())
	s.Shutdown()
}

func TestHandleNil(t *testing.T) {
	s := http.NewServer("nil", "tcp", "127.0.0.1:0")
	require.Panics(t, func() {
		s.Handle("/", nil)
	})
}
