package main

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hsgames/netterm/net/sock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestReadInputLineMode(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := strconv.Itoa(pc.LocalAddr().(*net.UDPAddr).Port)

	c, err := sock.NewClient("test")
	require.NoError(t, err)
	require.NoError(t, c.Init("127.0.0.1", port, sock.FamilyIPv4, sock.Datagram, sock.ProtoDefault))
	defer c.Close()

	n := newNetTerm(flags{lineMode: true}, strings.NewReader("hello\nworld\n"), io.Discard)
	n.client = c
	require.True(t, errors.Is(n.readInput(context.Background()), io.EOF))

	buf := make([]byte, 64)
	for _, want := range []string{"hello\n", "world\n"} {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		m, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		require.Equal(t, want, string(buf[:m]))
	}
}

func TestReadInputCharMode(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := strconv.Itoa(pc.LocalAddr().(*net.UDPAddr).Port)

	c, err := sock.NewClient("test")
	require.NoError(t, err)
	require.NoError(t, c.Init("127.0.0.1", port, sock.FamilyIPv4, sock.Datagram, sock.ProtoDefault))
	defer c.Close()

	n := newNetTerm(flags{}, strings.NewReader("ab"), io.Discard)
	n.client = c
	require.ErrorIs(t, n.readInput(context.Background()), io.EOF)

	buf := make([]byte, 64)
	for _, want := range []string{"a", "b"} {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		m, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		require.Equal(t, want, string(buf[:m]))
	}
}
