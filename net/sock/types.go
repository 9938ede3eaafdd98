package sock

import (
	"fmt"
	"net"
	"strconv"
)

// Handle identifies a live connection from accept until close and
// release. It is never reused within a process.
type Handle uint64

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyUnspec:
		return "unspec"
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

type SockType int

const (
	Stream SockType = iota
	Datagram
)

func (t SockType) String() string {
	switch t {
	case Stream:
		return "stream"
	case Datagram:
		return "datagram"
	default:
		return fmt.Sprintf("socktype(%d)", int(t))
	}
}

type Protocol int

const (
	ProtoDefault Protocol = iota
	ProtoTCP
	ProtoUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtoDefault:
		return "default"
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ListenMode selects where the stream accept loop runs.
type ListenMode int

const (
	// Sync runs the accept loop on the goroutine calling Start.
	Sync ListenMode = iota
	// Async runs the accept loop in the background.
	Async
)

// Callback receives every payload read by a Server. data is reused for
// the next read as soon as DataReceived returns. Calls are serialized on
// the reactor; calling Server.Close or Server.Stop from one waits out
// the full teardown timeout and stalls every other connection meanwhile.
type Callback interface {
	DataReceived(h Handle, ctx any, data []byte)
}

type CallbackFunc func(h Handle, ctx any, data []byte)

func (f CallbackFunc) DataReceived(h Handle, ctx any, data []byte) {
	f(h, ctx, data)
}

// networkOf maps the socket triple onto a Go network name.
func networkOf(family Family, typ SockType, proto Protocol) (string, error) {
	var network string
	switch typ {
	case Stream:
		if proto != ProtoDefault && proto != ProtoTCP {
			return "", fmt.Errorf("sock: protocol [%s] with socket type [%s] [%w]",
				proto, typ, ErrInvalidArgument)
		}
		network = "tcp"
	case Datagram:
		if proto != ProtoDefault && proto != ProtoUDP {
			return "", fmt.Errorf("sock: protocol [%s] with socket type [%s] [%w]",
				proto, typ, ErrInvalidArgument)
		}
		network = "udp"
	default:
		return "", fmt.Errorf("sock: socket type [%s] [%w]", typ, ErrInvalidArgument)
	}
	switch family {
	case FamilyUnspec:
	case FamilyIPv4:
		network += "4"
	case FamilyIPv6:
		network += "6"
	default:
		return "", fmt.Errorf("sock: family [%s] [%w]", family, ErrInvalidArgument)
	}
	return network, nil
}

func resolveAddr(network, addr string) (net.Addr, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
		return net.ResolveTCPAddr(network, addr)
	default:
		return net.ResolveUDPAddr(network, addr)
	}
}

// Callbacks fans each payload out to several consumers in order.
type Callbacks []Callback

func (cs Callbacks) DataReceived(h Handle, ctx any, data []byte) {
	for _, c := range cs {
		c.DataReceived(h, ctx, data)
	}
}
