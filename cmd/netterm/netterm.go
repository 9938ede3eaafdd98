package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hsgames/netterm/app"
	"github.com/hsgames/netterm/log"
	"github.com/hsgames/netterm/net/http"
	"github.com/hsgames/netterm/net/mirror"
	"github.com/hsgames/netterm/net/sock"
	"github.com/hsgames/netterm/term"
	"github.com/pkg/errors"
)

// netTerm wires the receiving server, the sending client and the
// console together.
type netTerm struct {
	flags   flags
	cfg     Config
	logger  io.Closer
	in      io.Reader
	out     io.Writer
	console *term.Console
	capture *log.FileWriter
	mirror  *mirror.Server
	server  *sock.Server
	client  *sock.Client
}

func newNetTerm(f flags, in io.Reader, out io.Writer) *netTerm {
	return &netTerm{
		flags: f,
		in:    in,
		out:   out,
	}
}

// initConfig loads the persisted endpoints, applies the command line and
// writes the result back when it changed.
func (n *netTerm) initConfig() error {
	path := n.flags.config
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	changed, err := n.flags.apply(&cfg)
	if err != nil {
		return err
	}
	if changed {
		if err = app.SaveConf(path, &cfg); err != nil {
			slog.Warn(fmt.Sprintf("netterm: save config [%s]", path), slog.Any("error", err))
		}
	}
	n.cfg = cfg
	return nil
}

func (n *netTerm) sockType() sock.SockType {
	if n.flags.tcp {
		return sock.Stream
	}
	return sock.Datagram
}

func (n *netTerm) protoName() string {
	if n.flags.tcp {
		return "TCP"
	}
	return "UDP"
}

func (n *netTerm) Init() error {
	logger, err := app.InitLog(n.flags.LogFlags)
	if err != nil {
		return err
	}
	n.logger = logger
	if err = n.initConfig(); err != nil {
		return err
	}

	opts := []term.Option{
		term.WithAppendLF(n.flags.appendLF),
		term.WithDumpBin(n.flags.dumpBin),
	}
	if n.flags.capture != "" {
		w, err := log.NewFileWriter(n.flags.capture,
			log.FilePrefix("capture"), log.FileHeader(false))
		if err != nil {
			return err
		}
		n.capture = w
		opts = append(opts, term.WithCapture(w))
	}
	n.console = term.NewConsole(term.NewANSIWriter(n.out), opts...)
	cb := sock.Callbacks{n.console}

	if !n.flags.noClient {
		var c *sock.Client
		c, err = sock.NewClient("netterm")
		if err != nil {
			return err
		}
		if err = c.Init(n.cfg.RemoteAddr, n.cfg.RemotePort, sock.FamilyIPv4, n.sockType(), sock.ProtoDefault); err != nil {
			return err
		}
		n.client = c
	}

	if n.flags.mirror != "" {
		mopts := []mirror.Option{
			mirror.WithHTTPOptions(http.ServerMiddlewares(http.NewAccessLogMiddleware())),
		}
		if n.client != nil {
			mopts = append(mopts, mirror.WithOnInput(func(data []byte) {
				n.send(data)
			}))
		}
		var m *mirror.Server
		m, err = mirror.NewServer("mirror", "tcp", n.flags.mirror, mopts...)
		if err != nil {
			return err
		}
		n.mirror = m
		cb = append(cb, m)
	}

	var s *sock.Server
	s, err = sock.NewServer("netterm")
	if err != nil {
		return err
	}
	if err = s.Init(n.cfg.LocalPort, sock.FamilyIPv4, n.sockType(), sock.ProtoDefault); err != nil {
		return err
	}
	n.server = s

	fmt.Fprintf(n.out, "Connecting to remote %s %s:%s...\n", n.protoName(), n.cfg.RemoteAddr, n.cfg.RemotePort)
	fmt.Fprintf(n.out, "Receiving from local %s port %s...\n\nPress <Ctrl+C> to exit.\n\n", n.protoName(), n.cfg.LocalPort)
	return s.Start(cb, nil, recvBufSize, sock.Async)
}

func (n *netTerm) send(data []byte) {
	if _, err := n.client.SyncWrite(data, 0); err != nil {
		slog.Error("netterm: send", slog.Any("error", err))
	}
}

// readInput feeds stdin to the client, a line or a byte at a time, until
// ctx is done or input ends.
func (n *netTerm) readInput(ctx context.Context) error {
	r := bufio.NewReader(n.in)
	for ctx.Err() == nil {
		if n.flags.lineMode {
			line, err := r.ReadBytes('\n')
			if len(line) > 0 && n.client != nil {
				n.send(line)
			}
			if err != nil {
				return errors.WithStack(err)
			}
			continue
		}
		b, err := r.ReadByte()
		if err != nil {
			return errors.WithStack(err)
		}
		if n.client != nil {
			n.send([]byte{b})
		}
	}
	return nil
}

func (n *netTerm) Run() error {
	a := app.New()
	ctx, cancel := context.WithCancel(context.Background())
	a.AddService("input",
		func() error {
			errChan := make(chan error, 1)
			go func() {
				errChan <- n.readInput(ctx)
			}()
			select {
			case err := <-errChan:
				if !errors.Is(err, io.EOF) {
					slog.Error("netterm: read input", slog.Any("error", err))
				}
				// Input ended; keep receiving until a signal arrives.
				<-ctx.Done()
			case <-ctx.Done():
			}
			return nil
		},
		func() error {
			cancel()
			return nil
		})
	if n.mirror != nil {
		m := n.mirror
		a.AddService("mirror",
			func() error {
				if err := m.Listen(); err != nil {
					return err
				}
				slog.Info(fmt.Sprintf("netterm: mirror [%s] listen", m))
				return m.Serve()
			},
			func() error {
				m.Shutdown()
				return nil
			})
	}
	if n.flags.pprof != "" {
		a.AddPProf("pprof", "tcp", n.flags.pprof)
	}
	return a.Run()
}

func (n *netTerm) Destroy() error {
	var errs []error
	if n.server != nil {
		if err := n.server.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.client != nil {
		if err := n.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.console != nil {
		if err := n.console.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.capture != nil {
		if err := n.capture.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.logger != nil {
		if err := n.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("netterm: destroy %v", errs)
	}
	return nil
}

var _ app.Framework = (*netTerm)(nil)
