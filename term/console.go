package term

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hsgames/netterm/net/sock"
	"github.com/pkg/errors"
)

// AttrWriter is a text sink that can switch text attributes.
type AttrWriter interface {
	io.Writer
	SetAttr(a Attr) error
}

// ANSIWriter renders attribute changes as normalized SGR sequences.
type ANSIWriter struct {
	w io.Writer
}

func NewANSIWriter(w io.Writer) *ANSIWriter {
	return &ANSIWriter{w: w}
}

func (w *ANSIWriter) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

func (w *ANSIWriter) SetAttr(a Attr) error {
	_, err := io.WriteString(w.w, a.SGR())
	return err
}

// PlainWriter drops attribute changes.
type PlainWriter struct {
	io.Writer
}

func (PlainWriter) SetAttr(Attr) error {
	return nil
}

type options struct {
	appendLF bool
	dumpBin  bool
	capture  io.Writer
}

type Option func(o *options)

// WithAppendLF adds a line feed after a payload ending in a bare
// carriage return.
func WithAppendLF(appendLF bool) Option {
	return func(o *options) {
		o.appendLF = appendLF
	}
}

// WithDumpBin renders payloads as a hex dump instead of text.
func WithDumpBin(dumpBin bool) Option {
	return func(o *options) {
		o.dumpBin = dumpBin
	}
}

// WithCapture copies every raw payload to w before rendering.
func WithCapture(w io.Writer) Option {
	return func(o *options) {
		o.capture = w
	}
}

// Console renders received payloads, interpreting SGR color sequences.
type Console struct {
	opts    options
	mu      sync.Mutex
	out     AttrWriter
	scanner Scanner
	attr    Attr
}

var _ sock.Callback = (*Console)(nil)

func NewConsole(out AttrWriter, opt ...Option) *Console {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return &Console{
		opts: opts,
		out:  out,
		attr: DefaultAttr,
	}
}

func (c *Console) Attr() Attr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attr
}

func (c *Console) DataReceived(h sock.Handle, _ any, data []byte) {
	if err := c.Render(data); err != nil {
		slog.Error(fmt.Sprintf("term: console render [%s]", h), slog.Any("error", err))
	}
}

// Render writes one payload to the console.
func (c *Console) Render(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.capture != nil {
		if _, err := c.opts.capture.Write(data); err != nil {
			return errors.Wrap(err, "term: capture")
		}
	}
	if c.opts.dumpBin {
		if _, err := io.WriteString(c.out, hex.Dump(data)+"\n"); err != nil {
			return errors.Wrap(err, "term: dump")
		}
		return nil
	}
	var last byte
	for _, seg := range c.scanner.Scan(data) {
		if !seg.Seq {
			if _, err := c.out.Write(seg.Text); err != nil {
				return errors.Wrap(err, "term: write")
			}
			last = seg.Text[len(seg.Text)-1]
			continue
		}
		attr := ApplyParams(seg.Params, c.attr)
		if err := c.out.SetAttr(attr); err != nil {
			return errors.Wrap(err, "term: set attr")
		}
		c.attr = attr
		last = 0
	}
	if c.opts.appendLF && last == '\r' {
		if _, err := io.WriteString(c.out, "\n"); err != nil {
			return errors.Wrap(err, "term: append lf")
		}
	}
	return nil
}

// Reset flushes any held back bytes and restores the default attribute.
func (c *Console) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.scanner.Flush(); len(b) > 0 {
		if _, err := c.out.Write(b); err != nil {
			return errors.Wrap(err, "term: flush")
		}
	}
	c.attr = DefaultAttr
	return errors.Wrap(c.out.SetAttr(DefaultAttr), "term: reset attr")
}
