package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type options struct {
	w    io.Writer
	opts *slog.HandlerOptions
	text bool
	args []any
}

type Option func(*options)

func WithWriter(w io.Writer) Option {
	return func(opts *options) {
		opts.w = w
	}
}

func WithHandlerOptions(ho *slog.HandlerOptions) Option {
	return func(opts *options) {
		opts.opts = ho
	}
}

func WithSource(add bool) Option {
	return func(opts *options) {
		opts.opts.AddSource = add
	}
}

func WithLevel(level slog.Level) Option {
	return func(opts *options) {
		opts.opts.Level = level
	}
}

// WithText switches the handler from JSON to logfmt-style text.
func WithText(text bool) Option {
	return func(opts *options) {
		opts.text = text
	}
}

func WithAttrs(args ...any) Option {
	return func(opts *options) {
		clear(opts.args)
		opts.args = append(opts.args[:0], args...)
	}
}

func New(opt ...Option) *slog.Logger {
	opts := options{
		w:    os.Stderr,
		opts: &slog.HandlerOptions{AddSource: true},
	}

	for _, v := range opt {
		v(&opts)
	}

	var h slog.Handler
	if opts.text {
		h = slog.NewTextHandler(opts.w, opts.opts)
	} else {
		h = slog.NewJSONHandler(opts.w, opts.opts)
	}

	return slog.New(h).With(opts.args...)
}

func Init(opt ...Option) {
	slog.SetDefault(New(opt...))
}

// ParseLevel accepts debug, info, warn and error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log: parse level [%s]", s)
	}
	return level, nil
}
