package app

import (
	"flag"
	"io"
	"log/slog"
	"os"

	"github.com/hsgames/netterm/log"
	"github.com/hsgames/netterm/safe"
	"github.com/pkg/errors"
)

type Framework interface {
	Init() error
	Run() error
	Destroy() error
}

// LogFlags are the logging switches every binary shares.
type LogFlags struct {
	Level      string
	Dir        string
	AlsoStderr bool
	Text       bool
}

func (f *LogFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Level, "log_level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&f.Dir, "log_dir", "", "log dir, empty logs to stderr")
	fs.BoolVar(&f.AlsoStderr, "log_also_stderr", false, "log also stderr when log_dir is set")
	fs.BoolVar(&f.Text, "log_text", false, "text instead of json log lines")
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}

// InitLog installs the default slog logger described by f. The returned
// closer flushes the log file, if any.
func InitLog(f LogFlags) (io.Closer, error) {
	level, err := log.ParseLevel(f.Level)
	if err != nil {
		return nil, err
	}
	opts := []log.Option{log.WithLevel(level), log.WithText(f.Text)}
	if f.Dir == "" {
		log.Init(append(opts, log.WithWriter(os.Stderr))...)
		return nopCloser{}, nil
	}
	w, err := log.NewFileWriter(f.Dir, log.FileAlsoStderr(f.AlsoStderr))
	if err != nil {
		return nil, errors.Wrap(err, "app: init log")
	}
	log.Init(append(opts, log.WithWriter(w))...)
	return w, nil
}

// RunFramework drives f through its lifecycle. Destroy runs even when
// Run fails.
func RunFramework(f Framework) (err error) {
	defer safe.RecoverError(&err)
	slog.Info("app: run framework start")
	if err = f.Init(); err != nil {
		return errors.Wrap(err, "app: init")
	}
	runErr := f.Run()
	if err = f.Destroy(); err != nil {
		err = errors.Wrap(err, "app: destroy")
	}
	if runErr != nil {
		return errors.Wrap(runErr, "app: run")
	}
	if err != nil {
		return err
	}
	slog.Info("app: run framework stop")
	return nil
}
