package log

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsgames/netterm/container/queue"
	"github.com/pkg/errors"
)

const (
	fileWriterSize      = 256 * 1024
	fileQueueShrinkSize = 1024
)

var ErrFileClosed = errors.New("log: file writer closed")

var (
	pid      = os.Getpid()
	program  = filepath.Base(os.Args[0])
	host     = "unknownhost"
	userName = "unknownuser"
)

func init() {
	if h, err := os.Hostname(); err == nil {
		host = h
	}
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}
}

type fileEntry struct {
	data  []byte
	flush bool
}

// FileWriter is an asynchronous, size-rotated file sink. Write copies
// the payload and returns immediately; a background goroutine appends
// it to the current file and flushes it periodically.
type FileWriter struct {
	opts      fileOptions
	dir       string
	file      *os.File
	name      string
	seq       int
	bytes     uint64
	flushing  atomic.Bool
	closed    atomic.Bool
	cancel    context.CancelFunc
	bw        *bufio.Writer
	queue     *queue.MPSCQueue[fileEntry]
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewFileWriter(dir string, opt ...FileOption) (*FileWriter, error) {
	opts := defaultFileOptions()
	for _, o := range opt {
		o(&opts)
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	w := &FileWriter{
		opts:  opts,
		dir:   dir,
		queue: queue.NewMPSCQueue[fileEntry](opts.queueSize, fileQueueShrinkSize),
	}
	if err := w.createDirs(); err != nil {
		return nil, err
	}
	if err := w.createFile(); err != nil {
		return nil, err
	}
	var ctx context.Context
	ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(2)
	go w.serve()
	go w.daemon(ctx)
	return w, nil
}

// Name returns the base name of the file currently written.
func (w *FileWriter) Name() string {
	return w.name
}

func (w *FileWriter) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrFileClosed
	}
	data := make([]byte, len(p))
	copy(data, p)
	if !w.queue.Push(fileEntry{data: data}) {
		return 0, errors.Errorf("log: file writer [%s] queue rejected %d bytes", w.dir, len(p))
	}
	return len(p), nil
}

// Close drains pending writes, flushes and closes the file.
func (w *FileWriter) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.cancel()
		w.queue.Close()
		w.wg.Wait()
	})
	return nil
}

func (w *FileWriter) createDirs() error {
	if err := os.MkdirAll(w.dir, 0775); err != nil {
		return errors.Wrapf(err, "log: %s create dirs", w.dir)
	}
	return nil
}

func (w *FileWriter) fileName(t time.Time) string {
	w.seq++
	name := fmt.Sprintf("%s.%04d%02d%02d-%02d%02d%02d.%d.%d.log",
		program,
		t.Year(),
		t.Month(),
		t.Day(),
		t.Hour(),
		t.Minute(),
		t.Second(),
		pid,
		w.seq)
	if len(w.opts.prefix) > 0 {
		name = w.opts.prefix + "." + name
	}
	return name
}

func (w *FileWriter) createFile() error {
	err := w.closeFile()
	w.name = ""
	w.bytes = 0
	w.file = nil
	w.bw = nil
	if err != nil {
		return err
	}
	now := time.Now()
	name := w.fileName(now)
	file, err := os.OpenFile(filepath.Join(w.dir, name),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "log: %s open file", name)
	}
	if w.opts.header {
		header := fmt.Sprintf("File created at: %s\n"+
			"Running on machine: %s\n"+
			"User name: %s\n"+
			"Process id: %d\n"+
			"Binary: Built with %s %s for %s/%s\n",
			now.Format("2006/01/02 15:04:05"),
			host, userName, pid,
			runtime.Compiler, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		n, err := file.WriteString(header)
		if err != nil {
			_ = file.Close()
			return errors.Wrapf(err, "log: %s write header", name)
		}
		w.bytes += uint64(n)
	}
	w.name = name
	w.file = file
	w.bw = bufio.NewWriterSize(w.file, fileWriterSize)
	return nil
}

func (w *FileWriter) flushFile() error {
	if w.file == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		return errors.Wrapf(err, "log: %s flush", w.name)
	}
	if err := w.file.Sync(); err != nil {
		return errors.Wrapf(err, "log: %s sync", w.name)
	}
	return nil
}

func (w *FileWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	if err := w.flushFile(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrapf(err, "log: %s close", w.name)
	}
	return nil
}

func (w *FileWriter) writeFile(p []byte) error {
	if w.bytes > 0 && w.bytes+uint64(len(p)) >= w.opts.maxSize {
		if err := w.createFile(); err != nil {
			return err
		}
	}
	if w.file == nil {
		return errors.New("log: no file")
	}
	n, err := w.bw.Write(p)
	w.bytes += uint64(n)
	if err != nil {
		return errors.Wrapf(err, "log: %s write", w.name)
	}
	if w.opts.alsoStderr {
		_, _ = os.Stderr.Write(p)
	}
	return nil
}

func (w *FileWriter) serve() {
	defer w.wg.Done()
	defer func() {
		if err := w.closeFile(); err != nil {
			printError(err)
		}
	}()
	for {
		entries, ok := w.queue.Pop()
		if !ok {
			return
		}
		for _, e := range entries {
			if e.flush {
				if err := w.flushFile(); err != nil {
					printError(err)
				}
				w.flushing.Store(false)
				continue
			}
			if err := w.writeFile(e.data); err != nil {
				printError(err)
				_, _ = os.Stderr.Write(e.data)
			}
		}
	}
}

func (w *FileWriter) daemon(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.flushing.CompareAndSwap(false, true) {
				if !w.queue.Push(fileEntry{flush: true}) {
					w.flushing.Store(false)
				}
			}
		}
	}
}

// printError cannot go through slog: the default logger may be writing
// into this very file.
func printError(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%+v\n", err)
}
