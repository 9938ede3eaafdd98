package log

import (
	"fmt"
	"time"
)

type fileOptions struct {
	maxSize       uint64
	alsoStderr    bool
	header        bool
	prefix        string
	queueSize     int
	flushInterval time.Duration
}

func defaultFileOptions() fileOptions {
	return fileOptions{
		maxSize:       64 * 1024 * 1024,
		header:        true,
		flushInterval: 5 * time.Second,
	}
}

func (opts *fileOptions) check() error {
	if opts.maxSize == 0 {
		return fmt.Errorf("log: file options maxSize == 0")
	}
	if opts.flushInterval <= 0 {
		return fmt.Errorf("log: file options flushInterval [%s] <= 0", opts.flushInterval)
	}
	if opts.queueSize < 0 {
		return fmt.Errorf("log: file options queueSize [%d] < 0", opts.queueSize)
	}
	return nil
}

type FileOption func(o *fileOptions)

func FileMaxSize(maxSize uint64) FileOption {
	return func(o *fileOptions) {
		o.maxSize = maxSize
	}
}

func FileAlsoStderr(alsoStderr bool) FileOption {
	return func(o *fileOptions) {
		o.alsoStderr = alsoStderr
	}
}

// FileHeader controls the banner written at the top of every new file.
// Raw data captures turn it off.
func FileHeader(header bool) FileOption {
	return func(o *fileOptions) {
		o.header = header
	}
}

func FilePrefix(prefix string) FileOption {
	return func(o *fileOptions) {
		o.prefix = prefix
	}
}

// FileQueueSize bounds pending writes; 0 means unbounded.
func FileQueueSize(queueSize int) FileOption {
	return func(o *fileOptions) {
		o.queueSize = queueSize
	}
}

func FileFlushInterval(flushInterval time.Duration) FileOption {
	return func(o *fileOptions) {
		o.flushInterval = flushInterval
	}
}
