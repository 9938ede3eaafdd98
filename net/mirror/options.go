package mirror

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hsgames/netterm/net/http"
)

const (
	BinaryMessage = websocket.BinaryMessage
	TextMessage   = websocket.TextMessage
)

type options struct {
	pattern          string
	maxViewerNum     int
	backlogSize      int
	sendChanSize     int
	maxReadMsgSize   int
	msgType          int
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	checkOrigin      bool
	onInput          func(data []byte)
	httpOpts         []http.ServerOption
}

func defaultOptions() options {
	return options{
		pattern:        "/",
		backlogSize:    64 * 1024,
		sendChanSize:   256,
		maxReadMsgSize: 4096,
		msgType:        BinaryMessage,
		writeTimeout:   5 * time.Second,
		checkOrigin:    true,
	}
}

func (opts *options) check() error {
	if opts.backlogSize < 0 {
		return fmt.Errorf("mirror: options backlogSize [%d] < 0", opts.backlogSize)
	}
	if opts.sendChanSize <= 0 {
		return fmt.Errorf("mirror: options sendChanSize [%d] <= 0", opts.sendChanSize)
	}
	if opts.maxReadMsgSize <= 0 {
		return fmt.Errorf("mirror: options maxReadMsgSize [%d] <= 0", opts.maxReadMsgSize)
	}
	if opts.writeTimeout <= 0 {
		return fmt.Errorf("mirror: options writeTimeout [%s] <= 0", opts.writeTimeout)
	}
	switch opts.msgType {
	case BinaryMessage, TextMessage:
	default:
		return fmt.Errorf("mirror: options msgType [%d] not in (BinaryMessage, TextMessage)", opts.msgType)
	}
	return nil
}

type Option func(o *options)

func WithPattern(pattern string) Option {
	return func(o *options) {
		o.pattern = pattern
	}
}

// WithMaxViewerNum caps connected viewers. 0 means no limit.
func WithMaxViewerNum(maxViewerNum int) Option {
	return func(o *options) {
		o.maxViewerNum = maxViewerNum
	}
}

// WithBacklogSize bounds, in bytes, the recent output replayed to a
// viewer when it connects.
func WithBacklogSize(backlogSize int) Option {
	return func(o *options) {
		o.backlogSize = backlogSize
	}
}

// WithSendChanSize is how many messages a viewer may lag behind before
// it is dropped.
func WithSendChanSize(sendChanSize int) Option {
	return func(o *options) {
		o.sendChanSize = sendChanSize
	}
}

func WithMaxReadMsgSize(maxReadMsgSize int) Option {
	return func(o *options) {
		o.maxReadMsgSize = maxReadMsgSize
	}
}

func WithMsgType(msgType int) Option {
	return func(o *options) {
		o.msgType = msgType
	}
}

func WithHandshakeTimeout(handshakeTimeout time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = handshakeTimeout
	}
}

func WithWriteTimeout(writeTimeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = writeTimeout
	}
}

func WithCheckOrigin(checkOrigin bool) Option {
	return func(o *options) {
		o.checkOrigin = checkOrigin
	}
}

// WithOnInput receives every message a viewer sends. It is called from
// the viewer's read goroutine.
func WithOnInput(onInput func(data []byte)) Option {
	return func(o *options) {
		o.onInput = onInput
	}
}

// WithHTTPOptions configures the underlying http server.
func WithHTTPOptions(opt ...http.ServerOption) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, opt...)
	}
}
