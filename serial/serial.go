// Package serial implements the byte-stream cu.Transport over a serial port.
//
// The CU's serial line discipline wraps every host command in a leading '"'
// and a trailing '$', and terminates every response with '$'. The transport
// adds the delimiters on write and reassembles inbound bytes into complete
// frames on the '$' terminator, so the session layer never sees a partial or
// multi-frame buffer.
package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	"github.com/slotlink/go-cu/cu"
	"github.com/slotlink/go-cu/logger"
)

// BaudRate is the fixed line rate of the CU's serial port.
const BaudRate = 19200

const (
	commandPrefix   = '"'
	frameTerminator = '$'
)

const defaultInboundQueueSize = 30

// Transport is a byte-stream cu.Transport over any io.ReadWriteCloser,
// normally a serial port opened by Open.
type Transport struct {
	rwc     io.ReadWriteCloser
	logger  logger.Logger
	inbound chan cu.Frame

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// ensure Transport implements cu.Transport interface.
var _ cu.Transport = &Transport{}

// Option represents a functional option for configuring a Transport.
type Option func(t *Transport)

// WithLogger sets the logger for the transport.
// The default logger is the global logger instance.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithInboundQueueSize sets the capacity of the inbound frame channel.
// The default is 30 frames.
func WithInboundQueueSize(size int) Option {
	return func(t *Transport) {
		if size > 0 {
			t.inbound = make(chan cu.Frame, size)
		}
	}
}

// Open opens the serial port with the CU's fixed line settings (19200 8N1)
// and returns a running transport on it.
func Open(portName string, opts ...Option) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}

	_ = port.ResetInputBuffer()
	_ = port.ResetOutputBuffer()

	return NewTransport(port, opts...), nil
}

// NewTransport returns a running transport over the given stream. It is used
// by Open and directly in tests, where the stream is an in-memory pipe.
func NewTransport(rwc io.ReadWriteCloser, opts ...Option) *Transport {
	t := &Transport{
		rwc:     rwc,
		logger:  logger.GetLogger(),
		inbound: make(chan cu.Frame, defaultInboundQueueSize),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	go t.readLoop()

	return t
}

// Send writes one command frame to the port, wrapped in the CU's serial
// delimiters.
func (t *Transport) Send(frame cu.Frame) error {
	if t.closed.Load() {
		return cu.ErrConnClosed
	}

	buf := make([]byte, 0, len(frame)+2)
	buf = append(buf, commandPrefix)
	buf = append(buf, frame...)
	buf = append(buf, frameTerminator)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.rwc.Write(buf)

	return err
}

// Inbound returns the channel of reassembled inbound frames.
func (t *Transport) Inbound() <-chan cu.Frame {
	return t.inbound
}

// Close closes the underlying stream; the read loop then closes the inbound
// channel. Close is idempotent.
func (t *Transport) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		err = t.rwc.Close()
	})

	return err
}

// readLoop reassembles the inbound byte stream into frames. Reads block until
// data arrives or the stream is closed; closing the port is what unblocks a
// pending read.
func (t *Transport) readLoop() {
	defer close(t.inbound)

	readBuf := make([]byte, 64)
	pending := make([]byte, 0, 64)

	for {
		n, err := t.rwc.Read(readBuf)
		if n > 0 {
			pending = append(pending, readBuf[:n]...)

			for {
				idx := bytes.IndexByte(pending, frameTerminator)
				if idx < 0 {
					break
				}

				frame := make(cu.Frame, idx)
				copy(frame, pending[:idx])
				pending = pending[idx+1:]

				// empty frames can appear after a terminator-only read
				if len(frame) == 0 {
					continue
				}

				select {
				case t.inbound <- frame:
				case <-t.done:
					return
				}
			}
		}

		if err != nil {
			if !t.closed.Load() && !errors.Is(err, io.EOF) {
				t.logger.Error("serial read failed", "method", "readLoop", "error", err)
			}

			return
		}
	}
}
