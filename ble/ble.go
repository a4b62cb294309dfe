// Package ble implements the packet cu.Transport over a Bluetooth Low Energy
// peripheral.
//
// The CU exposes a GATT service with a write characteristic for commands and
// a notify characteristic for responses; one notification carries exactly one
// frame. The transport is a thin pass-through: it writes command frames
// unchanged and strips the trailing '$' the unit appends to notification
// payloads. Pairing, scanning and characteristic resolution belong to the
// Peripheral implementation, not to this package.
package ble

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/slotlink/go-cu/cu"
	"github.com/slotlink/go-cu/logger"
)

// GATT UUIDs of the Control Unit's service and characteristics.
const (
	// ServiceUUID identifies the CU's command service.
	ServiceUUID = "39df7777-b1b4-b90b-57f1-7144ae4e4a6a"
	// OutputUUID identifies the characteristic command frames are written to.
	OutputUUID = "39df8888-b1b4-b90b-57f1-7144ae4e4a6a"
	// NotifyUUID identifies the characteristic response frames arrive on.
	NotifyUUID = "39df9999-b1b4-b90b-57f1-7144ae4e4a6a"
)

// DeviceName is the advertised local name of a Control Unit, usable as a scan
// filter by Peripheral implementations.
const DeviceName = "Control Unit"

const frameTerminator = '$'

// Peripheral is a connected CU peripheral with its characteristics resolved
// and notifications subscribed.
type Peripheral interface {
	// Write writes one packet to the CU's output characteristic.
	Write(data []byte) error

	// Notifications returns the stream of notification payloads from the
	// CU's notify characteristic. The channel is closed when the peripheral
	// disconnects.
	Notifications() <-chan []byte

	// Close unsubscribes and disconnects the peripheral.
	Close() error
}

// Transport is a packet cu.Transport over a Peripheral.
type Transport struct {
	peripheral Peripheral
	logger     logger.Logger
	inbound    chan cu.Frame

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

const defaultInboundQueueSize = 30

// NewTransport returns a running transport over the given peripheral.
func NewTransport(peripheral Peripheral, opts ...Option) *Transport {
	t := &Transport{
		peripheral: peripheral,
		logger:     logger.GetLogger(),
		inbound:    make(chan cu.Frame, defaultInboundQueueSize),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	go t.notifyLoop()

	return t
}

// Send writes one command frame to the output characteristic.
func (t *Transport) Send(frame cu.Frame) error {
	if t.closed.Load() {
		return cu.ErrConnClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return t.peripheral.Write(frame)
}

// Inbound returns the channel of inbound frames, one per notification.
func (t *Transport) Inbound() <-chan cu.Frame {
	return t.inbound
}

// Close disconnects the peripheral; the notify loop then closes the inbound
// channel. Close is idempotent.
func (t *Transport) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		err = t.peripheral.Close()
	})

	return err
}

// notifyLoop passes notification payloads through as frames.
func (t *Transport) notifyLoop() {
	defer close(t.inbound)

	for {
		select {
		case <-t.done:
			return

		case data, ok := <-t.peripheral.Notifications():
			if !ok {
				return
			}

			frame := make(cu.Frame, len(data))
			copy(frame, data)
			frame = bytes.TrimSuffix(frame, []byte{frameTerminator})

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
}
