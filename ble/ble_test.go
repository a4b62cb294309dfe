package ble

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slotlink/go-cu/cu"
)

// fakePeripheral is an in-memory Peripheral backed by channels.
type fakePeripheral struct {
	notifyCh chan []byte

	mu      sync.Mutex
	written [][]byte

	closeOnce sync.Once
	closeErr  error
}

func newFakePeripheral() *fakePeripheral {
	return &fakePeripheral{notifyCh: make(chan []byte, 16)}
}

func (p *fakePeripheral) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	p.written = append(p.written, buf)

	return nil
}

func (p *fakePeripheral) Notifications() <-chan []byte { return p.notifyCh }

func (p *fakePeripheral) Close() error {
	p.closeOnce.Do(func() { close(p.notifyCh) })
	return p.closeErr
}

func (p *fakePeripheral) writtenPackets() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	packets := make([][]byte, len(p.written))
	copy(packets, p.written)

	return packets
}

func recvFrame(t *testing.T, trans *Transport) cu.Frame {
	t.Helper()

	select {
	case frame, ok := <-trans.Inbound():
		require.True(t, ok, "inbound channel closed")
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
		return nil
	}
}

func TestTransportSend(t *testing.T) {
	require := require.New(t)

	peripheral := newFakePeripheral()
	trans := NewTransport(peripheral)
	defer trans.Close()

	require.NoError(trans.Send(cu.Frame{'0'}))
	require.NoError(trans.Send(cu.Frame{'T', '2', 0x06}))

	// frames go out unwrapped, one write per frame
	packets := peripheral.writtenPackets()
	require.Len(packets, 2)
	require.Equal([]byte{'0'}, packets[0])
	require.Equal([]byte{'T', '2', 0x06}, packets[1])
}

func TestTransportNotifications(t *testing.T) {
	require := require.New(t)

	peripheral := newFakePeripheral()
	trans := NewTransport(peripheral)
	defer trans.Close()

	t.Run("TerminatorStripped", func(t *testing.T) {
		peripheral.notifyCh <- []byte{'0', '5', '3', '3', '7', 0x02, '$'}
		require.Equal(cu.Frame{'0', '5', '3', '3', '7', 0x02}, recvFrame(t, trans))
	})

	t.Run("BareFramePassedThrough", func(t *testing.T) {
		peripheral.notifyCh <- []byte{'T', '2', 0x06}
		require.Equal(cu.Frame{'T', '2', 0x06}, recvFrame(t, trans))
	})

	t.Run("EmptyNotificationSkipped", func(t *testing.T) {
		peripheral.notifyCh <- []byte{'$'}
		peripheral.notifyCh <- []byte{'0', 'a'}
		require.Equal(cu.Frame{'0', 'a'}, recvFrame(t, trans))
	})
}

func TestTransportClose(t *testing.T) {
	require := require.New(t)

	t.Run("CloseClosesInbound", func(t *testing.T) {
		peripheral := newFakePeripheral()
		trans := NewTransport(peripheral)

		require.NoError(trans.Close())

		select {
		case _, ok := <-trans.Inbound():
			require.False(ok)
		case <-time.After(time.Second):
			t.Fatal("inbound channel not closed")
		}

		require.ErrorIs(trans.Send(cu.Frame{'0'}), cu.ErrConnClosed)

		// idempotent
		require.NoError(trans.Close())
	})

	t.Run("PeripheralDisconnectClosesInbound", func(t *testing.T) {
		peripheral := newFakePeripheral()
		trans := NewTransport(peripheral)
		defer trans.Close()

		// the peripheral dropping the link closes the notification stream
		require.NoError(peripheral.Close())

		select {
		case _, ok := <-trans.Inbound():
			require.False(ok)
		case <-time.After(time.Second):
			t.Fatal("inbound channel not closed on disconnect")
		}
	})
}
