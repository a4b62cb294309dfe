package cu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandTags(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		cmd      Command
		tag      byte
		replyTag byte
	}{
		{VersionRequest{}, '0', '0'},
		{StatusRequest{}, '?', '?'},
		{KeyPress{Key: KeyStart}, 'T', 'T'},
		{SetWord{Addr: 0x06, Value: 9, Repeat: 1}, 'J', 'J'},
		{ResetClock{}, '=', '='},
	}

	for _, tt := range tests {
		require.Equal(tt.tag, tt.cmd.Tag())
		require.Equal(tt.replyTag, tt.cmd.ReplyTag())
	}
}

func TestCommandEncode(t *testing.T) {
	require := require.New(t)

	t.Run("VersionRequest", func(t *testing.T) {
		require.Equal(Frame{'0'}, VersionRequest{}.Encode())
	})

	t.Run("StatusRequest", func(t *testing.T) {
		require.Equal(Frame{'?'}, StatusRequest{}.Encode())
	})

	t.Run("KeyPress", func(t *testing.T) {
		require.Equal(Frame{'T', '2', 0x06}, KeyPress{Key: KeyStart}.Encode())
		require.Equal(Frame{'T', '1', 0x05}, KeyPress{Key: KeyPaceCar}.Encode())
	})

	t.Run("ResetClock", func(t *testing.T) {
		require.Equal(Frame{'=', '1', '0', 0x0E}, ResetClock{}.Encode())
	})

	t.Run("SetWordAddressNibblesAreRaw", func(t *testing.T) {
		// address nibbles go on the wire raw, value and repeat ASCII-encoded
		frame := SetWord{Addr: 0xF1, Value: 0x0A, Repeat: 1}.Encode()
		require.Equal(Frame{'J', 0x01, 0x0F, ':', '1', 0x05}, frame)
	})

	t.Run("ChecksumCoversOpcode", func(t *testing.T) {
		// outbound checksums include the opcode byte
		frame := KeyPress{Key: KeyStart}.Encode()
		require.Equal(Checksum(frame[:len(frame)-1]), frame[len(frame)-1])
	})
}

func TestControllerWordAddr(t *testing.T) {
	require := require.New(t)

	require.Equal(byte(0x00), controllerWordAddr(speedAddrOffset, 0))
	require.Equal(byte(0x60), controllerWordAddr(speedAddrOffset, 3))
	require.Equal(byte(0x21), controllerWordAddr(brakeAddrOffset, 1))
	require.Equal(byte(0xE2), controllerWordAddr(fuelAddrOffset, 7))

	// out-of-range bits are masked off
	require.Equal(byte(0x00), controllerWordAddr(speedAddrOffset, 8))
}

func TestLimitCommands(t *testing.T) {
	require := require.New(t)

	t.Run("SetSpeedLimit", func(t *testing.T) {
		require.Equal(Frame{'J', 0x00, 0x00, ':', '2', 0x06}, NewSetSpeedLimit(0, 10).Encode())
		require.Equal(Frame{'J', 0x00, 0x06, '?', '2', 0x01}, NewSetSpeedLimit(3, 15).Encode())
	})

	t.Run("SetBrakeStrength", func(t *testing.T) {
		require.Equal(Frame{'J', 0x01, 0x02, '5', '2', 0x04}, NewSetBrakeStrength(1, 5).Encode())
	})

	t.Run("SetFuelLoad", func(t *testing.T) {
		require.Equal(Frame{'J', 0x02, 0x0E, '8', '2', 0x04}, NewSetFuelLoad(7, 8).Encode())
	})

	t.Run("ResetPositions", func(t *testing.T) {
		require.Equal(Frame{'J', 0x06, 0x00, '9', '1', 0x0A}, NewResetPositions().Encode())
	})

	t.Run("DisplayedLapNibblePair", func(t *testing.T) {
		// lap 0xAB splits into high nibble at 0xF1 and low nibble at 0xF2
		require.Equal(Frame{'J', 0x01, 0x0F, ':', '1', 0x05}, NewSetLapHigh(0xAB).Encode())
		require.Equal(Frame{'J', 0x02, 0x0F, ';', '1', 0x07}, NewSetLapLow(0xAB).Encode())
	})
}
