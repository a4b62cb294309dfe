package cu

// Frame opcode bytes. The opcode is the first byte of every frame and doubles
// as the correlation tag between a command and its reply.
const (
	// TagVersion starts the firmware version request and its reply.
	TagVersion byte = '0'
	// TagStatus starts the status request; replies carry either a track
	// status snapshot or a lap event.
	TagStatus byte = '?'
	// TagKeyPress starts the key press command; the CU acknowledges it by
	// echoing the command frame.
	TagKeyPress byte = 'T'
	// TagSetWord starts the configuration word write command, echoed on success.
	TagSetWord byte = 'J'
	// TagResetClock starts the race clock reset command, echoed on success.
	TagResetClock byte = '='
)

// Key identifies one of the CU's front panel keys addressable by the key
// press command.
type Key byte

// CU key codes. The pace car and start keys are labeled ESC and ENTER on the
// unit itself; pressing them toggles the pace car and start-light programs.
const (
	KeyPaceCar Key = 1
	KeyStart   Key = 2
	KeySpeed   Key = 5
	KeyBrake   Key = 6
	KeyFuel    Key = 7
	KeyCode    Key = 8
)

// Configuration word addresses and values. Per-controller limits live at
// controller<<5 plus a field offset; global words use fixed addresses.
const (
	speedAddrOffset byte = 0x00
	brakeAddrOffset byte = 0x01
	fuelAddrOffset  byte = 0x02

	positionsWordAddr  byte = 0x06
	positionsWordValue byte = 0x09

	lapHighWordAddr byte = 0xF1
	lapLowWordAddr  byte = 0xF2

	// limitWriteRepeat is the write repetition count the CU expects for
	// per-controller limit words.
	limitWriteRepeat byte = 2
)

// Command is one immutable CU request. Implementations form a closed set;
// argument validation happens before construction (see package race), so
// Encode never fails.
type Command interface {
	// Tag returns the opcode byte that starts the command frame.
	Tag() byte
	// ReplyTag returns the opcode byte expected on the frame that answers
	// this command.
	ReplyTag() byte
	// Encode serializes the command into its wire frame, appending the
	// checksum when the command carries one.
	Encode() Frame
}

// VersionRequest asks the CU for its firmware version.
// Wire format: the single byte '0', no checksum.
type VersionRequest struct{}

func (VersionRequest) Tag() byte      { return TagVersion }
func (VersionRequest) ReplyTag() byte { return TagVersion }

func (VersionRequest) Encode() Frame { return Frame{TagVersion} }

// StatusRequest polls the CU for its current status. The reply is either a
// track status snapshot or a lap event, whichever the CU reports first.
// Wire format: the single byte '?', no checksum.
type StatusRequest struct{}

func (StatusRequest) Tag() byte      { return TagStatus }
func (StatusRequest) ReplyTag() byte { return TagStatus }

func (StatusRequest) Encode() Frame { return Frame{TagStatus} }

// KeyPress simulates a press of one of the CU's front panel keys.
// Wire format: 'T', key nibble, checksum.
type KeyPress struct {
	Key Key
}

func (KeyPress) Tag() byte      { return TagKeyPress }
func (KeyPress) ReplyTag() byte { return TagKeyPress }

func (c KeyPress) Encode() Frame {
	frame := Frame{TagKeyPress, encodeNibble(byte(c.Key)), 0}
	frame[2] = Checksum(frame[:2])

	return frame
}

// SetWord writes one configuration word into the CU.
// Wire format: 'J', address low nibble, address high nibble, value nibble,
// repetition nibble, checksum. Note that the address nibbles are transmitted
// raw while value and repetition use the ASCII nibble encoding.
type SetWord struct {
	Addr   byte
	Value  byte
	Repeat byte
}

func (SetWord) Tag() byte      { return TagSetWord }
func (SetWord) ReplyTag() byte { return TagSetWord }

func (c SetWord) Encode() Frame {
	frame := Frame{
		TagSetWord,
		c.Addr & 0x0F,
		c.Addr >> 4,
		encodeNibble(c.Value),
		encodeNibble(c.Repeat),
		0,
	}
	frame[5] = Checksum(frame[:5])

	return frame
}

// ResetClock resets the CU's race clock for all controllers.
// Wire format: '=', '1', '0', checksum.
type ResetClock struct{}

func (ResetClock) Tag() byte      { return TagResetClock }
func (ResetClock) ReplyTag() byte { return TagResetClock }

func (ResetClock) Encode() Frame {
	frame := Frame{TagResetClock, encodeNibble(0x01), encodeNibble(0x00), 0}
	frame[3] = Checksum(frame[:3])

	return frame
}

// controllerWordAddr builds the configuration word address of a
// per-controller field.
func controllerWordAddr(offset byte, controller byte) byte {
	const controllerMask = 0x07
	const offsetMask = 0x1F

	return ((controller & controllerMask) << 5) | (offset & offsetMask)
}

// NewSetSpeedLimit builds the command that sets a controller's maximum speed
// level. Both arguments must already be validated to their closed ranges
// (controller 0-7, level 0-15).
func NewSetSpeedLimit(controller byte, level byte) SetWord {
	return SetWord{Addr: controllerWordAddr(speedAddrOffset, controller), Value: level, Repeat: limitWriteRepeat}
}

// NewSetBrakeStrength builds the command that sets a controller's brake
// strength level.
func NewSetBrakeStrength(controller byte, level byte) SetWord {
	return SetWord{Addr: controllerWordAddr(brakeAddrOffset, controller), Value: level, Repeat: limitWriteRepeat}
}

// NewSetFuelLoad builds the command that sets a controller's fuel load level.
func NewSetFuelLoad(controller byte, level byte) SetWord {
	return SetWord{Addr: controllerWordAddr(fuelAddrOffset, controller), Value: level, Repeat: limitWriteRepeat}
}

// NewResetPositions builds the command that resets the position tower.
func NewResetPositions() SetWord {
	return SetWord{Addr: positionsWordAddr, Value: positionsWordValue, Repeat: 1}
}

// NewSetLapHigh builds the command that writes the high nibble of the lap
// number shown on the position tower.
func NewSetLapHigh(lap byte) SetWord {
	return SetWord{Addr: lapHighWordAddr, Value: lap >> 4, Repeat: 1}
}

// NewSetLapLow builds the command that writes the low nibble of the lap
// number shown on the position tower.
func NewSetLapLow(lap byte) SetWord {
	return SetWord{Addr: lapLowWordAddr, Value: lap & 0x0F, Repeat: 1}
}
