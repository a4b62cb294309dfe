package cu

import "time"

// Frame is one complete CU protocol message as transmitted on the wire,
// without any transport-level delimiters.
type Frame []byte

// minChecksumFrameLen is the minimum length of a frame that carries a checksum.
const minChecksumFrameLen = 2

// valueBase is the base added to every nibble value the CU accepts.
const valueBase byte = '0'

// timestampSize is the number of nibble bytes encoding a 32-bit timestamp.
const timestampSize = 8

// Checksum computes the 4-bit checksum of data: the arithmetic sum of all
// byte values truncated to the low nibble.
func Checksum(data []byte) byte {
	var sum uint32
	for _, v := range data {
		sum += uint32(v)
	}

	return byte(sum & 0x0F)
}

// VerifyChecksum reports whether an inbound frame carries a valid checksum.
//
// The CU computes reply checksums over the frame body between the opcode and
// the checksum byte; only the low nibble of the trailing byte is significant.
func VerifyChecksum(frame Frame) bool {
	if len(frame) < minChecksumFrameLen {
		return false
	}

	expected := Checksum(frame[1 : len(frame)-1])

	return frame[len(frame)-1]&0x0F == expected
}

// encodeNibble encodes the low nibble of value onto its wire representation.
func encodeNibble(value byte) byte {
	return valueBase + (value & 0x0F)
}

// decodeNibble extracts the value carried by a wire nibble byte.
func decodeNibble(b byte) byte {
	return b & 0x0F
}

// decodeTimestamp decodes the CU's 8-nibble 32-bit millisecond timestamp.
//
// The device transmits the nibbles pairwise swapped: within each byte pair the
// less significant nibble comes first. data must be at least timestampSize long.
func decodeTimestamp(data []byte) uint32 {
	return uint32(data[0]&0x0F)<<24 |
		uint32(data[1]&0x0F)<<28 |
		uint32(data[2]&0x0F)<<16 |
		uint32(data[3]&0x0F)<<20 |
		uint32(data[4]&0x0F)<<8 |
		uint32(data[5]&0x0F)<<12 |
		uint32(data[6]&0x0F) |
		uint32(data[7]&0x0F)<<4
}

// LapTime is a point on the CU's millisecond clock, as reported in lap events.
//
// Lap times wrap with the device clock; arithmetic between two LapTime values
// is only meaningful when both were reported within one clock epoch.
type LapTime struct {
	milliseconds uint32
}

// LapTimeFromMillis creates a LapTime from a raw millisecond counter value.
func LapTimeFromMillis(milliseconds uint32) LapTime {
	return LapTime{milliseconds: milliseconds}
}

// Millis returns the raw millisecond counter value.
func (t LapTime) Millis() uint32 {
	return t.milliseconds
}

// Duration returns the timestamp as an offset from the device clock's zero.
func (t LapTime) Duration() time.Duration {
	return time.Duration(t.milliseconds) * time.Millisecond
}

// Add returns the lap time shifted forward by d.
func (t LapTime) Add(d time.Duration) LapTime {
	return LapTime{milliseconds: t.milliseconds + uint32(d.Milliseconds())}
}

// Sub returns the lap time shifted backward by d.
func (t LapTime) Sub(d time.Duration) LapTime {
	return LapTime{milliseconds: t.milliseconds - uint32(d.Milliseconds())}
}

// Since returns the duration elapsed between prev and t.
func (t LapTime) Since(prev LapTime) time.Duration {
	return time.Duration(t.milliseconds-prev.milliseconds) * time.Millisecond
}
