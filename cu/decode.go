package cu

import "fmt"

// Track status frame layout ('?' ':' prefixed).
const (
	trackFuelOffset  = 2
	trackStartOffset = trackFuelOffset + MaxControllerCount
	trackModeOffset  = trackStartOffset + 1
	trackPitOffset   = trackModeOffset + 1
	trackCountOffset = trackPitOffset + 2
	trackShortLen    = trackCountOffset + 2
	trackLongLen     = trackShortLen + 2
)

// Lap event frame layout ('?' prefixed).
const (
	lapControllerOffset = 1
	lapTimeOffset       = lapControllerOffset + 1
	lapSectorOffset     = lapTimeOffset + timestampSize
	lapFrameLen         = lapSectorOffset + 2
)

// versionFrameLen is the length of a firmware version reply.
const versionFrameLen = 6

// Echo acknowledgement frame lengths, one per echoed command opcode.
const (
	keyPressFrameLen   = 3
	setWordFrameLen    = 6
	resetClockFrameLen = 4
)

// DecodeFrame decodes one complete inbound frame into a typed Response.
//
// It validates structure and checksum and never panics on arbitrary input.
// Echo acknowledgements (key press, word write, clock reset) are matched by
// opcode and length only: their trailing checksum is the command checksum,
// which covers the opcode byte and therefore does not satisfy the reply
// checksum rule.
func DecodeFrame(data []byte) (Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	switch data[0] {
	case TagVersion:
		return decodeVersion(data)

	case TagStatus:
		return decodeStatus(data)

	case TagKeyPress, TagSetWord, TagResetClock:
		return decodeAck(data)

	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownTag, data[0])
	}
}

func decodeVersion(data []byte) (*VersionReply, error) {
	if len(data) != versionFrameLen {
		return nil, fmt.Errorf("%w: version reply length %d, want %d", ErrMalformedFrame, len(data), versionFrameLen)
	}

	if !VerifyChecksum(data) {
		return nil, fmt.Errorf("%w: version reply", ErrChecksumMismatch)
	}

	return &VersionReply{Version: string(data[1 : versionFrameLen-1])}, nil
}

// decodeAck matches an echoed command frame against the length of the command
// it acknowledges.
func decodeAck(data []byte) (*Ack, error) {
	var want int

	switch data[0] {
	case TagKeyPress:
		want = keyPressFrameLen
	case TagSetWord:
		want = setWordFrameLen
	case TagResetClock:
		want = resetClockFrameLen
	}

	if len(data) != want {
		return nil, fmt.Errorf("%w: echo length %d for opcode 0x%02X, want %d", ErrMalformedFrame, len(data), data[0], want)
	}

	return &Ack{Op: data[0]}, nil
}

// decodeStatus decodes a '?'-tagged frame into either a track status
// snapshot or a lap event, discriminated by frame length.
func decodeStatus(data []byte) (Status, error) {
	switch len(data) {
	case trackShortLen, trackLongLen:
		return decodeTrackStatus(data)
	case lapFrameLen:
		return decodeLapEvent(data)
	default:
		return nil, fmt.Errorf("%w: status frame length %d", ErrMalformedFrame, len(data))
	}
}

func decodeTrackStatus(data []byte) (*TrackStatus, error) {
	if data[1] != ':' {
		return nil, fmt.Errorf("%w: track status missing ':' marker", ErrMalformedFrame)
	}

	if !VerifyChecksum(data) {
		return nil, fmt.Errorf("%w: track status", ErrChecksumMismatch)
	}

	status := &TrackStatus{}

	for i := range status.FuelLevels {
		status.FuelLevels[i] = decodeNibble(data[trackFuelOffset+i])
	}

	signal, ok := startSignalFromNibble(decodeNibble(data[trackStartOffset]))
	if !ok {
		return nil, fmt.Errorf("%w: invalid start signal %d", ErrMalformedFrame, decodeNibble(data[trackStartOffset]))
	}
	status.StartSignal = signal

	mode := decodeNibble(data[trackModeOffset])
	status.FuelEnabled = mode&0x01 != 0
	status.RealFuelEnabled = mode&0x02 != 0
	status.PitLaneConnected = mode&0x04 != 0
	status.LapCounterConnected = mode&0x08 != 0

	pitMask := decodeNibble(data[trackPitOffset]) | decodeNibble(data[trackPitOffset+1])<<4
	for i := range status.Refueling {
		status.Refueling[i] = pitMask&(0x01<<i) != 0
	}

	status.ControllerCount = decodeNibble(data[trackCountOffset])

	return status, nil
}

func decodeLapEvent(data []byte) (*LapEvent, error) {
	if !VerifyChecksum(data) {
		return nil, fmt.Errorf("%w: lap event", ErrChecksumMismatch)
	}

	// Controllers are reported one-based on the wire.
	controller := decodeNibble(data[lapControllerOffset])
	if controller < 1 || controller > MaxControllerCount {
		return nil, fmt.Errorf("%w: lap event controller %d", ErrMalformedFrame, controller)
	}

	return &LapEvent{
		Controller: controller - 1,
		Sector:     decodeNibble(data[lapSectorOffset]),
		Timestamp:  LapTimeFromMillis(decodeTimestamp(data[lapTimeOffset : lapTimeOffset+timestampSize])),
	}, nil
}
