package cu

// MaxControllerCount is the maximum number of controllers a CU supports.
const MaxControllerCount = 8

// Response is one decoded CU reply frame. Implementations form a closed set:
// *VersionReply, *TrackStatus, *LapEvent and *Ack.
type Response interface {
	// Tag returns the opcode byte of the frame the response was decoded from.
	Tag() byte
}

// Status is a status report from the CU: either a *TrackStatus snapshot or a
// *LapEvent, depending on what the unit had to report when polled.
type Status interface {
	Response
	isStatus()
}

// VersionReply carries the CU firmware version.
type VersionReply struct {
	// Version is the firmware version as reported, e.g. "5337".
	Version string
}

func (*VersionReply) Tag() byte { return TagVersion }

// Ack is the CU's acknowledgement of a key press, word write or clock reset:
// the unit echoes the command frame back.
type Ack struct {
	// Op is the opcode of the acknowledged command.
	Op byte
}

func (a *Ack) Tag() byte { return a.Op }

// StartSignal is the phase of the start light countdown reported by the CU.
type StartSignal uint8

// Start light phases. The value 1 is not used by the device.
const (
	StartSignalNone  StartSignal = 0
	StartSignalFive  StartSignal = 2
	StartSignalFour  StartSignal = 3
	StartSignalThree StartSignal = 4
	StartSignalTwo   StartSignal = 5
	StartSignalOne   StartSignal = 6
	StartSignalGo    StartSignal = 7
)

// String returns the string representation of the start signal phase.
func (s StartSignal) String() string {
	switch s {
	case StartSignalNone:
		return "none"
	case StartSignalFive:
		return "five"
	case StartSignalFour:
		return "four"
	case StartSignalThree:
		return "three"
	case StartSignalTwo:
		return "two"
	case StartSignalOne:
		return "one"
	case StartSignalGo:
		return "go"
	default:
		return "unknown"
	}
}

// startSignalFromNibble maps a wire nibble to a StartSignal.
// The second return value is false for values the device never reports.
func startSignalFromNibble(v byte) (StartSignal, bool) {
	switch StartSignal(v) {
	case StartSignalNone, StartSignalFive, StartSignalFour, StartSignalThree,
		StartSignalTwo, StartSignalOne, StartSignalGo:
		return StartSignal(v), true
	default:
		return StartSignalNone, false
	}
}

// TrackStatus is the CU's track-wide status snapshot.
type TrackStatus struct {
	// FuelLevels holds the fuel level of each controller, in range 0-15.
	FuelLevels [MaxControllerCount]uint8

	// Refueling reports which controllers are currently refueling in the pit lane.
	Refueling [MaxControllerCount]bool

	// StartSignal is the current phase of the start light countdown.
	StartSignal StartSignal

	// FuelEnabled reports whether fuel simulation is enabled.
	FuelEnabled bool

	// RealFuelEnabled reports whether real fuel mode is enabled.
	RealFuelEnabled bool

	// PitLaneConnected reports whether a pit lane adapter is connected.
	PitLaneConnected bool

	// LapCounterConnected reports whether a lap counter adapter is connected.
	LapCounterConnected bool

	// ControllerCount is the number of controllers currently in use.
	ControllerCount uint8
}

func (*TrackStatus) Tag() byte { return TagStatus }
func (*TrackStatus) isStatus() {}

// LapEvent is a single timing measurement: one car crossing one timing sensor.
type LapEvent struct {
	// Controller is the zero-based index of the controller the car belongs to.
	Controller uint8

	// Sector is the track sector whose sensor produced the measurement.
	Sector uint8

	// Timestamp is the crossing time on the CU's millisecond clock.
	Timestamp LapTime
}

func (*LapEvent) Tag() byte { return TagStatus }
func (*LapEvent) isStatus() {}
