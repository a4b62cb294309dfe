package race

import (
	"context"
	"fmt"
	"sync"

	"github.com/slotlink/go-cu/cu"
)

// Limit value bounds shared by the per-lane setters.
const (
	// MaxLane is the highest addressable lane (controller) index.
	MaxLane = cu.MaxControllerCount - 1
	// MaxLevel is the highest value of a speed, brake or fuel level.
	MaxLevel = 15
	// MaxLap is the highest lap number the position tower can display.
	MaxLap = 255
)

// ControlUnit is the typed facade over a cu.Session.
//
// It is safe for concurrent use; command ordering between concurrent callers
// follows the session's FIFO guarantee.
type ControlUnit struct {
	session cu.Session
}

// New creates a ControlUnit facade over the given session.
func New(session cu.Session) *ControlUnit {
	return &ControlUnit{session: session}
}

// Connect opens the session. See cu.Session.Connect.
func (c *ControlUnit) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// Disconnect closes the session. See cu.Session.Disconnect.
func (c *ControlUnit) Disconnect() error {
	return c.session.Disconnect()
}

// State returns the current session state.
func (c *ControlUnit) State() cu.SessionState {
	return c.session.State()
}

// Session returns the underlying session, for access to state change handlers
// and metrics.
func (c *ControlUnit) Session() cu.Session {
	return c.session
}

// Version requests the CU firmware version, e.g. "5337".
func (c *ControlUnit) Version(ctx context.Context) (string, error) {
	resp, err := c.session.SendCommand(ctx, cu.VersionRequest{})
	if err != nil {
		return "", err
	}

	reply, ok := resp.(*cu.VersionReply)
	if !ok {
		return "", unexpectedReply(cu.TagVersion, resp)
	}

	return reply.Version, nil
}

// PollStatus polls the CU once. The reply is either a *cu.TrackStatus
// snapshot or a queued *cu.LapEvent, whichever the unit reports first.
func (c *ControlUnit) PollStatus(ctx context.Context) (cu.Status, error) {
	resp, err := c.session.SendCommand(ctx, cu.StatusRequest{})
	if err != nil {
		return nil, err
	}

	status, ok := resp.(cu.Status)
	if !ok {
		return nil, unexpectedReply(cu.TagStatus, resp)
	}

	return status, nil
}

// PollTrackStatus polls the CU until it reports a track status snapshot.
// Polls that drain queued lap events are passed over; the events still reach
// subscribers.
func (c *ControlUnit) PollTrackStatus(ctx context.Context) (*cu.TrackStatus, error) {
	const maxPolls = 8

	for i := 0; i < maxPolls; i++ {
		status, err := c.PollStatus(ctx)
		if err != nil {
			return nil, err
		}

		if track, ok := status.(*cu.TrackStatus); ok {
			return track, nil
		}
	}

	return nil, fmt.Errorf("no track status after %d polls", maxPolls)
}

// SetSpeedLimit sets the maximum speed level of a lane's controller.
// The lane must be in [0, 7] and the level in [0, 15].
func (c *ControlUnit) SetSpeedLimit(ctx context.Context, lane int, level int) error {
	if err := validateLane(lane); err != nil {
		return err
	}
	if err := validateLevel("speed", level); err != nil {
		return err
	}

	return c.sendForAck(ctx, cu.NewSetSpeedLimit(byte(lane), byte(level)))
}

// SetBrakeStrength sets the brake strength level of a lane's controller.
// The lane must be in [0, 7] and the level in [0, 15].
func (c *ControlUnit) SetBrakeStrength(ctx context.Context, lane int, level int) error {
	if err := validateLane(lane); err != nil {
		return err
	}
	if err := validateLevel("brake", level); err != nil {
		return err
	}

	return c.sendForAck(ctx, cu.NewSetBrakeStrength(byte(lane), byte(level)))
}

// SetFuelLoad sets the fuel load level of a lane's controller.
// The lane must be in [0, 7] and the level in [0, 15].
func (c *ControlUnit) SetFuelLoad(ctx context.Context, lane int, level int) error {
	if err := validateLane(lane); err != nil {
		return err
	}
	if err := validateLevel("fuel", level); err != nil {
		return err
	}

	return c.sendForAck(ctx, cu.NewSetFuelLoad(byte(lane), byte(level)))
}

// SetLaneLimits sets a lane's speed and brake levels, and its fuel load when
// fuel is non-negative. A negative fuel value leaves the fuel load unchanged.
// All arguments are validated before the first frame is sent.
func (c *ControlUnit) SetLaneLimits(ctx context.Context, lane int, power int, brake int, fuel int) error {
	if err := validateLane(lane); err != nil {
		return err
	}
	if err := validateLevel("speed", power); err != nil {
		return err
	}
	if err := validateLevel("brake", brake); err != nil {
		return err
	}
	if fuel > MaxLevel {
		return validateLevel("fuel", fuel)
	}

	if err := c.sendForAck(ctx, cu.NewSetSpeedLimit(byte(lane), byte(power))); err != nil {
		return err
	}

	if err := c.sendForAck(ctx, cu.NewSetBrakeStrength(byte(lane), byte(brake))); err != nil {
		return err
	}

	if fuel >= 0 {
		return c.sendForAck(ctx, cu.NewSetFuelLoad(byte(lane), byte(fuel)))
	}

	return nil
}

// SetStartLight switches the start light program on or off.
//
// The hardware has no absolute switch, only the Start key toggle, so the
// current phase is read from a track status poll first and the key is
// pressed only when the requested state differs. Setting an already-lit
// light on (or an unlit one off) is a no-op.
func (c *ControlUnit) SetStartLight(ctx context.Context, on bool) error {
	track, err := c.PollTrackStatus(ctx)
	if err != nil {
		return err
	}

	lit := track.StartSignal != cu.StartSignalNone
	if lit == on {
		return nil
	}

	return c.PressKey(ctx, cu.KeyStart)
}

// TogglePaceCar toggles the pace car program by pressing the pace car (ESC)
// key.
func (c *ControlUnit) TogglePaceCar(ctx context.Context) error {
	return c.PressKey(ctx, cu.KeyPaceCar)
}

// PressKey simulates a press of one of the CU's front panel keys.
func (c *ControlUnit) PressKey(ctx context.Context, key cu.Key) error {
	switch key {
	case cu.KeyPaceCar, cu.KeyStart, cu.KeySpeed, cu.KeyBrake, cu.KeyFuel, cu.KeyCode:
	default:
		return fmt.Errorf("%w: unknown key %d", cu.ErrInvalidArgument, key)
	}

	return c.sendForAck(ctx, cu.KeyPress{Key: key})
}

// ResetPositions resets the positions shown on the position tower.
func (c *ControlUnit) ResetPositions(ctx context.Context) error {
	return c.sendForAck(ctx, cu.NewResetPositions())
}

// ResetClock resets the race clock for all controllers.
func (c *ControlUnit) ResetClock(ctx context.Context) error {
	return c.sendForAck(ctx, cu.ResetClock{})
}

// SetDisplayedLap sets the lap number shown on the position tower.
// The lap must be in [0, 255]; it is written as a high/low nibble word pair.
func (c *ControlUnit) SetDisplayedLap(ctx context.Context, lap int) error {
	if lap < 0 || lap > MaxLap {
		return fmt.Errorf("%w: lap %d out of range [0, %d]", cu.ErrInvalidArgument, lap, MaxLap)
	}

	if err := c.sendForAck(ctx, cu.NewSetLapHigh(byte(lap))); err != nil {
		return err
	}

	return c.sendForAck(ctx, cu.NewSetLapLow(byte(lap)))
}

// Events returns the session's raw event stream: every track status snapshot
// and lap event the CU reports, in arrival order. The cancel function
// unregisters the subscriber and closes the channel.
func (c *ControlUnit) Events() (<-chan cu.Event, func()) {
	return c.session.Subscribe()
}

// LapEvents returns the event stream filtered to lap events.
func (c *ControlUnit) LapEvents() (<-chan *cu.LapEvent, func()) {
	events, cancelSub := c.session.Subscribe()

	laps := make(chan *cu.LapEvent)
	done := make(chan struct{})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelSub()
			close(done)
		})
	}

	go func() {
		defer close(laps)

		for event := range events {
			lap, ok := event.Response.(*cu.LapEvent)
			if !ok {
				continue
			}

			select {
			case laps <- lap:
			case <-done:
				return
			}
		}
	}()

	return laps, cancel
}

// sendForAck sends a command whose success is signaled by the CU echoing the
// command frame.
func (c *ControlUnit) sendForAck(ctx context.Context, cmd cu.Command) error {
	resp, err := c.session.SendCommand(ctx, cmd)
	if err != nil {
		return err
	}

	if _, ok := resp.(*cu.Ack); !ok {
		return unexpectedReply(cmd.ReplyTag(), resp)
	}

	return nil
}

func validateLane(lane int) error {
	if lane < 0 || lane > MaxLane {
		return fmt.Errorf("%w: lane %d out of range [0, %d]", cu.ErrInvalidArgument, lane, MaxLane)
	}

	return nil
}

func validateLevel(name string, level int) error {
	if level < 0 || level > MaxLevel {
		return fmt.Errorf("%w: %s level %d out of range [0, %d]", cu.ErrInvalidArgument, name, level, MaxLevel)
	}

	return nil
}

func unexpectedReply(want byte, got cu.Response) error {
	return fmt.Errorf("unexpected reply tag 0x%02x, want 0x%02x", got.Tag(), want)
}
