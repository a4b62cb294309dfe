package race

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slotlink/go-cu/cu"
	"github.com/slotlink/go-cu/logger"
)

// fakeSession is a scripted cu.Session: it records every command and answers
// from a reply queue, defaulting to the echo ack a real CU produces.
type fakeSession struct {
	mu      sync.Mutex
	sent    []cu.Command
	replies []cu.Response

	events chan cu.Event
}

var _ cu.Session = &fakeSession{}

func newFakeSession(replies ...cu.Response) *fakeSession {
	return &fakeSession{
		replies: replies,
		events:  make(chan cu.Event, 16),
	}
}

func (s *fakeSession) Connect(ctx context.Context) error { return nil }
func (s *fakeSession) Disconnect() error                 { return nil }
func (s *fakeSession) State() cu.SessionState            { return cu.ConnectedState }
func (s *fakeSession) GetLogger() logger.Logger          { return logger.GetLogger() }

func (s *fakeSession) AddSessionStateChangeHandler(handlers ...cu.SessionStateChangeHandler) {}

func (s *fakeSession) SendCommand(ctx context.Context, cmd cu.Command) (cu.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, cmd)

	if len(s.replies) > 0 {
		reply := s.replies[0]
		s.replies = s.replies[1:]

		return reply, nil
	}

	return &cu.Ack{Op: cmd.Tag()}, nil
}

func (s *fakeSession) Subscribe() (<-chan cu.Event, func()) {
	var once sync.Once
	return s.events, func() { once.Do(func() { close(s.events) }) }
}

func (s *fakeSession) sentCommands() []cu.Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make([]cu.Command, len(s.sent))
	copy(sent, s.sent)

	return sent
}

func trackWith(signal cu.StartSignal) *cu.TrackStatus {
	return &cu.TrackStatus{StartSignal: signal}
}

func lapOn(controller uint8, millis uint32) *cu.LapEvent {
	return &cu.LapEvent{Controller: controller, Timestamp: cu.LapTimeFromMillis(millis)}
}

func TestVersion(t *testing.T) {
	require := require.New(t)

	t.Run("Success", func(t *testing.T) {
		session := newFakeSession(&cu.VersionReply{Version: "5337"})

		version, err := New(session).Version(context.Background())
		require.NoError(err)
		require.Equal("5337", version)
	})

	t.Run("UnexpectedReply", func(t *testing.T) {
		session := newFakeSession(&cu.Ack{Op: cu.TagVersion})

		_, err := New(session).Version(context.Background())
		require.Error(err)
	})
}

func TestPollTrackStatus(t *testing.T) {
	require := require.New(t)

	t.Run("PassesOverLapEvents", func(t *testing.T) {
		session := newFakeSession(
			lapOn(0, 1000),
			lapOn(1, 1100),
			trackWith(cu.StartSignalGo),
		)

		track, err := New(session).PollTrackStatus(context.Background())
		require.NoError(err)
		require.Equal(cu.StartSignalGo, track.StartSignal)
		require.Len(session.sentCommands(), 3)
	})

	t.Run("GivesUpOnLapFlood", func(t *testing.T) {
		replies := make([]cu.Response, 8)
		for i := range replies {
			replies[i] = lapOn(0, uint32(i))
		}
		session := newFakeSession(replies...)

		_, err := New(session).PollTrackStatus(context.Background())
		require.Error(err)
		require.Len(session.sentCommands(), 8)
	})
}

func TestLimitSetters(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	t.Run("SetSpeedLimit", func(t *testing.T) {
		session := newFakeSession()
		require.NoError(New(session).SetSpeedLimit(ctx, 3, 15))

		sent := session.sentCommands()
		require.Len(sent, 1)
		require.Equal(cu.NewSetSpeedLimit(3, 15).Encode(), sent[0].Encode())
	})

	t.Run("SetBrakeStrength", func(t *testing.T) {
		session := newFakeSession()
		require.NoError(New(session).SetBrakeStrength(ctx, 0, 5))

		sent := session.sentCommands()
		require.Len(sent, 1)
		require.Equal(cu.NewSetBrakeStrength(0, 5).Encode(), sent[0].Encode())
	})

	t.Run("SetFuelLoad", func(t *testing.T) {
		session := newFakeSession()
		require.NoError(New(session).SetFuelLoad(ctx, 7, 0))

		sent := session.sentCommands()
		require.Len(sent, 1)
		require.Equal(cu.NewSetFuelLoad(7, 0).Encode(), sent[0].Encode())
	})

	t.Run("Validation", func(t *testing.T) {
		session := newFakeSession()
		unit := New(session)

		require.ErrorIs(unit.SetSpeedLimit(ctx, -1, 5), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetSpeedLimit(ctx, 8, 5), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetSpeedLimit(ctx, 0, -1), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetSpeedLimit(ctx, 0, 16), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetBrakeStrength(ctx, 0, 16), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetFuelLoad(ctx, 0, 16), cu.ErrInvalidArgument)

		// nothing reaches the wire on a validation failure
		require.Empty(session.sentCommands())
	})
}

func TestSetLaneLimits(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	t.Run("SpeedBrakeFuelOrder", func(t *testing.T) {
		session := newFakeSession()
		require.NoError(New(session).SetLaneLimits(ctx, 2, 10, 8, 6))

		sent := session.sentCommands()
		require.Len(sent, 3)
		require.Equal(cu.NewSetSpeedLimit(2, 10).Encode(), sent[0].Encode())
		require.Equal(cu.NewSetBrakeStrength(2, 8).Encode(), sent[1].Encode())
		require.Equal(cu.NewSetFuelLoad(2, 6).Encode(), sent[2].Encode())
	})

	t.Run("NegativeFuelSkipsFuelLoad", func(t *testing.T) {
		session := newFakeSession()
		require.NoError(New(session).SetLaneLimits(ctx, 2, 10, 8, -1))

		sent := session.sentCommands()
		require.Len(sent, 2)
		require.Equal(cu.NewSetSpeedLimit(2, 10).Encode(), sent[0].Encode())
		require.Equal(cu.NewSetBrakeStrength(2, 8).Encode(), sent[1].Encode())
	})

	t.Run("ValidatesBeforeSending", func(t *testing.T) {
		session := newFakeSession()
		unit := New(session)

		require.ErrorIs(unit.SetLaneLimits(ctx, 0, 5, 16, 5), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetLaneLimits(ctx, 0, 5, 5, 16), cu.ErrInvalidArgument)
		require.Empty(session.sentCommands())
	})
}

func TestSetStartLight(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	keyPresses := func(session *fakeSession) int {
		count := 0
		for _, cmd := range session.sentCommands() {
			if cmd.Tag() == cu.TagKeyPress {
				count++
			}
		}
		return count
	}

	t.Run("UnlitToOn", func(t *testing.T) {
		session := newFakeSession(trackWith(cu.StartSignalNone))
		require.NoError(New(session).SetStartLight(ctx, true))
		require.Equal(1, keyPresses(session))
	})

	t.Run("UnlitToOff", func(t *testing.T) {
		session := newFakeSession(trackWith(cu.StartSignalNone))
		require.NoError(New(session).SetStartLight(ctx, false))
		require.Equal(0, keyPresses(session))
	})

	t.Run("LitToOn", func(t *testing.T) {
		session := newFakeSession(trackWith(cu.StartSignalGo))
		require.NoError(New(session).SetStartLight(ctx, true))
		require.Equal(0, keyPresses(session))
	})

	t.Run("LitToOff", func(t *testing.T) {
		session := newFakeSession(trackWith(cu.StartSignalGo))
		require.NoError(New(session).SetStartLight(ctx, false))
		require.Equal(1, keyPresses(session))
	})
}

func TestPressKey(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	t.Run("KnownKeys", func(t *testing.T) {
		session := newFakeSession()
		unit := New(session)

		for _, key := range []cu.Key{cu.KeyPaceCar, cu.KeyStart, cu.KeySpeed, cu.KeyBrake, cu.KeyFuel, cu.KeyCode} {
			require.NoError(unit.PressKey(ctx, key))
		}
		require.Len(session.sentCommands(), 6)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		session := newFakeSession()

		require.ErrorIs(New(session).PressKey(ctx, cu.Key(3)), cu.ErrInvalidArgument)
		require.Empty(session.sentCommands())
	})
}

func TestResets(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	session := newFakeSession()
	unit := New(session)

	require.NoError(unit.ResetPositions(ctx))
	require.NoError(unit.ResetClock(ctx))

	sent := session.sentCommands()
	require.Len(sent, 2)
	require.Equal(cu.NewResetPositions().Encode(), sent[0].Encode())
	require.Equal(cu.ResetClock{}.Encode(), sent[1].Encode())
}

func TestSetDisplayedLap(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	t.Run("HighThenLow", func(t *testing.T) {
		session := newFakeSession()
		require.NoError(New(session).SetDisplayedLap(ctx, 0xAB))

		sent := session.sentCommands()
		require.Len(sent, 2)
		require.Equal(cu.NewSetLapHigh(0xAB).Encode(), sent[0].Encode())
		require.Equal(cu.NewSetLapLow(0xAB).Encode(), sent[1].Encode())
	})

	t.Run("Validation", func(t *testing.T) {
		session := newFakeSession()
		unit := New(session)

		require.ErrorIs(unit.SetDisplayedLap(ctx, -1), cu.ErrInvalidArgument)
		require.ErrorIs(unit.SetDisplayedLap(ctx, 256), cu.ErrInvalidArgument)
		require.Empty(session.sentCommands())
	})
}

func TestSendForAckUnexpectedReply(t *testing.T) {
	require := require.New(t)

	session := newFakeSession(trackWith(cu.StartSignalNone))

	require.Error(New(session).ResetClock(context.Background()))
}

func TestLapEvents(t *testing.T) {
	require := require.New(t)

	session := newFakeSession()
	unit := New(session)

	laps, cancel := unit.LapEvents()

	session.events <- cu.Event{Response: trackWith(cu.StartSignalGo), ReceivedAt: time.Now()}
	session.events <- cu.Event{Response: lapOn(2, 5000), ReceivedAt: time.Now()}
	session.events <- cu.Event{Response: trackWith(cu.StartSignalGo), ReceivedAt: time.Now()}
	session.events <- cu.Event{Response: lapOn(3, 6000), ReceivedAt: time.Now()}

	lap := <-laps
	require.Equal(uint8(2), lap.Controller)
	require.Equal(uint32(5000), lap.Timestamp.Millis())

	lap = <-laps
	require.Equal(uint8(3), lap.Controller)

	cancel()

	// the filtered channel closes once the subscription is gone
	select {
	case _, ok := <-laps:
		require.False(ok)
	case <-time.After(time.Second):
		t.Fatal("lap channel not closed after cancel")
	}
}
