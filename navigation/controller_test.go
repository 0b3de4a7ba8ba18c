package navigation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefighter-core/hardware"
)

func TestDecide(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name  string
		ideal int
		d     int
		ok    bool
		want  Action
	}{
		{"too close", 30, 19, true, ActionSteerAway},
		{"lower edge holds", 30, 20, true, ActionHold},
		{"centre", 30, 30, true, ActionHold},
		{"upper edge holds", 30, 40, true, ActionHold},
		{"too far", 30, 41, true, ActionSteerToward},
		{"at ceiling", 30, 50, true, ActionSteerToward},
		{"past ceiling", 30, 51, true, ActionWallLost},
		{"past ceiling inside band", 48, 55, true, ActionWallLost},
		{"no echo", 30, 0, false, ActionWallLost},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(cfg, tc.ideal, tc.d, tc.ok))
		})
	}
}

func TestStartAimsHeadAtWall(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30))
	require.NoError(t, r.ctrl.Start(context.Background()))
	assert.Equal(t, []int{15}, r.head.angles)
	assert.Equal(t, []time.Duration{time.Second}, r.clock.slept)
	assert.Equal(t, Right, r.ctrl.HeadFacing())

	cfg := DefaultConfig()
	cfg.WallSide = Left
	r = newRig(t, cfg, cm(30))
	require.NoError(t, r.ctrl.Start(context.Background()))
	assert.Equal(t, []int{165}, r.head.angles)
}

func TestIdealDistanceOnlyRecalibratedAtZero(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), cm(31), cm(29), cm(33))

	r.step(t)
	assert.Equal(t, 30, r.ctrl.IdealDistance())
	assert.Equal(t, 2, r.rng.calls, "calibration plus one decision reading")

	r.step(t)
	r.step(t)
	assert.Equal(t, 30, r.ctrl.IdealDistance())
	assert.Equal(t, 4, r.rng.calls, "one reading per cycle once calibrated")
}

func TestCalibrationWithoutEchoStaysZero(t *testing.T) {
	r := newRig(t, DefaultConfig(), noEcho, cm(8), cm(25), cm(25))

	r.step(t)
	assert.Equal(t, 0, r.ctrl.IdealDistance())

	r.step(t)
	assert.Equal(t, 25, r.ctrl.IdealDistance())
}

// Distances stuck at 12 with the ideal at 30: the near correction every
// cycle until the reading is back inside [20, 40].
func TestSteersAwayUntilBackInBand(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), cm(12), cm(12), cm(12), cm(25))

	for i := 0; i < 4; i++ {
		r.step(t)
	}

	assert.Equal(t, []hardware.Primitive{
		hardware.PivotLeft, hardware.PivotLeft, hardware.PivotLeft, hardware.Forward,
	}, r.motors.log)
	assert.Equal(t, []time.Duration{
		20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond,
	}, r.clock.slept, "every pivot settles; forward does not")
	assert.Equal(t, 30, r.ctrl.IdealDistance())
}

func TestSteersTowardWhenTooFar(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(20), cm(35))
	r.step(t)
	assert.Equal(t, []hardware.Primitive{hardware.PivotRight}, r.motors.log)

	cfg := DefaultConfig()
	cfg.WallSide = Left
	r = newRig(t, cfg, cm(20), cm(35), cm(5))
	r.step(t)
	r.step(t)
	assert.Equal(t, []hardware.Primitive{hardware.PivotLeft, hardware.PivotRight}, r.motors.log)
}

func TestWallLostResetsIdealAndReacquires(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), cm(60), cm(40), cm(15))

	r.step(t)

	assert.Equal(t, 0, r.ctrl.IdealDistance())
	assert.Equal(t, ModeNavigating, r.ctrl.Mode())
	assert.Equal(t, 200, r.motors.count(hardware.Forward), "1s forward probe polled every 5ms")
	assert.Equal(t, 1, r.motors.count(hardware.PivotRight))
	assert.Equal(t, hardware.PivotRight, r.motors.log[len(r.motors.log)-1])

	require.NotEmpty(t, r.rec.cycles)
	assert.Equal(t, ActionWallLost, r.rec.cycles[0].Action)

	// The next cycle recalibrates from a fresh reading.
	r.step(t)
	assert.Equal(t, 15, r.ctrl.IdealDistance())
}

func TestNoEchoCountsAsWallLost(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), noEcho, cm(10))

	r.step(t)

	assert.Equal(t, 0, r.ctrl.IdealDistance())
	assert.Equal(t, 200, r.motors.count(hardware.Forward))
	assert.Zero(t, r.motors.count(hardware.PivotRight), "wall already close after the probe")
	require.NotEmpty(t, r.rec.cycles)
	assert.False(t, r.rec.cycles[0].Reading)
}

func TestWallSearchGivesUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WallSearchMS = 100
	r := newRig(t, cfg, cm(30), cm(60), cm(45))

	r.step(t)

	assert.Equal(t, 20, r.motors.count(hardware.PivotRight))
	assert.Equal(t, ModeNavigating, r.ctrl.Mode())
}

func TestLineDuringProbeEntersRoom(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), cm(60))
	r.motors.onDo = func(p hardware.Primitive, _ int) {
		switch {
		case p == hardware.Forward && r.motors.count(hardware.Forward) == 10:
			r.lines.right = true
		case p == hardware.PivotLeft:
			r.lines.left = true
		}
	}

	r.step(t)

	assert.Equal(t, ModeInRoom, r.ctrl.Mode())
	assert.Equal(t, 1, r.ctrl.Room())
	assert.Equal(t, 10, r.motors.count(hardware.Forward))
	assert.Equal(t, 1, r.motors.count(hardware.PivotLeft))
}

func TestLineDuringPivotSearchEntersRoom(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), cm(60), cm(45))
	r.motors.onDo = func(p hardware.Primitive, _ int) {
		if p == hardware.PivotRight && r.motors.count(hardware.PivotRight) == 3 {
			r.lines.left, r.lines.right = true, true
		}
	}

	r.step(t)

	assert.Equal(t, ModeInRoom, r.ctrl.Mode())
	assert.Equal(t, 1, r.ctrl.Room())
	assert.Equal(t, 3, r.motors.count(hardware.PivotRight))
}

func TestSquareUp(t *testing.T) {
	tests := []struct {
		name        string
		left, right bool
		towardHit   bool
		want        hardware.Primitive
	}{
		{"right first pivots left", false, true, false, hardware.PivotLeft},
		{"left first pivots right", true, false, false, hardware.PivotRight},
		{"right first toward hit", false, true, true, hardware.PivotRight},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SquareUpTowardHit = tc.towardHit
			r := newRig(t, cfg, cm(30))
			r.lines.left, r.lines.right = tc.left, tc.right
			r.motors.onDo = func(p hardware.Primitive, n int) {
				if n == 3 {
					r.lines.left, r.lines.right = true, true
				}
			}

			r.step(t)

			assert.Equal(t, []hardware.Primitive{tc.want, tc.want, tc.want}, r.motors.log)
			assert.Equal(t, ModeInRoom, r.ctrl.Mode())
			assert.Equal(t, 1, r.ctrl.Room(), "exactly one room increment")
			assert.Equal(t, 1, r.rng.calls, "no distance decision on the entering cycle")
		})
	}
}

func TestBothLinesEnterWithoutPivot(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30))
	r.lines.left, r.lines.right = true, true

	r.step(t)

	assert.Empty(t, r.motors.log)
	assert.Equal(t, ModeInRoom, r.ctrl.Mode())
	require.NotEmpty(t, r.rec.cycles)
	assert.Equal(t, ActionEnterRoom, r.rec.cycles[len(r.rec.cycles)-1].Action)
}

func TestSquareUpTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SquareUpMS = 50
	r := newRig(t, cfg, cm(30))
	r.lines.right = true

	err := r.ctrl.Step(context.Background())

	require.ErrorIs(t, err, ErrSquareUpTimeout)
	assert.Equal(t, 10, r.motors.count(hardware.PivotLeft))
	assert.Equal(t, ModeNavigating, r.ctrl.Mode())
	assert.Equal(t, 0, r.ctrl.Room())
}

func TestUnimplementedRoomHalts(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30))
	r.ctrl.room = 1
	r.lines.left, r.lines.right = true, true

	r.step(t)
	require.Equal(t, 2, r.ctrl.Room())

	err := r.ctrl.Step(context.Background())
	require.ErrorIs(t, err, ErrRoomNotImplemented)
	assert.Equal(t, ModeHalted, r.ctrl.Mode())

	err = r.ctrl.Step(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
}

func TestRunToExtinguished(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30), cm(31), cm(29))
	r.flame.values = []int{80, 70, 40, 65}
	r.motors.onDo = func(p hardware.Primitive, _ int) {
		if p == hardware.Forward && r.motors.count(hardware.Forward) == 2 {
			r.lines.left, r.lines.right = true, true
		}
	}

	report, err := r.ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Room)
	assert.Equal(t, OutcomeExtinguished, report.Outcome)
	assert.Equal(t, Right, report.FlameSide)
	assert.Equal(t, 2, report.Sweep.Index)
	assert.Equal(t, 25, report.Sweep.Angle)
	assert.Equal(t, uint64(3), report.Cycles)

	assert.Equal(t, []int{15, 15, 20, 25, 30, 25}, r.head.angles)
	assert.Equal(t, ModeHalted, r.ctrl.Mode())
	assert.Equal(t, hardware.Stop, r.motors.log[len(r.motors.log)-1])

	require.Len(t, r.pump.events, 2)
	assert.True(t, r.pump.events[0].on)
	assert.False(t, r.pump.events[1].on)
	assert.Equal(t, 500*time.Millisecond, r.pump.events[1].at.Sub(r.pump.events[0].at))

	assert.Len(t, r.rec.sweeps, 1)
	assert.Contains(t, r.display.lines, "NAVIGATING...")
	assert.Contains(t, r.display.lines, "SEARCHING ROOM")
	assert.Contains(t, r.display.lines, "EXTINGUISHING")
}

func TestRunStopsMotorsOnCancel(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30))
	ctx, cancel := context.WithCancel(context.Background())
	r.motors.onDo = func(p hardware.Primitive, n int) {
		if n == 5 {
			cancel()
		}
	}

	_, err := r.ctrl.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, hardware.Stop, r.motors.log[len(r.motors.log)-1])
	assert.Equal(t, ModeHalted, r.ctrl.Mode())
}

func TestNewControllerRejectsMissingDevices(t *testing.T) {
	r := newRig(t, DefaultConfig(), cm(30))
	dev := r.ctrl.dev
	dev.Pump = nil
	_, err := NewController(DefaultConfig(), dev, nil, nil, r.ctrl.log)
	assert.ErrorContains(t, err, "pump missing")

	cfg := DefaultConfig()
	cfg.WallSide = None
	_, err = NewController(cfg, r.ctrl.dev, nil, nil, r.ctrl.log)
	assert.ErrorContains(t, err, "wall_side")
}
