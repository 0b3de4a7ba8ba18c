// Package navigation is the robot's decision core: a wall-following state
// machine that hands over to a room search once a floor line is crossed.
//
// Everything runs on the caller's goroutine. Each step blocks on the sensors
// and actuators it uses; there is no background work.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"firefighter-core/hardware"
)

var (
	ErrNoDirection        = errors.New("no direction")
	ErrSquareUpTimeout    = errors.New("square-up timed out")
	ErrRoomNotImplemented = errors.New("room search not implemented")
	ErrHalted             = errors.New("mission halted")
)

// Mode is the controller's top-level state.
type Mode int

const (
	ModeNavigating Mode = iota
	ModeInRoom
	ModeHalted
)

func (m Mode) String() string {
	switch m {
	case ModeNavigating:
		return "navigating"
	case ModeInRoom:
		return "in-room"
	case ModeHalted:
		return "halted"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Direction tags a side of the robot. None is a sentinel and is rejected
// wherever a direction has to be acted on.
type Direction int

const (
	None Direction = iota
	Front
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Front:
		return "front"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "none"
	}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Left:
		return Right
	case Right:
		return Left
	default:
		return None
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "front":
		*d = Front
	case "left":
		*d = Left
	case "right":
		*d = Right
	case "none", "":
		*d = None
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// pivot returns the pivot primitive that turns the robot toward d.
func pivot(d Direction) (hardware.Primitive, error) {
	switch d {
	case Left:
		return hardware.PivotLeft, nil
	case Right:
		return hardware.PivotRight, nil
	default:
		return hardware.Stop, fmt.Errorf("%w: pivot %s", ErrNoDirection, d)
	}
}

// LineCrossing is one simultaneous sample of both floor sensors.
type LineCrossing struct {
	Left, Right bool
}

func (l LineCrossing) Any() bool  { return l.Left || l.Right }
func (l LineCrossing) Both() bool { return l.Left && l.Right }

// Action is the wall-following decision for one cycle.
type Action int

const (
	ActionHold        Action = iota // inside the band: drive forward
	ActionSteerAway                 // too close
	ActionSteerToward               // too far
	ActionWallLost                  // no wall within the ceiling
	ActionEnterRoom                 // line crossed, squared up
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionSteerAway:
		return "steer-away"
	case ActionSteerToward:
		return "steer-toward"
	case ActionWallLost:
		return "wall-lost"
	case ActionEnterRoom:
		return "enter-room"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Outcome is how a room search ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeExtinguished
	OutcomeNoFlame
	OutcomeRoomNotImplemented
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExtinguished:
		return "extinguished"
	case OutcomeNoFlame:
		return "no-flame"
	case OutcomeRoomNotImplemented:
		return "room-not-implemented"
	default:
		return "none"
	}
}

// Device boundaries.
type (
	RangeSensor interface {
		Measure(ctx context.Context) (int, error)
	}
	LineSensors interface {
		Left() bool
		Right() bool
	}
	FlameSensor interface {
		Intensity() (int, error)
	}
	SensorHead interface {
		SetAngle(ctx context.Context, deg int) error
	}
	MotorDriver interface {
		Do(ctx context.Context, p hardware.Primitive) error
	}
	Pump interface {
		Set(on bool) error
	}
	Display interface {
		Show(text string, value *int)
	}
)

// Devices bundles the boundaries the controller and the search drive.
type Devices struct {
	Range   RangeSensor
	Lines   LineSensors
	Flame   FlameSensor
	Head    SensorHead
	Motors  MotorDriver
	Pump    Pump
	Display Display
}

func (d Devices) validate() error {
	switch {
	case d.Range == nil:
		return errors.New("devices: range sensor missing")
	case d.Lines == nil:
		return errors.New("devices: line sensors missing")
	case d.Flame == nil:
		return errors.New("devices: flame sensor missing")
	case d.Head == nil:
		return errors.New("devices: sensor head missing")
	case d.Motors == nil:
		return errors.New("devices: motors missing")
	case d.Pump == nil:
		return errors.New("devices: pump missing")
	}
	return nil
}

// SampleBoth reads both line sensors back to back.
func SampleBoth(ls LineSensors) LineCrossing {
	return LineCrossing{Left: ls.Left(), Right: ls.Right()}
}

// Clock abstracts time so the blocking waits can be driven by tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CycleRecord describes one navigation cycle.
type CycleRecord struct {
	Cycle    uint64
	At       time.Time
	Room     int
	Ideal    int
	Distance int
	Reading  bool // false when the sonar got no echo
	Action   Action
}

// SweepRecord describes one completed room search.
type SweepRecord struct {
	At      time.Time
	Room    int
	Sweep   Sweep
	Outcome Outcome
}

// Recorder receives telemetry. Implementations must not block for long.
type Recorder interface {
	RecordCycle(CycleRecord)
	RecordSweep(SweepRecord)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(CycleRecord) {}
func (nopRecorder) RecordSweep(SweepRecord) {}

type nopDisplay struct{}

func (nopDisplay) Show(string, *int) {}

func intp(v int) *int { return &v }
