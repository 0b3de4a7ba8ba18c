// Package hardware adapts the robot's sensors and actuators to the small
// blocking interfaces the navigation core drives.
//
// Fast digital I/O (sonar trigger/echo, floor line sensors, pump) lives on GPIO
// through periph. The drive motors, the sensor-head servo and the flame ADC sit
// on the peripheral board and are reached over CAN. The status LCD hangs off a
// serial line.
package hardware

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoEcho means no echo edge arrived within the timeout: no target in range.
	ErrNoEcho = errors.New("no echo")
	// ErrNoReading means a bus-fed sensor has not reported yet.
	ErrNoReading = errors.New("no reading")
	// ErrUnknownPrimitive is returned for a drive primitive outside the vocabulary.
	ErrUnknownPrimitive = errors.New("unknown drive primitive")
)

// Primitive is one named drive command.
type Primitive int

const (
	Stop Primitive = iota
	Forward
	Backward
	SpinLeft
	SpinRight
	PivotLeft
	PivotRight
)

func (p Primitive) String() string {
	switch p {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case SpinLeft:
		return "spin-left"
	case SpinRight:
		return "spin-right"
	case PivotLeft:
		return "pivot-left"
	case PivotRight:
		return "pivot-right"
	default:
		return fmt.Sprintf("primitive(%d)", int(p))
	}
}

// SideDir is the rotation sense of one drive channel.
type SideDir int

const (
	Halt SideDir = iota
	Ahead
	Reverse
)

// SideCommand is what one drive channel receives.
type SideCommand struct {
	Dir  SideDir
	Duty uint8
}

// Signed folds direction into the duty: positive ahead, negative reverse.
func (c SideCommand) Signed() int {
	switch c.Dir {
	case Ahead:
		return int(c.Duty)
	case Reverse:
		return -int(c.Duty)
	default:
		return 0
	}
}

// Bridge applies a pair of side commands to the motor power stage.
type Bridge interface {
	Drive(ctx context.Context, left, right SideCommand) error
}

// EchoTimer fires one ranging pulse and returns the echo round-trip time.
// It returns ErrNoEcho when the echo does not come back in time.
type EchoTimer interface {
	Ping(ctx context.Context) (int64, error) // microseconds
}
