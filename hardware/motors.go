package hardware

import (
	"context"
	"fmt"
)

// MotorConfig sets the drive duty and the per-channel calibration.
type MotorConfig struct {
	Duty      uint8 `json:"duty"`       // full-speed PWM duty, 0..255
	RightTrim int   `json:"right_trim"` // added to the right channel's duty
}

func DefaultMotorConfig() MotorConfig {
	// The right channel runs fast; 255-25 = 230 matches it to the left.
	return MotorConfig{Duty: 255, RightTrim: -25}
}

// Motors turns drive primitives into side commands. There is no ramping and
// no speed feedback; every call is an unconditional write.
type Motors struct {
	cfg    MotorConfig
	bridge Bridge
	last   Primitive
}

func NewMotors(cfg MotorConfig, bridge Bridge) *Motors {
	return &Motors{cfg: cfg, bridge: bridge}
}

// Sides returns the (left, right) commands for p, trim applied.
func (m *Motors) Sides(p Primitive) (SideCommand, SideCommand, error) {
	var l, r SideDir
	switch p {
	case Stop:
		l, r = Halt, Halt
	case Forward:
		l, r = Ahead, Ahead
	case Backward:
		l, r = Reverse, Reverse
	case SpinLeft:
		l, r = Reverse, Ahead
	case SpinRight:
		l, r = Ahead, Reverse
	case PivotLeft:
		l, r = Halt, Ahead
	case PivotRight:
		l, r = Ahead, Halt
	default:
		return SideCommand{}, SideCommand{}, fmt.Errorf("%w: %d", ErrUnknownPrimitive, int(p))
	}
	return m.side(l, 0), m.side(r, m.cfg.RightTrim), nil
}

func (m *Motors) side(dir SideDir, trim int) SideCommand {
	if dir == Halt {
		return SideCommand{Dir: Halt}
	}
	duty := int(m.cfg.Duty) + trim
	if duty < 0 {
		duty = 0
	}
	if duty > 255 {
		duty = 255
	}
	return SideCommand{Dir: dir, Duty: uint8(duty)}
}

// Do executes p.
func (m *Motors) Do(ctx context.Context, p Primitive) error {
	l, r, err := m.Sides(p)
	if err != nil {
		return err
	}
	if err := m.bridge.Drive(ctx, l, r); err != nil {
		return fmt.Errorf("drive %s: %w", p, err)
	}
	m.last = p
	return nil
}

// Last is the most recent primitive successfully applied.
func (m *Motors) Last() Primitive { return m.last }
