package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firefighter-core/hardware"
	"firefighter-core/utils"
)

// Report summarises a finished mission.
type Report struct {
	Room      int
	Outcome   Outcome
	FlameSide Direction // side the head faced when the flame was placed
	Sweep     Sweep
	Cycles    uint64
}

// Controller follows the corridor wall and hands over to the room search once
// a floor line is crossed.
type Controller struct {
	cfg    Config
	dev    Devices
	clock  Clock
	log    *utils.Logger
	rec    Recorder
	search *RoomSearch

	mode   Mode
	ideal  int // 0 means recalibrate on the next cycle
	room   int
	cycle  uint64
	facing Direction
	report Report
}

// NewController validates cfg and dev. A nil clock uses the system clock, a nil
// recorder drops telemetry and a nil display is silent.
func NewController(cfg Config, dev Devices, clock Clock, rec Recorder, log *utils.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := dev.validate(); err != nil {
		return nil, err
	}
	if dev.Display == nil {
		dev.Display = nopDisplay{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Controller{
		cfg:    cfg,
		dev:    dev,
		clock:  clock,
		log:    log.Named("nav"),
		rec:    rec,
		search: newRoomSearch(cfg, dev, clock, rec, log.Named("search")),
		mode:   ModeNavigating,
		facing: None,
	}, nil
}

func (c *Controller) Mode() Mode            { return c.mode }
func (c *Controller) IdealDistance() int    { return c.ideal }
func (c *Controller) Room() int             { return c.room }
func (c *Controller) HeadFacing() Direction { return c.facing }

// Start points the sensor head at the wall and waits for it to settle.
func (c *Controller) Start(ctx context.Context) error {
	angle, err := c.cfg.HeadAngle(c.cfg.WallSide)
	if err != nil {
		return err
	}
	if err := c.dev.Head.SetAngle(ctx, angle); err != nil {
		return fmt.Errorf("aim head: %w", err)
	}
	c.facing = c.cfg.WallSide
	c.log.Info("following %s wall, head at %d deg", c.cfg.WallSide, angle)
	return c.clock.Sleep(ctx, ms(c.cfg.HeadSettleMS))
}

// Run starts the controller and steps it until the mission ends, ctx is done
// or a step fails. The motors are stopped on the way out.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	if err := c.Start(ctx); err != nil {
		return c.report, err
	}
	for {
		err := c.Step(ctx)
		if err == nil {
			continue
		}
		c.stopMotors(ctx)
		c.report.Cycles = c.cycle
		if errors.Is(err, ErrHalted) {
			return c.report, nil
		}
		c.mode = ModeHalted
		return c.report, err
	}
}

// Step runs one cycle of the current mode. It returns ErrHalted once the
// mission is over.
func (c *Controller) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch c.mode {
	case ModeNavigating:
		return c.navigate(ctx)
	case ModeInRoom:
		return c.searchRoom(ctx)
	default:
		return ErrHalted
	}
}

// Decide picks the wall-following action for one reading. ok is false when
// the sonar got no echo at all.
func Decide(cfg Config, ideal, distance int, ok bool) Action {
	switch {
	case !ok || distance > cfg.WallCeiling:
		return ActionWallLost
	case distance < ideal-cfg.Tolerance:
		return ActionSteerAway
	case distance > ideal+cfg.Tolerance:
		return ActionSteerToward
	default:
		return ActionHold
	}
}

func (c *Controller) navigate(ctx context.Context) error {
	c.cycle++
	c.dev.Display.Show("NAVIGATING...", nil)

	if c.ideal == 0 {
		d, err := c.dev.Range.Measure(ctx)
		switch {
		case err == nil:
			c.ideal = d
			c.log.Debug("ideal distance set to %d", d)
		case errors.Is(err, hardware.ErrNoEcho):
			c.log.Trace("no echo while calibrating")
		default:
			return fmt.Errorf("calibrate: %w", err)
		}
	}

	entered, err := c.checkLine(ctx)
	if err != nil || entered {
		return err
	}

	d, err := c.dev.Range.Measure(ctx)
	ok := err == nil
	if err != nil && !errors.Is(err, hardware.ErrNoEcho) {
		return fmt.Errorf("range: %w", err)
	}

	act := Decide(c.cfg, c.ideal, d, ok)
	c.rec.RecordCycle(CycleRecord{
		Cycle: c.cycle, At: c.clock.Now(), Room: c.room,
		Ideal: c.ideal, Distance: d, Reading: ok, Action: act,
	})
	c.log.Trace("cycle %d: ideal=%d d=%d ok=%v -> %s", c.cycle, c.ideal, d, ok, act)

	switch act {
	case ActionSteerAway:
		return c.steer(ctx, c.cfg.WallSide.Opposite())
	case ActionSteerToward:
		return c.steer(ctx, c.cfg.WallSide)
	case ActionWallLost:
		return c.reacquire(ctx)
	default:
		return c.dev.Motors.Do(ctx, hardware.Forward)
	}
}

func (c *Controller) steer(ctx context.Context, toward Direction) error {
	turn, err := pivot(toward)
	if err != nil {
		return err
	}
	if err := c.dev.Motors.Do(ctx, turn); err != nil {
		return err
	}
	return c.clock.Sleep(ctx, ms(c.cfg.PivotSettleMS))
}

// checkLine samples the floor sensors. When one side is on the line it squares
// the robot up until the other side is too, then enters the room.
func (c *Controller) checkLine(ctx context.Context) (bool, error) {
	lc := SampleBoth(c.dev.Lines)
	if !lc.Any() {
		return false, nil
	}

	hit, other := Right, c.dev.Lines.Left
	if !lc.Right {
		hit, other = Left, c.dev.Lines.Right
	}

	if !lc.Both() {
		turnTo := hit.Opposite()
		if c.cfg.SquareUpTowardHit {
			turnTo = hit
		}
		turn, err := pivot(turnTo)
		if err != nil {
			return false, err
		}
		c.log.Debug("%s sensor on the line; squaring up with %s", hit, turn)

		start := c.clock.Now()
		limit := ms(c.cfg.SquareUpMS)
		for !other() {
			if limit > 0 && c.clock.Now().Sub(start) >= limit {
				return false, fmt.Errorf("%w after %s (%s sensor only)", ErrSquareUpTimeout, limit, hit)
			}
			if err := c.dev.Motors.Do(ctx, turn); err != nil {
				return false, err
			}
			if err := c.clock.Sleep(ctx, ms(c.cfg.PollMS)); err != nil {
				return false, err
			}
		}
	}

	c.room++
	c.mode = ModeInRoom
	c.rec.RecordCycle(CycleRecord{
		Cycle: c.cycle, At: c.clock.Now(), Room: c.room,
		Ideal: c.ideal, Action: ActionEnterRoom,
	})
	c.log.Info("line crossed; entering room %d", c.room)
	return true, nil
}

// reacquire runs after the wall is lost: a straight probe, then a pivot
// toward the wall side until it is close again. Both phases keep watching
// the floor so a doorway is not missed.
func (c *Controller) reacquire(ctx context.Context) error {
	c.ideal = 0
	c.log.Info("wall lost; reacquiring")

	probe := ms(c.cfg.ProbeMS)
	poll := ms(c.cfg.PollMS)
	start := c.clock.Now()
	for c.clock.Now().Sub(start) < probe {
		if err := c.dev.Motors.Do(ctx, hardware.Forward); err != nil {
			return err
		}
		if entered, err := c.checkLine(ctx); err != nil || entered {
			return err
		}
		if err := c.clock.Sleep(ctx, poll); err != nil {
			return err
		}
	}

	turn, err := pivot(c.cfg.WallSide)
	if err != nil {
		return err
	}
	limit := ms(c.cfg.WallSearchMS)
	start = c.clock.Now()
	for {
		d, err := c.dev.Range.Measure(ctx)
		switch {
		case err == nil && d < c.cfg.NearWall:
			c.log.Info("wall reacquired at %d", d)
			return nil
		case err != nil && !errors.Is(err, hardware.ErrNoEcho):
			return fmt.Errorf("range: %w", err)
		}
		if limit > 0 && c.clock.Now().Sub(start) >= limit {
			c.log.Warn("no wall within %d after %s; resuming navigation", c.cfg.NearWall, limit)
			return nil
		}
		if err := c.dev.Motors.Do(ctx, turn); err != nil {
			return err
		}
		if entered, err := c.checkLine(ctx); err != nil || entered {
			return err
		}
		if err := c.clock.Sleep(ctx, poll); err != nil {
			return err
		}
	}
}

func (c *Controller) searchRoom(ctx context.Context) error {
	res, err := c.search.Search(ctx, c.room)
	c.mode = ModeHalted
	c.report = Report{
		Room:    c.room,
		Outcome: res.Outcome,
		Sweep:   res.Sweep,
		Cycles:  c.cycle,
	}
	if res.Sweep.Angles != nil {
		c.facing = c.cfg.Facing(res.Sweep.Angle)
	}
	if res.Outcome == OutcomeExtinguished {
		c.report.FlameSide = c.facing
	}
	if err != nil {
		return fmt.Errorf("room %d: %w", c.room, err)
	}
	c.log.Info("room %d done: %s", c.room, res.Outcome)
	return nil
}

func (c *Controller) stopMotors(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 100*time.Millisecond)
	defer cancel()
	if err := c.dev.Motors.Do(ctx, hardware.Stop); err != nil {
		c.log.Error("stop motors: %v", err)
	}
}
