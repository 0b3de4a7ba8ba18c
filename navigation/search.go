package navigation

import (
	"context"
	"fmt"

	"firefighter-core/hardware"
	"firefighter-core/utils"
)

// Sweep is the result of scanning the room with the sensor head.
type Sweep struct {
	Angles    []int // head angle of each sample
	Samples   []int // flame intensity at each angle
	Localized bool  // the early-stop rule fired
	Index     int   // sample index the flame was placed at, -1 if not localized
	Angle     int   // where the head was left
}

// Result is what a room search reports back to the controller.
type Result struct {
	Outcome Outcome
	Sweep   Sweep
}

// Upturn is the early-stop rule: a rise in intensity right after a reading
// under the flame threshold means the head just swept past the flame.
func Upturn(prev, cur, threshold int) bool {
	return prev < threshold && cur > prev
}

// RoomSearch scans a room for a flame and deals with it.
type RoomSearch struct {
	cfg   Config
	dev   Devices
	clock Clock
	log   *utils.Logger
	rec   Recorder
}

func newRoomSearch(cfg Config, dev Devices, clock Clock, rec Recorder, log *utils.Logger) *RoomSearch {
	return &RoomSearch{cfg: cfg, dev: dev, clock: clock, rec: rec, log: log}
}

// Search runs the search procedure for the given room. Only the first room has
// one; any other room reports OutcomeRoomNotImplemented with
// ErrRoomNotImplemented.
func (s *RoomSearch) Search(ctx context.Context, room int) (Result, error) {
	if room != 1 {
		s.log.Error("no search procedure for room %d", room)
		return Result{Outcome: OutcomeRoomNotImplemented}, fmt.Errorf("%w: room %d", ErrRoomNotImplemented, room)
	}

	s.dev.Display.Show("SEARCHING ROOM", nil)
	if err := s.faceInterior(ctx); err != nil {
		return Result{}, err
	}

	sw, err := s.sweep(ctx)
	if err != nil {
		return Result{Sweep: sw}, err
	}

	res := Result{Sweep: sw}
	if sw.Localized {
		s.log.Info("flame at %d deg (sample %d, intensity %d)", sw.Angle, sw.Index, sw.Samples[sw.Index])
		err = s.extinguish(ctx)
		res.Outcome = OutcomeExtinguished
	} else {
		s.log.Info("no flame after %d samples", len(sw.Samples))
		err = s.exitRoom(ctx)
		res.Outcome = OutcomeNoFlame
	}
	s.rec.RecordSweep(SweepRecord{At: s.clock.Now(), Room: room, Sweep: sw, Outcome: res.Outcome})
	return res, err
}

// faceInterior pivots in place long enough for the sweep to cover the room.
func (s *RoomSearch) faceInterior(ctx context.Context) error {
	turn, err := pivot(s.cfg.RoomEntryPivot)
	if err != nil {
		return err
	}
	if err := s.dev.Motors.Do(ctx, turn); err != nil {
		return err
	}
	if err := s.clock.Sleep(ctx, ms(s.cfg.RoomPivotMS)); err != nil {
		return err
	}
	return s.dev.Motors.Do(ctx, hardware.Stop)
}

func (s *RoomSearch) sweep(ctx context.Context) (Sweep, error) {
	n := s.cfg.SweepSteps()
	sw := Sweep{
		Angles:  make([]int, 0, n),
		Samples: make([]int, 0, n),
		Index:   -1,
	}
	hold := ms(s.cfg.SweepHoldMS)

	for angle := s.cfg.ServoMin; angle <= s.cfg.ServoMax; angle += s.cfg.SweepStep {
		if err := s.point(ctx, angle, &sw); err != nil {
			return sw, err
		}
		if err := s.clock.Sleep(ctx, hold); err != nil {
			return sw, err
		}
		v, err := s.dev.Flame.Intensity()
		if err != nil {
			return sw, fmt.Errorf("flame sample at %d deg: %w", angle, err)
		}
		sw.Angles = append(sw.Angles, angle)
		sw.Samples = append(sw.Samples, v)

		k := len(sw.Samples) - 1
		if k >= 1 && Upturn(sw.Samples[k-1], v, s.cfg.FlameThreshold) {
			s.log.Debug("upturn %d -> %d at %d deg; stepping back", sw.Samples[k-1], v, angle)
			if err := s.point(ctx, angle-s.cfg.SweepStep, &sw); err != nil {
				return sw, err
			}
			if err := s.clock.Sleep(ctx, hold); err != nil {
				return sw, err
			}
			sw.Localized = true
			sw.Index = k - 1
			return sw, nil
		}
		s.dev.Display.Show("", intp(v))
		s.log.Trace("sweep %d deg: %d", angle, v)
	}
	return sw, nil
}

func (s *RoomSearch) point(ctx context.Context, angle int, sw *Sweep) error {
	if err := s.dev.Head.SetAngle(ctx, angle); err != nil {
		return fmt.Errorf("head to %d deg: %w", angle, err)
	}
	sw.Angle = angle
	return nil
}

// extinguish runs the pump for PumpMS and switches it off again.
func (s *RoomSearch) extinguish(ctx context.Context) error {
	s.dev.Display.Show("EXTINGUISHING", nil)
	if err := s.dev.Pump.Set(true); err != nil {
		return fmt.Errorf("pump on: %w", err)
	}
	waitErr := s.clock.Sleep(ctx, ms(s.cfg.PumpMS))
	if err := s.dev.Pump.Set(false); err != nil {
		return fmt.Errorf("pump off: %w", err)
	}
	return waitErr
}

func (s *RoomSearch) exitRoom(ctx context.Context) error {
	s.dev.Display.Show("EXITING ROOM", nil)
	return s.dev.Motors.Do(ctx, hardware.Stop)
}
