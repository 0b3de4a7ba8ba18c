package navigation

import (
	"fmt"
	"time"
)

// Config holds every navigation and search threshold. Distances are in sonar
// units (see hardware.SonarConfig), angles in servo degrees, times in ms.
type Config struct {
	// Wall following
	WallSide      Direction `json:"wall_side"`    // corridor wall the sonar watches
	Tolerance     int       `json:"tolerance"`    // half-width of the hold band around the ideal distance
	WallCeiling   int       `json:"wall_ceiling"` // readings above this mean the wall is gone
	PivotSettleMS int       `json:"pivot_settle_ms"`

	// Reacquisition after losing the wall
	NearWall          int  `json:"near_wall"`            // wall found again below this
	ProbeMS           int  `json:"probe_ms"`             // straight run before pivoting
	WallSearchMS      int  `json:"wall_search_ms"`       // pivot search bound, 0 = unbounded
	PollMS            int  `json:"poll_ms"`              // line sensor poll period inside loops
	SquareUpMS        int  `json:"square_up_ms"`         // square-up bound, 0 = unbounded
	SquareUpTowardHit bool `json:"square_up_toward_hit"` // pivot toward the side that hit the line first

	// Sensor head
	ServoMin     int `json:"servo_min"` // faces right
	ServoMax     int `json:"servo_max"` // faces left
	SweepStep    int `json:"sweep_step"`
	SweepHoldMS  int `json:"sweep_hold_ms"`
	HeadSettleMS int `json:"head_settle_ms"`

	// Room search
	FlameThreshold int       `json:"flame_threshold"` // ADC counts; lower is brighter
	RoomEntryPivot Direction `json:"room_entry_pivot"`
	RoomPivotMS    int       `json:"room_pivot_ms"`
	PumpMS         int       `json:"pump_ms"`
}

// DefaultConfig returns the values the robot was tuned with.
func DefaultConfig() Config {
	return Config{
		WallSide:      Right,
		Tolerance:     10,
		WallCeiling:   50,
		PivotSettleMS: 20,

		NearWall:     20,
		ProbeMS:      1000,
		WallSearchMS: 10000,
		PollMS:       5,
		SquareUpMS:   5000,

		ServoMin:     15,
		ServoMax:     165,
		SweepStep:    5,
		SweepHoldMS:  25,
		HeadSettleMS: 1000,

		FlameThreshold: 50,
		RoomEntryPivot: Right,
		RoomPivotMS:    1250,
		PumpMS:         500,
	}
}

func (c Config) Validate() error {
	if c.WallSide != Left && c.WallSide != Right {
		return fmt.Errorf("wall_side must be left or right, got %s", c.WallSide)
	}
	if c.RoomEntryPivot != Left && c.RoomEntryPivot != Right {
		return fmt.Errorf("room_entry_pivot must be left or right, got %s", c.RoomEntryPivot)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("invalid tolerance: %d", c.Tolerance)
	}
	if c.WallCeiling <= 0 || c.NearWall <= 0 {
		return fmt.Errorf("wall_ceiling and near_wall must be positive (got %d, %d)", c.WallCeiling, c.NearWall)
	}
	if c.ServoMin < 0 || c.ServoMax > 180 || c.ServoMin >= c.ServoMax {
		return fmt.Errorf("invalid servo range [%d, %d]", c.ServoMin, c.ServoMax)
	}
	if c.SweepStep <= 0 {
		return fmt.Errorf("invalid sweep_step: %d", c.SweepStep)
	}
	if c.PumpMS <= 0 {
		return fmt.Errorf("invalid pump_ms: %d", c.PumpMS)
	}
	if c.PollMS <= 0 {
		return fmt.Errorf("invalid poll_ms: %d", c.PollMS)
	}
	for name, v := range map[string]int{
		"pivot_settle_ms": c.PivotSettleMS, "probe_ms": c.ProbeMS, "wall_search_ms": c.WallSearchMS,
		"square_up_ms": c.SquareUpMS, "sweep_hold_ms": c.SweepHoldMS, "head_settle_ms": c.HeadSettleMS,
		"room_pivot_ms": c.RoomPivotMS,
	} {
		if v < 0 {
			return fmt.Errorf("invalid %s: %d", name, v)
		}
	}
	return nil
}

// SweepSteps is the number of head positions visited by a full sweep.
func (c Config) SweepSteps() int {
	return (c.ServoMax-c.ServoMin)/c.SweepStep + 1
}

// HeadAngle is the servo angle that points the sensor head toward d.
func (c Config) HeadAngle(d Direction) (int, error) {
	switch d {
	case Right:
		return c.ServoMin, nil
	case Left:
		return c.ServoMax, nil
	case Front:
		return (c.ServoMin + c.ServoMax) / 2, nil
	default:
		return 0, fmt.Errorf("%w: head angle for %s", ErrNoDirection, d)
	}
}

// Facing classifies a head angle by the side it looks toward.
func (c Config) Facing(angle int) Direction {
	mid := (c.ServoMin + c.ServoMax) / 2
	switch {
	case angle < mid:
		return Right
	case angle > mid:
		return Left
	default:
		return Front
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
