package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.einride.tech/can"

	"firefighter-core/utils"
)

// Signal names the peripheral board frames must carry.
const (
	SigLeftDuty  = "left_duty"
	SigRightDuty = "right_duty"
	SigHeadAngle = "head_angle_deg"
	SigFlameRaw  = "flame_raw"
)

// BusFrames names the CAN map frames used for each peripheral.
type BusFrames struct {
	Drive   string `json:"drive"`
	Head    string `json:"head"`
	Sensors string `json:"sensors"`
}

func DefaultBusFrames() BusFrames {
	return BusFrames{Drive: "DRIVE_CMD", Head: "HEAD_CMD", Sensors: "SENSOR_STATE"}
}

// Bus is the peripheral board on CAN: drive power stage, head servo and the
// flame ADC. Commands are transmitted immediately; sensor frames are decoded
// by Listen and the latest flame value is cached for Intensity.
type Bus struct {
	cmap    *utils.CANMap
	w       utils.CANWriter
	frames  BusFrames
	log     *utils.Logger
	sensors uint32
	maxAge  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	flame   int
	flameAt time.Time
	seen    bool
}

// NewBus checks that every named frame exists with the expected direction
// and signals. maxAge bounds how old a flame reading may be; 0 disables it.
func NewBus(cmap *utils.CANMap, w utils.CANWriter, frames BusFrames, maxAge time.Duration, log *utils.Logger) (*Bus, error) {
	need := []struct {
		frame, dir string
		sigs       []string
	}{
		{frames.Drive, utils.DirTX, []string{SigLeftDuty, SigRightDuty}},
		{frames.Head, utils.DirTX, []string{SigHeadAngle}},
		{frames.Sensors, utils.DirRX, []string{SigFlameRaw}},
	}
	for _, n := range need {
		fd, err := cmap.FrameByName(n.frame)
		if err != nil {
			return nil, err
		}
		if fd.Direction != n.dir {
			return nil, fmt.Errorf("frame %s: want direction %s, map says %s", fd.Name, n.dir, fd.Direction)
		}
		for _, s := range n.sigs {
			if _, ok := fd.Signal(s); !ok {
				return nil, fmt.Errorf("frame %s: missing signal %q", fd.Name, s)
			}
		}
	}
	sensors, _ := cmap.FrameByName(frames.Sensors)

	return &Bus{
		cmap:    cmap,
		w:       w,
		frames:  frames,
		log:     log,
		sensors: sensors.ID,
		maxAge:  maxAge,
		now:     time.Now,
	}, nil
}

// Drive implements Bridge.
func (b *Bus) Drive(ctx context.Context, left, right SideCommand) error {
	return b.send(ctx, b.frames.Drive, map[string]float64{
		SigLeftDuty:  float64(left.Signed()),
		SigRightDuty: float64(right.Signed()),
	})
}

// SetAngle commands the sensor head servo. It does not wait for the servo to
// arrive; callers hold for their own settle time.
func (b *Bus) SetAngle(ctx context.Context, deg int) error {
	return b.send(ctx, b.frames.Head, map[string]float64{SigHeadAngle: float64(deg)})
}

func (b *Bus) send(ctx context.Context, frame string, values map[string]float64) error {
	f, err := b.cmap.EncodeFrame(frame, values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frame, err)
	}
	if err := b.w.WriteFrame(ctx, f); err != nil {
		return fmt.Errorf("transmit %s: %w", frame, err)
	}
	b.log.Trace("TX %s id=0x%X data=% X", frame, f.ID, f.Data[:f.Length])
	return nil
}

// Intensity returns the latest flame ADC value. Lower means brighter.
func (b *Bus) Intensity() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.seen {
		return 0, ErrNoReading
	}
	if b.maxAge > 0 {
		if age := b.now().Sub(b.flameAt); age > b.maxAge {
			return 0, fmt.Errorf("%w: flame reading is %s old", ErrNoReading, age)
		}
	}
	return b.flame, nil
}

// Handle decodes one received frame. Frames other than the sensor frame are
// ignored.
func (b *Bus) Handle(f can.Frame) error {
	if f.ID != b.sensors {
		return nil
	}
	_, values, err := b.cmap.DecodeFrame(f)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.flame = int(values[SigFlameRaw])
	b.flameAt = b.now()
	b.seen = true
	b.mu.Unlock()
	return nil
}

// Listen feeds received frames to Handle until ctx is done or the reader fails.
func (b *Bus) Listen(ctx context.Context, r utils.CANReader) error {
	b.log.Debug("RX loop started")
	defer b.log.Debug("RX loop stopped")
	for {
		f, err := r.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("receive: %w", err)
		}
		if err := b.Handle(f); err != nil {
			b.log.Warn("RX id=0x%X: %v", f.ID, err)
			continue
		}
		b.log.Trace("RX id=0x%X len=%d data=% X", f.ID, f.Length, f.Data[:f.Length])
	}
}
