package hardware

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"firefighter-core/utils"
)

const busMap = `direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment
tx,0x100,DRIVE_CMD,0,4,left_duty,0,16,little,true,1,0,-255,255,0,duty,left
tx,0x100,DRIVE_CMD,0,4,right_duty,16,16,little,true,1,0,-255,255,0,duty,right
tx,0x110,HEAD_CMD,0,2,head_angle_deg,0,8,little,false,1,0,0,180,90,deg,head
rx,0x200,SENSOR_STATE,20,4,flame_raw,0,16,little,false,1,0,0,1023,1023,adc,flame
`

type memWriter struct {
	frames []can.Frame
}

func (w *memWriter) WriteFrame(_ context.Context, f can.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *memWriter) Close() error { return nil }

type chanReader struct {
	frames chan can.Frame
}

func (r *chanReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-r.frames:
		if !ok {
			return can.Frame{}, errors.New("closed")
		}
		return f, nil
	}
}

func (r *chanReader) Close() error { return nil }

func newTestBus(t *testing.T) (*Bus, *memWriter) {
	t.Helper()
	cmap, err := utils.ParseCANMap(strings.NewReader(busMap))
	require.NoError(t, err)
	w := &memWriter{}
	b, err := NewBus(cmap, w, DefaultBusFrames(), 0, utils.NewLogger(io.Discard, utils.INFO))
	require.NoError(t, err)
	return b, w
}

func flameFrame(v uint16) can.Frame {
	f := can.Frame{ID: 0x200, Length: 4}
	f.Data[0] = byte(v)
	f.Data[1] = byte(v >> 8)
	return f
}

func TestBusValidatesFrames(t *testing.T) {
	cmap, err := utils.ParseCANMap(strings.NewReader(busMap))
	require.NoError(t, err)
	log := utils.NewLogger(io.Discard, utils.INFO)

	frames := DefaultBusFrames()
	frames.Head = "SENSOR_STATE"
	_, err = NewBus(cmap, &memWriter{}, frames, 0, log)
	assert.ErrorContains(t, err, "want direction tx")

	frames = DefaultBusFrames()
	frames.Sensors = "NOPE"
	_, err = NewBus(cmap, &memWriter{}, frames, 0, log)
	assert.ErrorContains(t, err, "unknown frame")
}

func TestBusDriveAndHead(t *testing.T) {
	b, w := newTestBus(t)
	m := NewMotors(DefaultMotorConfig(), b)

	require.NoError(t, m.Do(context.Background(), SpinLeft))
	require.NoError(t, b.SetAngle(context.Background(), 165))

	require.Len(t, w.frames, 2)
	drive := w.frames[0]
	assert.Equal(t, uint32(0x100), drive.ID)
	assert.Equal(t, []byte{0x01, 0xFF, 0xE6, 0x00}, drive.Data[:4], "left -255, right +230")

	head := w.frames[1]
	assert.Equal(t, uint32(0x110), head.ID)
	assert.Equal(t, byte(165), head.Data[0])
}

func TestBusIntensity(t *testing.T) {
	b, _ := newTestBus(t)

	_, err := b.Intensity()
	assert.ErrorIs(t, err, ErrNoReading)

	require.NoError(t, b.Handle(can.Frame{ID: 0x7AB}), "foreign frames are ignored")
	require.NoError(t, b.Handle(flameFrame(42)))

	v, err := b.Intensity()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBusIntensityStale(t *testing.T) {
	b, _ := newTestBus(t)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }
	b.maxAge = 100 * time.Millisecond

	require.NoError(t, b.Handle(flameFrame(300)))
	now = now.Add(200 * time.Millisecond)

	_, err := b.Intensity()
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestBusListen(t *testing.T) {
	b, _ := newTestBus(t)
	r := &chanReader{frames: make(chan can.Frame, 4)}
	r.frames <- flameFrame(77)
	close(r.frames)

	err := b.Listen(context.Background(), r)
	assert.ErrorContains(t, err, "receive: closed")

	v, err := b.Intensity()
	require.NoError(t, err)
	assert.Equal(t, 77, v)
}

func TestBusListenCanceled(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Listen(ctx, &chanReader{frames: make(chan can.Frame)})
	assert.ErrorIs(t, err, context.Canceled)
}
