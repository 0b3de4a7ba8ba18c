package navigation

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firefighter-core/hardware"
	"firefighter-core/utils"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

// reading is one scripted sonar result; err set means that measurement failed.
type reading struct {
	d   int
	err error
}

func cm(d int) reading { return reading{d: d} }

var noEcho = reading{err: hardware.ErrNoEcho}

// scriptedRange replays readings and repeats the last one when exhausted.
type scriptedRange struct {
	script []reading
	calls  int
}

func (r *scriptedRange) Measure(ctx context.Context) (int, error) {
	i := r.calls
	if i >= len(r.script) {
		i = len(r.script) - 1
	}
	r.calls++
	return r.script[i].d, r.script[i].err
}

type fakeLines struct {
	left, right bool
}

func (l *fakeLines) Left() bool  { return l.left }
func (l *fakeLines) Right() bool { return l.right }

type fakeMotors struct {
	log  []hardware.Primitive
	onDo func(p hardware.Primitive, n int)
}

func (m *fakeMotors) Do(_ context.Context, p hardware.Primitive) error {
	m.log = append(m.log, p)
	if m.onDo != nil {
		m.onDo(p, len(m.log))
	}
	return nil
}

func (m *fakeMotors) count(p hardware.Primitive) int {
	n := 0
	for _, q := range m.log {
		if q == p {
			n++
		}
	}
	return n
}

type fakeHead struct {
	angles []int
}

func (h *fakeHead) SetAngle(_ context.Context, deg int) error {
	h.angles = append(h.angles, deg)
	return nil
}

type fakeFlame struct {
	values []int
	n      int
	err    error
}

func (f *fakeFlame) Intensity() (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[f.n%len(f.values)]
	f.n++
	return v, nil
}

type pumpEvent struct {
	on bool
	at time.Time
}

type fakePump struct {
	clock  *fakeClock
	events []pumpEvent
}

func (p *fakePump) Set(on bool) error {
	p.events = append(p.events, pumpEvent{on: on, at: p.clock.Now()})
	return nil
}

type fakeDisplay struct {
	lines []string
}

func (d *fakeDisplay) Show(text string, _ *int) {
	if text != "" {
		d.lines = append(d.lines, text)
	}
}

type memRecorder struct {
	cycles []CycleRecord
	sweeps []SweepRecord
}

func (r *memRecorder) RecordCycle(c CycleRecord) { r.cycles = append(r.cycles, c) }
func (r *memRecorder) RecordSweep(s SweepRecord) { r.sweeps = append(r.sweeps, s) }

type rig struct {
	clock   *fakeClock
	rng     *scriptedRange
	lines   *fakeLines
	motors  *fakeMotors
	head    *fakeHead
	flame   *fakeFlame
	pump    *fakePump
	display *fakeDisplay
	rec     *memRecorder
	ctrl    *Controller
}

func newRig(t *testing.T, cfg Config, readings ...reading) *rig {
	t.Helper()
	clock := newFakeClock()
	r := &rig{
		clock:   clock,
		rng:     &scriptedRange{script: readings},
		lines:   &fakeLines{},
		motors:  &fakeMotors{},
		head:    &fakeHead{},
		flame:   &fakeFlame{values: []int{900}},
		pump:    &fakePump{clock: clock},
		display: &fakeDisplay{},
		rec:     &memRecorder{},
	}
	dev := Devices{
		Range: r.rng, Lines: r.lines, Flame: r.flame, Head: r.head,
		Motors: r.motors, Pump: r.pump, Display: r.display,
	}
	ctrl, err := NewController(cfg, dev, clock, r.rec, utils.NewLogger(io.Discard, utils.INFO))
	require.NoError(t, err)
	r.ctrl = ctrl
	return r
}

func (r *rig) step(t *testing.T) {
	t.Helper()
	require.NoError(t, r.ctrl.Step(context.Background()))
}
