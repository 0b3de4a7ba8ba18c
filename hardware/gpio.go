package hardware

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// InitHost loads the periph host drivers. Call once before looking up pins.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

// OpenPin looks a GPIO up by its board name, e.g. "GPIO17".
func OpenPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return p, nil
}

// GPIOEcho drives an ultrasonic ranger: a short trigger pulse, then the
// width of the echo pulse is the round-trip time.
type GPIOEcho struct {
	trig    gpio.PinIO
	echo    gpio.PinIO
	timeout time.Duration
}

func NewGPIOEcho(trig, echo gpio.PinIO, timeout time.Duration) (*GPIOEcho, error) {
	if err := trig.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("trigger %s: %w", trig, err)
	}
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("echo %s: %w", echo, err)
	}
	return &GPIOEcho{trig: trig, echo: echo, timeout: timeout}, nil
}

func (e *GPIOEcho) Ping(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := e.trig.Out(gpio.Low); err != nil {
		return 0, err
	}
	time.Sleep(2 * time.Microsecond)
	if err := e.trig.Out(gpio.High); err != nil {
		return 0, err
	}
	time.Sleep(10 * time.Microsecond)
	if err := e.trig.Out(gpio.Low); err != nil {
		return 0, err
	}

	if !e.waitLevel(gpio.High) {
		return 0, ErrNoEcho
	}
	start := time.Now()
	if !e.waitLevel(gpio.Low) {
		return 0, ErrNoEcho
	}
	return time.Since(start).Microseconds(), nil
}

func (e *GPIOEcho) waitLevel(want gpio.Level) bool {
	deadline := time.Now().Add(e.timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return false
		}
		if !e.echo.WaitForEdge(left) {
			return false
		}
		if e.echo.Read() == want {
			return true
		}
	}
}

// GPIOLineSensors reads the two floor reflectance sensors. A high level means
// the sensor is over the line.
type GPIOLineSensors struct {
	left  gpio.PinIO
	right gpio.PinIO
}

func NewGPIOLineSensors(left, right gpio.PinIO) (*GPIOLineSensors, error) {
	for _, p := range []gpio.PinIO{left, right} {
		if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("line sensor %s: %w", p, err)
		}
	}
	return &GPIOLineSensors{left: left, right: right}, nil
}

func (s *GPIOLineSensors) Left() bool  { return s.left.Read() == gpio.High }
func (s *GPIOLineSensors) Right() bool { return s.right.Read() == gpio.High }

// GPIOPump switches the water pump relay.
type GPIOPump struct {
	pin gpio.PinIO
}

func NewGPIOPump(pin gpio.PinIO) (*GPIOPump, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("pump %s: %w", pin, err)
	}
	return &GPIOPump{pin: pin}, nil
}

func (p *GPIOPump) Set(on bool) error {
	l := gpio.Low
	if on {
		l = gpio.High
	}
	return p.pin.Out(l)
}
