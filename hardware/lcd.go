package hardware

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"firefighter-core/utils"
)

const lcdCols = 16

// SerLCD command bytes.
var (
	lcdClear = []byte{0x7C, 0x2D}
	lcdLine2 = []byte{0xFE, 0xC0}
)

// SerialLCD is a 16x2 character display behind a serial backpack. Line one
// carries the status text, line two an optional value. Writes are best effort:
// failures are logged, never returned, and identical frames are not resent.
type SerialLCD struct {
	port io.WriteCloser
	log  *utils.Logger

	mu   sync.Mutex
	last string
}

// OpenSerialLCD opens the display's serial port at 9600 8N1.
func OpenSerialLCD(path string, log *utils.Logger) (*SerialLCD, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open lcd %s: %w", path, err)
	}
	return NewSerialLCD(port, log), nil
}

func NewSerialLCD(port io.WriteCloser, log *utils.Logger) *SerialLCD {
	return &SerialLCD{port: port, log: log}
}

// Show clears the screen and writes text on line one and value on line two.
func (d *SerialLCD) Show(text string, value *int) {
	frame := lcdFrame(text, value)

	d.mu.Lock()
	defer d.mu.Unlock()
	if frame == d.last {
		return
	}
	if _, err := d.port.Write([]byte(frame)); err != nil {
		d.log.Warn("lcd write: %v", err)
		return
	}
	d.last = frame
}

func (d *SerialLCD) Close() error {
	return d.port.Close()
}

func lcdFrame(text string, value *int) string {
	var b strings.Builder
	b.Write(lcdClear)
	b.WriteString(fit(text))
	if value != nil {
		b.Write(lcdLine2)
		b.WriteString(fit(fmt.Sprintf("%d", *value)))
	}
	return b.String()
}

func fit(s string) string {
	if len(s) > lcdCols {
		return s[:lcdCols]
	}
	return s
}

// LogDisplay mirrors status lines into the log when no LCD is attached.
type LogDisplay struct {
	Log *utils.Logger
}

func (d LogDisplay) Show(text string, value *int) {
	if value != nil {
		d.Log.Debug("display: %s %d", text, *value)
		return
	}
	d.Log.Debug("display: %s", text)
}
