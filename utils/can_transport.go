package utils

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// frameSource is the receive side of a SocketCAN connection.
type frameSource interface {
	Receive() bool
	Frame() can.Frame
	Err() error
}

type SocketCANReader struct {
	conn      net.Conn
	frames    chan can.Frame
	errs      chan error
	done      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// NewSocketCANReader starts a pump goroutine that feeds received frames to
// ReadFrame. The pump exits when the reader is closed.
func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return newSocketCANReader(conn, socketcan.NewReceiver(conn)), nil
}

func newSocketCANReader(conn net.Conn, src frameSource) *SocketCANReader {
	r := &SocketCANReader{
		conn:     conn,
		frames:   make(chan can.Frame, 64),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go r.pump(src)
	return r
}

func (r *SocketCANReader) pump(src frameSource) {
	defer close(r.pumpDone)
	defer close(r.frames)
	for src.Receive() {
		select {
		case r.frames <- src.Frame():
		case <-r.done:
			return
		}
	}
	err := src.Err()
	if err == nil {
		err = fmt.Errorf("receive: socket closed")
	}
	r.errs <- err
}

// ReadFrame blocks until a frame arrives, the socket fails or ctx is done.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-r.frames:
		if !ok {
			select {
			case err := <-r.errs:
				return can.Frame{}, err
			default:
				return can.Frame{}, fmt.Errorf("receive: socket closed")
			}
		}
		return f, nil
	}
}

// Close stops the pump and closes the socket. A pump blocked on a full frame
// buffer is released as well.
func (r *SocketCANReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if r.conn != nil {
			err = r.conn.Close()
		}
	})
	return err
}
