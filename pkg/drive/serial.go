package drive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// ErrSerialTimeout is returned when the motor controller does not answer.
var ErrSerialTimeout = errors.New("drive: serial reply timeout")

// SerialDriver speaks a newline-delimited text protocol to the motor
// microcontroller:
//
//	ROT <rad>     rotate in place
//	MOV <mm>      drive straight
//	WHL <l> <r>   set wheel speeds
//	STP           stop
//	BAT           read battery
//
// Each command is answered by one line, "OK [value]" or "ERR <reason>".
type SerialDriver struct {
	port    io.ReadWriteCloser
	timeout time.Duration

	mu    sync.Mutex // one command in flight
	lines   chan string
	readErr error // set before lines is closed
}

// OpenSerial opens a serial device (e.g. /dev/ttyACM0) with given baudrate.
func OpenSerial(device string, baud int, timeout time.Duration) (*SerialDriver, error) {
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return NewSerialDriver(p, timeout), nil
}

// NewSerialDriver runs the protocol over an already open port.
func NewSerialDriver(port io.ReadWriteCloser, timeout time.Duration) *SerialDriver {
	d := &SerialDriver{
		port:    port,
		timeout: timeout,
		lines:   make(chan string, 8),
	}
	go d.readLoop()
	return d
}

// readLoop is the only reader of the port.
func (d *SerialDriver) readLoop() {
	r := bufio.NewReader(d.port)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			d.readErr = err
			close(d.lines)
			return
		}
		d.lines <- strings.TrimSpace(line)
	}
}

// Rotate implements Rotator.
func (d *SerialDriver) Rotate(ctx context.Context, rad float64) error {
	_, err := d.exchange(ctx, "ROT "+strconv.FormatFloat(rad, 'f', 4, 64))
	return err
}

// Move implements Mover.
func (d *SerialDriver) Move(ctx context.Context, mm float64) error {
	_, err := d.exchange(ctx, "MOV "+strconv.FormatFloat(mm, 'f', 1, 64))
	return err
}

// SetWheelSpeeds implements WheelDriver.
func (d *SerialDriver) SetWheelSpeeds(left, right float64) error {
	_, err := d.exchange(context.Background(), fmt.Sprintf("WHL %.1f %.1f", left, right))
	return err
}

// Stop implements Stopper.
func (d *SerialDriver) Stop() error {
	_, err := d.exchange(context.Background(), "STP")
	return err
}

// Battery implements BatteryReader.
func (d *SerialDriver) Battery() (float64, error) {
	v, err := d.exchange(context.Background(), "BAT")
	if err != nil {
		return 0, err
	}
	level, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("bad battery reply %q: %w", v, err)
	}
	return level, nil
}

// Close closes the underlying serial port.
func (d *SerialDriver) Close() error {
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

// exchange writes one command and waits for its reply line. It returns
// the text after "OK".
func (d *SerialDriver) exchange(ctx context.Context, cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Drop replies to commands that timed out earlier.
	for drained := false; !drained; {
		select {
		case _, ok := <-d.lines:
			drained = !ok
		default:
			drained = true
		}
	}

	if _, err := d.port.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}

	var timeout <-chan time.Time
	if d.timeout > 0 {
		t := time.NewTimer(d.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case line, ok := <-d.lines:
		if !ok {
			return "", fmt.Errorf("serial closed: %w", d.readErr)
		}
		return parseReply(cmd, line)
	case <-timeout:
		return "", fmt.Errorf("%s: %w", cmd, ErrSerialTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func parseReply(cmd, line string) (string, error) {
	switch {
	case line == "OK":
		return "", nil
	case strings.HasPrefix(line, "OK "):
		return strings.TrimPrefix(line, "OK "), nil
	case strings.HasPrefix(line, "ERR"):
		return "", fmt.Errorf("%s: controller error: %s", cmd, strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	default:
		return "", fmt.Errorf("%s: unexpected reply %q", cmd, line)
	}
}
