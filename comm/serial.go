package comm

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// SerialConfig describes an RS232/RS485 port.  Data format is fixed at 8N1.
type SerialConfig struct {
	// Name is the device path, e.g. /dev/ttyUSB0 or COM3
	Name string

	// Baud is the line speed
	Baud int

	// ReadTimeout is how long one Read on the port may block.  tarm/serial
	// rounds this to tenths of a second.  Defaults to 100ms.
	ReadTimeout time.Duration
}

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(c SerialConfig) *serial.Config {
	rt := c.ReadTimeout
	if rt <= 0 {
		rt = 100 * time.Millisecond
	}
	return &serial.Config{
		Name:        c.Name,
		Baud:        c.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: rt}
}

// OpenSerial opens a serial port, retrying with backoff while the port is busy
func OpenSerial(c SerialConfig) (io.ReadWriteCloser, error) {
	conf := makeSerConf(c)
	return openWithBackoff(c.Name, func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	})
}

// Dial opens a TCP connection to a terminal server (e.g. a Digi portserver
// or Moxa NPort exposing the RS485 line), retrying with backoff
func Dial(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	return openWithBackoff(addr, func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", addr, timeout)
	})
}

func openWithBackoff(addr string, open func() (io.ReadWriteCloser, error)) (io.ReadWriteCloser, error) {
	var conn io.ReadWriteCloser
	// we use an exponential backoff, terminal servers and USB adapters
	// do not like being connection thrashed
	op := func() error {
		c, err := open()
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) || strings.Contains(strings.ToLower(err.Error()), "refused") {
				return &backoff.PermanentError{Err: err}
			}
			return err
		}
		conn = c
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		if pe, ok := err.(*backoff.PermanentError); ok {
			err = pe.Err
		}
		return nil, &LinkError{Op: "open", Err: fmt.Errorf("%s: %w", addr, err)}
	}
	return conn, nil
}
