/*Package comm provides the link layer for talking to lab hardware on a shared
line: a Transport that performs one write-then-read exchange at a time, and a
Bus that serializes exchanges from many callers onto one Transport.

Most usages of this package will boil down to:
	1.  open a connection with OpenSerial or Dial
	2.  wrap it in a Transport with the receive terminator of the protocol
	3.  wrap the Transport in a Bus and hand the Bus to every device object
		that shares the line

	conn, err := comm.OpenSerial(comm.SerialConfig{Name: "/dev/ttyMCC", Baud: 57600})
	if err != nil {
		return err
	}
	bus := comm.NewBus(comm.NewTransport(conn, 0x03), comm.BusOptions{Retries: 2})
	defer bus.Close()
	resp, err := bus.Execute(ctx, comm.Request{Tag: "x", Frame: frame, Timeout: 200 * time.Millisecond})
*/
package comm

import (
	"bytes"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const readChunk = 64

// readDeadliner is implemented by net.Conn and other connections that can
// interrupt a blocked Read
type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// flusher is implemented by serial ports that can discard their input buffer
type flusher interface {
	Flush() error
}

type timeouter interface {
	Timeout() bool
}

// Transport owns one connection and performs write-then-read exchanges on
// it.  It is not safe for concurrent use; a Bus serializes access.
//
// Connections that implement SetReadDeadline (TCP, pipes) are read with a
// deadline.  Anything else (a tarm/serial port) is expected to have a short
// read timeout of its own, and is polled until the wall-clock deadline.  An
// empty read that reports io.EOF is treated as "nothing yet" on such ports.
type Transport struct {
	conn io.ReadWriteCloser
	term byte
	log  logrus.FieldLogger
}

// NewTransport wraps conn.  term is the byte that ends every response frame.
func NewTransport(conn io.ReadWriteCloser, term byte) *Transport {
	return &Transport{conn: conn, term: term, log: logrus.StandardLogger()}
}

// SetLogger replaces the logger used for frame traces
func (t *Transport) SetLogger(l logrus.FieldLogger) {
	if l != nil {
		t.log = l
	}
}

// SendRecv writes frame in full, then blocks until a frame ending in the
// terminator has been read or timeout elapses.  The returned slice includes
// the terminator.  Input left over from an earlier exchange is discarded
// before writing.
func (t *Transport) SendRecv(frame []byte, timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, &LinkError{Op: "write", Err: ErrNotConnected}
	}
	t.discard()
	t.log.WithField("tx", printable(frame)).Debug("write frame")
	if _, err := t.conn.Write(frame); err != nil {
		return nil, &LinkError{Op: "write", Err: err}
	}
	resp, err := t.recv(timeout)
	if err != nil {
		return nil, err
	}
	t.log.WithField("rx", printable(resp)).Debug("read frame")
	return resp, nil
}

func (t *Transport) recv(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	dl, hasDeadline := t.conn.(readDeadliner)
	if hasDeadline {
		if err := dl.SetReadDeadline(deadline); err != nil {
			return nil, &LinkError{Op: "read", Err: err}
		}
		defer dl.SetReadDeadline(time.Time{})
	}

	var (
		out   []byte
		chunk = make([]byte, readChunk)
	)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
			if idx := bytes.IndexByte(out, t.term); idx >= 0 {
				return out[:idx+1], nil
			}
		}
		if err != nil {
			if to, ok := err.(timeouter); ok && to.Timeout() {
				return nil, &TimeoutError{Wait: timeout, Partial: out}
			}
			if !(err == io.EOF && !hasDeadline) {
				return nil, &LinkError{Op: "read", Err: err}
			}
		}
		if time.Now().After(deadline) {
			return nil, &TimeoutError{Wait: timeout, Partial: out}
		}
	}
}

// discard drops any unread input so a late reply to a timed out exchange can
// not be paired with the next command
func (t *Transport) discard() {
	if f, ok := t.conn.(flusher); ok {
		if err := f.Flush(); err != nil {
			t.log.WithError(err).Debug("flush failed")
		}
		return
	}
	dl, ok := t.conn.(readDeadliner)
	if !ok {
		return
	}
	if err := dl.SetReadDeadline(time.Now()); err != nil {
		return
	}
	buf := make([]byte, readChunk)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.log.WithField("stale", printable(buf[:n])).Debug("discarded stale input")
		}
		if n == 0 || err != nil {
			break
		}
	}
}

// Close closes the underlying connection
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	if err == nil {
		t.conn = nil
	}
	return err
}

// printable renders control bytes as <XX> so frames are legible in logs
func printable(b []byte) string {
	var buf bytes.Buffer
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			buf.WriteString("<")
			buf.WriteString(hex2(c))
			buf.WriteString(">")
			continue
		}
		buf.WriteByte(c)
	}
	return buf.String()
}

func hex2(c byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[c>>4], digits[c&0x0f]})
}
