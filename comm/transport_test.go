package comm

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"
)

const etx = 0x03

// device reads one frame from conn and answers with reply (if not nil)
func device(conn net.Conn, reply []byte, closeAfter bool) {
	bufio.NewReader(conn).ReadBytes(etx)
	if reply != nil {
		conn.Write(reply)
	}
	if closeAfter {
		conn.Close()
	}
}

func newPipeTransport() (*Transport, net.Conn) {
	host, dev := net.Pipe()
	tr := NewTransport(host, etx)
	tr.SetLogger(quietLogger())
	return tr, dev
}

func TestTransportReadsToTerminator(t *testing.T) {
	tr, dev := newPipeTransport()
	defer tr.Close()
	go device(dev, []byte{0x02, 0x06, '4', '2', etx}, false)
	resp, err := tr.SendRecv([]byte{0x02, '0', 'X', 'S', 'E', etx}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	want := string([]byte{0x02, 0x06, '4', '2', etx})
	if string(resp) != want {
		t.Errorf("expected %q, got %q", want, resp)
	}
}

func TestTransportTimesOutWithoutResponse(t *testing.T) {
	tr, dev := newPipeTransport()
	defer tr.Close()
	go device(dev, nil, false)
	_, err := tr.SendRecv([]byte{0x02, 'S', etx}, 20*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if len(te.Partial) != 0 {
		t.Errorf("expected no partial data, got %q", te.Partial)
	}
	if te.Wait != 20*time.Millisecond || !te.Timeout() {
		t.Errorf("expected a 20ms timeout, got wait %v timeout %v", te.Wait, te.Timeout())
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout false for a TimeoutError")
	}
}

func TestTransportTimesOutOnIncompleteFrame(t *testing.T) {
	tr, dev := newPipeTransport()
	defer tr.Close()
	go device(dev, []byte{0x02, 0x06, '1'}, false)
	_, err := tr.SendRecv([]byte{0x02, 'S', etx}, 50*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if string(te.Partial) != string([]byte{0x02, 0x06, '1'}) {
		t.Errorf("unexpected partial data %q", te.Partial)
	}
}

func TestTransportReportsClosedLink(t *testing.T) {
	tr, dev := newPipeTransport()
	defer tr.Close()
	go device(dev, nil, true)
	_, err := tr.SendRecv([]byte{0x02, 'S', etx}, time.Second)
	var le *LinkError
	if !errors.As(err, &le) {
		t.Fatalf("expected LinkError, got %v", err)
	}
	if IsTimeout(err) {
		t.Error("a closed link is not a timeout")
	}
}

func TestTransportWithoutConnection(t *testing.T) {
	tr := NewTransport(nil, etx)
	_, err := tr.SendRecv([]byte("x"), time.Millisecond)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestPrintableEscapesControlBytes(t *testing.T) {
	got := printable([]byte{0x02, '0', 'X', 0x06, etx})
	if got != "<02>0X<06><03>" {
		t.Errorf("unexpected rendering %q", got)
	}
}
