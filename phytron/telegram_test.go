package phytron

import (
	"errors"
	"reflect"
	"testing"
)

func TestChecksumOfKnownFrame(t *testing.T) {
	c := Codec{Checksum: true}
	frame, err := c.EncodeCommand(Command{Module: 0, Axis: AxisX, Op: OpStatus})
	if err != nil {
		t.Fatal(err)
	}
	want := "\x020XSE:44\x03"
	if string(frame) != want {
		t.Errorf("expected %q, got %q", want, frame)
	}
}

func TestEncodeCommand(t *testing.T) {
	table := []struct {
		cmd  Command
		body string
	}{
		{Command{Module: 0, Axis: AxisX, Op: OpMoveAbs, Arg: 300}, "0XA300"},
		{Command{Module: 0, Axis: AxisX, Op: OpMoveAbs, Arg: -7}, "0XA-7"},
		{Command{Module: 0, Axis: AxisX, Op: OpMoveRel, Arg: 25}, "0X+25"},
		{Command{Module: 2, Axis: AxisY, Op: OpMoveRel, Arg: -25}, "2Y-25"},
		{Command{Module: 0, Axis: AxisX, Op: OpHomeMinus}, "0X0-"},
		{Command{Module: 0, Axis: AxisY, Op: OpHomePlus}, "0Y0+"},
		{Command{Module: 0, Axis: AxisX, Op: OpJogPlus}, "0XL+"},
		{Command{Module: 0, Axis: AxisX, Op: OpStop}, "0XS"},
		{Command{Module: 0, Axis: AxisX, Op: OpAbort}, "0XSN"},
		{Command{Module: 15, Axis: AxisY, Op: OpStatus}, "FYSE"},
		{Command{Module: 0, Axis: AxisX, Op: OpParamRead, Param: 20}, "0XP20R"},
		{Command{Module: 1, Axis: AxisX, Op: OpParamSet, Param: 8, Arg: 2000}, "1XP08S2000"},
		{Command{Module: 10, Op: OpVersion}, "AIVR"},
		{Command{Module: 0, Op: OpSave}, "0SA"},
	}
	c := Codec{}
	for _, tt := range table {
		frame, err := c.EncodeCommand(tt.cmd)
		if err != nil {
			t.Errorf("%v: %v", tt.cmd, err)
			continue
		}
		want := "\x02" + tt.body + "\x03"
		if string(frame) != want {
			t.Errorf("expected %q, got %q", want, frame)
		}
	}
}

func TestEncodeCommandRejectsUnrepresentable(t *testing.T) {
	table := []Command{
		{Module: 16, Axis: AxisX, Op: OpStop},
		{Module: -1, Axis: AxisX, Op: OpStop},
		{Module: 0, Op: OpStop},
		{Module: 0, Axis: 'Z', Op: OpStop},
		{Module: 0, Axis: AxisX, Op: OpVersion},
		{Module: 0, Axis: AxisX, Op: OpMoveAbs, Arg: 1 << 31},
		{Module: 0, Axis: AxisX, Op: OpMoveRel, Arg: -(1 << 31) - 1},
		{Module: 0, Axis: AxisX, Op: OpParamRead, Param: 0},
		{Module: 0, Axis: AxisX, Op: OpParamSet, Param: 100, Arg: 1},
		{Module: 0, Axis: AxisX, Op: OpStop, Arg: 3},
		{Module: 0, Axis: AxisX, Op: OpStatus, Param: 20},
		{Module: 0, Axis: AxisX, Op: Op(99)},
	}
	c := Codec{Checksum: true}
	for _, cmd := range table {
		_, err := c.EncodeCommand(cmd)
		var ee *EncodingError
		if !errors.As(err, &ee) {
			t.Errorf("%+v: expected EncodingError, got %v", cmd, err)
		}
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cmds := []Command{
		{Module: 0, Axis: AxisX, Op: OpMoveAbs, Arg: 2147483647},
		{Module: 3, Axis: AxisY, Op: OpMoveRel, Arg: -2147483648},
		{Module: 0, Axis: AxisX, Op: OpMoveRel, Arg: 0},
		{Module: 7, Axis: AxisX, Op: OpHomeMinus},
		{Module: 7, Axis: AxisY, Op: OpJogMinus},
		{Module: 0, Axis: AxisX, Op: OpParamSet, Param: 45, Arg: 16},
		{Module: 0, Axis: AxisY, Op: OpParamRead, Param: 1},
		{Module: 12, Op: OpVersion},
	}
	for _, checksum := range []bool{false, true} {
		c := Codec{Checksum: checksum}
		for _, cmd := range cmds {
			frame, err := c.EncodeCommand(cmd)
			if err != nil {
				t.Fatal(err)
			}
			got, err := c.DecodeCommand(frame)
			if err != nil {
				t.Errorf("%q: %v", frame, err)
				continue
			}
			if !reflect.DeepEqual(got, cmd) {
				t.Errorf("round trip of %+v gave %+v", cmd, got)
			}
		}
	}
}

func TestResponseRoundTripAndIdempotence(t *testing.T) {
	for _, checksum := range []bool{false, true} {
		c := Codec{Checksum: checksum}
		for _, payload := range []string{"", "300", "-42", "768", simFirmware} {
			r := Response{Payload: payload}
			frame := c.EncodeResponse(r)
			first, err := c.DecodeResponse(frame)
			if err != nil {
				t.Fatal(err)
			}
			second, err := c.DecodeResponse(frame)
			if err != nil {
				t.Fatal(err)
			}
			if first != r || second != first {
				t.Errorf("decode of %q gave %+v then %+v", frame, first, second)
			}
		}
	}
}

func TestDecodeKnownResponse(t *testing.T) {
	r, err := Codec{Checksum: true}.DecodeResponse([]byte("\x02\x06300:0F\x03"))
	if err != nil {
		t.Fatal(err)
	}
	v, err := r.Int()
	if err != nil || v != 300 {
		t.Errorf("expected 300, got %d (%v)", v, err)
	}
}

func TestDecodeResponseFailures(t *testing.T) {
	good := Codec{Checksum: true}.EncodeResponse(Response{Payload: "12"})
	badSum := append([]byte(nil), good...)
	badSum[len(badSum)-2] ^= 0x01
	table := []struct {
		name     string
		checksum bool
		frame    []byte
	}{
		{"no STX", false, []byte("\x0612\x03")},
		{"no ETX", false, []byte("\x02\x0612")},
		{"empty", false, []byte("\x02\x03")},
		{"unknown lead", false, []byte("\x02?12\x03")},
		{"two frames", false, []byte("\x02\x061\x03\x02\x062\x03")},
		{"bad checksum", true, badSum},
		{"missing checksum", true, []byte("\x02\x0612\x03")},
		{"checksum not hex", true, []byte("\x02\x0612:ZZ\x03")},
	}
	for _, tt := range table {
		_, err := Codec{Checksum: tt.checksum}.DecodeResponse(tt.frame)
		var fe *FramingError
		if !errors.As(err, &fe) {
			t.Errorf("%s: expected FramingError, got %v", tt.name, err)
		}
	}
}

func TestDecodeNAK(t *testing.T) {
	for _, checksum := range []bool{false, true} {
		c := Codec{Checksum: checksum}
		_, err := c.DecodeResponse(c.EncodeNAK())
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("expected ProtocolError, got %v", err)
		}
	}
}

func TestResponseInt(t *testing.T) {
	table := []struct {
		payload string
		want    int64
	}{
		{"300", 300},
		{"-17", -17},
		{" 5 ", 5},
		{"12.6", 13},
		{"-0.4", 0},
	}
	for _, tt := range table {
		got, err := Response{Payload: tt.payload}.Int()
		if err != nil || got != tt.want {
			t.Errorf("%q: expected %d, got %d (%v)", tt.payload, tt.want, got, err)
		}
	}
	_, err := Response{Payload: "abc"}.Int()
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Errorf("expected FramingError, got %v", err)
	}
}

func TestEncodeRaw(t *testing.T) {
	c := Codec{}
	frame, err := c.EncodeRaw("0XP14R")
	if err != nil || string(frame) != "\x020XP14R\x03" {
		t.Errorf("unexpected frame %q (%v)", frame, err)
	}
	if _, err := c.EncodeRaw("0X\x03"); err == nil {
		t.Error("control bytes should be rejected")
	}
	if _, err := c.EncodeRaw(""); err == nil {
		t.Error("empty body should be rejected")
	}
}

func TestParseAxisName(t *testing.T) {
	for in, want := range map[string]AxisName{"x": AxisX, "X": AxisX, "0": AxisX, "Y": AxisY, "1": AxisY} {
		got, err := ParseAxisName(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := ParseAxisName("Z"); err == nil {
		t.Error("Z is not an axis")
	}
}
