package phytron

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// STX starts every frame
	STX = 0x02

	// ETX ends every frame
	ETX = 0x03

	// ACK leads the payload of an accepted command
	ACK = 0x06

	// NAK is the whole payload of a rejected command
	NAK = 0x15

	// checksumSep separates the body of a frame from its checksum
	checksumSep = ':'

	// MaxModule is the highest module address on one bus
	MaxModule = 15

	// MaxParam is the highest parameter number
	MaxParam = 99

	hexDigits = "0123456789ABCDEF"
)

// AxisName is the channel of an axis on its module, X or Y.
// Module-level commands use NoAxis.
type AxisName byte

const (
	// NoAxis addresses the module itself
	NoAxis AxisName = 0

	// AxisX is the first channel of a module
	AxisX AxisName = 'X'

	// AxisY is the second channel of a module
	AxisY AxisName = 'Y'
)

func (a AxisName) String() string {
	if a == NoAxis {
		return ""
	}
	return string(rune(a))
}

// ParseAxisName accepts X/Y in either case, or the channel index 0/1
func ParseAxisName(s string) (AxisName, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X", "0":
		return AxisX, nil
	case "Y", "1":
		return AxisY, nil
	}
	return NoAxis, fmt.Errorf("axis name %q is not X or Y", s)
}

// Op is an operation understood by the controller
type Op int

const (
	// OpMoveAbs moves to an absolute position
	OpMoveAbs Op = iota + 1
	// OpMoveRel moves by a signed number of steps
	OpMoveRel
	OpHomePlus
	OpHomeMinus
	OpJogPlus
	OpJogMinus
	OpStop
	OpAbort
	OpStatus
	OpParamRead
	OpParamSet
	OpVersion
	OpSave
)

type opSpec struct {
	Mnemonic    string
	Description string
	UsesAxis    bool
	Arg         bool
	Param       bool
}

var opTable = map[Op]opSpec{
	OpMoveAbs: {
		Mnemonic:    "A",
		Description: "move to absolute position",
		UsesAxis:    true,
		Arg:         true},
	OpMoveRel: {
		Mnemonic:    "+/-",
		Description: "move relative, the sign of the argument selects the mnemonic",
		UsesAxis:    true,
		Arg:         true},
	OpHomePlus: {
		Mnemonic:    "0+",
		Description: "reference run towards the + limit",
		UsesAxis:    true},
	OpHomeMinus: {
		Mnemonic:    "0-",
		Description: "reference run towards the - limit",
		UsesAxis:    true},
	OpJogPlus: {
		Mnemonic:    "L+",
		Description: "run free until the + limit",
		UsesAxis:    true},
	OpJogMinus: {
		Mnemonic:    "L-",
		Description: "run free until the - limit",
		UsesAxis:    true},
	OpStop: {
		Mnemonic:    "S",
		Description: "decelerate to a stop",
		UsesAxis:    true},
	OpAbort: {
		Mnemonic:    "SN",
		Description: "stop without deceleration",
		UsesAxis:    true},
	OpStatus: {
		Mnemonic:    "SE",
		Description: "read extended status",
		UsesAxis:    true},
	OpParamRead: {
		Mnemonic:    "P<nn>R",
		Description: "read a parameter",
		UsesAxis:    true,
		Param:       true},
	OpParamSet: {
		Mnemonic:    "P<nn>S",
		Description: "write a parameter",
		UsesAxis:    true,
		Arg:         true,
		Param:       true},
	OpVersion: {
		Mnemonic:    "IVR",
		Description: "read the firmware version"},
	OpSave: {
		Mnemonic:    "SA",
		Description: "save parameters to EEPROM"},
}

func (o Op) String() string {
	if s, ok := opTable[o]; ok {
		return s.Mnemonic
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

// Command is one instruction addressed to a module, and an axis on it if the
// operation needs one.  Param is used only by the parameter operations, and
// Arg only by operations that carry an argument.
type Command struct {
	Module int
	Axis   AxisName
	Op     Op
	Param  int
	Arg    int64
}

func encErr(format string, args ...interface{}) error {
	return &EncodingError{Reason: fmt.Sprintf(format, args...)}
}

// body renders the command between STX and the checksum
func (c Command) body() (string, error) {
	info, ok := opTable[c.Op]
	if !ok {
		return "", encErr("unknown operation %d", int(c.Op))
	}
	if c.Module < 0 || c.Module > MaxModule {
		return "", encErr("module address %d outside 0..%d", c.Module, MaxModule)
	}
	var b strings.Builder
	b.WriteByte(hexDigits[c.Module])
	if info.UsesAxis {
		if c.Axis != AxisX && c.Axis != AxisY {
			return "", encErr("%s needs axis X or Y, got %q", info.Mnemonic, byte(c.Axis))
		}
		b.WriteByte(byte(c.Axis))
	} else if c.Axis != NoAxis {
		return "", encErr("%s is a module command and takes no axis", info.Mnemonic)
	}
	if info.Arg {
		if c.Arg < math.MinInt32 || c.Arg > math.MaxInt32 {
			return "", encErr("argument %d does not fit in 32 bits", c.Arg)
		}
	} else if c.Arg != 0 {
		return "", encErr("%s takes no argument", info.Mnemonic)
	}
	if info.Param {
		if c.Param < 1 || c.Param > MaxParam {
			return "", encErr("parameter number %d outside 1..%d", c.Param, MaxParam)
		}
	} else if c.Param != 0 {
		return "", encErr("%s takes no parameter number", info.Mnemonic)
	}

	switch c.Op {
	case OpMoveRel:
		if c.Arg < 0 {
			b.WriteString(strconv.FormatInt(c.Arg, 10))
		} else {
			b.WriteString("+" + strconv.FormatInt(c.Arg, 10))
		}
	case OpParamRead:
		fmt.Fprintf(&b, "P%02dR", c.Param)
	case OpParamSet:
		fmt.Fprintf(&b, "P%02dS%d", c.Param, c.Arg)
	default:
		b.WriteString(info.Mnemonic)
		if info.Arg {
			b.WriteString(strconv.FormatInt(c.Arg, 10))
		}
	}
	return b.String(), nil
}

func (c Command) String() string {
	s, err := c.body()
	if err != nil {
		return "<invalid " + c.Op.String() + ">"
	}
	return s
}

// Response is the payload of an acknowledged command
type Response struct {
	Payload string
}

// Int parses the payload as a number.  Fractional values, which the
// controller reports for positions in physical units, are rounded to the
// nearest integer.
func (r Response) Int() (int64, error) {
	s := strings.TrimSpace(r.Payload)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &FramingError{Frame: []byte(r.Payload), Reason: "payload is not a number"}
	}
	return int64(math.Round(f)), nil
}

// Status parses the payload as a decimal status word
func (r Response) Status() (Status, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(r.Payload), 10, 32)
	if err != nil {
		return Status{}, &FramingError{Frame: []byte(r.Payload), Reason: "payload is not a status word"}
	}
	return StatusFromBitfield(uint32(v)), nil
}

// Checksum is the XOR of every byte in b
func Checksum(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}

// Codec converts between Commands/Responses and frames.  With Checksum set
// every frame carries ':' and two hex digits before ETX, and frames received
// without a valid checksum are rejected.
type Codec struct {
	Checksum bool
}

func (c Codec) frame(body []byte) []byte {
	out := make([]byte, 0, len(body)+5)
	out = append(out, STX)
	out = append(out, body...)
	if c.Checksum {
		out = append(out, checksumSep)
		cs := Checksum(out[1:])
		out = append(out, hexDigits[cs>>4], hexDigits[cs&0x0f])
	}
	return append(out, ETX)
}

// EncodeCommand renders cmd as a complete frame
func (c Codec) EncodeCommand(cmd Command) ([]byte, error) {
	body, err := cmd.body()
	if err != nil {
		return nil, err
	}
	return c.frame([]byte(body)), nil
}

// EncodeRaw frames an arbitrary command body, e.g. "0XP14R"
func (c Codec) EncodeRaw(body string) ([]byte, error) {
	if body == "" {
		return nil, encErr("empty command")
	}
	for i := 0; i < len(body); i++ {
		if body[i] < 0x20 || body[i] > 0x7e {
			return nil, encErr("command contains control byte 0x%02X", body[i])
		}
	}
	return c.frame([]byte(body)), nil
}

// EncodeResponse renders an acknowledgement carrying r
func (c Codec) EncodeResponse(r Response) []byte {
	return c.frame(append([]byte{ACK}, r.Payload...))
}

// EncodeNAK renders a rejection
func (c Codec) EncodeNAK() []byte {
	return c.frame([]byte{NAK})
}

// unframe checks the envelope of frame and returns the body without the
// checksum
func (c Codec) unframe(frame []byte) ([]byte, error) {
	bad := func(reason string) error {
		return &FramingError{Frame: append([]byte(nil), frame...), Reason: reason}
	}
	if len(frame) < 2 || frame[0] != STX {
		return nil, bad("missing STX")
	}
	if frame[len(frame)-1] != ETX {
		return nil, bad("missing ETX")
	}
	body := frame[1 : len(frame)-1]
	for _, b := range body {
		if b == STX || b == ETX {
			return nil, bad("more than one frame")
		}
	}
	if !c.Checksum {
		return body, nil
	}
	n := len(body)
	if n < 3 || body[n-3] != checksumSep {
		return nil, bad("missing checksum")
	}
	want, err := strconv.ParseUint(string(body[n-2:]), 16, 8)
	if err != nil {
		return nil, bad("checksum is not hex")
	}
	if got := Checksum(body[:n-2]); byte(want) != got {
		return nil, bad(fmt.Sprintf("checksum %02X, computed %02X", want, got))
	}
	return body[:n-3], nil
}

// DecodeResponse parses a response frame.  A NAK yields a *ProtocolError,
// anything malformed a *FramingError.
func (c Codec) DecodeResponse(frame []byte) (Response, error) {
	body, err := c.unframe(frame)
	if err != nil {
		return Response{}, err
	}
	if len(body) == 0 {
		return Response{}, &FramingError{Frame: append([]byte(nil), frame...), Reason: "empty frame"}
	}
	switch body[0] {
	case ACK:
		return Response{Payload: string(body[1:])}, nil
	case NAK:
		if len(body) != 1 {
			return Response{}, &FramingError{Frame: append([]byte(nil), frame...), Reason: "NAK with payload"}
		}
		return Response{}, &ProtocolError{Detail: "command not acknowledged (NAK)"}
	default:
		return Response{}, &FramingError{
			Frame:  append([]byte(nil), frame...),
			Reason: fmt.Sprintf("unknown leading code 0x%02X", body[0])}
	}
}

// DecodeCommand parses a command frame, the inverse of EncodeCommand
func (c Codec) DecodeCommand(frame []byte) (Command, error) {
	body, err := c.unframe(frame)
	if err != nil {
		return Command{}, err
	}
	cmd, reason := parseCommand(string(body))
	if reason != "" {
		return Command{}, &FramingError{Frame: append([]byte(nil), frame...), Reason: reason}
	}
	return cmd, nil
}

func parseCommand(body string) (Command, string) {
	if len(body) < 2 {
		return Command{}, "command too short"
	}
	mod := strings.IndexByte(hexDigits, body[0])
	if mod < 0 || mod > MaxModule {
		return Command{}, "bad module address"
	}
	cmd := Command{Module: mod}
	rest := body[1:]
	if rest[0] == byte(AxisX) || rest[0] == byte(AxisY) {
		cmd.Axis = AxisName(rest[0])
		rest = rest[1:]
	}
	arg := func(s string) (int64, bool) {
		v, err := strconv.ParseInt(s, 10, 32)
		return v, err == nil
	}
	var ok = true
	switch {
	case rest == "IVR":
		cmd.Op = OpVersion
	case rest == "SA":
		cmd.Op = OpSave
	case rest == "SN":
		cmd.Op = OpAbort
	case rest == "SE":
		cmd.Op = OpStatus
	case rest == "S":
		cmd.Op = OpStop
	case rest == "0+":
		cmd.Op = OpHomePlus
	case rest == "0-":
		cmd.Op = OpHomeMinus
	case rest == "L+":
		cmd.Op = OpJogPlus
	case rest == "L-":
		cmd.Op = OpJogMinus
	case strings.HasPrefix(rest, "A"):
		cmd.Op = OpMoveAbs
		cmd.Arg, ok = arg(rest[1:])
	case strings.HasPrefix(rest, "+") || strings.HasPrefix(rest, "-"):
		cmd.Op = OpMoveRel
		cmd.Arg, ok = arg(rest)
	case strings.HasPrefix(rest, "P") && len(rest) >= 4:
		p, err := strconv.Atoi(rest[1:3])
		if err != nil {
			return Command{}, "bad parameter number"
		}
		cmd.Param = p
		switch {
		case rest[3] == 'R' && len(rest) == 4:
			cmd.Op = OpParamRead
		case rest[3] == 'S':
			cmd.Op = OpParamSet
			cmd.Arg, ok = arg(rest[4:])
		default:
			return Command{}, "bad parameter access"
		}
	default:
		return Command{}, "unknown mnemonic " + strconv.Quote(rest)
	}
	if !ok {
		return Command{}, "bad argument"
	}
	if _, err := cmd.body(); err != nil {
		return Command{}, err.Error()
	}
	return cmd, ""
}
