package phytron

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"time"
)

const (
	simFirmware = "MCC2 SIM 1.0"
	simJogSpan  = 100000
	simPoll     = time.Millisecond
)

type simTimeout struct{}

func (simTimeout) Error() string   { return "simulator: read deadline exceeded" }
func (simTimeout) Timeout() bool   { return true }
func (simTimeout) Temporary() bool { return true }

type simKey struct {
	module int
	axis   AxisName
}

type simAxis struct {
	pos, target int64
	moving      bool
	homing      bool
	referenced  bool
	faults      uint32
	params      map[int]int64
}

func newSimAxis() *simAxis {
	return &simAxis{params: map[int]int64{
		ParamMovementType:   1,
		ParamUnit:           1,
		ParamHomingVelocity: 2000,
		ParamVelocity:       4000,
		ParamAcceleration:   4000,
		ParamHoldCurrent:    2,
		ParamRunCurrent:     6,
		ParamStepResolution: 16,
	}}
}

func (a *simAxis) finish() {
	a.pos = a.target
	a.moving = false
	if a.homing {
		a.homing = false
		a.referenced = true
		a.pos, a.target = 0, 0
	}
}

// Simulator is a wire-level stand-in for a chain of MCC-2 modules.  It
// satisfies io.ReadWriteCloser and can be given to comm.NewTransport in place
// of a serial port.
//
// Motion does not progress on its own: call Finish, or enable AutoFinish to
// complete motion at the next status read.
type Simulator struct {
	codec Codec

	mu         sync.Mutex
	in, out    []byte
	deadline   time.Time
	closed     bool
	axes       map[simKey]*simAxis
	drop       bool
	rejectNext bool
	autoFinish bool
	frames     int
	last       Command
}

// NewSimulator returns a simulator that frames with codec
func NewSimulator(codec Codec) *Simulator {
	return &Simulator{codec: codec, axes: make(map[simKey]*simAxis)}
}

func (s *Simulator) axis(module int, name AxisName) *simAxis {
	k := simKey{module, name}
	a, ok := s.axes[k]
	if !ok {
		a = newSimAxis()
		s.axes[k] = a
	}
	return a
}

// Read returns buffered response bytes.  It blocks until there are some, the
// read deadline passes, or the simulator is closed.
func (s *Simulator) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.out) > 0 {
			n := copy(p, s.out)
			s.out = s.out[n:]
			s.mu.Unlock()
			return n, nil
		}
		if s.closed {
			s.mu.Unlock()
			return 0, io.EOF
		}
		if !s.deadline.IsZero() && time.Now().After(s.deadline) {
			s.mu.Unlock()
			return 0, simTimeout{}
		}
		s.mu.Unlock()
		time.Sleep(simPoll)
	}
}

// Write accepts command bytes and answers every complete frame
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.in = append(s.in, p...)
	for {
		end := bytes.IndexByte(s.in, ETX)
		if end < 0 {
			break
		}
		frame := s.in[:end+1]
		if start := bytes.LastIndexByte(frame, STX); start > 0 {
			frame = frame[start:]
		}
		resp := s.handle(append([]byte(nil), frame...))
		s.in = s.in[end+1:]
		if !s.drop {
			s.out = append(s.out, resp...)
		}
	}
	return len(p), nil
}

// SetReadDeadline bounds the next Read
func (s *Simulator) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

// Flush discards unread response bytes
func (s *Simulator) Flush() error {
	s.mu.Lock()
	s.out = nil
	s.mu.Unlock()
	return nil
}

// Close makes further reads return io.EOF
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) handle(frame []byte) []byte {
	s.frames++
	cmd, err := s.codec.DecodeCommand(frame)
	if err != nil || s.rejectNext {
		s.rejectNext = false
		return s.codec.EncodeNAK()
	}
	s.last = cmd
	if cmd.Axis == NoAxis {
		switch cmd.Op {
		case OpVersion:
			return s.codec.EncodeResponse(Response{Payload: simFirmware})
		default:
			return s.codec.EncodeResponse(Response{})
		}
	}

	a := s.axis(cmd.Module, cmd.Axis)
	start := func(target int64) []byte {
		if a.faults != 0 {
			return s.codec.EncodeNAK()
		}
		a.target = target
		a.moving = true
		return s.codec.EncodeResponse(Response{})
	}
	switch cmd.Op {
	case OpMoveAbs:
		return start(cmd.Arg)
	case OpMoveRel:
		return start(a.pos + cmd.Arg)
	case OpHomePlus, OpHomeMinus:
		a.homing = true
		a.referenced = false
		return start(a.pos)
	case OpJogPlus:
		return start(a.pos + simJogSpan)
	case OpJogMinus:
		return start(a.pos - simJogSpan)
	case OpStop, OpAbort:
		a.moving, a.homing = false, false
		a.target = a.pos
	case OpStatus:
		if s.autoFinish && a.moving {
			a.finish()
		}
		return s.codec.EncodeResponse(Response{Payload: strconv.FormatUint(uint64(s.statusLocked(a)), 10)})
	case OpParamRead:
		v := a.params[cmd.Param]
		if cmd.Param == ParamPosition {
			v = a.pos
		}
		return s.codec.EncodeResponse(Response{Payload: strconv.FormatInt(v, 10)})
	case OpParamSet:
		if cmd.Param == ParamPosition {
			a.pos, a.target = cmd.Arg, cmd.Arg
		} else {
			a.params[cmd.Param] = cmd.Arg
		}
	}
	return s.codec.EncodeResponse(Response{})
}

func (s *Simulator) statusLocked(a *simAxis) uint32 {
	st := Status{
		PowerStageActive: true,
		Standstill:       !a.moving,
		Referenced:       a.referenced,
	}
	return st.Bitfield() | a.faults
}

// SetPosition places an axis at steps, at rest
func (s *Simulator) SetPosition(module int, axis AxisName, steps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.axis(module, axis)
	a.pos, a.target, a.moving = steps, steps, false
}

// Finish completes the motion in progress on an axis
func (s *Simulator) Finish(module int, axis AxisName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axis(module, axis).finish()
}

// SetFaults sets extra status bits on an axis; zero clears them
func (s *Simulator) SetFaults(module int, axis AxisName, bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axis(module, axis).faults = bits
}

// Moving reports if an axis has motion in progress
func (s *Simulator) Moving(module int, axis AxisName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axis(module, axis).moving
}

// DropResponses makes the simulator swallow every command without answering
func (s *Simulator) DropResponses(drop bool) {
	s.mu.Lock()
	s.drop = drop
	s.mu.Unlock()
}

// RejectNext answers the next command with a NAK
func (s *Simulator) RejectNext() {
	s.mu.Lock()
	s.rejectNext = true
	s.mu.Unlock()
}

// AutoFinish completes motion when the status of a moving axis is read
func (s *Simulator) AutoFinish(on bool) {
	s.mu.Lock()
	s.autoFinish = on
	s.mu.Unlock()
}

// Frames returns the number of command frames received
func (s *Simulator) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// LastCommand returns the last command that was understood
func (s *Simulator) LastCommand() Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
