package phytron

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/mcc2/comm"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// DefaultTimeout is the time allowed for one exchange when AxisConfig.Timeout
// is zero
const DefaultTimeout = 200 * time.Millisecond

// State is the motion state of an axis
type State int

const (
	// Idle axes are at rest and accept any command
	Idle State = iota

	// Moving axes were told to move and have not been seen at standstill
	Moving

	// Homing axes are performing a reference run
	Homing

	// Error axes saw a fault or a rejected command; only Reset leaves Error
	Error

	// Disconnected axes lost the line; only Reconnect leaves Disconnected
	Disconnected
)

var stateNames = [...]string{"Idle", "Moving", "Homing", "Error", "Disconnected"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Direction selects the end of travel for reference and free runs
type Direction int

const (
	// Minus runs towards the - limit
	Minus Direction = iota
	// Plus runs towards the + limit
	Plus
)

// Position is the last position read from the controller.  Stale is set while
// a command is in flight or after a failure, and cleared by a status read.
type Position struct {
	Steps int64 `json:"steps"`
	Stale bool  `json:"stale"`
}

// Snapshot is a consistent copy of everything an Axis knows
type Snapshot struct {
	State    State    `json:"state"`
	Position Position `json:"position"`
	Status   Status   `json:"status"`
	Fault    string   `json:"fault,omitempty"`
}

// AxisConfig holds the static configuration of an axis
type AxisConfig struct {
	// Module is the address of the controller module, 0..15
	Module int

	// Channel is X or Y
	Channel AxisName

	// Limits are soft limits on targets, in steps
	Limits util.Limiter

	// Timeout bounds one exchange
	Timeout time.Duration

	// Inverted axes flip the sign of positions and swap the ends of travel
	Inverted bool

	// Rotational axes have no limit switches; their limit bits are ignored
	Rotational bool

	// HomeDirection is the end the reference run goes to
	HomeDirection Direction
}

// Axis drives one channel of an MCC-2 over a shared Bus.
//
// Operations on one Axis must not be called concurrently; operations on
// different axes may be.  Snapshot and friends are safe to call at any time.
type Axis struct {
	id  string
	cfg AxisConfig
	bus *Bus
	log logrus.FieldLogger

	mu     sync.Mutex
	state  State
	pos    Position
	status Status
	fault  string
}

// NewAxis returns an Idle axis whose position is not yet known
func NewAxis(id string, cfg AxisConfig, bus *Bus, log logrus.FieldLogger) *Axis {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Axis{
		id:  id,
		cfg: cfg,
		bus: bus,
		log: log.WithField("axis", id),
		pos: Position{Stale: true},
	}
}

// ID returns the identifier of the axis
func (a *Axis) ID() string { return a.id }

// Config returns the configuration of the axis
func (a *Axis) Config() AxisConfig { return a.cfg }

// Snapshot returns the cached state of the axis
func (a *Axis) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Axis) snapshotLocked() Snapshot {
	return Snapshot{State: a.state, Position: a.pos, Status: a.status, Fault: a.fault}
}

// State returns the cached state of the axis
func (a *Axis) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Position returns the cached position of the axis
func (a *Axis) Position() Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

func (a *Axis) transitionLocked(to State) {
	if a.state == to {
		return
	}
	a.log.WithFields(logrus.Fields{"from": a.state, "to": to}).Info("state change")
	a.state = to
}

// advance moves the axis to `to` if it is in one of from
func (a *Axis) advance(to State, from ...State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range from {
		if a.state == s {
			a.transitionLocked(to)
			return
		}
	}
}

func (a *Axis) require(op string, allowed ...State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range allowed {
		if a.state == s {
			return nil
		}
	}
	return &StateError{Op: op, State: a.state}
}

func (a *Axis) connected(op string) error {
	return a.require(op, Idle, Moving, Homing, Error)
}

func (a *Axis) sign() int64 {
	if a.cfg.Inverted {
		return -1
	}
	return 1
}

func (a *Axis) command(op Op) Command {
	return Command{Module: a.cfg.Module, Axis: a.cfg.Channel, Op: op}
}

func (a *Axis) directed(plus, minus Op, dir Direction) Op {
	if (dir == Plus) != a.cfg.Inverted {
		return plus
	}
	return minus
}

// exchange sends cmd on the bus and maps failures to state transitions
func (a *Axis) exchange(ctx context.Context, cmd Command) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	a.mu.Lock()
	a.pos.Stale = true
	a.mu.Unlock()
	resp, err := a.bus.Execute(ctx, a.id, cmd, a.cfg.Timeout)
	if err != nil {
		a.fail(err)
	}
	return resp, err
}

// fail moves the axis to Error on a protocol error, and to Disconnected when
// the line can not be trusted.  Other errors leave the state alone.
func (a *Axis) fail(err error) {
	var (
		pe *ProtocolError
		fe *FramingError
	)
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case errors.As(err, &pe):
		if a.state == Disconnected {
			return
		}
		a.fault = pe.Error()
		a.transitionLocked(Error)
	case errors.As(err, &fe) || comm.IsLinkFailure(err):
		a.pos.Stale = true
		a.fault = err.Error()
		a.transitionLocked(Disconnected)
	}
}

// Move starts an absolute move to target and returns once the controller
// accepts it.  Targets outside the soft limits fail with a *RangeError and
// nothing is sent.
func (a *Axis) Move(ctx context.Context, target int64) error {
	if err := a.require("move", Idle, Moving); err != nil {
		return err
	}
	if !a.cfg.Limits.Check(target) {
		return &RangeError{What: "target", Value: target, Limits: a.cfg.Limits}
	}
	cmd := a.command(OpMoveAbs)
	cmd.Arg = a.sign() * target
	if _, err := a.exchange(ctx, cmd); err != nil {
		return err
	}
	a.advance(Moving, Idle, Moving)
	return nil
}

// MoveRel moves by delta steps from the current position.  It is accepted
// only from Idle, since the position of a moving axis is not known.  A stale
// position is refreshed with a status read before the soft limits are checked.
func (a *Axis) MoveRel(ctx context.Context, delta int64) error {
	if err := a.require("relative move", Idle); err != nil {
		return err
	}
	if a.Position().Stale {
		if _, err := a.PollStatus(ctx); err != nil {
			return err
		}
		if err := a.require("relative move", Idle); err != nil {
			return err
		}
	}
	target := a.Position().Steps + delta
	if !a.cfg.Limits.Check(target) {
		return &RangeError{What: "target", Value: target, Limits: a.cfg.Limits}
	}
	cmd := a.command(OpMoveRel)
	cmd.Arg = a.sign() * delta
	if _, err := a.exchange(ctx, cmd); err != nil {
		return err
	}
	a.advance(Moving, Idle)
	return nil
}

// Home starts a reference run in the configured direction
func (a *Axis) Home(ctx context.Context) error {
	if err := a.require("home", Idle, Moving); err != nil {
		return err
	}
	op := a.directed(OpHomePlus, OpHomeMinus, a.cfg.HomeDirection)
	if _, err := a.exchange(ctx, a.command(op)); err != nil {
		return err
	}
	a.advance(Homing, Idle, Moving)
	return nil
}

// Jog runs the axis until it reaches the limit switch in dir, or is stopped
func (a *Axis) Jog(ctx context.Context, dir Direction) error {
	if err := a.require("jog", Idle); err != nil {
		return err
	}
	op := a.directed(OpJogPlus, OpJogMinus, dir)
	if _, err := a.exchange(ctx, a.command(op)); err != nil {
		return err
	}
	a.advance(Moving, Idle)
	return nil
}

// Stop decelerates the axis to a stop.  It is sent in every state; Error
// and Disconnected are kept.
func (a *Axis) Stop(ctx context.Context) error {
	return a.halt(ctx, OpStop)
}

// Abort stops the axis without deceleration
func (a *Axis) Abort(ctx context.Context) error {
	return a.halt(ctx, OpAbort)
}

func (a *Axis) halt(ctx context.Context, op Op) error {
	if _, err := a.exchange(ctx, a.command(op)); err != nil {
		return err
	}
	a.advance(Idle, Idle, Moving, Homing)
	return nil
}

// read performs the status and position exchanges.  Limits and sign are
// already corrected for inverted axes.
func (a *Axis) read(ctx context.Context) (Status, int64, error) {
	resp, err := a.exchange(ctx, a.command(OpStatus))
	if err != nil {
		return Status{}, 0, err
	}
	st, err := resp.Status()
	if err != nil {
		a.fail(err)
		return Status{}, 0, err
	}
	cmd := a.command(OpParamRead)
	cmd.Param = ParamPosition
	resp, err = a.exchange(ctx, cmd)
	if err != nil {
		return Status{}, 0, err
	}
	steps, err := resp.Int()
	if err != nil {
		a.fail(err)
		return Status{}, 0, err
	}
	if a.cfg.Inverted {
		st = st.swapLimits()
		steps = -steps
	}
	return st, steps, nil
}

func (a *Axis) applyLocked(st Status, steps int64) {
	a.status = st
	a.pos = Position{Steps: steps}
}

func (a *Axis) faultLocked(st Status) *ProtocolError {
	faults := st.Faults(a.cfg.Rotational)
	if len(faults) == 0 {
		return nil
	}
	return &ProtocolError{Command: OpStatus.String(), Detail: strings.Join(faults, ", ")}
}

// PollStatus reads status and position from the controller and advances the
// state machine.  A fault reported by the controller moves the axis to Error
// and is returned as a *ProtocolError.  Error and Disconnected are never left
// by a poll.
func (a *Axis) PollStatus(ctx context.Context) (Snapshot, error) {
	st, steps, err := a.read(ctx)
	if err != nil {
		return a.Snapshot(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyLocked(st, steps)
	if perr := a.faultLocked(st); perr != nil {
		if a.state != Disconnected {
			a.fault = perr.Error()
			a.transitionLocked(Error)
		}
		return a.snapshotLocked(), perr
	}
	switch a.state {
	case Moving:
		if st.Standstill {
			a.transitionLocked(Idle)
		}
	case Homing:
		if st.Standstill {
			if !st.Referenced {
				perr := &ProtocolError{Command: OpStatus.String(), Detail: "reference run ended without a reference point"}
				a.fault = perr.Error()
				a.transitionLocked(Error)
				return a.snapshotLocked(), perr
			}
			a.transitionLocked(Idle)
		}
	case Idle:
		if st.Running() {
			a.transitionLocked(Moving)
		}
	}
	return a.snapshotLocked(), nil
}

// recheck is the common tail of Reset and Reconnect: a fresh read that
// leaves the sticky state only if the controller is healthy
func (a *Axis) recheck(ctx context.Context) error {
	st, steps, err := a.read(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyLocked(st, steps)
	if perr := a.faultLocked(st); perr != nil {
		a.fault = perr.Error()
		a.transitionLocked(Error)
		return perr
	}
	a.fault = ""
	if st.Running() {
		a.transitionLocked(Moving)
	} else {
		a.transitionLocked(Idle)
	}
	return nil
}

// Reset leaves Error if a fresh status read shows no fault.  It does nothing
// in the other connected states.
func (a *Axis) Reset(ctx context.Context) error {
	switch s := a.State(); s {
	case Error:
		return a.recheck(ctx)
	case Disconnected:
		return &StateError{Op: "reset", State: s}
	default:
		return nil
	}
}

// Reconnect leaves Disconnected if a trial status read succeeds.  The axis
// lands in Idle, or in Moving or Error if that is what the controller
// reports.  It does nothing in any other state.
func (a *Axis) Reconnect(ctx context.Context) error {
	if a.State() != Disconnected {
		return nil
	}
	return a.recheck(ctx)
}

// Parameter reads parameter p
func (a *Axis) Parameter(ctx context.Context, p int) (int64, error) {
	if err := a.connected("read parameter"); err != nil {
		return 0, err
	}
	cmd := a.command(OpParamRead)
	cmd.Param = p
	resp, err := a.exchange(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := resp.Int()
	if err != nil {
		a.fail(err)
		return 0, err
	}
	if signed(p) {
		v *= a.sign()
	}
	return v, nil
}

// SetParameter writes parameter p after checking v against the parameter
// table
func (a *Axis) SetParameter(ctx context.Context, p int, v int64) error {
	if err := a.connected("write parameter"); err != nil {
		return err
	}
	if err := CheckParameter(p, v); err != nil {
		return err
	}
	cmd := a.command(OpParamSet)
	cmd.Param = p
	cmd.Arg = v
	if signed(p) {
		cmd.Arg *= a.sign()
	}
	_, err := a.exchange(ctx, cmd)
	return err
}

// SetPosition redefines the current position as steps without moving
func (a *Axis) SetPosition(ctx context.Context, steps int64) error {
	if err := a.require("set position", Idle); err != nil {
		return err
	}
	return a.SetParameter(ctx, ParamPosition, steps)
}

// Velocity reads the run frequency in Hz
func (a *Axis) Velocity(ctx context.Context) (int64, error) {
	return a.Parameter(ctx, ParamVelocity)
}

// SetVelocity writes the run frequency in Hz
func (a *Axis) SetVelocity(ctx context.Context, hz int64) error {
	return a.SetParameter(ctx, ParamVelocity, hz)
}

// Firmware reads the firmware version of the module the axis is on
func (a *Axis) Firmware(ctx context.Context) (string, error) {
	if err := a.connected("read firmware"); err != nil {
		return "", err
	}
	resp, err := a.exchange(ctx, Command{Module: a.cfg.Module, Op: OpVersion})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Payload), nil
}

// SaveParameters stores the parameters of the module in EEPROM
func (a *Axis) SaveParameters(ctx context.Context) error {
	if err := a.connected("save parameters"); err != nil {
		return err
	}
	_, err := a.exchange(ctx, Command{Module: a.cfg.Module, Op: OpSave})
	if err == nil {
		a.log.Info("parameters written to EEPROM")
	}
	return err
}

// InPosition is true when the axis is Idle at standstill with a fresh position
func (a *Axis) InPosition() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == Idle && a.status.Standstill && !a.pos.Stale
}
