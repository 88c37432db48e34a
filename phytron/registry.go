package phytron

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/mcc2/comm"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// BusConfig describes one physical line and the axes on it
type BusConfig struct {
	// Name identifies the bus in logs
	Name string

	// Addr is a serial device path, or host:port of a terminal server
	Addr string

	// Serial selects a serial port over TCP
	Serial bool

	// Baud is the serial line speed
	Baud int

	// DialTimeout bounds the TCP connect
	DialTimeout time.Duration

	// Checksum enables checksums on every frame
	Checksum bool

	// Retries is the number of extra attempts after a timeout
	Retries int

	// RetryDelay is the pause between attempts
	RetryDelay time.Duration

	// Timeout bounds one exchange of raw commands, and of axes that do not
	// set their own.  Zero means DefaultTimeout.
	Timeout time.Duration

	// Mock replaces the line with a Simulator
	Mock bool

	// Axes maps axis ids to their configuration
	Axes map[string]AxisConfig
}

type entry struct {
	axis *Axis

	// op serializes the id-keyed methods of the Registry on one axis, so the
	// HTTP handlers and a status poller can share it
	op sync.Mutex
}

// Registry maps axis ids to the axes of one bus.  It owns the bus: axes are
// detached before the bus is closed.
type Registry struct {
	bus     *Bus
	log     logrus.FieldLogger
	sim     *Simulator
	timeout time.Duration

	mu     sync.RWMutex
	axes   map[string]*entry
	closed bool
}

// NewRegistry returns an empty Registry that owns bus
func NewRegistry(bus *Bus, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{bus: bus, log: log, timeout: DefaultTimeout, axes: make(map[string]*entry)}
}

// Open connects the line described by c and builds its axes: transport, then
// bus, then registry, then axes
func Open(c BusConfig, log logrus.FieldLogger) (*Registry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("bus", c.Name)
	codec := Codec{Checksum: c.Checksum}

	var (
		conn io.ReadWriteCloser
		sim  *Simulator
		err  error
	)
	switch {
	case c.Mock:
		sim = NewSimulator(codec)
		sim.AutoFinish(true)
		conn = sim
	case c.Serial:
		conn, err = comm.OpenSerial(comm.SerialConfig{Name: c.Addr, Baud: c.Baud})
	default:
		conn, err = comm.Dial(c.Addr, c.DialTimeout)
	}
	if err != nil {
		return nil, err
	}
	tr := comm.NewTransport(conn, ETX)
	tr.SetLogger(log)
	line := comm.NewBus(tr, comm.BusOptions{Retries: c.Retries, RetryDelay: c.RetryDelay, Logger: log})
	reg := NewRegistry(NewBus(line, codec), log)
	reg.sim = sim
	if c.Timeout > 0 {
		reg.timeout = c.Timeout
	}

	ids := make([]string, 0, len(c.Axes))
	for id := range c.Axes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cfg := c.Axes[id]
		if cfg.Timeout <= 0 {
			cfg.Timeout = reg.timeout
		}
		if _, err := reg.Add(id, cfg); err != nil {
			reg.Close()
			return nil, err
		}
	}
	log.WithField("axes", len(ids)).Info("bus open")
	return reg, nil
}

// Bus returns the bus shared by every axis
func (r *Registry) Bus() *Bus {
	return r.bus
}

// Simulator returns the simulator behind a mock bus, or nil
func (r *Registry) Simulator() *Simulator {
	return r.sim
}

// Add builds an axis and registers it under id
func (r *Registry) Add(id string, cfg AxisConfig) (*Axis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, comm.ErrBusClosed
	}
	if _, ok := r.axes[id]; ok {
		return nil, fmt.Errorf("axis %s already registered", id)
	}
	if cfg.Module < 0 || cfg.Module > MaxModule {
		return nil, fmt.Errorf("axis %s: module address %d outside 0..%d", id, cfg.Module, MaxModule)
	}
	if cfg.Channel != AxisX && cfg.Channel != AxisY {
		return nil, fmt.Errorf("axis %s: channel must be X or Y", id)
	}
	for oid, e := range r.axes {
		oc := e.axis.Config()
		if oc.Module == cfg.Module && oc.Channel == cfg.Channel {
			return nil, fmt.Errorf("axis %s: module %d channel %s already used by %s", id, cfg.Module, cfg.Channel, oid)
		}
	}
	a := NewAxis(id, cfg, r.bus, r.log)
	r.axes[id] = &entry{axis: a}
	return a, nil
}

// Remove detaches the axis registered under id
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.axes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAxisNotFound, id)
	}
	delete(r.axes, id)
	return nil
}

func (r *Registry) entry(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.axes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAxisNotFound, id)
	}
	return e, nil
}

// Axis returns the axis registered under id
func (r *Registry) Axis(id string) (*Axis, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	return e.axis, nil
}

// IDs returns the registered axis ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.axes))
	for id := range r.axes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close detaches every axis, then closes the bus and with it the transport
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.axes
	r.axes = make(map[string]*entry)
	r.mu.Unlock()

	// wait for operations in progress before the line goes away
	for _, e := range entries {
		e.op.Lock()
		e.op.Unlock()
	}
	return r.bus.Close()
}

// do runs fn on the axis under id with other id-keyed calls on it excluded
func (r *Registry) do(id string, fn func(*Axis) error) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.op.Lock()
	defer e.op.Unlock()
	return fn(e.axis)
}

// MoveAbs moves an axis to an absolute position
func (r *Registry) MoveAbs(ctx context.Context, id string, x int64) error {
	return r.do(id, func(a *Axis) error { return a.Move(ctx, x) })
}

// MoveRel moves an axis by a number of steps
func (r *Registry) MoveRel(ctx context.Context, id string, x int64) error {
	return r.do(id, func(a *Axis) error { return a.MoveRel(ctx, x) })
}

// GetPos returns the cached position of an axis
func (r *Registry) GetPos(ctx context.Context, id string) (Position, error) {
	a, err := r.Axis(id)
	if err != nil {
		return Position{}, err
	}
	return a.Position(), nil
}

// Home starts a reference run
func (r *Registry) Home(ctx context.Context, id string) error {
	return r.do(id, func(a *Axis) error { return a.Home(ctx) })
}

// Stop stops an axis
func (r *Registry) Stop(ctx context.Context, id string) error {
	return r.do(id, func(a *Axis) error { return a.Stop(ctx) })
}

// Poll refreshes the state of an axis from the controller
func (r *Registry) Poll(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := r.do(id, func(a *Axis) error {
		var err error
		snap, err = a.PollStatus(ctx)
		return err
	})
	return snap, err
}

// PollAll polls every axis in id order and returns the first error
func (r *Registry) PollAll(ctx context.Context) error {
	var first error
	for _, id := range r.IDs() {
		if _, err := r.Poll(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Reset clears the Error state of an axis if it is healthy
func (r *Registry) Reset(ctx context.Context, id string) error {
	return r.do(id, func(a *Axis) error { return a.Reset(ctx) })
}

// Reconnect clears the Disconnected state of an axis if it answers
func (r *Registry) Reconnect(ctx context.Context, id string) error {
	return r.do(id, func(a *Axis) error { return a.Reconnect(ctx) })
}

// GetState returns the cached snapshot of an axis
func (r *Registry) GetState(ctx context.Context, id string) (Snapshot, error) {
	a, err := r.Axis(id)
	if err != nil {
		return Snapshot{}, err
	}
	return a.Snapshot(), nil
}

// GetVelocity reads the velocity of an axis in Hz
func (r *Registry) GetVelocity(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.do(id, func(a *Axis) error {
		var err error
		v, err = a.Velocity(ctx)
		return err
	})
	return v, err
}

// SetVelocity writes the velocity of an axis in Hz
func (r *Registry) SetVelocity(ctx context.Context, id string, hz int64) error {
	return r.do(id, func(a *Axis) error { return a.SetVelocity(ctx, hz) })
}

// GetInPosition is true when an axis is at rest at a fresh position
func (r *Registry) GetInPosition(ctx context.Context, id string) (bool, error) {
	a, err := r.Axis(id)
	if err != nil {
		return false, err
	}
	return a.InPosition(), nil
}

// GetLimits returns the soft limits of an axis
func (r *Registry) GetLimits(ctx context.Context, id string) (util.Limiter, error) {
	a, err := r.Axis(id)
	if err != nil {
		return util.Limiter{}, err
	}
	return a.Config().Limits, nil
}

// Raw sends a command body and returns the payload of the reply.  Only
// commands that can not start motion are passed through; moves, reference
// runs, free runs and position redefinition must go through the axis so its
// soft limits and state apply.  Parameter writes are checked against the
// parameter table.
func (r *Registry) Raw(ctx context.Context, body string) (string, error) {
	if err := checkRaw(body); err != nil {
		return "", err
	}
	resp, err := r.bus.Raw(ctx, "raw", body, r.timeout)
	return resp.Payload, err
}

func checkRaw(body string) error {
	cmd, reason := parseCommand(body)
	if reason != "" {
		return encErr("raw command %q not understood: %s", body, reason)
	}
	switch cmd.Op {
	case OpMoveAbs, OpMoveRel, OpHomePlus, OpHomeMinus, OpJogPlus, OpJogMinus:
		return encErr("raw command %q starts motion, use the axis routes", body)
	case OpParamSet:
		if cmd.Param == ParamPosition {
			return encErr("raw command %q redefines the position, use the axis routes", body)
		}
		return CheckParameter(cmd.Param, cmd.Arg)
	}
	return nil
}

// Firmware reads the firmware version of the module an axis is on
func (r *Registry) Firmware(ctx context.Context, id string) (string, error) {
	var fw string
	err := r.do(id, func(a *Axis) error {
		var err error
		fw, err = a.Firmware(ctx)
		return err
	})
	return fw, err
}
