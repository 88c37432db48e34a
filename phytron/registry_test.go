package phytron

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/mcc2/comm"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

func mockBusConfig() BusConfig {
	return BusConfig{
		Name:     "test",
		Mock:     true,
		Checksum: true,
		Retries:  2,
		Axes: map[string]AxisConfig{
			"focus":  {Module: 0, Channel: AxisX, Limits: util.Limiter{Min: -500, Max: 500}},
			"filter": {Module: 0, Channel: AxisY, Rotational: true},
			"slit":   {Module: 1, Channel: AxisX},
		},
	}
}

func TestOpenBuildsEveryAxis(t *testing.T) {
	r, err := Open(mockBusConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	want := []string{"filter", "focus", "slit"}
	if got := r.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if r.Simulator() == nil {
		t.Error("mock bus should expose its simulator")
	}
}

func TestRegistryAdaptersReachTheAxis(t *testing.T) {
	ctx := context.Background()
	r, err := Open(mockBusConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.PollAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.MoveAbs(ctx, "focus", 250); err != nil {
		t.Fatal(err)
	}
	snap, err := r.GetState(ctx, "focus")
	if err != nil || snap.State != Moving {
		t.Fatalf("expected Moving, got %+v (%v)", snap, err)
	}
	// the mock completes motion on the next status read
	snap, err = r.Poll(ctx, "focus")
	if err != nil || snap.State != Idle {
		t.Fatalf("expected Idle, got %+v (%v)", snap, err)
	}
	pos, _ := r.GetPos(ctx, "focus")
	if pos.Steps != 250 {
		t.Errorf("expected 250, got %d", pos.Steps)
	}
	if in, _ := r.GetInPosition(ctx, "focus"); !in {
		t.Error("axis should be in position")
	}
	var re *RangeError
	if err := r.MoveRel(ctx, "focus", 300); !errors.As(err, &re) {
		t.Errorf("expected RangeError, got %v", err)
	}
	if err := r.SetVelocity(ctx, "slit", 1200); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.GetVelocity(ctx, "slit"); v != 1200 {
		t.Errorf("expected 1200, got %d", v)
	}
	lim, _ := r.GetLimits(ctx, "focus")
	if lim.Max != 500 {
		t.Errorf("unexpected limits %+v", lim)
	}
	payload, err := r.Raw(ctx, "1XP14R")
	if err != nil || payload != "1200" {
		t.Errorf("raw read gave %q (%v)", payload, err)
	}
}

func TestRegistryUnknownAxis(t *testing.T) {
	r, err := Open(mockBusConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if err := r.Home(context.Background(), "nope"); !errors.Is(err, ErrAxisNotFound) {
		t.Errorf("expected ErrAxisNotFound, got %v", err)
	}
	if err := r.Remove("nope"); !errors.Is(err, ErrAxisNotFound) {
		t.Errorf("expected ErrAxisNotFound, got %v", err)
	}
}

func TestRegistryAddValidates(t *testing.T) {
	bus, _ := simBus(0)
	r := NewRegistry(bus, quietLogger())
	if _, err := r.Add("a", AxisConfig{Module: 0, Channel: AxisX}); err != nil {
		t.Fatal(err)
	}
	bad := map[string]AxisConfig{
		"a": {Module: 1, Channel: AxisX},
		"b": {Module: 0, Channel: AxisX},
		"c": {Module: 16, Channel: AxisX},
		"d": {Module: 0},
	}
	for id, cfg := range bad {
		if _, err := r.Add(id, cfg); err == nil {
			t.Errorf("%s %+v should have been refused", id, cfg)
		}
	}
	if err := r.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("b", AxisConfig{Module: 0, Channel: AxisX}); err != nil {
		t.Errorf("removed axis should free its address: %v", err)
	}
}

func TestRegistryCloseClosesBusLast(t *testing.T) {
	ctx := context.Background()
	r, err := Open(mockBusConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if len(r.IDs()) != 0 {
		t.Error("axes still registered after close")
	}
	if _, err := r.Add("late", AxisConfig{Module: 2, Channel: AxisX}); !errors.Is(err, comm.ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	if _, err := r.Raw(ctx, "0XSE"); !errors.Is(err, comm.ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestConcurrentAxesShareTheBus(t *testing.T) {
	ctx := context.Background()
	r, err := Open(mockBusConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range r.IDs() {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					_, err = r.Poll(ctx, id)
				} else {
					err = r.Stop(ctx, id)
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					mu.Unlock()
				}
			}(id, i)
		}
	}
	wg.Wait()
	for _, err := range errs {
		t.Error(err)
	}
	for _, id := range r.IDs() {
		snap, _ := r.GetState(ctx, id)
		if snap.State != Idle {
			t.Errorf("%s ended %s", id, snap.State)
		}
	}
}

func TestRawRefusesMotion(t *testing.T) {
	ctx := context.Background()
	r, err := Open(mockBusConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	sim := r.Simulator()
	sim.SetFaults(0, AxisX, 1<<6)
	if _, err := r.Poll(ctx, "focus"); err == nil {
		t.Fatal("fault not reported")
	}
	frames := sim.Frames()
	for _, body := range []string{"0XA100000", "0X+10", "0X-10", "0X0+", "0X0-", "0XL+", "0XL-", "0XP20S5", "0XP14S99999", "0XWHAT"} {
		var ee *EncodingError
		var re *RangeError
		if _, err := r.Raw(ctx, body); !errors.As(err, &ee) && !errors.As(err, &re) {
			t.Errorf("%s: expected a rejection, got %v", body, err)
		}
	}
	if sim.Frames() != frames {
		t.Error("a refused raw command reached the bus")
	}
	if sim.Moving(0, AxisX) {
		t.Error("faulted axis was set in motion")
	}
	for _, body := range []string{"0XS", "0XSE", "0XP14S2000", "0IVR"} {
		if _, err := r.Raw(ctx, body); err != nil {
			t.Errorf("%s: %v", body, err)
		}
	}
}

func TestBusTimeoutReachesAxesAndRaw(t *testing.T) {
	c := mockBusConfig()
	c.Timeout = 75 * time.Millisecond
	slit := c.Axes["slit"]
	slit.Timeout = 30 * time.Millisecond
	c.Axes["slit"] = slit
	r, err := Open(c, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.timeout != c.Timeout {
		t.Errorf("raw timeout %v, expected %v", r.timeout, c.Timeout)
	}
	focus, _ := r.Axis("focus")
	if got := focus.Config().Timeout; got != c.Timeout {
		t.Errorf("focus inherited %v, expected %v", got, c.Timeout)
	}
	s, _ := r.Axis("slit")
	if got := s.Config().Timeout; got != 30*time.Millisecond {
		t.Errorf("slit timeout %v, expected its own 30ms", got)
	}
}
