package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.jpl.nasa.gov/bdube/mcc2/phytron"
)

func mockAxis(t *testing.T) *phytron.Registry {
	t.Helper()
	reg, err := open(Config{Mock: true, Channel: "y", Module: 2, Timeout: 0.05, Wait: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestDoMoveWaitsForStandstill(t *testing.T) {
	reg := mockAxis(t)
	c := Config{Wait: 2}
	out, err := Do(context.Background(), reg, c, "move", []string{"1500"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "1500" {
		t.Errorf("expected final position 1500, got %q", out)
	}
	if reg.Simulator().Moving(2, phytron.AxisY) {
		t.Error("simulator still moving")
	}
	out, err = Do(context.Background(), reg, c, "moverel", []string{"-500"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "1000" {
		t.Errorf("expected 1000 after relative move, got %q", out)
	}
}

func TestDoParameter(t *testing.T) {
	reg := mockAxis(t)
	ctx := context.Background()
	if _, err := Do(ctx, reg, Config{}, "param", []string{"14", "2000"}); err != nil {
		t.Fatal(err)
	}
	out, err := Do(ctx, reg, Config{}, "param", []string{"14"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "2000" {
		t.Errorf("P14 read back as %q", out)
	}
}

func TestDoStatusShowsFault(t *testing.T) {
	reg := mockAxis(t)
	reg.Simulator().SetFaults(2, phytron.AxisY, 1<<2)
	out, err := Do(context.Background(), reg, Config{}, "status", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "state:    Error") || !strings.Contains(out, "fault:") {
		t.Errorf("status output missing the fault:\n%s", out)
	}
	// a faulted axis refuses to move
	if _, err := Do(context.Background(), reg, Config{}, "move", []string{"10"}); err == nil {
		t.Error("move on a faulted axis succeeded")
	}
}

func TestDoFirmwareAndRaw(t *testing.T) {
	reg := mockAxis(t)
	ctx := context.Background()
	fw, err := Do(ctx, reg, Config{}, "firmware", nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := Do(ctx, reg, Config{}, "raw", []string{"2IVR"})
	if err != nil {
		t.Fatal(err)
	}
	if fw == "" || fw != raw {
		t.Errorf("firmware %q, raw IVR %q", fw, raw)
	}
}

func TestDoUsage(t *testing.T) {
	reg := mockAxis(t)
	ctx := context.Background()
	for _, tc := range []struct {
		cmd  string
		args []string
	}{
		{"move", nil},
		{"jog", []string{"sideways"}},
		{"raw", nil},
		{"teleport", nil},
	} {
		if _, err := Do(ctx, reg, Config{}, tc.cmd, tc.args); err == nil {
			t.Errorf("%s %v accepted", tc.cmd, tc.args)
		}
	}
}

func TestWaitIdleTimesOut(t *testing.T) {
	reg := mockAxis(t)
	reg.Simulator().AutoFinish(false)
	if err := reg.MoveAbs(context.Background(), axisID, 100); err != nil {
		t.Fatal(err)
	}
	calls := 0
	err := waitIdle(context.Background(), reg, 3*pollPeriod, func(phytron.Snapshot) { calls++ })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if calls == 0 {
		t.Error("progress never reported")
	}
}
