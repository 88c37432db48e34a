package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/mcc2/phytron"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

const axisID = "axis"

var errUsage = errors.New("missing or malformed argument, run mcc2ctl without arguments for usage")

// pollPeriod is the spacing of status reads while a move is watched
var pollPeriod = 50 * time.Millisecond

func intArg(args []string, i int) (int64, error) {
	if len(args) <= i {
		return 0, errUsage
	}
	return strconv.ParseInt(args[i], 10, 64)
}

// Do runs one command against the axis of reg and returns its printable result
func Do(ctx context.Context, reg *phytron.Registry, c Config, cmd string, args []string) (string, error) {
	a, err := reg.Axis(axisID)
	if err != nil {
		return "", err
	}
	// bring the cached state up to date before acting on it
	switch cmd {
	case "stop", "abort", "status", "raw":
	default:
		if _, err := a.PollStatus(ctx); err != nil {
			return "", err
		}
	}
	wait := util.SecsToDuration(c.Wait)
	switch cmd {
	case "move", "moverel":
		x, err := intArg(args, 0)
		if err != nil {
			return "", err
		}
		if cmd == "move" {
			err = reg.MoveAbs(ctx, axisID, x)
		} else {
			err = reg.MoveRel(ctx, axisID, x)
		}
		if err != nil {
			return "", err
		}
		if err = watch(ctx, reg, "moving", wait); err != nil {
			return "", err
		}
		return position(a), nil
	case "home":
		if err := reg.Home(ctx, axisID); err != nil {
			return "", err
		}
		if err := watch(ctx, reg, "homing", wait); err != nil {
			return "", err
		}
		return position(a), nil
	case "jog":
		if len(args) == 0 {
			return "", errUsage
		}
		dir := phytron.Minus
		switch args[0] {
		case "+":
			dir = phytron.Plus
		case "-":
		default:
			return "", errUsage
		}
		return "", a.Jog(ctx, dir)
	case "stop":
		return "", reg.Stop(ctx, axisID)
	case "abort":
		return "", a.Abort(ctx)
	case "status":
		snap, err := reg.Poll(ctx, axisID)
		if err != nil && snap.State != phytron.Error {
			return "", err
		}
		return describe(snap), nil
	case "param":
		p, err := intArg(args, 0)
		if err != nil {
			return "", err
		}
		if len(args) > 1 {
			v, err := intArg(args, 1)
			if err != nil {
				return "", err
			}
			return "", a.SetParameter(ctx, int(p), v)
		}
		v, err := a.Parameter(ctx, int(p))
		return strconv.FormatInt(v, 10), err
	case "firmware":
		return reg.Firmware(ctx, axisID)
	case "save":
		return "", a.SaveParameters(ctx)
	case "raw":
		if len(args) == 0 {
			return "", errUsage
		}
		return reg.Raw(ctx, strings.Join(args, " "))
	}
	return "", fmt.Errorf("unknown command %q", cmd)
}

// waitIdle polls the axis until it is Idle, calling progress after each
// read.  Error and Disconnected end the wait with the cause.
func waitIdle(ctx context.Context, reg *phytron.Registry, wait time.Duration, progress func(phytron.Snapshot)) error {
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	tick := time.NewTicker(pollPeriod)
	defer tick.Stop()
	for {
		snap, err := reg.Poll(ctx, axisID)
		if progress != nil {
			progress(snap)
		}
		switch {
		case err != nil:
			return err
		case snap.State == phytron.Idle:
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func position(a *phytron.Axis) string {
	p := a.Position()
	if p.Stale {
		return fmt.Sprintf("%d (stale)", p.Steps)
	}
	return strconv.FormatInt(p.Steps, 10)
}

func describe(s phytron.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state:    %s\n", s.State)
	fmt.Fprintf(&b, "position: %d", s.Position.Steps)
	if s.Position.Stale {
		b.WriteString(" (stale)")
	}
	if s.Fault != "" {
		fmt.Fprintf(&b, "\nfault:    %s", s.Fault)
	}
	for _, m := range s.Status.Messages() {
		fmt.Fprintf(&b, "\n  %s", m)
	}
	return b.String()
}
