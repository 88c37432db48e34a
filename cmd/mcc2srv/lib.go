package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
	"github.jpl.nasa.gov/bdube/mcc2/generichttp/ascii"
	"github.jpl.nasa.gov/bdube/mcc2/generichttp/motion"
	"github.jpl.nasa.gov/bdube/mcc2/phytron"
	"github.jpl.nasa.gov/bdube/mcc2/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// AxisSetup describes one axis of a module
type AxisSetup struct {
	// Module is the address of the controller, 0..15
	Module int `yaml:"Module" koanf:"Module"`

	// Channel is X or Y
	Channel string `yaml:"Channel" koanf:"Channel"`

	// Min and Max are soft limits in steps.  Both zero disables them.
	Min int64 `yaml:"Min" koanf:"Min"`
	Max int64 `yaml:"Max" koanf:"Max"`

	Inverted   bool `yaml:"Inverted" koanf:"Inverted"`
	Rotational bool `yaml:"Rotational" koanf:"Rotational"`

	// HomePlus sends the reference run to the + limit instead of the - one
	HomePlus bool `yaml:"HomePlus" koanf:"HomePlus"`
}

// BusSetup holds the connection parameters of one RS485 line
type BusSetup struct {
	// Addr holds the network or filesystem address of the line,
	// e.g. 192.168.100.123:2006 for a digi portserver port, or /dev/ttyUSB0
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the path the axes of this line are served under
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Serial determines if the connection is a local serial port (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	Baud int `yaml:"Baud" koanf:"Baud"`

	// Checksum appends an XOR checksum to every frame
	Checksum bool `yaml:"Checksum" koanf:"Checksum"`

	// Retries is the number of extra attempts after a timeout
	Retries int `yaml:"Retries" koanf:"Retries"`

	// RetryDelay and Timeout are in seconds
	RetryDelay float64 `yaml:"RetryDelay" koanf:"RetryDelay"`
	Timeout    float64 `yaml:"Timeout" koanf:"Timeout"`

	// Axes maps axis ids, as used in URLs, to their setup
	Axes map[string]AxisSetup `yaml:"Axes" koanf:"Axes"`
}

// Config is the configuration of the server
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock replaces every line with a simulated controller
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// PollInterval is the period of status polling, in seconds.  Zero disables it.
	PollInterval float64 `yaml:"PollInterval" koanf:"PollInterval"`

	// LogLevel is a logrus level name
	LogLevel string `yaml:"LogLevel" koanf:"LogLevel"`

	Buses []BusSetup `yaml:"Buses" koanf:"Buses"`
}

// DefaultConfig returns the configuration written by mkconf
func DefaultConfig() Config {
	return Config{
		Addr:         ":8000",
		PollInterval: 0.5,
		LogLevel:     "info",
		Buses: []BusSetup{{
			Addr:     "/dev/ttyUSB0",
			Endpoint: "mcc2",
			Serial:   true,
			Baud:     57600,
			Checksum: true,
			Retries:  2,
			Timeout:  phytron.DefaultTimeout.Seconds(),
			Axes: map[string]AxisSetup{
				"x": {Module: 0, Channel: "X"},
				"y": {Module: 0, Channel: "Y"},
			},
		}},
	}
}

// BusConfig converts the setup into the configuration of a phytron bus
func (b BusSetup) BusConfig(mock bool) (phytron.BusConfig, error) {
	c := phytron.BusConfig{
		Name:       b.Endpoint,
		Addr:       b.Addr,
		Serial:     b.Serial,
		Baud:       b.Baud,
		Checksum:   b.Checksum,
		Retries:    b.Retries,
		RetryDelay: util.SecsToDuration(b.RetryDelay),
		Timeout:    util.SecsToDuration(b.Timeout),
		Mock:       mock,
		Axes:       make(map[string]phytron.AxisConfig, len(b.Axes)),
	}
	for id, a := range b.Axes {
		ch, err := phytron.ParseAxisName(a.Channel)
		if err != nil {
			return c, fmt.Errorf("bus %s axis %s: %w", b.Endpoint, id, err)
		}
		ac := phytron.AxisConfig{
			Module:     a.Module,
			Channel:    ch,
			Limits:     util.Limiter{Min: a.Min, Max: a.Max},
			Timeout:    util.SecsToDuration(b.Timeout),
			Inverted:   a.Inverted,
			Rotational: a.Rotational,
		}
		if a.HomePlus {
			ac.HomeDirection = phytron.Plus
		}
		c.Axes[strings.ToLower(id)] = ac
	}
	return c, nil
}

// OpenAll opens every bus in c, in order.  The returned slice is parallel to c.Buses.
func OpenAll(c Config, log logrus.FieldLogger) ([]*phytron.Registry, error) {
	regs := make([]*phytron.Registry, 0, len(c.Buses))
	seen := map[string]bool{}
	for _, b := range c.Buses {
		mount := generichttp.SubMuxSanitize(b.Endpoint)
		if mount == "/" || seen[mount] {
			CloseAll(regs)
			return nil, fmt.Errorf("bus endpoint %q is empty or used twice", b.Endpoint)
		}
		seen[mount] = true
		bc, err := b.BusConfig(c.Mock)
		if err != nil {
			CloseAll(regs)
			return nil, err
		}
		reg, err := phytron.Open(bc, log)
		if err != nil {
			CloseAll(regs)
			return nil, fmt.Errorf("opening bus %s at %s: %w", b.Endpoint, b.Addr, err)
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// CloseAll closes every registry, logging failures
func CloseAll(regs []*phytron.Registry) {
	for _, reg := range regs {
		if err := reg.Close(); err != nil {
			logrus.WithError(err).Warn("closing bus")
		}
	}
}

// Poll refreshes the status of every axis of reg every interval seconds until ctx is done
func Poll(ctx context.Context, reg *phytron.Registry, interval float64, log logrus.FieldLogger) {
	if interval <= 0 {
		return
	}
	lim := rate.NewLimiter(rate.Every(util.SecsToDuration(interval)), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := reg.PollAll(pctx)
		cancel()
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Debug("status poll")
		}
	}
}

// BuildMux mounts the routes of every registry under its endpoint.
// The mux serves a special route, /endpoints, which returns a map of
// mount points to the routes beneath them as JSON.
func BuildMux(c Config, regs []*phytron.Registry) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}
	for i, reg := range regs {
		httper := motion.NewHTTPMotionController(reg)
		ascii.InjectRawComm(httper, reg, motion.StatusFor)

		// prepare the URL, "mcc2/bench/" => "/mcc2/bench"
		hndlS := generichttp.SubMuxSanitize(c.Buses[i].Endpoint)

		lock := locker.New()
		locker.Inject(httper, lock)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(w, supergraph)
	})
	return root
}
