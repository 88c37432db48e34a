// Command mcc2ctl performs one-shot operations on a single MCC-2 axis
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	log "github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/mcc2/phytron"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "mcc2ctl.yml"
	k              = koanf.New(".")
)

// Config selects the line and axis to talk to.  Every key may be overridden
// by an environment variable prefixed with MCC2_, e.g. MCC2_ADDR.
type Config struct {
	Addr     string  `yaml:"Addr" koanf:"Addr"`
	Serial   bool    `yaml:"Serial" koanf:"Serial"`
	Baud     int     `yaml:"Baud" koanf:"Baud"`
	Checksum bool    `yaml:"Checksum" koanf:"Checksum"`
	Module   int     `yaml:"Module" koanf:"Module"`
	Channel  string  `yaml:"Channel" koanf:"Channel"`
	Inverted bool    `yaml:"Inverted" koanf:"Inverted"`
	HomePlus bool    `yaml:"HomePlus" koanf:"HomePlus"`
	Timeout  float64 `yaml:"Timeout" koanf:"Timeout"`
	Mock     bool    `yaml:"Mock" koanf:"Mock"`

	// Wait is the longest a move or reference run is watched for, in seconds
	Wait float64 `yaml:"Wait" koanf:"Wait"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:     "/dev/ttyUSB0",
		Serial:   true,
		Baud:     57600,
		Checksum: true,
		Channel:  "X",
		Timeout:  phytron.DefaultTimeout.Seconds(),
		Wait:     60}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	k.Load(env.Provider("MCC2_", ".", func(s string) string {
		return strings.TrimPrefix(s, "MCC2_")
	}), nil)
}

func root() {
	str := `mcc2ctl performs one operation on one axis of a Phytron MCC-2 and exits.

Usage:
	mcc2ctl <command> [argument]

Commands:
	move <steps>       absolute move, waits for standstill
	moverel <steps>    relative move, waits for standstill
	home               reference run, waits for completion
	jog <+|->          free run until stop
	stop
	abort
	status
	param <n> [value]  read or write parameter n
	firmware
	save               store parameters in EEPROM
	raw <body>         send a command body, e.g. 0XP20R
	conf               print the effective configuration
	version`
	fmt.Println(str)
}

func open(c Config) (*phytron.Registry, error) {
	ch, err := phytron.ParseAxisName(c.Channel)
	if err != nil {
		return nil, err
	}
	home := phytron.Minus
	if c.HomePlus {
		home = phytron.Plus
	}
	return phytron.Open(phytron.BusConfig{
		Name:        "mcc2ctl",
		Addr:        c.Addr,
		Serial:      c.Serial,
		Baud:        c.Baud,
		DialTimeout: 3 * time.Second,
		Checksum:    c.Checksum,
		Retries:     2,
		Timeout:     util.SecsToDuration(c.Timeout),
		Mock:        c.Mock,
		Axes: map[string]phytron.AxisConfig{
			axisID: {
				Module:        c.Module,
				Channel:       ch,
				Timeout:       util.SecsToDuration(c.Timeout),
				Inverted:      c.Inverted,
				HomeDirection: home,
			}},
	}, log.StandardLogger())
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		root()
		return
	case "conf":
		if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
			log.Fatal(err)
		}
		return
	case "version":
		fmt.Printf("mcc2ctl version %v\n", Version)
		return
	}

	reg, err := open(c)
	if err != nil {
		log.Fatal(err)
	}
	out, err := Do(context.Background(), reg, c, cmd, args[2:])
	reg.Close()
	if err != nil {
		log.Fatal(err)
	}
	if out != "" {
		fmt.Println(out)
	}
}

// watch polls the axis until it stops moving, spinning meanwhile
func watch(ctx context.Context, reg *phytron.Registry, what string, wait time.Duration) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + what,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return err
	}
	if err := spinner.Start(); err != nil {
		return err
	}
	err = waitIdle(ctx, reg, wait, func(s phytron.Snapshot) {
		spinner.Message(fmt.Sprintf("%d steps", s.Position.Steps))
	})
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return err
	}
	spinner.StopMessage("done")
	return spinner.Stop()
}
