package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	log "github.com/sirupsen/logrus"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "mcc2srv.yml"
	k              = koanf.New(".")
)

var commands = map[string]func(Config){
	"help":    func(Config) { fmt.Println(helpText) },
	"mkconf":  mkconf,
	"conf":    func(c Config) { writeConf(os.Stdout, c) },
	"run":     run,
	"version": func(Config) { fmt.Printf("mcc2srv version %v\n", Version) },
}

const helpText = `mcc2srv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Each entry in Buses is one RS485 line, reached either through a serial port
(Serial: true, Addr is the device path) or a terminal server (Addr is host:port).
Every axis on the line names its module address (0..15) and channel (X or Y).
Min and Max are soft limits in steps; leave both at zero for none.

With Mock: true, every line is replaced by a simulated controller.

Endpoints may look like "mcc2/bench" or "/mcc2/bench/", the leading slash is
added and the trailing one removed by the server.  No two buses may share one.

Routes are per axis, e.g. POST /mcc2/bench/axis/x/pos with {"f64": 1000}.
GET /endpoints lists everything the server exposes.`

func loadConfig() Config {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) && !strings.Contains(err.Error(), "no such") {
			log.Fatalf("error loading config: %v", err)
		}
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	return c
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf(`mcc2srv drives Phytron MCC-2 stepper controllers on one or more RS485 lines
and exposes an HTTP interface to their axes.

Usage:
	mcc2srv <command>

Commands:
	%s
`, strings.Join(names, "\n\t"))
}

func writeConf(w io.Writer, c Config) {
	if err := yml.NewEncoder(w).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func mkconf(c Config) {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	writeConf(f, c)
}

func run(c Config) {
	if lvl, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	regs, err := OpenAll(c, log.StandardLogger())
	if err != nil {
		log.Fatal(err)
	}
	defer CloseAll(regs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, reg := range regs {
		go Poll(ctx, reg, c.PollInterval, log.StandardLogger())
	}
	log.WithField("addr", c.Addr).Info("now listening for requests")
	err = http.ListenAndServe(c.Addr, BuildMux(c, regs))
	log.WithError(err).Error("server stopped")
}

func main() {
	if len(os.Args) == 1 {
		usage()
		return
	}
	cmd, ok := commands[strings.ToLower(os.Args[1])]
	if !ok {
		log.Fatal("unknown command ", os.Args[1])
	}
	cmd(loadConfig())
}
