package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/gentam/sst25v"
)

// busConfig is the YAML wiring description:
//
//	pins:
//	  cs: GPIO8
//	  sck: GPIO11
//	  si: GPIO10
//	  so: GPIO9
//	part: SST25VF032B
//	clock_half_period: 500ns
//	select_settle: 1us
//
// Pin names are resolved through the host GPIO registry, so anything
// gpioreg knows (names, numbers, aliases) works.
type busConfig struct {
	Pins struct {
		CS  string `yaml:"cs"`
		SCK string `yaml:"sck"`
		SI  string `yaml:"si"`
		SO  string `yaml:"so"`
	} `yaml:"pins"`
	Part            string `yaml:"part"`
	ClockHalfPeriod string `yaml:"clock_half_period"`
	SelectSettle    string `yaml:"select_settle"`
}

func loadBusConfig(path string) (*busConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseBusConfig(raw)
}

func parseBusConfig(raw []byte) (*busConfig, error) {
	c := &busConfig{}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// timing resolves the optional duration fields. Zero values mean the
// driver defaults.
func (c *busConfig) timing() (clockHalfPeriod, selectSettle time.Duration, err error) {
	if c.ClockHalfPeriod != "" {
		clockHalfPeriod, err = time.ParseDuration(c.ClockHalfPeriod)
		if err != nil {
			return 0, 0, fmt.Errorf("clock_half_period: %w", err)
		}
	}
	if c.SelectSettle != "" {
		selectSettle, err = time.ParseDuration(c.SelectSettle)
		if err != nil {
			return 0, 0, fmt.Errorf("select_settle: %w", err)
		}
	}
	return clockHalfPeriod, selectSettle, nil
}

// busFlags are the wiring flags shared by every command. Flags override
// the config file field by field.
type busFlags struct {
	config          string
	cs, sck, si, so string
	part            string
	verbose         bool
}

func addBusFlags(fs *flag.FlagSet) *busFlags {
	bf := &busFlags{}
	fs.StringVar(&bf.config, "c", "", "wiring config file")
	fs.StringVar(&bf.cs, "cs", "", "chip enable pin")
	fs.StringVar(&bf.sck, "sck", "", "clock pin")
	fs.StringVar(&bf.si, "si", "", "data-in pin (host to flash)")
	fs.StringVar(&bf.so, "so", "", "data-out pin (flash to host)")
	fs.StringVar(&bf.part, "part", "", "flash part name")
	fs.BoolVar(&bf.verbose, "v", false, "debug logging")
	return bf
}

// apply overlays non-empty flag values onto the file config.
func (bf *busFlags) apply(cfg *busConfig) {
	if bf.cs != "" {
		cfg.Pins.CS = bf.cs
	}
	if bf.sck != "" {
		cfg.Pins.SCK = bf.sck
	}
	if bf.si != "" {
		cfg.Pins.SI = bf.si
	}
	if bf.so != "" {
		cfg.Pins.SO = bf.so
	}
	if bf.part != "" {
		cfg.Part = bf.part
	}
}

// pinNames lists the pin assignment in bus order with the flag name of
// each role.
func (c *busConfig) pinNames() [4]struct{ role, name string } {
	return [4]struct{ role, name string }{
		{"cs", c.Pins.CS},
		{"sck", c.Pins.SCK},
		{"si", c.Pins.SI},
		{"so", c.Pins.SO},
	}
}

// validate checks the pin assignment is complete before any hardware is
// touched.
func (c *busConfig) validate() error {
	for _, p := range c.pinNames() {
		if p.name == "" {
			return fmt.Errorf("no %s pin configured (use -c or -%s)", p.role, p.role)
		}
	}
	return nil
}

var hostInitialized atomic.Bool

// openFlash resolves the pin map, initializes the host GPIO drivers
// and claims the bus.
func openFlash(bf *busFlags) (*sst25v.Flash, error) {
	cfg := &busConfig{}
	if bf.config != "" {
		var err error
		cfg, err = loadBusConfig(bf.config)
		if err != nil {
			return nil, err
		}
	}
	bf.apply(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clockHalfPeriod, selectSettle, err := cfg.timing()
	if err != nil {
		return nil, err
	}

	part := sst25v.Part{}
	if cfg.Part != "" {
		var ok bool
		if part, ok = sst25v.PartByName(cfg.Part); !ok {
			return nil, fmt.Errorf("unknown part %q", cfg.Part)
		}
	}

	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	var pins [4]gpio.PinIO
	for i, p := range cfg.pinNames() {
		pin := gpioreg.ByName(p.name)
		if pin == nil {
			return nil, fmt.Errorf("%s pin %q not found", p.role, p.name)
		}
		pins[i] = pin
	}

	var logger *slog.Logger
	if bf.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	f, err := sst25v.New(sst25v.Config{
		CS:              pins[0],
		SCK:             pins[1],
		SI:              pins[2],
		SO:              pins[3],
		Part:            part,
		ClockHalfPeriod: clockHalfPeriod,
		SelectSettle:    selectSettle,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	if err := f.Init(); err != nil {
		return nil, err
	}
	return f, nil
}
