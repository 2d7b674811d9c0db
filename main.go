package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/AndreRenaud/epd1in54b/epd"
	"github.com/AndreRenaud/epd1in54b/frame"
	"github.com/AndreRenaud/epd1in54b/internal/config"
	"github.com/AndreRenaud/epd1in54b/internal/log"
)

type flagConfig struct {
	configPath string
	image      string
	redImage   string
	rotate     int
	clear      bool
	sleep      bool
}

func parseFlags() flagConfig {
	var cfg flagConfig
	flag.StringVar(&cfg.configPath, "config", "epd.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.image, "image", "", "Image to draw on the EInk")
	flag.StringVar(&cfg.redImage, "red-image", "", "Optional image whose dark pixels are drawn in the chromatic color")
	flag.IntVar(&cfg.rotate, "rotate", 0, "Rotation angle")
	flag.BoolVar(&cfg.clear, "clear", false, "Clear the panel to the background color")
	flag.BoolVar(&cfg.sleep, "sleep", true, "Put the panel into deep sleep when done")
	flag.Parse()
	return cfg
}

func main() {
	flags := parseFlags()
	if flags.image == "" && !flags.clear {
		fmt.Fprintln(os.Stderr, "must supply --image or --clear")
		os.Exit(2)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		log.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	level, _ := log.ParseLevel(conf.LogLevel)
	log.SetLevel(level)
	log.Info("effective config",
		"panel", conf.Panel,
		"transport", conf.Transport,
		"spi_bus", conf.SPIBus,
		"background", conf.Background,
		"busy_timeout", conf.BusyTimeout,
	)

	if err := run(conf, flags); err != nil {
		log.Error("epd failed", err)
		os.Exit(1)
	}
}

func run(conf *config.Config, flags flagConfig) error {
	if _, err := host.Init(); err != nil {
		return err
	}

	wiring, err := openWiring(conf)
	if err != nil {
		return err
	}
	if wiring.Opts, err = conf.DriverOpts(); err != nil {
		return err
	}

	display, err := epd.NewEPDFromSPI(conf.Panel, wiring)
	if err != nil {
		return fmt.Errorf("NewEPD: %w", err)
	}
	defer func() {
		release := display.Release
		if flags.sleep {
			release = display.Close
		}
		if err := release(); err != nil {
			log.Error("close", err)
		}
	}()

	bg, err := conf.BackgroundColor()
	if err != nil {
		return err
	}
	display.SetBackgroundColor(bg)

	if flags.clear {
		log.Info("clearing", "background", bg)
		if err := display.ClearFrame(); err != nil {
			return err
		}
		if flags.image == "" {
			return display.DisplayFrame()
		}
	}

	b := display.Bounds()
	planes, err := loadPlanes(flags, b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	log.Info("drawing", "image", flags.image, "red_image", flags.redImage, "rotate", flags.rotate)
	if err := display.UpdateColorFrame(planes.Black, planes.Chromatic); err != nil {
		return err
	}
	return display.DisplayFrame()
}

func loadPlanes(flags flagConfig, width, height int) (*frame.Planes, error) {
	img, err := loadImage(flags.image, flags.rotate, width, height)
	if err != nil {
		return nil, err
	}
	planes, err := frame.Pack(img, width, height)
	if err != nil {
		return nil, err
	}
	if flags.redImage != "" {
		red, err := loadImage(flags.redImage, flags.rotate, width, height)
		if err != nil {
			return nil, err
		}
		if err := planes.Overlay(red); err != nil {
			return nil, err
		}
	}
	return planes, nil
}

func loadImage(path string, rotate, width, height int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if rotate%360 != 0 {
		img = imaging.Rotate(img, float64(rotate%360), color.White)
	}
	return frame.Fit(img, width, height), nil
}

// openWiring resolves the SPI port and control pins for the configured
// transport.
func openWiring(conf *config.Config) (epd.SPIConfig, error) {
	var w epd.SPIConfig
	w.MaxHz = physic.Frequency(conf.SPIHz) * physic.Hertz

	switch conf.Transport {
	case config.TransportFTDI:
		all := ftdi.All()
		if len(all) == 0 {
			return w, fmt.Errorf("found no FTDI device on the USB bus")
		}
		// Use channel A.
		ft232h, ok := all[0].(*ftdi.FT232H)
		if !ok {
			return w, fmt.Errorf("not FTDI device on the USB bus")
		}
		s, err := ft232h.SPI()
		if err != nil {
			return w, fmt.Errorf("spi: %w", err)
		}
		w.Port = s
		lookup := func(name string) (gpio.PinIO, error) { return findGPIO(ft232h, name) }
		if err := resolvePins(&w, conf.Pins, lookup); err != nil {
			s.Close()
			return w, err
		}
		return w, nil

	case config.TransportSPIDev:
		s, err := spireg.Open(conf.SPIBus)
		if err != nil {
			return w, fmt.Errorf("spi: %w", err)
		}
		w.Port = s
		if err := resolvePins(&w, conf.Pins, byName); err != nil {
			s.Close()
			return w, err
		}
		return w, nil
	}
	return w, fmt.Errorf("unknown transport %q", conf.Transport)
}

func findGPIO(ft232h *ftdi.FT232H, name string) (gpio.PinIO, error) {
	for _, h := range ft232h.Header() {
		if h.Name() == name {
			return h, nil
		}
	}
	return nil, fmt.Errorf("no such gpio %s", name)
}

func byName(name string) (gpio.PinIO, error) {
	if p := gpioreg.ByName(name); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("no such gpio %s", name)
}

func resolvePins(w *epd.SPIConfig, pins config.Pins, lookup func(string) (gpio.PinIO, error)) error {
	var err error
	if w.DC, err = lookup(pins.DC); err != nil {
		return fmt.Errorf("DC: %w", err)
	}
	if pins.CS != "" {
		if w.CS, err = lookup(pins.CS); err != nil {
			return fmt.Errorf("CS: %w", err)
		}
	}
	if w.RST, err = lookup(pins.RST); err != nil {
		return fmt.Errorf("RST: %w", err)
	}
	if w.BUSY, err = lookup(pins.BUSY); err != nil {
		return fmt.Errorf("BUSY: %w", err)
	}
	return nil
}
